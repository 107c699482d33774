package treasury

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"usdacore/core/types"
)

// YieldAdapter routes idle backing into an external lending market.
type YieldAdapter interface {
	Deposit(ctx context.Context, asset types.Asset, amount *big.Int) error
	Withdraw(ctx context.Context, asset types.Asset, amount *big.Int) error
	AccruedYield(ctx context.Context, asset types.Asset) (*big.Int, error)
}

var errNoAdapter = errors.New("treasury: yield adapter not configured")

// SetYieldAdapter installs the external adapter. A nil adapter keeps every
// unit of backing in local custody.
func (l *Ledger) SetYieldAdapter(adapter YieldAdapter) {
	if l == nil {
		return
	}
	l.adapter = adapter
}

// RouteSurplus deposits up to amount of the asset's unrouted ABOND backing
// into the adapter. Custody balances outside that backing are never routed.
// Adapter failures are recorded and the funds stay local; the returned amount
// is what actually left custody.
func (l *Ledger) RouteSurplus(ctx context.Context, caller Caller, asset types.Asset, amount *big.Int) (*big.Int, error) {
	if err := l.authorize(caller); err != nil {
		return nil, err
	}
	if l.adapter == nil || amount == nil || amount.Sign() <= 0 {
		return big.NewInt(0), nil
	}
	totals, err := l.Totals()
	if err != nil {
		return nil, err
	}
	routed := new(big.Int).Set(amount)
	if unrouted := totals.UnroutedBacking(asset); unrouted.Cmp(routed) < 0 {
		routed = unrouted
	}
	custody, err := l.loadAccount(l.custody)
	if err != nil {
		return nil, err
	}
	if available := custody.Balance(asset); available.Cmp(routed) < 0 {
		routed = available
	}
	if routed.Sign() == 0 {
		return big.NewInt(0), nil
	}
	if err := l.adapter.Deposit(ctx, asset, routed); err != nil {
		totals.YieldRouteFailures++
		return big.NewInt(0), l.state.PutTreasuryTotals(totals)
	}
	if err := custody.Debit(asset, routed); err != nil {
		return nil, err
	}
	if err := l.state.PutAccount(l.custody, custody); err != nil {
		return nil, err
	}
	if err := totals.YieldRoutedByAsset.Add(asset, routed); err != nil {
		return nil, err
	}
	totals.YieldRouted.Add(totals.YieldRouted, routed)
	return routed, l.state.PutTreasuryTotals(totals)
}

// Recall pulls amount of asset back from the adapter into custody.
func (l *Ledger) Recall(ctx context.Context, caller Caller, asset types.Asset, amount *big.Int) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if l.adapter == nil {
		return errNoAdapter
	}
	if err := positive(amount); err != nil {
		return err
	}
	totals, err := l.Totals()
	if err != nil {
		return err
	}
	if routed := totals.YieldRoutedByAsset.Of(asset); routed.Cmp(amount) < 0 {
		return fmt.Errorf("treasury: only %s %s routed, cannot recall %s", routed, asset, amount)
	}
	if err := l.adapter.Withdraw(ctx, asset, amount); err != nil {
		return fmt.Errorf("treasury: recall from adapter: %w", err)
	}
	custody, err := l.loadAccount(l.custody)
	if err != nil {
		return err
	}
	if err := custody.Credit(asset, amount); err != nil {
		return err
	}
	if err := l.state.PutAccount(l.custody, custody); err != nil {
		return err
	}
	if err := totals.YieldRoutedByAsset.Sub(asset, amount); err != nil {
		return err
	}
	totals.YieldRouted.Sub(totals.YieldRouted, amount)
	return l.state.PutTreasuryTotals(totals)
}

// AccruedYield reports the adapter's yield for asset, zero without an adapter.
func (l *Ledger) AccruedYield(ctx context.Context, asset types.Asset) (*big.Int, error) {
	if l == nil || l.adapter == nil {
		return big.NewInt(0), nil
	}
	return l.adapter.AccruedYield(ctx, asset)
}

// MemoryAdapter is an in-process YieldAdapter that accrues a fixed basis
// point yield on every deposit. It backs local deployments and tests.
type MemoryAdapter struct {
	mu        sync.Mutex
	yieldBps  uint64
	principal map[types.Asset]*big.Int
	accrued   map[types.Asset]*big.Int
	failWith  error
}

func NewMemoryAdapter(yieldBps uint64) *MemoryAdapter {
	return &MemoryAdapter{
		yieldBps:  yieldBps,
		principal: make(map[types.Asset]*big.Int),
		accrued:   make(map[types.Asset]*big.Int),
	}
}

// FailWith makes every following call return err until reset with nil.
func (m *MemoryAdapter) FailWith(err error) {
	m.mu.Lock()
	m.failWith = err
	m.mu.Unlock()
}

func (m *MemoryAdapter) Deposit(_ context.Context, asset types.Asset, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	principal := m.balance(m.principal, asset)
	principal.Add(principal, amount)
	earned := new(big.Int).Mul(amount, new(big.Int).SetUint64(m.yieldBps))
	earned.Quo(earned, big.NewInt(10_000))
	accrued := m.balance(m.accrued, asset)
	accrued.Add(accrued, earned)
	return nil
}

func (m *MemoryAdapter) Withdraw(_ context.Context, asset types.Asset, amount *big.Int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return m.failWith
	}
	principal := m.balance(m.principal, asset)
	if principal.Cmp(amount) < 0 {
		return fmt.Errorf("memory adapter: %s principal %s below %s", asset, principal, amount)
	}
	principal.Sub(principal, amount)
	return nil
}

func (m *MemoryAdapter) AccruedYield(_ context.Context, asset types.Asset) (*big.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failWith != nil {
		return nil, m.failWith
	}
	return new(big.Int).Set(m.balance(m.accrued, asset)), nil
}

func (m *MemoryAdapter) balance(book map[types.Asset]*big.Int, asset types.Asset) *big.Int {
	v, ok := book[asset]
	if !ok {
		v = big.NewInt(0)
		book[asset] = v
	}
	return v
}
