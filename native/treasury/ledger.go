package treasury

import (
	"errors"
	"fmt"
	"math/big"

	"usdacore/core/types"
)

var (
	ErrUnauthorizedCaller   = errors.New("treasury: this function can only be called by core contracts")
	ErrInvalidWithdrawal    = errors.New("treasury: input address or amount is invalid")
	ErrInsufficientInterest = errors.New("treasury: treasury don't have enough interest")
	ErrNotAdmin             = errors.New("treasury: caller is not an admin")
	ErrConservation         = errors.New("treasury: collateral conservation violated")

	errNilState      = errors.New("treasury: state not configured")
	errInvalidAmount = errors.New("treasury: amount must be positive")
)

type ledgerState interface {
	TreasuryTotals() (*Totals, error)
	PutTreasuryTotals(*Totals) error
	BorrowingRecord(addr [20]byte) (*BorrowingRecord, error)
	PutBorrowingRecord(addr [20]byte, rec *BorrowingRecord) error
	GetAccount(addr [20]byte) (*types.Account, error)
	PutAccount(addr [20]byte, acc *types.Account) error
}

// Ledger is the single source of truth for protocol aggregates and custody.
// Only the callers it was constructed with may mutate it.
type Ledger struct {
	state      ledgerState
	custody    [20]byte
	admin      [20]byte
	authorized map[Caller]struct{}
	adapter    YieldAdapter
}

// NewLedger binds the ledger to state. custody is the account holding every
// token the protocol has taken in.
func NewLedger(state ledgerState, custody [20]byte, callers ...Caller) *Ledger {
	authorized := make(map[Caller]struct{}, len(callers))
	for _, caller := range callers {
		if caller == CallerNone {
			continue
		}
		authorized[caller] = struct{}{}
	}
	return &Ledger{state: state, custody: custody, authorized: authorized}
}

// SetAdmin configures the address allowed to withdraw interest.
func (l *Ledger) SetAdmin(admin [20]byte) {
	if l == nil {
		return
	}
	l.admin = admin
}

func (l *Ledger) Custody() [20]byte {
	if l == nil {
		return [20]byte{}
	}
	return l.custody
}

func (l *Ledger) authorize(caller Caller) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if _, ok := l.authorized[caller]; !ok {
		return fmt.Errorf("%w: %s", ErrUnauthorizedCaller, caller)
	}
	return nil
}

// Totals returns a copy of the aggregates.
func (l *Ledger) Totals() (*Totals, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	totals, err := l.state.TreasuryTotals()
	if err != nil {
		return nil, err
	}
	if totals == nil {
		totals = &Totals{}
	}
	totals.ensureDefaults()
	return totals, nil
}

// Record returns the borrower's record, zero-valued when the borrower is new.
func (l *Ledger) Record(addr [20]byte) (*BorrowingRecord, error) {
	if l == nil || l.state == nil {
		return nil, errNilState
	}
	rec, err := l.state.BorrowingRecord(addr)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		rec = &BorrowingRecord{}
	}
	rec.ensureDefaults()
	return rec, nil
}

func (l *Ledger) update(caller Caller, fn func(*Totals) error) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	totals, err := l.Totals()
	if err != nil {
		return err
	}
	if err := fn(totals); err != nil {
		return err
	}
	return l.state.PutTreasuryTotals(totals)
}

func positive(amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return errInvalidAmount
	}
	return nil
}

func subFloor(a, b *big.Int) *big.Int {
	out := new(big.Int).Sub(a, b)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

func (l *Ledger) loadAccount(addr [20]byte) (*types.Account, error) {
	acc, err := l.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		acc = types.NewAccount()
	}
	acc.EnsureDefaults()
	return acc, nil
}

func (l *Ledger) move(from, to [20]byte, asset types.Asset, amount *big.Int) error {
	src, err := l.loadAccount(from)
	if err != nil {
		return err
	}
	if err := src.Debit(asset, amount); err != nil {
		return err
	}
	if err := l.state.PutAccount(from, src); err != nil {
		return err
	}
	dst, err := l.loadAccount(to)
	if err != nil {
		return err
	}
	if err := dst.Credit(asset, amount); err != nil {
		return err
	}
	return l.state.PutAccount(to, dst)
}

// Collect moves tokens from an account into treasury custody.
func (l *Ledger) Collect(caller Caller, from [20]byte, asset types.Asset, amount *big.Int) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if err := positive(amount); err != nil {
		return err
	}
	return l.move(from, l.custody, asset, amount)
}

// Disburse moves tokens out of treasury custody.
func (l *Ledger) Disburse(caller Caller, to [20]byte, asset types.Asset, amount *big.Int) error {
	if err := l.authorize(caller); err != nil {
		return err
	}
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return l.move(l.custody, to, asset, amount)
}

// MintUSDa credits freshly issued USDa to an account.
func (l *Ledger) MintUSDa(caller Caller, to [20]byte, amount *big.Int) error {
	if err := positive(amount); err != nil {
		return err
	}
	return l.update(caller, func(t *Totals) error {
		acc, err := l.loadAccount(to)
		if err != nil {
			return err
		}
		if err := acc.Credit(types.AssetUSDa, amount); err != nil {
			return err
		}
		if err := l.state.PutAccount(to, acc); err != nil {
			return err
		}
		t.USDaSupply.Add(t.USDaSupply, amount)
		return nil
	})
}

// BurnUSDa destroys USDa held by an account.
func (l *Ledger) BurnUSDa(caller Caller, from [20]byte, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	return l.update(caller, func(t *Totals) error {
		acc, err := l.loadAccount(from)
		if err != nil {
			return err
		}
		if err := acc.Debit(types.AssetUSDa, amount); err != nil {
			return err
		}
		if err := l.state.PutAccount(from, acc); err != nil {
			return err
		}
		t.USDaSupply = subFloor(t.USDaSupply, amount)
		return nil
	})
}

// OpenBorrow records a new position and returns its per-borrower index.
func (l *Ledger) OpenBorrow(caller Caller, borrower [20]byte, collateral, usdValue *big.Int) (uint64, error) {
	if err := positive(collateral); err != nil {
		return 0, err
	}
	var index uint64
	err := l.update(caller, func(t *Totals) error {
		rec, err := l.Record(borrower)
		if err != nil {
			return err
		}
		if !rec.HasDeposited {
			t.NoOfBorrowers++
		}
		rec.BorrowerIndex++
		rec.HasDeposited = true
		rec.HasBorrowed = true
		rec.DepositedAmount.Add(rec.DepositedAmount, collateral)
		index = rec.BorrowerIndex
		if err := l.state.PutBorrowingRecord(borrower, rec); err != nil {
			return err
		}
		t.TotalVolumeOfBorrowersNative.Add(t.TotalVolumeOfBorrowersNative, collateral)
		if usdValue != nil {
			t.TotalVolumeOfBorrowersUSD.Add(t.TotalVolumeOfBorrowersUSD, usdValue)
		}
		t.CollateralDeposited.Add(t.CollateralDeposited, collateral)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return index, nil
}

// CloseBorrow removes collateral from the active volume. The caller decides
// where the collateral goes next.
func (l *Ledger) CloseBorrow(caller Caller, borrower [20]byte, collateral, usdValue *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		rec, err := l.Record(borrower)
		if err != nil {
			return err
		}
		rec.DepositedAmount = subFloor(rec.DepositedAmount, collateral)
		if err := l.state.PutBorrowingRecord(borrower, rec); err != nil {
			return err
		}
		t.TotalVolumeOfBorrowersNative = subFloor(t.TotalVolumeOfBorrowersNative, collateral)
		if usdValue != nil {
			t.TotalVolumeOfBorrowersUSD = subFloor(t.TotalVolumeOfBorrowersUSD, usdValue)
		}
		return nil
	})
}

// ReleaseCollateral accounts for collateral leaving protocol custody.
func (l *Ledger) ReleaseCollateral(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount != nil {
			t.CollateralReleased.Add(t.CollateralReleased, amount)
		}
		return nil
	})
}

// AddAbondBacking retains collateral of asset as ABOND backing.
func (l *Ledger) AddAbondBacking(caller Caller, asset types.Asset, amount *big.Int) error {
	if !asset.IsCollateral() {
		return fmt.Errorf("treasury: %s cannot back abond", asset)
	}
	return l.update(caller, func(t *Totals) error {
		if amount == nil {
			return nil
		}
		if err := t.AbondBackingByAsset.Add(asset, amount); err != nil {
			return err
		}
		t.AbondBacking.Add(t.AbondBacking, amount)
		return nil
	})
}

// TakeAbondBacking releases asset backing to a redeemer. Backing of one kind
// never covers another.
func (l *Ledger) TakeAbondBacking(caller Caller, asset types.Asset, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount == nil {
			return nil
		}
		held := t.AbondBackingByAsset.Of(asset)
		if held.Cmp(amount) < 0 {
			return fmt.Errorf("treasury: abond %s backing %s below %s", asset, held, amount)
		}
		if err := t.AbondBackingByAsset.Sub(asset, amount); err != nil {
			return err
		}
		t.AbondBacking.Sub(t.AbondBacking, amount)
		t.CollateralReleased.Add(t.CollateralReleased, amount)
		return nil
	})
}

// AddLiquidationPending parks seized collateral until CDS depositors withdraw.
func (l *Ledger) AddLiquidationPending(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount != nil {
			t.LiquidationPending.Add(t.LiquidationPending, amount)
		}
		return nil
	})
}

// TakeLiquidationPending pays out seized collateral to a CDS depositor.
func (l *Ledger) TakeLiquidationPending(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount == nil {
			return nil
		}
		if t.LiquidationPending.Cmp(amount) < 0 {
			return fmt.Errorf("treasury: liquidation pending %s below %s", t.LiquidationPending, amount)
		}
		t.LiquidationPending.Sub(t.LiquidationPending, amount)
		t.CollateralReleased.Add(t.CollateralReleased, amount)
		return nil
	})
}

// AddInterest books borrower interest, splitting off the ABOND pool share.
func (l *Ledger) AddInterest(caller Caller, treasuryShare, abondShare *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if treasuryShare != nil {
			t.TotalInterestCollected.Add(t.TotalInterestCollected, treasuryShare)
		}
		if abondShare != nil {
			t.AbondUSDaPool.Add(t.AbondUSDaPool, abondShare)
		}
		return nil
	})
}

// AddLiquidationInterest books the interest part of a liquidated debt.
func (l *Ledger) AddLiquidationInterest(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount != nil {
			t.TotalInterestFromLiquidation.Add(t.TotalInterestFromLiquidation, amount)
		}
		return nil
	})
}

// TakeAbondPool pays USDa yield out of the ABOND pool.
func (l *Ledger) TakeAbondPool(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount == nil {
			return nil
		}
		if t.AbondUSDaPool.Cmp(amount) < 0 {
			return fmt.Errorf("treasury: abond pool %s below %s", t.AbondUSDaPool, amount)
		}
		t.AbondUSDaPool.Sub(t.AbondUSDaPool, amount)
		return nil
	})
}

// AdjustCdsDeposited applies a signed delta to the CDS total.
func (l *Ledger) AdjustCdsDeposited(caller Caller, delta *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if delta == nil {
			return nil
		}
		next := new(big.Int).Add(t.TotalCdsDeposited, delta)
		if next.Sign() < 0 {
			return fmt.Errorf("treasury: cds total would go negative")
		}
		t.TotalCdsDeposited = next
		return nil
	})
}

// AdjustUSDTReserve applies a signed delta to the USDT reserve.
func (l *Ledger) AdjustUSDTReserve(caller Caller, delta *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if delta == nil {
			return nil
		}
		next := new(big.Int).Add(t.USDTReserve, delta)
		if next.Sign() < 0 {
			return fmt.Errorf("treasury: usdt reserve would go negative")
		}
		t.USDTReserve = next
		return nil
	})
}

// AdjustCDSUSDaReserve applies a signed delta to the USDa held in custody
// on behalf of CDS depositors.
func (l *Ledger) AdjustCDSUSDaReserve(caller Caller, delta *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if delta == nil {
			return nil
		}
		next := new(big.Int).Add(t.CDSUSDaReserve, delta)
		if next.Sign() < 0 {
			return fmt.Errorf("treasury: cds usda reserve would go negative")
		}
		t.CDSUSDaReserve = next
		return nil
	})
}

// RecordMessagingFee tracks cross-chain fees paid on behalf of callers.
func (l *Ledger) RecordMessagingFee(caller Caller, amount *big.Int) error {
	return l.update(caller, func(t *Totals) error {
		if amount != nil {
			t.MessagingFeesPaid.Add(t.MessagingFeesPaid, amount)
		}
		return nil
	})
}

// WithdrawInterest pays uncommitted interest in USDa to the recipient.
func (l *Ledger) WithdrawInterest(caller, to [20]byte, amount *big.Int) error {
	if l == nil || l.state == nil {
		return errNilState
	}
	if l.admin == ([20]byte{}) || caller != l.admin {
		return ErrNotAdmin
	}
	if to == ([20]byte{}) || amount == nil || amount.Sign() <= 0 {
		return ErrInvalidWithdrawal
	}
	totals, err := l.Totals()
	if err != nil {
		return err
	}
	if totals.AvailableInterest().Cmp(amount) < 0 {
		return ErrInsufficientInterest
	}
	if err := l.move(l.custody, to, types.AssetUSDa, amount); err != nil {
		return err
	}
	totals.InterestWithdrawn.Add(totals.InterestWithdrawn, amount)
	return l.state.PutTreasuryTotals(totals)
}

// ConservationGap returns deposited - released - (active + backing + pending).
// A healthy ledger always reports zero.
func (t *Totals) ConservationGap() *big.Int {
	c := t.Clone()
	gap := new(big.Int).Sub(c.CollateralDeposited, c.CollateralReleased)
	gap.Sub(gap, c.TotalVolumeOfBorrowersNative)
	gap.Sub(gap, c.AbondBacking)
	gap.Sub(gap, c.LiquidationPending)
	return gap
}

// CheckConservation verifies that no collateral was created or lost and that
// the per-kind backing figures add up to their totals.
func (l *Ledger) CheckConservation() error {
	totals, err := l.Totals()
	if err != nil {
		return err
	}
	if gap := totals.ConservationGap(); gap.Sign() != 0 {
		return fmt.Errorf("%w: gap %s", ErrConservation, gap)
	}
	if sum := totals.AbondBackingByAsset.Total(); sum.Cmp(totals.AbondBacking) != 0 {
		return fmt.Errorf("%w: abond backing %s split as %s", ErrConservation, totals.AbondBacking, sum)
	}
	if sum := totals.YieldRoutedByAsset.Total(); sum.Cmp(totals.YieldRouted) != 0 {
		return fmt.Errorf("%w: yield routed %s split as %s", ErrConservation, totals.YieldRouted, sum)
	}
	for _, asset := range types.CollateralAssets() {
		if totals.YieldRoutedByAsset.Of(asset).Cmp(totals.AbondBackingByAsset.Of(asset)) > 0 {
			return fmt.Errorf("%w: %s routed above its backing", ErrConservation, asset)
		}
	}
	return nil
}
