package cds

import (
	"errors"
	"fmt"
	"math/big"

	"usdacore/core/events"
	"usdacore/core/types"
	"usdacore/native/borrowing"
	nativecommon "usdacore/native/common"
	"usdacore/native/params"
	"usdacore/native/rate"
	"usdacore/native/treasury"
)

var (
	ErrZeroDeposit              = errors.New("CDS: deposit amount should not be zero")
	ErrLiquidationAmountTooHigh = errors.New("CDS: liquidation amount can't be greater than deposited amount")
	ErrUSDTOnly                 = errors.New("CDS: 100% of amount must be USDT")
	ErrSurplusUSDT              = errors.New("CDS: Surplus USDT amount")
	ErrUSDaShareNotMet          = errors.New("CDS: required USDa amount not met")
	ErrInsufficientUSDT         = errors.New("CDS: insufficient USDT balance")
	ErrInsufficientUSDa         = errors.New("CDS: insufficient USDa balance")
	ErrPositionNotFound         = errors.New("CDS: position not found")
	ErrAlreadyWithdrawn         = errors.New("CDS: already withdrawn")
	ErrWithdrawTooEarly         = errors.New("CDS: cannot withdraw before the withdraw time limit")
	ErrNotEnoughFund            = errors.New("CDS: Not enough fund in CDS")
	ErrZeroAmount               = errors.New("CDS: amount should not be zero")
	ErrInvalidPrice             = errors.New("CDS: price must be positive")
	ErrInsufficientBalance      = errors.New("CDS: insufficient balance")
	ErrSlippage                 = errors.New("CDS: USDT output below minimum")
	ErrInsufficientReserve      = errors.New("CDS: insufficient USDT reserve")
	ErrInsufficientLiquidity    = errors.New("CDS: available liquidation amount below debt")

	ErrNotAdmin        = params.ErrNotAdmin
	ErrApprovalsNotMet = params.ErrApprovalsNotMet

	errNilState = errors.New("CDS: state not configured")
)

type engineState interface {
	CDSPosition(owner [20]byte, index uint64) (*Position, error)
	PutCDSPosition(owner [20]byte, index uint64, pos *Position) error
	CDSDepositorCount(owner [20]byte) (uint64, error)
	PutCDSDepositorCount(owner [20]byte, count uint64) error
	CDSPool() (*Pool, error)
	PutCDSPool(*Pool) error
	LiquidationEntryCount() (uint64, error)
	LiquidationEntry(index uint64) (*LiquidationEntry, error)
	AppendLiquidationEntry(entry *LiquidationEntry) (uint64, error)
	GetAccount(addr [20]byte) (*types.Account, error)
}

// Engine runs the collateral-default-swap pool.
type Engine struct {
	state   engineState
	ledger  *treasury.Ledger
	params  *params.Store
	gate    params.Gate
	pauses  nativecommon.PauseView
	emitter events.Emitter
}

func NewEngine(state engineState, ledger *treasury.Ledger, store *params.Store) *Engine {
	return &Engine{state: state, ledger: ledger, params: store, emitter: events.NoopEmitter{}}
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

func (e *Engine) SetGate(gate params.Gate) {
	if e == nil {
		return
	}
	e.gate = gate
}

func (e *Engine) SetEmitter(emitter events.Emitter) {
	if e == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	e.emitter = emitter
}

func (e *Engine) emit(evt events.Event) {
	if e.emitter != nil {
		e.emitter.Emit(evt)
	}
}

func (e *Engine) ready() error {
	if e == nil || e.state == nil || e.ledger == nil || e.params == nil {
		return errNilState
	}
	return nil
}

func unixSeconds(now int64) uint64 {
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return v
}

func minBig(a, b *big.Int) *big.Int {
	if a.Cmp(b) < 0 {
		return new(big.Int).Set(a)
	}
	return new(big.Int).Set(b)
}

// Pool returns the pool aggregates.
func (e *Engine) Pool() (*Pool, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pool, err := e.state.CDSPool()
	if err != nil {
		return nil, err
	}
	if pool == nil {
		pool = &Pool{}
	}
	pool.ensureDefaults()
	return pool, nil
}

func (e *Engine) Position(owner [20]byte, index uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos, err := e.state.CDSPosition(owner, index)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pos.ensureDefaults()
	return pos, nil
}

func (e *Engine) balance(addr [20]byte, asset types.Asset) (*big.Int, error) {
	acc, err := e.state.GetAccount(addr)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return big.NewInt(0), nil
	}
	return acc.Balance(asset), nil
}

// Deposit adds USDT and USDa to the pool and returns the depositor's new
// position index. USDT is swapped one-to-one into USDa held in custody.
func (e *Engine) Deposit(req DepositRequest) (uint64, *Position, error) {
	if err := e.ready(); err != nil {
		return 0, nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionCDSDeposit); err != nil {
		return 0, nil, err
	}
	usdt := new(big.Int).Set(orZero(req.USDT))
	usda := new(big.Int).Set(orZero(req.USDa))
	if usdt.Sign() < 0 || usda.Sign() < 0 {
		return 0, nil, ErrZeroDeposit
	}
	total := new(big.Int).Add(usdt, usda)
	if total.Sign() == 0 {
		return 0, nil, ErrZeroDeposit
	}
	liquidation := big.NewInt(0)
	if req.OptIn {
		liquidation = new(big.Int).Set(orZero(req.LiquidationAmount))
		if liquidation.Sign() < 0 || liquidation.Cmp(total) > 0 {
			return 0, nil, ErrLiquidationAmountTooHigh
		}
	}

	p, err := e.params.Protocol()
	if err != nil {
		return 0, nil, err
	}
	pool, err := e.Pool()
	if err != nil {
		return 0, nil, err
	}
	if pool.USDTDeposited.Cmp(p.USDTLimit) < 0 {
		if usda.Sign() != 0 {
			return 0, nil, ErrUSDTOnly
		}
		if new(big.Int).Add(pool.USDTDeposited, usdt).Cmp(p.USDTLimit) > 0 {
			return 0, nil, ErrSurplusUSDT
		}
	} else if rate.ApplyBps(total, p.USDaMinBps).Cmp(usda) > 0 {
		return 0, nil, ErrUSDaShareNotMet
	}

	if usdt.Sign() > 0 {
		have, err := e.balance(req.Depositor, types.AssetUSDT)
		if err != nil {
			return 0, nil, err
		}
		if have.Cmp(usdt) < 0 {
			return 0, nil, ErrInsufficientUSDT
		}
	}
	if usda.Sign() > 0 {
		have, err := e.balance(req.Depositor, types.AssetUSDa)
		if err != nil {
			return 0, nil, err
		}
		if have.Cmp(usda) < 0 {
			return 0, nil, ErrInsufficientUSDa
		}
	}

	if usdt.Sign() > 0 {
		if err := e.ledger.Collect(treasury.CallerCDS, req.Depositor, types.AssetUSDT, usdt); err != nil {
			return 0, nil, err
		}
		if err := e.ledger.AdjustUSDTReserve(treasury.CallerCDS, usdt); err != nil {
			return 0, nil, err
		}
		if err := e.ledger.MintUSDa(treasury.CallerCDS, e.ledger.Custody(), usdt); err != nil {
			return 0, nil, err
		}
	}
	if usda.Sign() > 0 {
		if err := e.ledger.Collect(treasury.CallerCDS, req.Depositor, types.AssetUSDa, usda); err != nil {
			return 0, nil, err
		}
	}
	if err := e.ledger.AdjustCDSUSDaReserve(treasury.CallerCDS, total); err != nil {
		return 0, nil, err
	}
	if err := e.ledger.AdjustCdsDeposited(treasury.CallerCDS, total); err != nil {
		return 0, nil, err
	}

	count, err := e.state.CDSDepositorCount(req.Depositor)
	if err != nil {
		return 0, nil, err
	}
	if count == 0 {
		pool.Depositors++
	}
	index := count + 1
	if err := e.state.PutCDSDepositorCount(req.Depositor, index); err != nil {
		return 0, nil, err
	}
	snapshot, err := e.state.LiquidationEntryCount()
	if err != nil {
		return 0, nil, err
	}
	pool.USDTDeposited.Add(pool.USDTDeposited, usdt)
	pool.TotalAvailableLiquidation.Add(pool.TotalAvailableLiquidation, liquidation)
	if err := e.state.PutCDSPool(pool); err != nil {
		return 0, nil, err
	}

	pos := &Position{
		USDT:              usdt,
		USDa:              usda,
		Total:             total,
		OptIn:             req.OptIn,
		LiquidationAmount: liquidation,
		SnapshotIndex:     snapshot,
		DepositedAt:       unixSeconds(req.Now),
	}
	pos.ensureDefaults()
	if err := e.state.PutCDSPosition(req.Depositor, index, pos); err != nil {
		return 0, nil, err
	}
	e.emit(events.CDSDeposited{
		Depositor:         req.Depositor,
		Index:             index,
		USDT:              usdt,
		USDa:              usda,
		OptIn:             req.OptIn,
		LiquidationAmount: liquidation,
		Snapshot:          snapshot,
	})
	return index, pos.Clone(), nil
}

// ceilDiv returns ceil(a*b/c) for non-negative inputs.
func ceilDiv(a, b, c *big.Int) *big.Int {
	num := new(big.Int).Mul(a, b)
	q, r := new(big.Int).QuoRem(num, c, new(big.Int))
	if r.Sign() > 0 {
		q.Add(q, big.NewInt(1))
	}
	return q
}

// replay walks the liquidation ledger from the position's snapshot and
// returns the debt the depositor absorbed, the collateral owed per asset,
// the unconsumed liquidation amount and the number of entries visited.
func (e *Engine) replay(pos *Position) (*big.Int, map[types.Asset]*big.Int, *big.Int, uint64, error) {
	debt := big.NewInt(0)
	collateral := make(map[types.Asset]*big.Int)
	remaining := new(big.Int).Set(pos.LiquidationAmount)
	if !pos.OptIn || remaining.Sign() == 0 {
		return debt, collateral, remaining, 0, nil
	}
	count, err := e.state.LiquidationEntryCount()
	if err != nil {
		return nil, nil, nil, 0, err
	}
	var seen uint64
	for i := pos.SnapshotIndex; i < count; i++ {
		if remaining.Sign() == 0 {
			break
		}
		entry, err := e.state.LiquidationEntry(i)
		if err != nil {
			return nil, nil, nil, 0, err
		}
		seen++
		if entry == nil {
			continue
		}
		entry.ensureDefaults()
		if entry.AvailableBefore.Sign() == 0 {
			continue
		}
		debtShare := ceilDiv(remaining, entry.DebtCovered, entry.AvailableBefore)
		if debtShare.Cmp(remaining) > 0 {
			debtShare.Set(remaining)
		}
		collShare := rate.MulDiv(remaining, entry.Collateral, entry.AvailableBefore)
		debt.Add(debt, debtShare)
		if collShare.Sign() > 0 {
			if collateral[entry.Asset] == nil {
				collateral[entry.Asset] = big.NewInt(0)
			}
			collateral[entry.Asset].Add(collateral[entry.Asset], collShare)
		}
		remaining.Sub(remaining, debtShare)
	}
	return debt, collateral, remaining, seen, nil
}

// Preview computes what Withdraw would pay without mutating state.
func (e *Engine) Preview(owner [20]byte, index uint64) (*WithdrawResult, error) {
	pos, err := e.Position(owner, index)
	if err != nil {
		return nil, err
	}
	debt, collateral, _, seen, err := e.replay(pos)
	if err != nil {
		return nil, err
	}
	redeemable := new(big.Int).Sub(pos.Total, debt)
	if redeemable.Sign() < 0 {
		redeemable = big.NewInt(0)
	}
	return &WithdrawResult{USDa: redeemable, DebtShare: debt, Collateral: collateral, EntriesSeen: seen}, nil
}

// Withdraw closes a position after the holding period, settling the
// depositor's share of every liquidation since the deposit.
func (e *Engine) Withdraw(req WithdrawRequest) (*WithdrawResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionCDSWithdraw); err != nil {
		return nil, err
	}
	pos, err := e.Position(req.Depositor, req.Index)
	if err != nil {
		return nil, err
	}
	if pos.Withdrawn {
		return nil, ErrAlreadyWithdrawn
	}
	if req.Price == 0 {
		return nil, ErrInvalidPrice
	}
	p, err := e.params.Protocol()
	if err != nil {
		return nil, err
	}
	now := unixSeconds(req.Now)
	if now < pos.DepositedAt+p.WithdrawTimeLimit {
		return nil, ErrWithdrawTooEarly
	}

	debt, collateral, unconsumed, seen, err := e.replay(pos)
	if err != nil {
		return nil, err
	}
	redeemable := new(big.Int).Sub(pos.Total, debt)
	if redeemable.Sign() < 0 {
		redeemable = big.NewInt(0)
	}

	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	vault := borrowing.USDValue(totals.TotalVolumeOfBorrowersNative, req.Price)
	free := new(big.Int).Sub(totals.TotalCdsDeposited, rate.ApplyBps(vault, p.CoverageRatioBps))
	if free.Cmp(redeemable) < 0 {
		return nil, ErrNotEnoughFund
	}

	if redeemable.Sign() > 0 {
		if err := e.ledger.AdjustCdsDeposited(treasury.CallerCDS, new(big.Int).Neg(minBig(redeemable, totals.TotalCdsDeposited))); err != nil {
			return nil, err
		}
		if err := e.ledger.AdjustCDSUSDaReserve(treasury.CallerCDS, new(big.Int).Neg(minBig(redeemable, totals.CDSUSDaReserve))); err != nil {
			return nil, err
		}
		if err := e.ledger.Disburse(treasury.CallerCDS, req.Depositor, types.AssetUSDa, redeemable); err != nil {
			return nil, err
		}
	}
	result := &WithdrawResult{USDa: redeemable, DebtShare: debt, Collateral: collateral, EntriesSeen: seen}
	if owed := result.TotalCollateral(); owed.Sign() > 0 {
		if err := e.ledger.TakeLiquidationPending(treasury.CallerCDS, owed); err != nil {
			return nil, err
		}
		for _, asset := range []types.Asset{types.AssetNative, types.AssetWeETH, types.AssetRsETH} {
			if amount := collateral[asset]; amount != nil && amount.Sign() > 0 {
				if err := e.ledger.Disburse(treasury.CallerCDS, req.Depositor, asset, amount); err != nil {
					return nil, err
				}
			}
		}
	}

	pool, err := e.Pool()
	if err != nil {
		return nil, err
	}
	pool.TotalAvailableLiquidation.Sub(pool.TotalAvailableLiquidation, minBig(unconsumed, pool.TotalAvailableLiquidation))
	if err := e.state.PutCDSPool(pool); err != nil {
		return nil, err
	}

	pos.Withdrawn = true
	pos.WithdrawnAt = now
	pos.WithdrawnUSDa = new(big.Int).Set(redeemable)
	pos.DebtAbsorbed = new(big.Int).Set(debt)
	if err := e.state.PutCDSPosition(req.Depositor, req.Index, pos); err != nil {
		return nil, err
	}
	e.emit(events.CDSWithdrawn{
		Depositor:   req.Depositor,
		Index:       req.Index,
		USDa:        redeemable,
		DebtShare:   debt,
		Collateral:  result.TotalCollateral(),
		EntriesSeen: seen,
	})
	return result, nil
}

// RedeemUSDT burns USDa for USDT out of the reserve at the given prices.
func (e *Engine) RedeemUSDT(req RedeemRequest) (*big.Int, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionRedeemUSDT); err != nil {
		return nil, err
	}
	if req.USDa == nil || req.USDa.Sign() <= 0 {
		return nil, ErrZeroAmount
	}
	if req.USDaPrice == 0 || req.USDTPrice == 0 {
		return nil, ErrInvalidPrice
	}
	have, err := e.balance(req.Account, types.AssetUSDa)
	if err != nil {
		return nil, err
	}
	if have.Cmp(req.USDa) < 0 {
		return nil, ErrInsufficientBalance
	}
	usdt := rate.MulDiv(req.USDa, new(big.Int).SetUint64(req.USDaPrice), new(big.Int).SetUint64(req.USDTPrice))
	if req.MinUSDTOut != nil && usdt.Cmp(req.MinUSDTOut) < 0 {
		return nil, fmt.Errorf("%w: got %s want %s", ErrSlippage, usdt, req.MinUSDTOut)
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	if totals.USDTReserve.Cmp(usdt) < 0 {
		return nil, ErrInsufficientReserve
	}
	if err := e.ledger.BurnUSDa(treasury.CallerCDS, req.Account, req.USDa); err != nil {
		return nil, err
	}
	if err := e.ledger.AdjustUSDTReserve(treasury.CallerCDS, new(big.Int).Neg(usdt)); err != nil {
		return nil, err
	}
	if err := e.ledger.Disburse(treasury.CallerCDS, req.Account, types.AssetUSDT, usdt); err != nil {
		return nil, err
	}
	e.emit(events.USDTRedeemed{Account: req.Account, USDa: new(big.Int).Set(req.USDa), USDT: usdt})
	return usdt, nil
}

// AbsorbLiquidation appends a ledger entry for a liquidation covered by the
// pool and removes the covered debt from the available liquidity. It returns
// the entry index.
func (e *Engine) AbsorbLiquidation(entry LiquidationEntry) (uint64, error) {
	if err := e.ready(); err != nil {
		return 0, err
	}
	entry.ensureDefaults()
	pool, err := e.Pool()
	if err != nil {
		return 0, err
	}
	if pool.TotalAvailableLiquidation.Cmp(entry.DebtCovered) < 0 {
		return 0, ErrInsufficientLiquidity
	}
	entry.AvailableBefore = new(big.Int).Set(pool.TotalAvailableLiquidation)
	pool.TotalAvailableLiquidation.Sub(pool.TotalAvailableLiquidation, entry.DebtCovered)
	if err := e.state.PutCDSPool(pool); err != nil {
		return 0, err
	}
	return e.state.AppendLiquidationEntry(&entry)
}
