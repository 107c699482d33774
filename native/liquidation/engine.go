package liquidation

import (
	"errors"
	"math/big"

	"usdacore/core/events"
	"usdacore/native/borrowing"
	"usdacore/native/cds"
	nativecommon "usdacore/native/common"
	"usdacore/native/params"
	"usdacore/native/rate"
	"usdacore/native/treasury"
)

var (
	ErrZeroAddress                 = errors.New("liquidation: borrower address can't be zero")
	ErrSelfLiquidation             = errors.New("liquidation: you cannot liquidate your own assets")
	ErrRatioAboveThreshold         = errors.New("liquidation: cannot liquidate, ratio is greater than 0.8")
	ErrInsufficientLiquidationFund = errors.New("liquidation: not enough available liquidation amount in CDS")
	ErrInvalidPrice                = errors.New("liquidation: price must be positive")

	ErrNotAdmin          = params.ErrNotAdmin
	ErrPositionNotFound  = borrowing.ErrPositionNotFound
	ErrAlreadyLiquidated = borrowing.ErrAlreadyLiquidated
	ErrAlreadyWithdrawn  = borrowing.ErrAlreadyWithdrawn

	errNilState = errors.New("liquidation: state not configured")
)

type engineState interface {
	rate.Store
	PutBorrowPosition(owner [20]byte, index uint64, pos *borrowing.Position) error
}

// Request force closes an undercollateralised position. Price is the
// current collateral price with two decimals.
type Request struct {
	Caller   [20]byte
	Borrower [20]byte
	Index    uint64
	Price    uint64
	Now      int64
}

// Result describes the settled liquidation.
type Result struct {
	Entry      uint64
	Collateral *big.Int
	Debt       *big.Int
	Interest   *big.Int
	Gain       *big.Int
	IsGain     bool
	HealthBps  uint64
}

// Engine moves unhealthy positions into the CDS pool.
type Engine struct {
	state     engineState
	ledger    *treasury.Ledger
	params    *params.Store
	borrowing *borrowing.Engine
	pool      *cds.Engine
	pauses    nativecommon.PauseView
	emitter   events.Emitter
}

func NewEngine(state engineState, ledger *treasury.Ledger, store *params.Store, borrow *borrowing.Engine, pool *cds.Engine) *Engine {
	return &Engine{
		state:     state,
		ledger:    ledger,
		params:    store,
		borrowing: borrow,
		pool:      pool,
		emitter:   events.NoopEmitter{},
	}
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
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

func (e *Engine) Liquidate(req Request) (*Result, error) {
	if e == nil || e.state == nil || e.ledger == nil || e.params == nil || e.borrowing == nil || e.pool == nil {
		return nil, errNilState
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionLiquidate); err != nil {
		return nil, err
	}
	if req.Borrower == ([20]byte{}) {
		return nil, ErrZeroAddress
	}
	p, err := e.params.RequireAdmin(req.Caller)
	if err != nil {
		return nil, err
	}
	if req.Caller == req.Borrower {
		return nil, ErrSelfLiquidation
	}
	pos, err := e.borrowing.Position(req.Borrower, req.Index)
	if err != nil {
		return nil, err
	}
	if pos.Liquidated {
		return nil, ErrAlreadyLiquidated
	}
	if pos.Closed() {
		return nil, ErrAlreadyWithdrawn
	}
	if req.Price == 0 {
		return nil, ErrInvalidPrice
	}
	health := pos.HealthBps(req.Price)
	if health > p.LiquidationThresholdBps {
		return nil, ErrRatioAboveThreshold
	}

	now := uint64(0)
	if req.Now > 0 {
		now = uint64(req.Now)
	}
	idx, err := rate.Sync(e.state, now)
	if err != nil {
		return nil, err
	}
	debt := idx.Debt(pos.Principal, pos.IndexAtOpen)
	if debt.Cmp(pos.Principal) < 0 {
		debt = new(big.Int).Set(pos.Principal)
	}
	interest := new(big.Int).Sub(debt, pos.Principal)

	pool, err := e.pool.Pool()
	if err != nil {
		return nil, err
	}
	if pool.TotalAvailableLiquidation.Cmp(debt) < 0 {
		return nil, ErrInsufficientLiquidationFund
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	if totals.CDSUSDaReserve.Cmp(debt) < 0 || totals.TotalCdsDeposited.Cmp(debt) < 0 {
		return nil, ErrInsufficientLiquidationFund
	}

	custody := e.ledger.Custody()
	if err := e.ledger.BurnUSDa(treasury.CallerLiquidation, custody, pos.Principal); err != nil {
		return nil, err
	}
	negDebt := new(big.Int).Neg(debt)
	if err := e.ledger.AdjustCDSUSDaReserve(treasury.CallerLiquidation, negDebt); err != nil {
		return nil, err
	}
	if err := e.ledger.AdjustCdsDeposited(treasury.CallerLiquidation, negDebt); err != nil {
		return nil, err
	}
	if err := e.ledger.AddLiquidationInterest(treasury.CallerLiquidation, interest); err != nil {
		return nil, err
	}
	collateral := new(big.Int).Set(pos.Collateral)
	if err := e.ledger.CloseBorrow(treasury.CallerLiquidation, req.Borrower, collateral, pos.USDValueAtOpen); err != nil {
		return nil, err
	}
	if err := e.ledger.AddLiquidationPending(treasury.CallerLiquidation, collateral); err != nil {
		return nil, err
	}

	value := borrowing.USDValue(collateral, req.Price)
	gain := new(big.Int).Sub(value, debt)
	isGain := gain.Sign() >= 0
	gain.Abs(gain)
	entryIndex, err := e.pool.AbsorbLiquidation(cds.LiquidationEntry{
		DebtCovered: new(big.Int).Set(debt),
		Collateral:  new(big.Int).Set(collateral),
		Gain:        new(big.Int).Set(gain),
		IsGain:      isGain,
		Price:       req.Price,
		Timestamp:   now,
		Asset:       pos.Kind.Asset(),
	})
	if err != nil {
		if errors.Is(err, cds.ErrInsufficientLiquidity) {
			return nil, ErrInsufficientLiquidationFund
		}
		return nil, err
	}

	pos.Liquidated = true
	pos.WithdrawnAt = now
	if err := e.state.PutBorrowPosition(req.Borrower, req.Index, pos); err != nil {
		return nil, err
	}
	if e.emitter != nil {
		e.emitter.Emit(events.BorrowLiquidated{
			Borrower:   req.Borrower,
			Index:      req.Index,
			Liquidator: req.Caller,
			Collateral: collateral,
			Debt:       debt,
			Gain:       gain,
			IsGain:     isGain,
			Entry:      entryIndex,
			HealthBps:  health,
		})
	}
	return &Result{
		Entry:      entryIndex,
		Collateral: collateral,
		Debt:       debt,
		Interest:   interest,
		Gain:       gain,
		IsGain:     isGain,
		HealthBps:  health,
	}, nil
}
