package borrowing

import (
	"errors"
	"fmt"
	"math/big"

	"usdacore/core/events"
	"usdacore/core/types"
	"usdacore/native/abond"
	nativecommon "usdacore/native/common"
	"usdacore/native/oracle"
	"usdacore/native/params"
	"usdacore/native/rate"
	"usdacore/native/treasury"
)

var (
	ErrZeroAmount             = errors.New("borrowing: cannot deposit zero tokens")
	ErrUnsupportedCollateral  = errors.New("borrowing: unsupported collateral")
	ErrPriceOutOfBounds       = errors.New("borrowing: price deviates from oracle")
	ErrInvalidOptionBounds    = errors.New("borrowing: invalid option bounds")
	ErrInsufficientCollateral = errors.New("borrowing: insufficient collateral balance")
	ErrNotEnoughFundInCDS     = errors.New("borrowing: Not enough fund in CDS")
	ErrPositionNotFound       = errors.New("borrowing: position not found")
	ErrAlreadyWithdrawn       = errors.New("borrowing: already withdrawn")
	ErrAlreadyLiquidated      = errors.New("borrowing: already liquidated")
	ErrHealthTooLow           = errors.New("borrowing: BorrowingHealth is Low")
	ErrInsufficientRepayment  = errors.New("borrowing: insufficient USDa to repay debt")
	ErrInvalidPrice           = errors.New("borrowing: price must be positive")
	ErrBackingUnavailable     = errors.New("borrowing: abond backing unavailable in custody")

	errNilState = errors.New("borrowing: state not configured")
)

const (
	basisPointsU64 uint64 = 10_000
	basisPointsI64 int64  = 10_000
)

// usdScale converts wei at a two-decimal price into six-decimal USD.
var usdScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(14), nil)

type engineState interface {
	rate.Store
	BorrowPosition(owner [20]byte, index uint64) (*Position, error)
	PutBorrowPosition(owner [20]byte, index uint64, pos *Position) error
	GetAccount(addr [20]byte) (*types.Account, error)
}

// LiquidityView reports CDS liquidity deposited on the peer chain as of the
// last applied sync message.
type LiquidityView interface {
	PeerCDSLiquidity() (*big.Int, error)
}

// ApprovalGate is the owner approval check consulted by admin setters.
type ApprovalGate interface {
	IsApproved(fn string) (bool, error)
	Consume(fn string) error
}

// Engine implements collateral deposits, withdrawals and bond redemption.
type Engine struct {
	state   engineState
	ledger  *treasury.Ledger
	bonds   *abond.Engine
	params  *params.Store
	oracle  oracle.Source
	peer    LiquidityView
	gate    ApprovalGate
	pauses  nativecommon.PauseView
	emitter events.Emitter
}

func NewEngine(state engineState, ledger *treasury.Ledger, bonds *abond.Engine, store *params.Store) *Engine {
	return &Engine{
		state:   state,
		ledger:  ledger,
		bonds:   bonds,
		params:  store,
		emitter: events.NoopEmitter{},
	}
}

func (e *Engine) SetPauses(p nativecommon.PauseView) {
	if e == nil {
		return
	}
	e.pauses = p
}

// SetOracle configures the feed used to bound caller supplied prices. Without
// one the supplied price is trusted.
func (e *Engine) SetOracle(source oracle.Source) {
	if e == nil {
		return
	}
	e.oracle = source
}

func (e *Engine) SetPeerLiquidity(view LiquidityView) {
	if e == nil {
		return
	}
	e.peer = view
}

func (e *Engine) SetGate(gate ApprovalGate) {
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
	if e == nil || e.state == nil || e.ledger == nil || e.bonds == nil || e.params == nil {
		return errNilState
	}
	return nil
}

// USDValue converts a wei amount at a two-decimal price into six-decimal USD.
func USDValue(amount *big.Int, price uint64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	return rate.MulDiv(amount, new(big.Int).SetUint64(price), usdScale)
}

// Covered reports whether cdsLiquidity is at least ratioBps of vaultValue.
func Covered(cdsLiquidity, vaultValue *big.Int, ratioBps uint64) bool {
	required := rate.ApplyBps(vaultValue, ratioBps)
	return cdsLiquidity.Cmp(required) >= 0
}

func unixSeconds(now int64) uint64 {
	if now < 0 {
		return 0
	}
	return uint64(now)
}

func (e *Engine) checkPrice(asset types.Asset, price uint64, toleranceBps uint64) error {
	if price == 0 {
		return ErrInvalidPrice
	}
	if e.oracle == nil {
		return nil
	}
	quote, err := e.oracle.Price(asset)
	if err != nil {
		return fmt.Errorf("borrowing: oracle: %w", err)
	}
	if !oracle.WithinTolerance(quote.Price, price, toleranceBps) {
		return fmt.Errorf("%w: oracle %d supplied %d", ErrPriceOutOfBounds, quote.Price, price)
	}
	return nil
}

func (e *Engine) cdsLiquidity(totals *treasury.Totals) (*big.Int, error) {
	liquidity := new(big.Int).Set(totals.TotalCdsDeposited)
	if e.peer == nil {
		return liquidity, nil
	}
	peer, err := e.peer.PeerCDSLiquidity()
	if err != nil {
		return nil, err
	}
	if peer != nil {
		liquidity.Add(liquidity, peer)
	}
	return liquidity, nil
}

// Position returns a stored position or ErrPositionNotFound.
func (e *Engine) Position(owner [20]byte, index uint64) (*Position, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	pos, err := e.state.BorrowPosition(owner, index)
	if err != nil {
		return nil, err
	}
	if pos == nil {
		return nil, ErrPositionNotFound
	}
	pos.ensureDefaults()
	return pos, nil
}

// DepositCollateral locks collateral, mints the borrowed USDa and returns the
// new position index.
func (e *Engine) DepositCollateral(req DepositRequest) (uint64, *Position, error) {
	if err := e.ready(); err != nil {
		return 0, nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionBorrowDeposit); err != nil {
		return 0, nil, err
	}
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return 0, nil, ErrZeroAmount
	}
	if !req.CollateralKind.Valid() {
		return 0, nil, ErrUnsupportedCollateral
	}
	if req.StrikePrice < req.PriceHint || req.Volatility == 0 {
		return 0, nil, ErrInvalidOptionBounds
	}
	p, err := e.params.Protocol()
	if err != nil {
		return 0, nil, err
	}
	asset := req.CollateralKind.Asset()
	if err := e.checkPrice(asset, req.PriceHint, p.PriceToleranceBps); err != nil {
		return 0, nil, err
	}

	acc, err := e.state.GetAccount(req.Borrower)
	if err != nil {
		return 0, nil, err
	}
	if acc == nil || acc.Balance(asset).Cmp(req.Amount) < 0 {
		return 0, nil, ErrInsufficientCollateral
	}

	usdValue := USDValue(req.Amount, req.PriceHint)
	principal := rate.MulDiv(usdValue, new(big.Int).SetUint64(p.LTV), big.NewInt(100))
	if principal.Sign() == 0 {
		return 0, nil, ErrZeroAmount
	}

	totals, err := e.ledger.Totals()
	if err != nil {
		return 0, nil, err
	}
	liquidity, err := e.cdsLiquidity(totals)
	if err != nil {
		return 0, nil, err
	}
	vault := new(big.Int).Add(totals.TotalVolumeOfBorrowersNative, req.Amount)
	if !Covered(liquidity, USDValue(vault, req.PriceHint), p.CoverageRatioBps) {
		return 0, nil, ErrNotEnoughFundInCDS
	}

	now := unixSeconds(req.Now)
	idx, err := rate.Sync(e.state, now)
	if err != nil {
		return 0, nil, err
	}
	if err := e.ledger.Collect(treasury.CallerBorrowing, req.Borrower, asset, req.Amount); err != nil {
		return 0, nil, err
	}
	index, err := e.ledger.OpenBorrow(treasury.CallerBorrowing, req.Borrower, req.Amount, usdValue)
	if err != nil {
		return 0, nil, err
	}
	if err := e.ledger.MintUSDa(treasury.CallerBorrowing, req.Borrower, principal); err != nil {
		return 0, nil, err
	}
	if _, err := e.bonds.CaptureGenesis(req.Borrower, idx.Cumulative); err != nil {
		return 0, nil, err
	}

	pos := &Position{
		Kind:           req.CollateralKind,
		Deposited:      new(big.Int).Set(req.Amount),
		Collateral:     new(big.Int).Set(req.Amount),
		USDValueAtOpen: usdValue,
		Principal:      principal,
		IndexAtOpen:    new(big.Int).Set(idx.Cumulative),
		PriceAtOpen:    req.PriceHint,
		StrikePrice:    req.StrikePrice,
		StrikePercent:  req.StrikePercent,
		Volatility:     req.Volatility,
		OpenedAt:       now,
		RemainingBps:   basisPointsU64,
	}
	if err := e.state.PutBorrowPosition(req.Borrower, index, pos); err != nil {
		return 0, nil, err
	}
	e.emit(events.BorrowDeposited{
		Borrower:        req.Borrower,
		Index:           index,
		Asset:           asset.String(),
		Amount:          req.Amount,
		USDValue:        usdValue,
		Principal:       principal,
		Price:           req.PriceHint,
		CumulativeIndex: idx.Cumulative,
	})
	return index, pos.Clone(), nil
}

// portion scales amount by fraction unless the fraction closes the position.
func portion(amount *big.Int, fractionBps uint64, full bool) *big.Int {
	if full {
		return new(big.Int).Set(amount)
	}
	return rate.ApplyBps(amount, fractionBps)
}

// Withdraw repays the outstanding debt on a share of the position and returns
// the collateral minus the share retained as bond backing.
func (e *Engine) Withdraw(req WithdrawRequest) (*WithdrawResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	if err := nativecommon.Guard(e.pauses, nativecommon.ActionBorrowWithdraw); err != nil {
		return nil, err
	}
	if req.Price == 0 {
		return nil, ErrInvalidPrice
	}
	pos, err := e.Position(req.Borrower, req.Index)
	if err != nil {
		return nil, err
	}
	if pos.Liquidated {
		return nil, ErrAlreadyLiquidated
	}
	if pos.Closed() {
		return nil, ErrAlreadyWithdrawn
	}
	p, err := e.params.Protocol()
	if err != nil {
		return nil, err
	}
	asset := pos.Kind.Asset()
	if err := e.checkPrice(asset, req.Price, p.PriceToleranceBps); err != nil {
		return nil, err
	}

	now := unixSeconds(req.Now)
	idx, err := rate.Sync(e.state, now)
	if err != nil {
		return nil, err
	}
	health := pos.HealthBps(req.Price)
	if health < p.MinHealthBps {
		return nil, ErrHealthTooLow
	}

	full := req.FractionBps == 0 || req.FractionBps >= basisPointsU64
	fraction := req.FractionBps
	if full {
		fraction = basisPointsU64
	}
	collateral := portion(pos.Collateral, fraction, full)
	// A share that would leave no collateral behind closes the position.
	if !full && collateral.Cmp(pos.Collateral) >= 0 {
		full = true
		collateral = new(big.Int).Set(pos.Collateral)
	}
	principal := portion(pos.Principal, fraction, full)
	usdValue := portion(pos.USDValueAtOpen, fraction, full)
	debt := portion(idx.Debt(pos.Principal, pos.IndexAtOpen), fraction, full)
	if debt.Cmp(principal) < 0 {
		debt = new(big.Int).Set(principal)
	}
	if collateral.Sign() == 0 {
		return nil, ErrZeroAmount
	}
	interest := new(big.Int).Sub(debt, principal)

	acc, err := e.state.GetAccount(req.Borrower)
	if err != nil {
		return nil, err
	}
	if acc == nil || acc.Balance(types.AssetUSDa).Cmp(debt) < 0 {
		return nil, ErrInsufficientRepayment
	}

	if err := e.ledger.BurnUSDa(treasury.CallerBorrowing, req.Borrower, principal); err != nil {
		return nil, err
	}
	if interest.Sign() > 0 {
		if err := e.ledger.Collect(treasury.CallerBorrowing, req.Borrower, types.AssetUSDa, interest); err != nil {
			return nil, err
		}
		abondShare := rate.ApplyBps(interest, p.AbondInterestShareBps)
		treasuryShare := new(big.Int).Sub(interest, abondShare)
		if err := e.ledger.AddInterest(treasury.CallerBorrowing, treasuryShare, abondShare); err != nil {
			return nil, err
		}
	}

	backing := rate.ApplyBps(collateral, p.AbondBackingBps)
	returned := new(big.Int).Sub(collateral, backing)
	if err := e.ledger.CloseBorrow(treasury.CallerBorrowing, req.Borrower, collateral, usdValue); err != nil {
		return nil, err
	}
	if err := e.ledger.Disburse(treasury.CallerBorrowing, req.Borrower, asset, returned); err != nil {
		return nil, err
	}
	if err := e.ledger.ReleaseCollateral(treasury.CallerBorrowing, returned); err != nil {
		return nil, err
	}
	if err := e.ledger.AddAbondBacking(treasury.CallerBorrowing, asset, backing); err != nil {
		return nil, err
	}
	shares := abond.SharesFor(backing, req.Price, p.LTV, p.BondRatio)
	if _, err := e.bonds.Mint(req.Borrower, asset, backing, shares); err != nil {
		return nil, err
	}

	if full {
		pos.Collateral = big.NewInt(0)
		pos.Principal = big.NewInt(0)
		pos.USDValueAtOpen = big.NewInt(0)
		pos.RemainingBps = 0
	} else {
		pos.Collateral.Sub(pos.Collateral, collateral)
		pos.Principal.Sub(pos.Principal, principal)
		pos.USDValueAtOpen.Sub(pos.USDValueAtOpen, usdValue)
		pos.RemainingBps = pos.remainingBps()
	}
	pos.WithdrawnAt = now
	if err := e.state.PutBorrowPosition(req.Borrower, req.Index, pos); err != nil {
		return nil, err
	}

	e.emit(events.BorrowWithdrawn{
		Borrower:     req.Borrower,
		Index:        req.Index,
		Returned:     returned,
		Backing:      backing,
		DebtRepaid:   debt,
		Interest:     interest,
		Shares:       shares,
		HealthBps:    health,
		RemainingBps: pos.RemainingBps,
	})
	return &WithdrawResult{
		Returned:   returned,
		Backing:    backing,
		DebtRepaid: debt,
		Interest:   interest,
		Shares:     shares,
		HealthBps:  health,
		Position:   pos.Clone(),
	}, nil
}

// payBacking releases the redeemed backing kind by kind. Each kind is paid
// only from its own unrouted backing so active collateral in custody is never
// touched.
func (e *Engine) payBacking(to [20]byte, parts types.CollateralAmounts) error {
	totals, err := e.ledger.Totals()
	if err != nil {
		return err
	}
	custody, err := e.state.GetAccount(e.ledger.Custody())
	if err != nil {
		return err
	}
	for _, asset := range types.CollateralAssets() {
		amount := parts.Of(asset)
		if amount.Sign() == 0 {
			continue
		}
		if totals.UnroutedBacking(asset).Cmp(amount) < 0 || custody.Balance(asset).Cmp(amount) < 0 {
			return fmt.Errorf("%w: %s %s", ErrBackingUnavailable, amount, asset)
		}
		if err := e.ledger.TakeAbondBacking(treasury.CallerBorrowing, asset, amount); err != nil {
			return err
		}
		if err := e.ledger.Disburse(treasury.CallerBorrowing, to, asset, amount); err != nil {
			return err
		}
	}
	return nil
}

// RedeemYields burns ABOND shares for their collateral backing and a slice of
// the bond USDa pool.
func (e *Engine) RedeemYields(user [20]byte, shares *big.Int) (*RedeemResult, error) {
	if err := e.ready(); err != nil {
		return nil, err
	}
	totals, err := e.ledger.Totals()
	if err != nil {
		return nil, err
	}
	redemption, err := e.bonds.Redeem(user, shares, totals.AbondUSDaPool)
	if err != nil {
		return nil, err
	}
	if redemption.Collateral.Sign() > 0 {
		if err := e.payBacking(user, redemption.ByAsset); err != nil {
			return nil, err
		}
	}
	if redemption.USDa.Sign() > 0 {
		if err := e.ledger.TakeAbondPool(treasury.CallerBorrowing, redemption.USDa); err != nil {
			return nil, err
		}
		if err := e.ledger.Disburse(treasury.CallerBorrowing, user, types.AssetUSDa, redemption.USDa); err != nil {
			return nil, err
		}
	}
	e.emit(events.YieldsRedeemed{
		Account:    user,
		Shares:     redemption.Shares,
		Collateral: redemption.Collateral,
		USDa:       redemption.USDa,
	})
	return &RedeemResult{
		Shares:     redemption.Shares,
		Collateral: redemption.Collateral,
		ByAsset:    redemption.ByAsset,
		USDa:       redemption.USDa,
	}, nil
}
