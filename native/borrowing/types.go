package borrowing

import (
	"fmt"
	"math/big"
	"strings"

	"usdacore/core/types"
)

// CollateralKind enumerates the ETH-denominated collateral accepted by the
// vault. All kinds are valued at the ETH price.
type CollateralKind uint8

const (
	KindETH CollateralKind = iota + 1
	KindWeETH
	KindRsETH
)

func (k CollateralKind) Valid() bool {
	return k >= KindETH && k <= KindRsETH
}

// Asset maps the kind onto the account balance it debits.
func (k CollateralKind) Asset() types.Asset {
	switch k {
	case KindETH:
		return types.AssetNative
	case KindWeETH:
		return types.AssetWeETH
	case KindRsETH:
		return types.AssetRsETH
	default:
		return 0
	}
}

func (k CollateralKind) String() string {
	if !k.Valid() {
		return "unknown"
	}
	return k.Asset().String()
}

// ParseCollateralKind accepts the asset symbol of a supported kind.
func ParseCollateralKind(symbol string) (CollateralKind, error) {
	switch strings.ToUpper(strings.TrimSpace(symbol)) {
	case "ETH", "NATIVE", "":
		return KindETH, nil
	case "WEETH":
		return KindWeETH, nil
	case "RSETH":
		return KindRsETH, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedCollateral, symbol)
	}
}

// Position statuses reported to clients.
const (
	StatusOpen               = "open"
	StatusPartiallyWithdrawn = "partially_withdrawn"
	StatusWithdrawn          = "withdrawn"
	StatusLiquidated         = "liquidated"
)

// Position is a single collateral deposit. Amount fields track what is still
// locked; Deposited keeps the opening amount for reporting.
type Position struct {
	Kind           CollateralKind
	Deposited      *big.Int
	Collateral     *big.Int
	USDValueAtOpen *big.Int
	Principal      *big.Int
	IndexAtOpen    *big.Int
	PriceAtOpen    uint64
	StrikePrice    uint64
	StrikePercent  uint64
	Volatility     uint64
	OpenedAt       uint64
	WithdrawnAt    uint64
	RemainingBps   uint64
	Liquidated     bool
}

func (p *Position) ensureDefaults() {
	for _, slot := range []**big.Int{&p.Deposited, &p.Collateral, &p.USDValueAtOpen, &p.Principal, &p.IndexAtOpen} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

// Clone returns a deep copy of the position.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.ensureDefaults()
	for _, slot := range []**big.Int{&out.Deposited, &out.Collateral, &out.USDValueAtOpen, &out.Principal, &out.IndexAtOpen} {
		*slot = new(big.Int).Set(*slot)
	}
	return &out
}

func (p *Position) Status() string {
	switch {
	case p == nil:
		return ""
	case p.Liquidated:
		return StatusLiquidated
	case !p.holdsCollateral():
		return StatusWithdrawn
	case p.Deposited != nil && p.Collateral.Cmp(p.Deposited) < 0:
		return StatusPartiallyWithdrawn
	default:
		return StatusOpen
	}
}

func (p *Position) holdsCollateral() bool {
	return p.Collateral != nil && p.Collateral.Sign() > 0
}

// Closed reports whether the position can no longer change. Only a
// liquidation or the release of all locked collateral closes a position.
func (p *Position) Closed() bool {
	return p == nil || p.Liquidated || !p.holdsCollateral()
}

// remainingBps is the locked share of the deposit, never rounded down to zero
// while collateral remains.
func (p *Position) remainingBps() uint64 {
	if !p.holdsCollateral() {
		return 0
	}
	if p.Deposited == nil || p.Deposited.Sign() == 0 || p.Collateral.Cmp(p.Deposited) >= 0 {
		return basisPointsU64
	}
	bps := new(big.Int).Mul(p.Collateral, big.NewInt(basisPointsI64))
	bps.Quo(bps, p.Deposited)
	if bps.Sign() == 0 {
		return 1
	}
	return bps.Uint64()
}

// HealthBps is priceNow relative to the opening price in basis points.
func (p *Position) HealthBps(priceNow uint64) uint64 {
	if p == nil || p.PriceAtOpen == 0 {
		return 0
	}
	health := new(big.Int).Mul(new(big.Int).SetUint64(priceNow), big.NewInt(basisPointsI64))
	health.Quo(health, new(big.Int).SetUint64(p.PriceAtOpen))
	if !health.IsUint64() {
		return ^uint64(0)
	}
	return health.Uint64()
}

// DepositRequest opens a new position.
type DepositRequest struct {
	Borrower       [20]byte
	PriceHint      uint64
	StrikePercent  uint64
	StrikePrice    uint64
	Volatility     uint64
	CollateralKind CollateralKind
	Amount         *big.Int
	Now            int64
}

// WithdrawRequest repays debt and releases collateral. FractionBps of zero
// or 10000 closes the position.
type WithdrawRequest struct {
	Borrower    [20]byte
	Index       uint64
	Price       uint64
	FractionBps uint64
	Now         int64
}

// WithdrawResult summarises the settlement of a withdrawal.
type WithdrawResult struct {
	Returned   *big.Int
	Backing    *big.Int
	DebtRepaid *big.Int
	Interest   *big.Int
	Shares     *big.Int
	HealthBps  uint64
	Position   *Position
}

// RedeemResult is the value paid for burned ABOND shares.
type RedeemResult struct {
	Shares     *big.Int
	Collateral *big.Int
	ByAsset    types.CollateralAmounts
	USDa       *big.Int
}
