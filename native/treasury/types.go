package treasury

import (
	"fmt"
	"math/big"

	"usdacore/core/types"
)

// Caller identifies which engine is asking the ledger to mutate state.
type Caller uint8

const (
	CallerNone Caller = iota
	CallerBorrowing
	CallerCDS
	CallerLiquidation
)

func (c Caller) String() string {
	switch c {
	case CallerBorrowing:
		return "borrowing"
	case CallerCDS:
		return "cds"
	case CallerLiquidation:
		return "liquidation"
	default:
		return fmt.Sprintf("caller(%d)", uint8(c))
	}
}

// BorrowingRecord summarises one borrower's activity.
type BorrowingRecord struct {
	// DepositedAmount is the collateral still locked across open positions.
	DepositedAmount *big.Int
	// BorrowerIndex is the number of positions ever opened.
	BorrowerIndex uint64
	HasBorrowed   bool
	HasDeposited  bool
}

func (r *BorrowingRecord) ensureDefaults() {
	if r.DepositedAmount == nil {
		r.DepositedAmount = big.NewInt(0)
	}
}

// Totals is the protocol-wide ledger. Collateral figures are in wei summed
// across collateral kinds; USD figures use six decimals.
type Totals struct {
	TotalVolumeOfBorrowersUSD    *big.Int
	TotalVolumeOfBorrowersNative *big.Int
	TotalCdsDeposited            *big.Int
	TotalInterestCollected       *big.Int
	TotalInterestFromLiquidation *big.Int
	InterestWithdrawn            *big.Int
	AbondUSDaPool                *big.Int

	CollateralDeposited *big.Int
	CollateralReleased  *big.Int
	AbondBacking        *big.Int
	LiquidationPending  *big.Int
	YieldRouted         *big.Int

	USDTReserve       *big.Int
	CDSUSDaReserve    *big.Int
	USDaSupply        *big.Int
	MessagingFeesPaid *big.Int

	NoOfBorrowers      uint64
	YieldRouteFailures uint64

	// AbondBackingByAsset and YieldRoutedByAsset split AbondBacking and
	// YieldRouted by collateral kind and always sum to them.
	AbondBackingByAsset types.CollateralAmounts `rlp:"optional"`
	YieldRoutedByAsset  types.CollateralAmounts `rlp:"optional"`
}

func (t *Totals) ensureDefaults() {
	for _, slot := range []**big.Int{
		&t.TotalVolumeOfBorrowersUSD, &t.TotalVolumeOfBorrowersNative, &t.TotalCdsDeposited,
		&t.TotalInterestCollected, &t.TotalInterestFromLiquidation, &t.InterestWithdrawn,
		&t.AbondUSDaPool, &t.CollateralDeposited, &t.CollateralReleased, &t.AbondBacking,
		&t.LiquidationPending, &t.YieldRouted, &t.USDTReserve, &t.CDSUSDaReserve, &t.USDaSupply, &t.MessagingFeesPaid,
	} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
	t.AbondBackingByAsset.EnsureDefaults()
	t.YieldRoutedByAsset.EnsureDefaults()
}

// Clone returns a deep copy of the totals.
func (t *Totals) Clone() *Totals {
	if t == nil {
		return nil
	}
	clone := *t
	clone.ensureDefaults()
	for _, slot := range []**big.Int{
		&clone.TotalVolumeOfBorrowersUSD, &clone.TotalVolumeOfBorrowersNative, &clone.TotalCdsDeposited,
		&clone.TotalInterestCollected, &clone.TotalInterestFromLiquidation, &clone.InterestWithdrawn,
		&clone.AbondUSDaPool, &clone.CollateralDeposited, &clone.CollateralReleased, &clone.AbondBacking,
		&clone.LiquidationPending, &clone.YieldRouted, &clone.USDTReserve, &clone.CDSUSDaReserve, &clone.USDaSupply, &clone.MessagingFeesPaid,
	} {
		*slot = new(big.Int).Set(*slot)
	}
	clone.AbondBackingByAsset = t.AbondBackingByAsset.Clone()
	clone.YieldRoutedByAsset = t.YieldRoutedByAsset.Clone()
	return &clone
}

// AvailableInterest is the interest the admin may still withdraw.
func (t *Totals) AvailableInterest() *big.Int {
	if t == nil {
		return big.NewInt(0)
	}
	c := t.Clone()
	out := new(big.Int).Add(c.TotalInterestCollected, c.TotalInterestFromLiquidation)
	out.Sub(out, c.InterestWithdrawn)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// UnroutedBacking is the asset's ABOND backing still held in custody.
func (t *Totals) UnroutedBacking(asset types.Asset) *big.Int {
	out := new(big.Int).Sub(t.AbondBackingByAsset.Of(asset), t.YieldRoutedByAsset.Of(asset))
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}
