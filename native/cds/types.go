package cds

import (
	"math/big"

	"usdacore/core/types"
)

// Position is one CDS deposit. USDT and USDa hold the two legs as deposited;
// Total is their sum in six decimals.
type Position struct {
	USDT              *big.Int
	USDa              *big.Int
	Total             *big.Int
	OptIn             bool
	LiquidationAmount *big.Int
	SnapshotIndex     uint64
	DepositedAt       uint64
	Withdrawn         bool
	WithdrawnAt       uint64
	WithdrawnUSDa     *big.Int
	DebtAbsorbed      *big.Int
}

func (p *Position) ensureDefaults() {
	for _, slot := range []**big.Int{&p.USDT, &p.USDa, &p.Total, &p.LiquidationAmount, &p.WithdrawnUSDa, &p.DebtAbsorbed} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	out := *p
	out.ensureDefaults()
	for _, slot := range []**big.Int{&out.USDT, &out.USDa, &out.Total, &out.LiquidationAmount, &out.WithdrawnUSDa, &out.DebtAbsorbed} {
		*slot = new(big.Int).Set(*slot)
	}
	return &out
}

// Pool holds the CDS aggregates that are not part of the treasury ledger.
type Pool struct {
	// USDTDeposited only grows; it is compared against the USDT limit.
	USDTDeposited *big.Int
	// TotalAvailableLiquidation is the opted-in liquidity not yet consumed.
	TotalAvailableLiquidation *big.Int
	Depositors                uint64
}

func (p *Pool) ensureDefaults() {
	if p.USDTDeposited == nil {
		p.USDTDeposited = big.NewInt(0)
	}
	if p.TotalAvailableLiquidation == nil {
		p.TotalAvailableLiquidation = big.NewInt(0)
	}
}

func (p *Pool) Clone() *Pool {
	if p == nil {
		return nil
	}
	out := *p
	out.ensureDefaults()
	out.USDTDeposited = new(big.Int).Set(out.USDTDeposited)
	out.TotalAvailableLiquidation = new(big.Int).Set(out.TotalAvailableLiquidation)
	return &out
}

// LiquidationEntry is one append-only record of a liquidation absorbed by
// opted-in depositors. AvailableBefore is the pool liquidity at the time and
// is the denominator of every depositor's share.
type LiquidationEntry struct {
	DebtCovered     *big.Int
	Collateral      *big.Int
	Gain            *big.Int
	IsGain          bool
	AvailableBefore *big.Int
	Price           uint64
	Timestamp       uint64
	Asset           types.Asset
}

func (l *LiquidationEntry) ensureDefaults() {
	for _, slot := range []**big.Int{&l.DebtCovered, &l.Collateral, &l.Gain, &l.AvailableBefore} {
		if *slot == nil {
			*slot = big.NewInt(0)
		}
	}
}

// DepositRequest adds liquidity to the pool.
type DepositRequest struct {
	Depositor         [20]byte
	USDT              *big.Int
	USDa              *big.Int
	OptIn             bool
	LiquidationAmount *big.Int
	Now               int64
}

type WithdrawRequest struct {
	Depositor [20]byte
	Index     uint64
	Price     uint64
	Now       int64
}

// WithdrawResult reports the USDa paid and the liquidated collateral shared
// with the depositor, per asset.
type WithdrawResult struct {
	USDa        *big.Int
	DebtShare   *big.Int
	Collateral  map[types.Asset]*big.Int
	EntriesSeen uint64
}

// TotalCollateral sums the collateral payout across assets.
func (r *WithdrawResult) TotalCollateral() *big.Int {
	total := big.NewInt(0)
	if r == nil {
		return total
	}
	for _, amount := range r.Collateral {
		total.Add(total, amount)
	}
	return total
}

type RedeemRequest struct {
	Account    [20]byte
	USDa       *big.Int
	USDaPrice  uint64
	USDTPrice  uint64
	MinUSDTOut *big.Int
}
