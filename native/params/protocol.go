package params

import (
	"errors"
	"fmt"
	"math/big"
)

var (
	errZeroLTV       = errors.New("params: LTV can't be zero")
	errZeroBondRatio = errors.New("params: bond ratio can't be zero")
)

// Protocol groups every parameter the admin can tune at runtime. Ratios are
// basis points unless the field says otherwise.
type Protocol struct {
	// LTV is the loan-to-value percentage applied at deposit (80 = 80%).
	LTV uint64 `json:"ltv"`
	// BondRatio divides matured collateral value into ABOND shares.
	BondRatio uint64 `json:"bondRatio"`
	// MinHealthBps is the lowest health ratio at which a withdrawal succeeds.
	MinHealthBps uint64 `json:"minHealthBps"`
	// LiquidationThresholdBps is the highest health ratio that may be liquidated.
	LiquidationThresholdBps uint64 `json:"liquidationThresholdBps"`
	// AbondBackingBps is the share of released collateral retained as ABOND backing.
	AbondBackingBps uint64 `json:"abondBackingBps"`
	// AbondInterestShareBps is the share of collected interest routed to ABOND holders.
	AbondInterestShareBps uint64 `json:"abondInterestShareBps"`
	// CoverageRatioBps is the minimum CDS liquidity relative to vault value.
	CoverageRatioBps uint64 `json:"coverageRatioBps"`
	// PriceToleranceBps bounds the distance between the caller's price hint and the oracle.
	PriceToleranceBps uint64 `json:"priceToleranceBps"`
	// WithdrawTimeLimit is the CDS holding period in seconds.
	WithdrawTimeLimit uint64 `json:"withdrawTimeLimit"`
	// USDTLimit caps the USDT accepted by the CDS pool before USDa is required.
	USDTLimit *big.Int `json:"usdtLimit"`
	// USDaMinBps is the minimum USDa share of a CDS deposit once USDTLimit is reached.
	USDaMinBps uint64 `json:"usdaMinBps"`
	// Admin is the only address allowed to run admin setters and liquidations.
	Admin [20]byte `json:"admin"`
	// Options receives option fees; kept for parity with the deposit inputs.
	Options [20]byte `json:"options"`
}

// Default returns the launch parameters.
func Default() Protocol {
	return Protocol{
		LTV:                     80,
		BondRatio:               4,
		MinHealthBps:            8000,
		LiquidationThresholdBps: 8000,
		AbondBackingBps:         5000,
		AbondInterestShareBps:   1000,
		CoverageRatioBps:        2000,
		PriceToleranceBps:       500,
		WithdrawTimeLimit:       86_400,
		USDTLimit:               big.NewInt(20_000_000_000),
		USDaMinBps:              8000,
	}
}

// Clone returns a deep copy.
func (p Protocol) Clone() Protocol {
	clone := p
	if p.USDTLimit != nil {
		clone.USDTLimit = new(big.Int).Set(p.USDTLimit)
	}
	return clone
}

// Validate checks the invariants every setter must preserve.
func (p Protocol) Validate() error {
	if p.LTV == 0 || p.LTV > 100 {
		if p.LTV == 0 {
			return errZeroLTV
		}
		return fmt.Errorf("params: LTV %d exceeds 100", p.LTV)
	}
	if p.BondRatio == 0 {
		return errZeroBondRatio
	}
	for name, bps := range map[string]uint64{
		"minHealthBps":            p.MinHealthBps,
		"liquidationThresholdBps": p.LiquidationThresholdBps,
		"abondBackingBps":         p.AbondBackingBps,
		"abondInterestShareBps":   p.AbondInterestShareBps,
		"coverageRatioBps":        p.CoverageRatioBps,
		"priceToleranceBps":       p.PriceToleranceBps,
		"usdaMinBps":              p.USDaMinBps,
	} {
		if bps > 10_000 {
			return fmt.Errorf("params: %s must be <= 10000", name)
		}
	}
	if p.USDTLimit == nil || p.USDTLimit.Sign() < 0 {
		return fmt.Errorf("params: usdtLimit must be non-negative")
	}
	return nil
}
