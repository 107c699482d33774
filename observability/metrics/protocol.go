package metrics

import (
	"math/big"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

// ProtocolMetrics exposes the ledger figures refreshed after every commit.
type ProtocolMetrics struct {
	cumulativeIndex prometheus.Gauge
	ratePerSecond   prometheus.Gauge
	supply          *prometheus.GaugeVec
	cds             *prometheus.GaugeVec
	collateral      *prometheus.GaugeVec
	conservationGap prometheus.Gauge
	borrowers       prometheus.Gauge
}

var (
	protocolOnce     sync.Once
	protocolRegistry *ProtocolMetrics
)

func Protocol() *ProtocolMetrics {
	protocolOnce.Do(func() {
		protocolRegistry = &ProtocolMetrics{
			cumulativeIndex: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "usda_rate_cumulative_index",
				Help: "Cumulative debt index expressed as a multiple of one ray.",
			}),
			ratePerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "usda_rate_apr_tenths",
				Help: "Configured APR in tenths of a percent.",
			}),
			supply: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "usda_supply",
				Help: "Token supply tracked by the treasury, in whole units.",
			}, []string{"token"}),
			cds: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "usda_cds_liquidity",
				Help: "CDS pool figures in whole USD.",
			}, []string{"kind"}),
			collateral: prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name: "usda_collateral",
				Help: "Collateral held by the treasury by bucket, in whole ETH.",
			}, []string{"bucket"}),
			conservationGap: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "usda_collateral_conservation_gap_wei",
				Help: "Collateral created or lost by the ledger; always zero when healthy.",
			}),
			borrowers: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "usda_borrowers",
				Help: "Distinct borrowers that have opened a position.",
			}),
		}
		prometheus.MustRegister(
			protocolRegistry.cumulativeIndex,
			protocolRegistry.ratePerSecond,
			protocolRegistry.supply,
			protocolRegistry.cds,
			protocolRegistry.collateral,
			protocolRegistry.conservationGap,
			protocolRegistry.borrowers,
		)
	})
	return protocolRegistry
}

// Snapshot is the subset of ledger state mirrored into gauges.
type Snapshot struct {
	CumulativeIndex      *big.Int
	APR                  uint64
	USDaSupply           *big.Int
	AbondSupply          *big.Int
	CDSDeposited         *big.Int
	AvailableLiquidation *big.Int
	ActiveCollateral     *big.Int
	AbondBacking         *big.Int
	LiquidationPending   *big.Int
	ConservationGap      *big.Int
	Borrowers            uint64
}

func (m *ProtocolMetrics) Update(s Snapshot) {
	if m == nil {
		return
	}
	m.cumulativeIndex.Set(scaled(s.CumulativeIndex, 27))
	m.ratePerSecond.Set(float64(s.APR))
	m.supply.WithLabelValues("usda").Set(scaled(s.USDaSupply, 6))
	m.supply.WithLabelValues("abond").Set(scaled(s.AbondSupply, 18))
	m.cds.WithLabelValues("deposited").Set(scaled(s.CDSDeposited, 6))
	m.cds.WithLabelValues("available_liquidation").Set(scaled(s.AvailableLiquidation, 6))
	m.collateral.WithLabelValues("active").Set(scaled(s.ActiveCollateral, 18))
	m.collateral.WithLabelValues("abond_backing").Set(scaled(s.AbondBacking, 18))
	m.collateral.WithLabelValues("liquidation_pending").Set(scaled(s.LiquidationPending, 18))
	m.conservationGap.Set(scaled(s.ConservationGap, 0))
	m.borrowers.Set(float64(s.Borrowers))
}

func scaled(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f := new(big.Float).SetInt(v)
	if decimals > 0 {
		f.Quo(f, new(big.Float).SetInt(new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)))
	}
	out, _ := f.Float64()
	return out
}
