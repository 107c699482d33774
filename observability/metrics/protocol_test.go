package metrics

import (
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestUpdateScalesFigures(t *testing.T) {
	m := Protocol()
	ray := new(big.Int).Exp(big.NewInt(10), big.NewInt(27), nil)
	m.Update(Snapshot{
		CumulativeIndex: new(big.Int).Mul(ray, big.NewInt(2)),
		APR:             50,
		USDaSupply:      big.NewInt(2_500_000),
		Borrowers:       3,
	})
	if got := testutil.ToFloat64(m.cumulativeIndex); got != 2 {
		t.Fatalf("expected index 2, got %v", got)
	}
	if got := testutil.ToFloat64(m.supply.WithLabelValues("usda")); got != 2.5 {
		t.Fatalf("expected 2.5 USDa, got %v", got)
	}
	if got := testutil.ToFloat64(m.borrowers); got != 3 {
		t.Fatalf("expected 3 borrowers, got %v", got)
	}
	var nilMetrics *ProtocolMetrics
	nilMetrics.Update(Snapshot{})
}
