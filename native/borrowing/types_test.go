package borrowing

import (
	"math/big"
	"testing"
)

func TestHealthBps(t *testing.T) {
	pos := &Position{PriceAtOpen: 100_000}
	cases := map[uint64]uint64{
		100_000: 10_000,
		80_000:  8_000,
		79_990:  7_999,
		150_000: 15_000,
	}
	for price, want := range cases {
		if got := pos.HealthBps(price); got != want {
			t.Fatalf("HealthBps(%d)=%d want %d", price, got, want)
		}
	}
}

func TestUSDValueUnits(t *testing.T) {
	oneEth := new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
	if got := USDValue(oneEth, 100_000); got.Int64() != 1_000_000_000 {
		t.Fatalf("1 ETH at $1000 should be 1e9 micro-dollars, got %s", got)
	}
	if !Covered(big.NewInt(200), big.NewInt(1000), 2000) {
		t.Fatalf("exact coverage must pass")
	}
	if Covered(big.NewInt(199), big.NewInt(1000), 2000) {
		t.Fatalf("coverage below ratio must fail")
	}
}

func TestParseCollateralKind(t *testing.T) {
	for symbol, want := range map[string]CollateralKind{"ETH": KindETH, "weeth": KindWeETH, "RsETH": KindRsETH} {
		got, err := ParseCollateralKind(symbol)
		if err != nil || got != want {
			t.Fatalf("ParseCollateralKind(%q)=%v,%v", symbol, got, err)
		}
	}
	if _, err := ParseCollateralKind("BTC"); err == nil {
		t.Fatalf("expected unsupported collateral error")
	}
}
