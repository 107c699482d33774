package rate

import (
	"errors"
	"testing"
)

func TestRateFromPegPriceCalibrationPoints(t *testing.T) {
	cases := []struct {
		price uint64
		rate  string
		apr   uint64
	}{
		{9000, "1000000007075835619725814915", 250},
		{9500, "1000000004431822129783699001", 150},
		{9750, "1000000003022265980097387650", 100},
		{9850, "1000000002293273137447730714", 75},
		{10000, "1000000001547125957863212448", 50},
		{10150, "1000000001243680656318820312", 40},
		{10450, "1000000000782997609082909351", 25},
		{11000, "1000000000158153903837946257", 5},
	}
	for _, tc := range cases {
		got, apr, err := RateFromPegPrice(tc.price)
		if err != nil {
			t.Fatalf("price %d: %v", tc.price, err)
		}
		if got.String() != tc.rate || apr != tc.apr {
			t.Fatalf("price %d: got %s/%d want %s/%d", tc.price, got, apr, tc.rate, tc.apr)
		}
	}
}

func TestRateFromPegPriceIsNonIncreasing(t *testing.T) {
	prev, _, err := RateFromPegPrice(1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for price := uint64(2); price <= 12_000; price += 7 {
		next, _, err := RateFromPegPrice(price)
		if err != nil {
			t.Fatalf("price %d: %v", price, err)
		}
		if next.Cmp(prev) > 0 {
			t.Fatalf("rate increased at price %d", price)
		}
		prev = next
	}
}

func TestRateFromPegPriceRejectsZero(t *testing.T) {
	if _, _, err := RateFromPegPrice(0); !errors.Is(err, ErrInvalidPrice) {
		t.Fatalf("expected ErrInvalidPrice, got %v", err)
	}
}
