package oracle

import (
	"errors"
	"testing"
	"time"

	"usdacore/core/types"
)

type failingSource struct{ err error }

func (f failingSource) Price(types.Asset) (Quote, error) { return Quote{}, f.err }

func TestAggregatorFallsBackInPriorityOrder(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(time.Minute)
	agg.SetClock(func() time.Time { return now })

	primary := NewManual()
	secondary := NewManual()
	agg.Register("primary", primary)
	agg.Register("secondary", secondary)

	if err := primary.Set(types.AssetNative, 100_000, now.Add(-2*time.Minute)); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := secondary.Set(types.AssetNative, 99_900, now.Add(-10*time.Second)); err != nil {
		t.Fatalf("set: %v", err)
	}
	quote, err := agg.Price(types.AssetNative)
	if err != nil {
		t.Fatalf("price: %v", err)
	}
	if quote.Price != 99_900 || quote.Source != "manual" {
		t.Fatalf("expected fresh secondary quote, got %+v", quote)
	}
}

func TestAggregatorReportsStaleness(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	agg := NewAggregator(time.Minute)
	agg.SetClock(func() time.Time { return now })
	manual := NewManual()
	agg.Register("manual", manual)
	_ = manual.Set(types.AssetNative, 100_000, now.Add(-time.Hour))

	if _, err := agg.Price(types.AssetNative); !errors.Is(err, ErrNoFreshQuote) {
		t.Fatalf("expected ErrNoFreshQuote, got %v", err)
	}
}

func TestAggregatorSurfacesLastError(t *testing.T) {
	agg := NewAggregator(0)
	boom := errors.New("feed down")
	agg.Register("broken", failingSource{err: boom})
	if _, err := agg.Price(types.AssetNative); !errors.Is(err, boom) {
		t.Fatalf("expected feed error, got %v", err)
	}
}

func TestWithinTolerance(t *testing.T) {
	cases := []struct {
		live, hint, tol uint64
		want            bool
	}{
		{100_000, 100_000, 0, true},
		{105_000, 100_000, 500, true},
		{105_001, 100_000, 500, false},
		{95_000, 100_000, 500, true},
		{1, 0, 500, false},
	}
	for _, tc := range cases {
		if got := WithinTolerance(tc.live, tc.hint, tc.tol); got != tc.want {
			t.Fatalf("WithinTolerance(%d,%d,%d)=%v", tc.live, tc.hint, tc.tol, got)
		}
	}
}
