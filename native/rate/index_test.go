package rate

import (
	"errors"
	"math/big"
	"testing"
)

const thirtyDays = 2_592_000

func TestRpowFastPathMatchesBigPath(t *testing.T) {
	for _, n := range []uint64{0, 1, 2, 3, 59, 86_400, thirtyDays, 31_536_000} {
		fast, ok := rpow256(DefaultRatePerSecond, n)
		if !ok {
			t.Fatalf("rpow256 overflowed for n=%d", n)
		}
		slow := rpowBig(DefaultRatePerSecond, n)
		if fast.Cmp(slow) != 0 {
			t.Fatalf("n=%d: fast %s != slow %s", n, fast, slow)
		}
	}
}

func TestRpowZeroExponentIsOneRay(t *testing.T) {
	if got := Rpow(DefaultRatePerSecond, 0); got.Cmp(ray) != 0 {
		t.Fatalf("expected one ray, got %s", got)
	}
}

func TestAccrueAnchorsThenCompounds(t *testing.T) {
	idx := NewIndex(nil, 0)
	idx.Accrue(1_000)
	if idx.Cumulative.Cmp(ray) != 0 {
		t.Fatalf("first accrual must only anchor, got %s", idx.Cumulative)
	}
	idx.Accrue(1_000 + thirtyDays)
	want := Rpow(DefaultRatePerSecond, thirtyDays)
	if idx.Cumulative.Cmp(want) != 0 {
		t.Fatalf("unexpected index: got %s want %s", idx.Cumulative, want)
	}

	debt := idx.Debt(big.NewInt(1e18), ray)
	wantDebt := MulDiv(big.NewInt(1e18), want, ray)
	if debt.Cmp(wantDebt) != 0 {
		t.Fatalf("unexpected debt: got %s want %s", debt, wantDebt)
	}
	if debt.Cmp(big.NewInt(1e18)) <= 0 {
		t.Fatalf("debt should grow, got %s", debt)
	}
}

func TestAccrueIsIdempotentAndMonotonic(t *testing.T) {
	idx := NewIndex(nil, 0)
	idx.Accrue(10)
	idx.Accrue(500)
	snapshot := new(big.Int).Set(idx.Cumulative)
	idx.Accrue(500)
	if idx.Cumulative.Cmp(snapshot) != 0 {
		t.Fatalf("same-instant accrual changed index")
	}
	idx.Accrue(400)
	if idx.Cumulative.Cmp(snapshot) != 0 || idx.LastUpdate != 500 {
		t.Fatalf("stale timestamp must be ignored")
	}
	prev := new(big.Int).Set(idx.Cumulative)
	for now := uint64(600); now < 10_000; now += 733 {
		idx.Accrue(now)
		if idx.Cumulative.Cmp(prev) < 0 {
			t.Fatalf("index decreased at %d", now)
		}
		prev.Set(idx.Cumulative)
	}
}

func TestSetRateRejectsZero(t *testing.T) {
	idx := NewIndex(nil, 0)
	if err := idx.SetRate(big.NewInt(0), 10, 5); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate, got %v", err)
	}
	if err := idx.SetRate(nil, 10, 5); !errors.Is(err, ErrZeroRate) {
		t.Fatalf("expected ErrZeroRate for nil, got %v", err)
	}
}

func TestSetRateAccruesUnderPreviousRate(t *testing.T) {
	idx := NewIndex(nil, 0)
	idx.Accrue(100)
	high, apr, err := RateFromPegPrice(9000)
	if err != nil {
		t.Fatalf("peg rate: %v", err)
	}
	if err := idx.SetRate(high, apr, 100+thirtyDays); err != nil {
		t.Fatalf("set rate: %v", err)
	}
	want := Rpow(DefaultRatePerSecond, thirtyDays)
	if idx.Cumulative.Cmp(want) != 0 {
		t.Fatalf("accrual under old rate lost: got %s want %s", idx.Cumulative, want)
	}
	if idx.RatePerSecond.Cmp(high) != 0 || idx.APR != 250 {
		t.Fatalf("rate not switched: %s apr %d", idx.RatePerSecond, idx.APR)
	}
}

type memStore struct{ idx *Index }

func (m *memStore) RateIndex() (*Index, error)  { return m.idx.Clone(), nil }
func (m *memStore) PutRateIndex(i *Index) error { m.idx = i.Clone(); return nil }

func TestSyncPersistsAccruedIndex(t *testing.T) {
	store := &memStore{}
	if _, err := Sync(store, 50); err != nil {
		t.Fatalf("sync: %v", err)
	}
	idx, err := Sync(store, 50+thirtyDays)
	if err != nil {
		t.Fatalf("sync: %v", err)
	}
	if store.idx.Cumulative.Cmp(idx.Cumulative) != 0 || store.idx.LastUpdate != 50+thirtyDays {
		t.Fatalf("sync did not persist index")
	}
}
