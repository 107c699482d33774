package rate

import (
	"errors"
	"math/big"
)

var (
	ErrZeroRate     = errors.New("rate: rate should not be zero")
	ErrInvalidPrice = errors.New("rate: invalid USDa price")
	errNilIndex     = errors.New("rate: index not initialised")
)

// DefaultRatePerSecond compounds to roughly 5% per year.
var DefaultRatePerSecond = mustBigInt("1000000001547125957863212448")

// DefaultAPR is expressed in tenths of a percent.
const DefaultAPR uint64 = 50

// Index tracks the protocol-wide compounding debt multiplier.
type Index struct {
	// RatePerSecond is the ray-denominated per-second growth factor.
	RatePerSecond *big.Int
	// Cumulative starts at one ray and only ever grows.
	Cumulative *big.Int
	// LastUpdate is the unix second of the most recent accrual. Zero means
	// the index has never been touched and the next accrual only anchors it.
	LastUpdate uint64
	// APR mirrors RatePerSecond in tenths of a percent for display.
	APR uint64
}

// NewIndex returns an index at one ray compounding at ratePerSecond.
func NewIndex(ratePerSecond *big.Int, apr uint64) *Index {
	if ratePerSecond == nil || ratePerSecond.Sign() == 0 {
		ratePerSecond = DefaultRatePerSecond
		apr = DefaultAPR
	}
	return &Index{
		RatePerSecond: new(big.Int).Set(ratePerSecond),
		Cumulative:    new(big.Int).Set(ray),
		APR:           apr,
	}
}

// Clone returns a deep copy of the index.
func (i *Index) Clone() *Index {
	if i == nil {
		return nil
	}
	clone := *i
	if i.RatePerSecond != nil {
		clone.RatePerSecond = new(big.Int).Set(i.RatePerSecond)
	}
	if i.Cumulative != nil {
		clone.Cumulative = new(big.Int).Set(i.Cumulative)
	}
	return &clone
}

func (i *Index) ensureDefaults() {
	if i.RatePerSecond == nil || i.RatePerSecond.Sign() == 0 {
		i.RatePerSecond = new(big.Int).Set(DefaultRatePerSecond)
		if i.APR == 0 {
			i.APR = DefaultAPR
		}
	}
	if i.Cumulative == nil || i.Cumulative.Sign() == 0 {
		i.Cumulative = new(big.Int).Set(ray)
	}
}

// Accrue brings the cumulative index up to now. Calling it twice with the
// same timestamp is a no-op, and a timestamp older than LastUpdate is ignored.
func (i *Index) Accrue(now uint64) {
	if i == nil {
		return
	}
	i.ensureDefaults()
	if i.LastUpdate == 0 {
		i.LastUpdate = now
		return
	}
	if now <= i.LastUpdate {
		return
	}
	factor := Rpow(i.RatePerSecond, now-i.LastUpdate)
	i.Cumulative = RayMul(i.Cumulative, factor)
	i.LastUpdate = now
}

// SetRate accrues under the old rate before switching to ratePerSecond.
func (i *Index) SetRate(ratePerSecond *big.Int, apr uint64, now uint64) error {
	if i == nil {
		return errNilIndex
	}
	if ratePerSecond == nil || ratePerSecond.Sign() == 0 {
		return ErrZeroRate
	}
	i.Accrue(now)
	i.RatePerSecond = new(big.Int).Set(ratePerSecond)
	i.APR = apr
	return nil
}

// Debt scales a principal opened at indexAtOpen to the current index.
func (i *Index) Debt(principal, indexAtOpen *big.Int) *big.Int {
	if i == nil || principal == nil || indexAtOpen == nil || indexAtOpen.Sign() == 0 {
		return big.NewInt(0)
	}
	return MulDiv(principal, i.Cumulative, indexAtOpen)
}

// Store is the persistence surface shared by every engine that reads debt.
type Store interface {
	RateIndex() (*Index, error)
	PutRateIndex(*Index) error
}

// Sync loads the index, accrues it to now and writes it back. Engines call it
// before touching any debt-dependent state.
func Sync(store Store, now uint64) (*Index, error) {
	if store == nil {
		return nil, errNilIndex
	}
	idx, err := store.RateIndex()
	if err != nil {
		return nil, err
	}
	if idx == nil {
		idx = NewIndex(nil, 0)
	}
	idx.Accrue(now)
	if err := store.PutRateIndex(idx); err != nil {
		return nil, err
	}
	return idx, nil
}
