package oracle

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"usdacore/core/types"
)

// Quote is a collateral price with two decimals (100000 = $1000.00) and the
// time the upstream feed observed it.
type Quote struct {
	Price     uint64
	UpdatedAt time.Time
	Source    string
}

// Source is any price feed the protocol can consult.
type Source interface {
	Price(asset types.Asset) (Quote, error)
}

var (
	// ErrNoFreshQuote indicates that no source produced a quote inside the
	// freshness window.
	ErrNoFreshQuote = errors.New("oracle: no fresh quote available")
	ErrInvalidQuote = errors.New("oracle: invalid quote")
)

// Aggregator consults registered sources in priority order until a fresh,
// positive quote is found.
type Aggregator struct {
	mu       sync.RWMutex
	priority []string
	sources  map[string]Source
	maxAge   time.Duration
	clock    func() time.Time
}

func NewAggregator(maxAge time.Duration) *Aggregator {
	return &Aggregator{
		sources: make(map[string]Source),
		maxAge:  maxAge,
		clock:   time.Now,
	}
}

// SetClock overrides the time source used for staleness checks.
func (a *Aggregator) SetClock(clock func() time.Time) {
	if a == nil || clock == nil {
		return
	}
	a.mu.Lock()
	a.clock = clock
	a.mu.Unlock()
}

// Register adds or replaces a source. Names are case-insensitive and keep
// their first registration order.
func (a *Aggregator) Register(name string, source Source) {
	if a == nil || source == nil {
		return
	}
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.sources[key]; !exists {
		a.priority = append(a.priority, key)
	}
	a.sources[key] = source
}

func (a *Aggregator) Price(asset types.Asset) (Quote, error) {
	if a == nil {
		return Quote{}, fmt.Errorf("oracle aggregator not configured")
	}
	a.mu.RLock()
	priority := append([]string{}, a.priority...)
	maxAge := a.maxAge
	now := a.clock()
	a.mu.RUnlock()

	var lastErr error
	for _, name := range priority {
		a.mu.RLock()
		source := a.sources[name]
		a.mu.RUnlock()
		quote, err := source.Price(asset)
		if err != nil {
			lastErr = err
			continue
		}
		if quote.Price == 0 {
			lastErr = fmt.Errorf("%w: %s returned zero price", ErrInvalidQuote, name)
			continue
		}
		if maxAge > 0 && now.Sub(quote.UpdatedAt) > maxAge {
			lastErr = ErrNoFreshQuote
			continue
		}
		if quote.Source == "" {
			quote.Source = name
		}
		return quote, nil
	}
	if lastErr == nil {
		lastErr = ErrNoFreshQuote
	}
	return Quote{}, lastErr
}

// Manual is an in-memory source fed by operators through the admin API.
type Manual struct {
	mu     sync.RWMutex
	quotes map[types.Asset]Quote
}

func NewManual() *Manual {
	return &Manual{quotes: make(map[types.Asset]Quote)}
}

func (m *Manual) Set(asset types.Asset, price uint64, ts time.Time) error {
	if m == nil {
		return fmt.Errorf("manual oracle not configured")
	}
	if price == 0 {
		return fmt.Errorf("%w: price must be positive", ErrInvalidQuote)
	}
	m.mu.Lock()
	m.quotes[asset] = Quote{Price: price, UpdatedAt: ts, Source: "manual"}
	m.mu.Unlock()
	return nil
}

func (m *Manual) Price(asset types.Asset) (Quote, error) {
	if m == nil {
		return Quote{}, fmt.Errorf("manual oracle not configured")
	}
	m.mu.RLock()
	quote, ok := m.quotes[asset]
	m.mu.RUnlock()
	if !ok {
		return Quote{}, fmt.Errorf("%w: manual oracle has no quote for %s", ErrNoFreshQuote, asset)
	}
	return quote, nil
}

// WithinTolerance reports whether live deviates from hint by at most
// toleranceBps basis points of hint.
func WithinTolerance(live, hint, toleranceBps uint64) bool {
	if hint == 0 {
		return false
	}
	var diff uint64
	if live > hint {
		diff = live - hint
	} else {
		diff = hint - live
	}
	return diff*10_000 <= hint*toleranceBps
}
