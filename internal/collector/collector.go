package collector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"SwingSentinel/internal/model"
)

// IngestionError wraps every failure to obtain a usable reading for a key.
type IngestionError struct {
	Key model.InstrumentKey
	Err error
}

func (e *IngestionError) Error() string {
	return fmt.Sprintf("ingest %s: %v", e.Key, e.Err)
}

func (e *IngestionError) Unwrap() error { return e.Err }

var (
	// ErrMalformed marks a reading that parsed but cannot be a real bar.
	ErrMalformed = errors.New("malformed reading")
	// ErrUnknownInstrument marks a key with no routing metadata.
	ErrUnknownInstrument = errors.New("unknown instrument")
)

// Collector routes keys to the fetcher and validates what comes back.
type Collector struct {
	Fetcher     Fetcher
	Instruments map[string]model.Instrument
	Timeout     time.Duration
}

// NewCollector creates a new Collector.
func NewCollector(fetcher Fetcher, instruments []model.Instrument, timeout time.Duration) *Collector {
	m := make(map[string]model.Instrument, len(instruments))
	for _, inst := range instruments {
		m[inst.Symbol] = inst
	}
	return &Collector{Fetcher: fetcher, Instruments: m, Timeout: timeout}
}

// Fetch returns the latest candle for key. Every error is an *IngestionError.
func (c *Collector) Fetch(ctx context.Context, key model.InstrumentKey) (model.Candle, error) {
	inst, ok := c.Instruments[key.Symbol]
	if !ok {
		return model.Candle{}, &IngestionError{Key: key, Err: ErrUnknownInstrument}
	}

	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}

	candle, err := c.Fetcher.FetchLatest(ctx, inst, key.Timeframe)
	if err != nil {
		return model.Candle{}, &IngestionError{Key: key, Err: fmt.Errorf("%s: %w", c.Fetcher.Name(), err)}
	}
	if err := validate(candle); err != nil {
		return model.Candle{}, &IngestionError{Key: key, Err: err}
	}
	return candle, nil
}

func validate(c model.Candle) error {
	if c.Time.IsZero() {
		return fmt.Errorf("%w: missing bar time", ErrMalformed)
	}
	for _, v := range []float64{c.High, c.Low, c.Close} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v <= 0 {
			return fmt.Errorf("%w: non-positive or non-finite price (h=%v l=%v c=%v)", ErrMalformed, c.High, c.Low, c.Close)
		}
	}
	if c.High < c.Low {
		return fmt.Errorf("%w: high %v below low %v", ErrMalformed, c.High, c.Low)
	}
	return nil
}

// Reading is one scripted MockFetcher response.
type Reading struct {
	Candle model.Candle
	Err    error
}

// MockFetcher replays scripted readings per key for development and testing.
// Once a key's script is exhausted the last reading repeats.
type MockFetcher struct {
	mu      sync.Mutex
	scripts map[model.InstrumentKey][]Reading
	calls   map[model.InstrumentKey]int
}

// NewMockFetcher creates an empty MockFetcher.
func NewMockFetcher() *MockFetcher {
	return &MockFetcher{
		scripts: make(map[model.InstrumentKey][]Reading),
		calls:   make(map[model.InstrumentKey]int),
	}
}

func (m *MockFetcher) Name() string { return "mock" }

// Push appends readings to a key's script.
func (m *MockFetcher) Push(key model.InstrumentKey, readings ...Reading) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scripts[key] = append(m.scripts[key], readings...)
}

// Calls returns how many times key has been fetched.
func (m *MockFetcher) Calls(key model.InstrumentKey) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[key]
}

func (m *MockFetcher) FetchLatest(_ context.Context, inst model.Instrument, tf model.Timeframe) (model.Candle, error) {
	key := model.InstrumentKey{Symbol: inst.Symbol, Timeframe: tf}

	m.mu.Lock()
	defer m.mu.Unlock()
	script := m.scripts[key]
	if len(script) == 0 {
		return model.Candle{}, fmt.Errorf("mock: no data for %s", key)
	}
	i := m.calls[key]
	m.calls[key]++
	if i >= len(script) {
		i = len(script) - 1
	}
	r := script[i]
	return r.Candle, r.Err
}
