package window

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"SwingSentinel/internal/model"
)

// Capacity is the number of most recent candles kept per key.
const Capacity = 12

// Result is the outcome of offering a candle to a window.
type Result int

const (
	Accepted Result = iota + 1
	Duplicate
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "ACCEPTED"
	case Duplicate:
		return "DUPLICATE"
	default:
		return "UNKNOWN"
	}
}

// ErrUnknownKey is returned for keys that were not configured.
var ErrUnknownKey = errors.New("unknown instrument key")

// OrderingError reports a candle older than the newest stored one.
type OrderingError struct {
	Key      model.InstrumentKey
	Newest   time.Time
	Incoming time.Time
}

func (e *OrderingError) Error() string {
	return fmt.Sprintf("%s: candle %s is older than newest %s",
		e.Key, e.Incoming.Format(time.RFC3339), e.Newest.Format(time.RFC3339))
}

// Series is the state record of one key: its window and its pending swing.
// Methods other than those on Store must be called with the series locked
// (see Store.Do).
type Series struct {
	mu      sync.Mutex
	key     model.InstrumentKey
	ring    *Ring
	pending *model.PendingSwing
}

// Key returns the series key.
func (s *Series) Key() model.InstrumentKey { return s.key }

// Accept appends c unless it repeats the newest bar time.
func (s *Series) Accept(c model.Candle) (Result, error) {
	if newest, ok := s.ring.Newest(); ok {
		if newest.Time.Equal(c.Time) {
			return Duplicate, nil
		}
		if c.Time.Before(newest.Time) {
			return 0, &OrderingError{Key: s.key, Newest: newest.Time, Incoming: c.Time}
		}
	}
	s.ring.Append(c)
	return Accepted, nil
}

// Candles returns the window, oldest first.
func (s *Series) Candles() []model.Candle { return s.ring.All() }

// Len returns the number of stored candles.
func (s *Series) Len() int { return s.ring.Len() }

// Pending returns the active chain, or nil when idle.
func (s *Series) Pending() *model.PendingSwing { return s.pending }

// SetPending replaces the active chain; nil clears it.
func (s *Series) SetPending(p *model.PendingSwing) { s.pending = p }

// Store owns the per-key series for a fixed key set.
type Store struct {
	series map[model.InstrumentKey]*Series
	keys   []model.InstrumentKey
}

// NewStore creates an empty series for every key.
func NewStore(keys []model.InstrumentKey) *Store {
	st := &Store{series: make(map[model.InstrumentKey]*Series, len(keys))}
	for _, k := range keys {
		if _, ok := st.series[k]; ok {
			continue
		}
		st.series[k] = &Series{key: k, ring: NewRing(Capacity)}
		st.keys = append(st.keys, k)
	}
	sort.Slice(st.keys, func(i, j int) bool {
		if st.keys[i].Timeframe != st.keys[j].Timeframe {
			return st.keys[i].Timeframe < st.keys[j].Timeframe
		}
		return st.keys[i].Symbol < st.keys[j].Symbol
	})
	return st
}

// Keys returns all keys ordered by timeframe then symbol.
func (st *Store) Keys() []model.InstrumentKey {
	out := make([]model.InstrumentKey, len(st.keys))
	copy(out, st.keys)
	return out
}

// KeysFor returns the keys of one timeframe.
func (st *Store) KeysFor(tf model.Timeframe) []model.InstrumentKey {
	var out []model.InstrumentKey
	for _, k := range st.keys {
		if k.Timeframe == tf {
			out = append(out, k)
		}
	}
	return out
}

// Do runs fn with the key's series locked.
func (st *Store) Do(key model.InstrumentKey, fn func(s *Series) error) error {
	s, ok := st.series[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, ErrUnknownKey)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(s)
}

// Accept offers c to the key's window.
func (st *Store) Accept(key model.InstrumentKey, c model.Candle) (Result, error) {
	var res Result
	err := st.Do(key, func(s *Series) error {
		var err error
		res, err = s.Accept(c)
		return err
	})
	return res, err
}

// Window returns a copy of the key's candles, oldest first.
func (st *Store) Window(key model.InstrumentKey) ([]model.Candle, error) {
	var out []model.Candle
	err := st.Do(key, func(s *Series) error {
		out = s.Candles()
		return nil
	})
	return out, err
}

// PendingEntry pairs a key with a copy of its active chain.
type PendingEntry struct {
	Key     model.InstrumentKey
	Pending model.PendingSwing
}

// PendingSnapshot returns copies of all active chains.
func (st *Store) PendingSnapshot() []PendingEntry {
	var out []PendingEntry
	for _, k := range st.keys {
		_ = st.Do(k, func(s *Series) error {
			if p := s.Pending(); p != nil {
				out = append(out, PendingEntry{Key: k, Pending: *p})
			}
			return nil
		})
	}
	return out
}
