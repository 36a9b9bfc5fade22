package window

import "SwingSentinel/internal/model"

// Ring is a fixed-capacity circular buffer of candles. Appending to a full
// ring overwrites the oldest entry.
type Ring struct {
	data     []model.Candle
	capacity int
	index    int // next write position
	size     int
}

// NewRing creates a ring with the given capacity.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = Capacity
	}
	return &Ring{
		data:     make([]model.Candle, capacity),
		capacity: capacity,
	}
}

// Append writes c at the cursor, evicting the oldest entry when full.
func (r *Ring) Append(c model.Candle) {
	r.data[r.index] = c
	r.index = (r.index + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Newest returns the most recently appended candle.
func (r *Ring) Newest() (model.Candle, bool) {
	if r.size == 0 {
		return model.Candle{}, false
	}
	return r.data[(r.index-1+r.capacity)%r.capacity], true
}

// Last returns up to n most recent candles, oldest first.
func (r *Ring) Last(n int) []model.Candle {
	if r.size == 0 || n <= 0 {
		return []model.Candle{}
	}
	if n > r.size {
		n = r.size
	}
	out := make([]model.Candle, n)
	start := (r.index - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.data[(start+i)%r.capacity]
	}
	return out
}

// All returns every stored candle, oldest first.
func (r *Ring) All() []model.Candle {
	return r.Last(r.size)
}

func (r *Ring) Len() int      { return r.size }
func (r *Ring) Capacity() int { return r.capacity }
