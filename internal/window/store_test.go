package window

import (
	"errors"
	"testing"
	"time"

	"SwingSentinel/internal/model"
)

var (
	keyA = model.InstrumentKey{Symbol: "EURUSD", Timeframe: model.TimeframeShort}
	keyB = model.InstrumentKey{Symbol: "XAUUSD", Timeframe: model.TimeframeLong}
	t0   = time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC)
)

func bar(i int) model.Candle {
	return model.Candle{Time: t0.Add(time.Duration(i) * 4 * time.Hour), High: float64(10 + i), Low: float64(i), Close: float64(5 + i)}
}

func TestAccept_DuplicateDoesNotMutate(t *testing.T) {
	st := NewStore([]model.InstrumentKey{keyA})

	res, err := st.Accept(keyA, bar(0))
	if err != nil || res != Accepted {
		t.Fatalf("first accept: got %v, %v", res, err)
	}

	again := bar(0)
	again.High = 999
	res, err = st.Accept(keyA, again)
	if err != nil {
		t.Fatalf("duplicate accept: %v", err)
	}
	if res != Duplicate {
		t.Fatalf("expected DUPLICATE, got %v", res)
	}

	w, _ := st.Window(keyA)
	if len(w) != 1 || w[0].High != bar(0).High {
		t.Errorf("window mutated by duplicate: %+v", w)
	}
}

func TestAccept_EvictsOldestPastCapacity(t *testing.T) {
	st := NewStore([]model.InstrumentKey{keyA})
	for i := 0; i < Capacity+1; i++ {
		if res, err := st.Accept(keyA, bar(i)); err != nil || res != Accepted {
			t.Fatalf("accept %d: %v, %v", i, res, err)
		}
	}

	w, _ := st.Window(keyA)
	if len(w) != Capacity {
		t.Fatalf("expected %d candles, got %d", Capacity, len(w))
	}
	for _, c := range w {
		if c.Time.Equal(bar(0).Time) {
			t.Fatal("oldest candle still present after eviction")
		}
	}
	if !w[0].Time.Equal(bar(1).Time) || !w[Capacity-1].Time.Equal(bar(Capacity).Time) {
		t.Errorf("unexpected window bounds: first=%v last=%v", w[0].Time, w[Capacity-1].Time)
	}
	for i := 1; i < len(w); i++ {
		if !w[i].Time.After(w[i-1].Time) {
			t.Fatalf("window not strictly increasing at %d", i)
		}
	}
}

func TestAccept_RejectsOutOfOrder(t *testing.T) {
	st := NewStore([]model.InstrumentKey{keyA})
	st.Accept(keyA, bar(0))
	st.Accept(keyA, bar(2))

	_, err := st.Accept(keyA, bar(1))
	var oe *OrderingError
	if !errors.As(err, &oe) {
		t.Fatalf("expected OrderingError, got %v", err)
	}
	if !oe.Incoming.Equal(bar(1).Time) || !oe.Newest.Equal(bar(2).Time) {
		t.Errorf("unexpected error fields: %+v", oe)
	}
	if w, _ := st.Window(keyA); len(w) != 2 {
		t.Errorf("window mutated by out-of-order candle: %d entries", len(w))
	}
}

func TestAccept_UnknownKey(t *testing.T) {
	st := NewStore([]model.InstrumentKey{keyA})
	if _, err := st.Accept(keyB, bar(0)); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("expected ErrUnknownKey, got %v", err)
	}
}

func TestStore_KeysIsolated(t *testing.T) {
	st := NewStore([]model.InstrumentKey{keyB, keyA})
	st.Accept(keyA, bar(0))
	st.Accept(keyA, bar(1))

	if w, _ := st.Window(keyB); len(w) != 0 {
		t.Errorf("key B should be empty, has %d", len(w))
	}
	if got := st.KeysFor(model.TimeframeShort); len(got) != 1 || got[0] != keyA {
		t.Errorf("KeysFor(short) = %v", got)
	}
	if got := st.Keys(); got[0] != keyA || got[1] != keyB {
		t.Errorf("Keys not ordered by timeframe: %v", got)
	}
}

func TestRing_LastAndNewest(t *testing.T) {
	r := NewRing(3)
	if _, ok := r.Newest(); ok {
		t.Fatal("empty ring reported a newest candle")
	}
	for i := 0; i < 5; i++ {
		r.Append(bar(i))
	}
	if r.Len() != 3 {
		t.Fatalf("expected len 3, got %d", r.Len())
	}
	newest, _ := r.Newest()
	if !newest.Time.Equal(bar(4).Time) {
		t.Errorf("newest = %v", newest.Time)
	}
	last2 := r.Last(2)
	if !last2[0].Time.Equal(bar(3).Time) || !last2[1].Time.Equal(bar(4).Time) {
		t.Errorf("Last(2) = %v", last2)
	}
	if got := r.Last(10); len(got) != 3 {
		t.Errorf("Last(10) should clamp to 3, got %d", len(got))
	}
}
