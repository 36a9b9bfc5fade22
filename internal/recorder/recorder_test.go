package recorder

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"SwingSentinel/internal/model"
)

var eurusd4h = model.InstrumentKey{Symbol: "EURUSD", Timeframe: model.TimeframeShort}

func bar(i int) model.Candle {
	return model.Candle{
		Time:  time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * 4 * time.Hour),
		High:  1.10 + float64(i)/100,
		Low:   1.00 + float64(i)/100,
		Close: 1.05 + float64(i)/100,
	}
}

func TestSQLiteRecorder_CandlesRoundTrip(t *testing.T) {
	ctx := context.Background()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "db", "test.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer r.Close()

	for i := 0; i < 15; i++ {
		if err := r.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(i))); err != nil {
			t.Fatalf("RecordCandle %d: %v", i, err)
		}
	}
	// Re-recording a stored bar is ignored.
	dup := bar(14)
	dup.Close = 99
	if err := r.RecordCandle(ctx, NewCandleRecord(eurusd4h, dup)); err != nil {
		t.Fatalf("RecordCandle dup: %v", err)
	}
	// Other keys do not leak into the query.
	other := model.InstrumentKey{Symbol: "EURUSD", Timeframe: model.TimeframeLong}
	r.RecordCandle(ctx, NewCandleRecord(other, bar(20)))

	got, err := r.LoadRecent(ctx, eurusd4h, 12)
	if err != nil {
		t.Fatalf("LoadRecent: %v", err)
	}
	if len(got) != 12 {
		t.Fatalf("expected 12 candles, got %d", len(got))
	}
	if !got[0].Time.Equal(bar(3).Time) || !got[11].Time.Equal(bar(14).Time) {
		t.Errorf("unexpected range %v .. %v", got[0].Time, got[11].Time)
	}
	if got[11].Close == 99 {
		t.Error("duplicate bar overwrote stored candle")
	}
}

func TestSQLiteRecorder_Alerts(t *testing.T) {
	ctx := context.Background()
	r, err := NewSQLiteRecorder(filepath.Join(t.TempDir(), "alerts.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer r.Close()

	evt := model.NewAlertEvent(eurusd4h, model.FormationBasic, model.DirectionHigh, bar(1).Time, 1, bar(2).Time)
	if err := r.RecordAlert(ctx, evt); err != nil {
		t.Fatalf("RecordAlert: %v", err)
	}
	if err := r.RecordAlert(ctx, evt); err != nil {
		t.Fatalf("RecordAlert again: %v", err)
	}
	n, err := r.CountAlerts(ctx, eurusd4h)
	if err != nil || n != 1 {
		t.Errorf("CountAlerts = %d, %v", n, err)
	}
}

// memRecorder is an in-memory Recorder for wrapper tests.
type memRecorder struct {
	mu      sync.Mutex
	candles []*CandleRecord
	alerts  []*model.AlertEvent
	history []model.Candle
	err     error
	closed  bool
	block   chan struct{}
}

func (m *memRecorder) RecordCandle(_ context.Context, rec *CandleRecord) error {
	if m.block != nil {
		<-m.block
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.candles = append(m.candles, rec)
	return m.err
}

func (m *memRecorder) RecordAlert(_ context.Context, evt *model.AlertEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alerts = append(m.alerts, evt)
	return m.err
}

func (m *memRecorder) LoadRecent(_ context.Context, _ model.InstrumentKey, _ int) ([]model.Candle, error) {
	return m.history, m.err
}

func (m *memRecorder) Close() error {
	m.closed = true
	return nil
}

func TestMulti_FansOutAndJoinsErrors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	a, b := &memRecorder{}, &memRecorder{err: boom, history: []model.Candle{bar(1)}}
	m := Multi{a, b}

	err := m.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(0)))
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error, got %v", err)
	}
	if len(a.candles) != 1 || len(b.candles) != 1 {
		t.Error("write should reach every backend")
	}

	a.history = []model.Candle{bar(5)}
	cs, err := m.LoadRecent(ctx, eurusd4h, 12)
	if err != nil || len(cs) != 1 || !cs[0].Time.Equal(bar(5).Time) {
		t.Errorf("LoadRecent = %v, %v", cs, err)
	}

	m.Close()
	if !a.closed || !b.closed {
		t.Error("Close should reach every backend")
	}
}

func TestAsync_FlushesOnClose(t *testing.T) {
	ctx := context.Background()
	mem := &memRecorder{}
	a := NewAsync(mem, 16)
	go a.Run()

	for i := 0; i < 5; i++ {
		a.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(i)))
	}
	a.RecordAlert(ctx, model.NewAlertEvent(eurusd4h, model.FormationBasic, model.DirectionLow, bar(1).Time, 1, bar(2).Time))

	if err := a.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(mem.candles) != 5 || len(mem.alerts) != 1 {
		t.Errorf("flushed %d candles, %d alerts", len(mem.candles), len(mem.alerts))
	}
	if !mem.closed {
		t.Error("wrapped recorder not closed")
	}
	// Writes after close are discarded, not panics.
	a.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(9)))
}

func TestAsync_DropsWhenFull(t *testing.T) {
	ctx := context.Background()
	mem := &memRecorder{block: make(chan struct{})}
	a := NewAsync(mem, 1)
	dropped := 0
	a.OnDrop = func() { dropped++ }
	go a.Run()

	// The first write is taken by Run and blocks; the second fills the queue.
	a.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(0)))
	deadline := time.Now().Add(2 * time.Second)
	for len(a.queue) != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	a.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(1)))
	a.RecordCandle(ctx, NewCandleRecord(eurusd4h, bar(2)))

	if dropped != 1 {
		t.Errorf("dropped = %d, want 1", dropped)
	}
	close(mem.block)
	a.Close()
	if len(mem.candles) != 2 {
		t.Errorf("recorded %d candles, want 2", len(mem.candles))
	}
}
