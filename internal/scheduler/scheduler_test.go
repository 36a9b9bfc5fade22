package scheduler

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"SwingSentinel/internal/collector"
	"SwingSentinel/internal/metrics"
	"SwingSentinel/internal/model"
	"SwingSentinel/internal/notifier"
	"SwingSentinel/internal/recorder"
	"SwingSentinel/internal/strategy"
	"SwingSentinel/internal/subscriber"
	"SwingSentinel/internal/window"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

var (
	eurusd = model.Instrument{Symbol: "EURUSD", Screener: "forex", Exchange: "FOREXCOM"}
	gbpusd = model.Instrument{Symbol: "GBPUSD", Screener: "forex", Exchange: "FOREXCOM"}

	eurKey = model.InstrumentKey{Symbol: "EURUSD", Timeframe: model.TimeframeShort}
	gbpKey = model.InstrumentKey{Symbol: "GBPUSD", Timeframe: model.TimeframeShort}

	base = time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)
)

func reading(i int, high, low, close float64) collector.Reading {
	return collector.Reading{Candle: model.Candle{
		Time: base.Add(time.Duration(i) * 4 * time.Hour), High: high, Low: low, Close: close,
	}}
}

// swingHighScript forms a basic swing high on the third bar and extends it
// on the fourth.
func swingHighScript() []collector.Reading {
	return []collector.Reading{
		reading(0, 10, 1, 5),
		reading(1, 12, 2, 6),
		reading(2, 11, 2, 5),
		reading(3, 9, 0, 1),
	}
}

type captureNotifier struct {
	mu    sync.Mutex
	texts []string
	tags  [][]string
	err   error
}

func (c *captureNotifier) Name() string { return "capture" }

func (c *captureNotifier) Send(_ context.Context, text string, recipients []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.texts = append(c.texts, text)
	c.tags = append(c.tags, recipients)
	return c.err
}

type fixture struct {
	sched *Scheduler
	mock  *collector.MockFetcher
	note  *captureNotifier
	store *window.Store
	subs  *subscriber.Manager
	m     *metrics.Metrics
}

func newFixture(t *testing.T, rec recorder.Recorder) *fixture {
	t.Helper()
	mock := collector.NewMockFetcher()
	col := collector.NewCollector(mock, []model.Instrument{eurusd, gbpusd}, time.Second)
	store := window.NewStore([]model.InstrumentKey{eurKey, gbpKey})
	eng := strategy.NewEngine(store, strategy.Detector{Mode: strategy.ModeBasic})
	subs, err := subscriber.NewManager("")
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	note := &captureNotifier{}
	m := metrics.New(prometheus.NewRegistry())

	s := NewScheduler(context.Background(), Deps{
		Collector:   col,
		Engine:      eng,
		Notifier:    note,
		Subscribers: subs,
		Recorder:    rec,
		Metrics:     m,
		Concurrency: 2,
	})
	return &fixture{sched: s, mock: mock, note: note, store: store, subs: subs, m: m}
}

func TestRunNow_AlertsAndSequence(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Push(eurKey, swingHighScript()...)
	f.mock.Push(gbpKey, reading(0, 2, 1, 1.5))
	f.subs.Subscribe(model.TimeframeShort, "42")

	for i := 0; i < 4; i++ {
		f.sched.RunNow(model.TimeframeShort)
	}

	if len(f.note.texts) != 2 {
		t.Fatalf("expected 2 alerts, got %d: %v", len(f.note.texts), f.note.texts)
	}
	if !strings.Contains(f.note.texts[0], "EURUSD/4H/Swing High") {
		t.Errorf("first alert = %q", f.note.texts[0])
	}
	if !strings.Contains(f.note.texts[1], "EURUSD/4H/Sequence High") || !strings.Contains(f.note.texts[1], "Chain: 2") {
		t.Errorf("second alert = %q", f.note.texts[1])
	}
	if len(f.note.tags[0]) != 1 || f.note.tags[0][0] != "42" {
		t.Errorf("recipients = %v", f.note.tags[0])
	}
	if got := testutil.ToFloat64(f.m.AlertsTotal.WithLabelValues("4H", "SEQUENCE", "HIGH")); got != 1 {
		t.Errorf("sequence alert metric = %v", got)
	}
	if got := testutil.ToFloat64(f.m.PendingChains); got != 1 {
		t.Errorf("pending chains gauge = %v", got)
	}
}

// markdownNotifier captures alerts rendered with its own markup.
type markdownNotifier struct {
	captureNotifier
}

func (m *markdownNotifier) FormatAlert(evt *model.AlertEvent) string {
	return notifier.FormatAlertMarkdown(evt)
}

func TestRunNow_AlertUsesNotifierMarkup(t *testing.T) {
	f := newFixture(t, nil)
	md := &markdownNotifier{}
	f.sched.Notifier = md
	f.mock.Push(eurKey, swingHighScript()[:3]...)

	for i := 0; i < 3; i++ {
		f.sched.RunNow(model.TimeframeShort)
	}

	if len(md.texts) != 1 {
		t.Fatalf("expected 1 alert, got %d", len(md.texts))
	}
	if !strings.HasPrefix(md.texts[0], "**EURUSD/4H/Swing High**") || strings.Contains(md.texts[0], "<b>") {
		t.Errorf("alert not rendered by the notifier: %q", md.texts[0])
	}
}

func TestRunNow_DuplicateBarsProduceNoAlerts(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Push(eurKey, swingHighScript()[:3]...)
	f.mock.Push(gbpKey, reading(0, 2, 1, 1.5))

	for i := 0; i < 3; i++ {
		f.sched.RunNow(model.TimeframeShort)
	}
	// The script is exhausted: every further tick repeats the third bar.
	for i := 0; i < 5; i++ {
		sum := f.sched.RunNow(model.TimeframeShort)
		if sum.Alerts != 0 || sum.Accepted != 0 || sum.Duplicates != 2 {
			t.Fatalf("repeat tick %d: %+v", i, sum)
		}
	}
	if len(f.note.texts) != 1 {
		t.Errorf("expected exactly one alert, got %d", len(f.note.texts))
	}
	if got := testutil.ToFloat64(f.m.CandlesTotal.WithLabelValues("4H", "DUPLICATE")); got != 2*5+2 {
		t.Errorf("duplicate metric = %v", got)
	}
}

func TestRunNow_KeyFailureIsIsolated(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Push(eurKey, collector.Reading{Err: errors.New("upstream down")})
	f.mock.Push(gbpKey, reading(0, 2, 1, 1.5))

	sum := f.sched.RunNow(model.TimeframeShort)
	if sum.Errors != 1 || sum.Accepted != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if w, _ := f.store.Window(gbpKey); len(w) != 1 {
		t.Errorf("GBPUSD window = %d candles", len(w))
	}
	if w, _ := f.store.Window(eurKey); len(w) != 0 {
		t.Errorf("EURUSD window should be untouched, got %d", len(w))
	}
	if got := testutil.ToFloat64(f.m.IngestErrors.WithLabelValues("4H")); got != 1 {
		t.Errorf("ingest error metric = %v", got)
	}
}

func TestRunNow_OrderingViolationSkipsKey(t *testing.T) {
	f := newFixture(t, nil)
	f.mock.Push(eurKey, reading(5, 2, 1, 1.5), reading(4, 2, 1, 1.5))
	f.mock.Push(gbpKey, reading(0, 2, 1, 1.5))

	f.sched.RunNow(model.TimeframeShort)
	sum := f.sched.RunNow(model.TimeframeShort)
	if sum.Errors != 1 {
		t.Fatalf("summary = %+v", sum)
	}
	if got := testutil.ToFloat64(f.m.OrderingErrors.WithLabelValues("4H")); got != 1 {
		t.Errorf("ordering metric = %v", got)
	}
}

func TestRunNow_NotificationFailureKeepsState(t *testing.T) {
	f := newFixture(t, nil)
	f.note.err = errors.New("channel offline")
	f.mock.Push(eurKey, swingHighScript()...)
	f.mock.Push(gbpKey, reading(0, 2, 1, 1.5))

	for i := 0; i < 3; i++ {
		f.sched.RunNow(model.TimeframeShort)
	}
	pending := f.sched.Engine.Pending()
	if len(pending) != 1 || pending[0].Pending.ChainLength != 1 {
		t.Fatalf("chain should be committed despite failed delivery: %+v", pending)
	}
	if got := testutil.ToFloat64(f.m.NotifyErrors.WithLabelValues("capture")); got != 1 {
		t.Errorf("notify error metric = %v", got)
	}

	// The next bar still extends the chain; nothing is re-triggered.
	sum := f.sched.RunNow(model.TimeframeShort)
	if sum.Alerts != 1 {
		t.Fatalf("expected extension alert, got %+v", sum)
	}
	if p := f.sched.Engine.Pending(); p[0].Pending.ChainLength != 2 {
		t.Errorf("chain length = %d", p[0].Pending.ChainLength)
	}
}

func TestWarmStart_RebuildsChains(t *testing.T) {
	ctx := context.Background()
	rec, err := recorder.NewSQLiteRecorder(filepath.Join(t.TempDir(), "warm.db"))
	if err != nil {
		t.Fatalf("NewSQLiteRecorder: %v", err)
	}
	defer rec.Close()

	first := newFixture(t, rec)
	first.mock.Push(eurKey, swingHighScript()[:3]...)
	first.mock.Push(gbpKey, reading(0, 2, 1, 1.5))
	for i := 0; i < 3; i++ {
		first.sched.RunNow(model.TimeframeShort)
	}

	second := newFixture(t, rec)
	n, err := second.sched.WarmStart(ctx)
	if err != nil {
		t.Fatalf("WarmStart: %v", err)
	}
	if n != 4 {
		t.Errorf("replayed %d candles, want 4", n)
	}
	if len(second.note.texts) != 0 {
		t.Errorf("warm start must not notify, got %v", second.note.texts)
	}
	pending := second.sched.Engine.Pending()
	if len(pending) != 1 || pending[0].Key != eurKey || pending[0].Pending.Direction != model.DirectionHigh {
		t.Fatalf("pending after warm start = %+v", pending)
	}

	// The restarted engine continues the chain from live data.
	second.mock.Push(eurKey, reading(3, 9, 0, 1))
	second.mock.Push(gbpKey, reading(0, 2, 1, 1.5))
	second.sched.RunNow(model.TimeframeShort)
	if len(second.note.texts) != 1 || !strings.Contains(second.note.texts[0], "Sequence High") {
		t.Errorf("alerts after restart = %v", second.note.texts)
	}
}

func TestRegisterAll(t *testing.T) {
	f := newFixture(t, nil)
	err := f.sched.RegisterAll(map[model.Timeframe]string{
		model.TimeframeShort: "CRON_TZ=UTC 45 59 0,4,8,12,16,20 * * *",
		model.TimeframeLong:  "@every 60s",
	}, "@every 60s")
	if err != nil {
		t.Fatalf("RegisterAll: %v", err)
	}
	if got := len(f.sched.Cron.Entries()); got != 3 {
		t.Errorf("entries = %d, want 3", got)
	}

	bad := newFixture(t, nil)
	if err := bad.sched.RegisterAll(map[model.Timeframe]string{model.TimeframeShort: "not a spec"}, ""); err == nil {
		t.Error("expected error for invalid spec")
	}
}

func TestHandleCommand(t *testing.T) {
	f := newFixture(t, nil)

	tests := []struct {
		text string
		user string
		want string
	}{
		{"/subscribe 4H", "42", "Subscribed to 4H alerts."},
		{"/subscribe@SwingBot 4h", "42", "Already subscribed to 4H alerts."},
		{"/subscribe", "42", "Usage: /subscribe 4H|1D"},
		{"/subscribe 15m", "42", `Unknown timeframe "15m". Use 4H or 1D.`},
		{"/subscribe 1D", "", "Cannot identify sender."},
		{"/unsubscribe 1D", "42", "Not subscribed to 1D alerts."},
		{"/pending", "42", "No active swings."},
		{"/help", "42", helpText},
	}
	for _, tt := range tests {
		if got := f.sched.HandleCommand(notifier.Command{Text: tt.text, UserID: tt.user}); got != tt.want {
			t.Errorf("%q: got %q, want %q", tt.text, got, tt.want)
		}
	}
	if got := f.subs.Recipients(model.TimeframeShort); len(got) != 1 || got[0] != "42" {
		t.Errorf("recipients = %v", got)
	}
	if got := f.sched.HandleCommand(notifier.Command{Text: "/unsubscribe 4H", UserID: "42"}); got != "Unsubscribed from 4H alerts." {
		t.Errorf("unsubscribe reply = %q", got)
	}
}
