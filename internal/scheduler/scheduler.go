package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"SwingSentinel/internal/collector"
	"SwingSentinel/internal/metrics"
	"SwingSentinel/internal/model"
	"SwingSentinel/internal/notifier"
	"SwingSentinel/internal/recorder"
	"SwingSentinel/internal/strategy"
	"SwingSentinel/internal/subscriber"
	"SwingSentinel/internal/window"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"
)

// Deps are the collaborators a Scheduler drives.
type Deps struct {
	Collector   *collector.Collector
	Engine      *strategy.Engine
	Notifier    notifier.Notifier
	Subscribers *subscriber.Manager
	Recorder    recorder.Recorder
	Metrics     *metrics.Metrics
	Health      *metrics.HealthStatus
	Concurrency int // keys fetched in parallel per tick
	MaxRetries  int // notification retries
}

// Scheduler manages all cron tasks.
type Scheduler struct {
	Deps
	Cron *cron.Cron
	Ctx  context.Context
}

// TickSummary counts what one tick did.
type TickSummary struct {
	Timeframe  model.Timeframe
	Keys       int
	Accepted   int
	Duplicates int
	Errors     int
	Alerts     int
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, deps Deps) *Scheduler {
	if deps.Recorder == nil {
		deps.Recorder = recorder.NewNoopRecorder()
	}
	if deps.Notifier == nil {
		deps.Notifier = notifier.LogNotifier{}
	}
	if deps.Health == nil {
		deps.Health = metrics.NewHealthStatus()
	}
	if deps.Concurrency <= 0 {
		deps.Concurrency = 1
	}
	return &Scheduler{
		Deps: deps,
		Cron: cron.New(cron.WithSeconds()),
		Ctx:  ctx,
	}
}

// RegisterAll registers one tick job per timeframe plus the heartbeat.
// A tick that is still running when its next fire time arrives is skipped.
func (s *Scheduler) RegisterAll(schedules map[model.Timeframe]string, heartbeat string) error {
	chain := cron.NewChain(cron.SkipIfStillRunning(cron.DefaultLogger))
	for _, tf := range model.Timeframes {
		spec, ok := schedules[tf]
		if !ok {
			continue
		}
		tf := tf
		if _, err := s.Cron.AddJob(spec, chain.Then(cron.FuncJob(func() { s.RunNow(tf) }))); err != nil {
			return fmt.Errorf("register %s tick %q: %w", tf, spec, err)
		}
		log.Printf("[INFO] %s tick scheduled: %s", tf, spec)
	}
	if heartbeat != "" {
		if _, err := s.Cron.AddFunc(heartbeat, s.heartbeat); err != nil {
			return fmt.Errorf("register heartbeat: %w", err)
		}
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	log.Println("[INFO] scheduler started")
}

// Stop stops the cron scheduler and waits for a running tick to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	log.Println("[INFO] scheduler stopped")
}

// RunNow executes one tick for tf immediately (for manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow(tf model.Timeframe) TickSummary {
	start := time.Now()
	keys := s.Engine.Store.KeysFor(tf)
	sum := TickSummary{Timeframe: tf, Keys: len(keys)}
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(s.Ctx)
	g.SetLimit(s.Concurrency)
	for _, key := range keys {
		key := key
		g.Go(func() error {
			r := s.processKey(ctx, key)
			mu.Lock()
			sum.add(r)
			mu.Unlock()
			// Per-key failures are already logged; never cancel siblings.
			return nil
		})
	}
	_ = g.Wait()

	now := time.Now()
	s.Health.MarkTick(tf.String(), now)
	if s.Metrics != nil {
		s.Metrics.TickDuration.WithLabelValues(tf.String()).Observe(now.Sub(start).Seconds())
		s.Metrics.LastTickUnixTime.WithLabelValues(tf.String()).Set(float64(now.Unix()))
		s.Metrics.PendingChains.Set(float64(len(s.Engine.Pending())))
	}
	if sum.Accepted > 0 || sum.Errors > 0 {
		log.Printf("[INFO] %s tick: %d keys, %d accepted, %d duplicate, %d errors, %d alerts (%v)",
			tf, sum.Keys, sum.Accepted, sum.Duplicates, sum.Errors, sum.Alerts, now.Sub(start).Round(time.Millisecond))
	}
	return sum
}

type keyResult struct {
	result window.Result
	failed bool
	alert  bool
}

func (sum *TickSummary) add(r keyResult) {
	switch {
	case r.failed:
		sum.Errors++
	case r.result == window.Accepted:
		sum.Accepted++
	case r.result == window.Duplicate:
		sum.Duplicates++
	}
	if r.alert {
		sum.Alerts++
	}
}

func (s *Scheduler) processKey(ctx context.Context, key model.InstrumentKey) keyResult {
	tf := key.Timeframe.String()

	c, err := s.Collector.Fetch(ctx, key)
	if err != nil {
		log.Printf("[WARN] %s: %v", key, err)
		if s.Metrics != nil {
			s.Metrics.IngestErrors.WithLabelValues(tf).Inc()
		}
		return keyResult{failed: true}
	}

	out, err := s.Engine.Process(key, c)
	if err != nil {
		var oe *window.OrderingError
		if errors.As(err, &oe) {
			log.Printf("[WARN] %v", oe)
			if s.Metrics != nil {
				s.Metrics.OrderingErrors.WithLabelValues(tf).Inc()
			}
		} else {
			log.Printf("[ERROR] %s: process candle: %v", key, err)
		}
		return keyResult{failed: true}
	}
	if s.Metrics != nil {
		s.Metrics.CandlesTotal.WithLabelValues(tf, out.Result.String()).Inc()
	}
	if out.Result != window.Accepted {
		return keyResult{result: out.Result}
	}

	if err := s.Recorder.RecordCandle(ctx, recorder.NewCandleRecord(key, c)); err != nil {
		log.Printf("[ERROR] %s: record candle: %v", key, err)
	}
	if out.Broken {
		log.Printf("[INFO] %s: swing chain ended", key)
		if s.Metrics != nil {
			s.Metrics.ChainsBroken.WithLabelValues(tf).Inc()
		}
	}
	if out.Event == nil {
		return keyResult{result: out.Result}
	}

	evt := out.Event
	log.Printf("[INFO] %s: %s %s chain=%d anchor=%s", key, evt.Formation, evt.Direction,
		evt.ChainLength, evt.AnchorTime.UTC().Format(time.RFC3339))
	if s.Metrics != nil {
		s.Metrics.AlertsTotal.WithLabelValues(tf, string(evt.Formation), string(evt.Direction)).Inc()
	}
	if err := s.Recorder.RecordAlert(ctx, evt); err != nil {
		log.Printf("[ERROR] %s: record alert: %v", key, err)
	}
	// The transition is committed; a failed delivery is only reported.
	s.deliver(ctx, evt)
	return keyResult{result: out.Result, alert: true}
}

func (s *Scheduler) deliver(ctx context.Context, evt *model.AlertEvent) {
	var recipients []string
	if s.Subscribers != nil {
		recipients = s.Subscribers.Recipients(evt.Timeframe)
	}
	err := notifier.SendWithRetry(ctx, s.Notifier, notifier.Render(s.Notifier, evt), recipients, s.MaxRetries)
	if err == nil {
		return
	}
	var ne *notifier.NotificationError
	if errors.As(err, &ne) {
		log.Printf("[ERROR] %s: %v", evt.Key(), ne)
		if s.Metrics != nil {
			s.Metrics.NotifyErrors.WithLabelValues(ne.Channel).Inc()
		}
		return
	}
	log.Printf("[ERROR] %s: send notification: %v", evt.Key(), err)
}

// WarmStart replays recorded history through the engine so windows and
// pending chains survive a restart. Alerts raised during replay are not
// delivered. Returns the number of candles replayed.
func (s *Scheduler) WarmStart(ctx context.Context) (int, error) {
	replayed := 0
	for _, key := range s.Engine.Store.Keys() {
		candles, err := s.Recorder.LoadRecent(ctx, key, window.Capacity)
		if err != nil {
			return replayed, fmt.Errorf("load history %s: %w", key, err)
		}
		for _, c := range candles {
			if _, err := s.Engine.Process(key, c); err != nil {
				log.Printf("[WARN] %s: replay candle: %v", key, err)
				continue
			}
			replayed++
		}
	}
	pending := s.Engine.Pending()
	if s.Metrics != nil {
		s.Metrics.PendingChains.Set(float64(len(pending)))
	}
	log.Printf("[INFO] warm start: %d candles replayed, %d active chains", replayed, len(pending))
	return replayed, nil
}

func (s *Scheduler) heartbeat() {
	h := s.Health.Snapshot()
	log.Printf("[INFO] heartbeat: up %v, %d active chains, ticks %v",
		time.Duration(h.UptimeSeconds)*time.Second, len(s.Engine.Pending()), h.Ticks)
}

const helpText = `Commands:
/subscribe 4H|1D - get tagged on alerts for a timeframe
/unsubscribe 4H|1D - stop being tagged
/pending - list active swings
/help - this message`

// HandleCommand processes a user command and returns a reply.
func (s *Scheduler) HandleCommand(cmd notifier.Command) string {
	fields := strings.Fields(cmd.Text)
	if len(fields) == 0 {
		return ""
	}
	// Group chats address commands as /cmd@BotName.
	name := strings.ToLower(strings.SplitN(fields[0], "@", 2)[0])

	switch name {
	case "/subscribe", "/unsubscribe":
		if s.Subscribers == nil {
			return "Subscriptions are disabled."
		}
		if cmd.UserID == "" {
			return "Cannot identify sender."
		}
		if len(fields) < 2 {
			return fmt.Sprintf("Usage: %s 4H|1D", name)
		}
		tf, err := model.ParseTimeframe(fields[1])
		if err != nil {
			return fmt.Sprintf("Unknown timeframe %q. Use 4H or 1D.", fields[1])
		}
		if name == "/subscribe" {
			added, err := s.Subscribers.Subscribe(tf, cmd.UserID)
			if err != nil {
				log.Printf("[ERROR] save subscribers: %v", err)
			}
			if !added {
				return fmt.Sprintf("Already subscribed to %s alerts.", tf)
			}
			return fmt.Sprintf("Subscribed to %s alerts.", tf)
		}
		removed, err := s.Subscribers.Unsubscribe(tf, cmd.UserID)
		if err != nil {
			log.Printf("[ERROR] save subscribers: %v", err)
		}
		if !removed {
			return fmt.Sprintf("Not subscribed to %s alerts.", tf)
		}
		return fmt.Sprintf("Unsubscribed from %s alerts.", tf)
	case "/pending":
		return notifier.FormatPending(s.Engine.Pending())
	default:
		return helpText
	}
}
