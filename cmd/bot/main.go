package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"SwingSentinel/internal/collector"
	"SwingSentinel/internal/config"
	"SwingSentinel/internal/metrics"
	"SwingSentinel/internal/model"
	"SwingSentinel/internal/notifier"
	"SwingSentinel/internal/recorder"
	"SwingSentinel/internal/scheduler"
	"SwingSentinel/internal/server"
	"SwingSentinel/internal/strategy"
	"SwingSentinel/internal/subscriber"
	"SwingSentinel/internal/window"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("[INFO] SwingSentinel starting...")

	if err := config.LoadEnvFile(".env"); err != nil {
		log.Printf("[WARN] %v", err)
	}

	// Load config
	cfgPath := "configs/config.yaml"
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		cfgPath = v
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("[FATAL] load config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("[FATAL] config validation: %v", err)
	}

	// Context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Init fetcher
	var fetcher collector.Fetcher
	switch cfg.DataSource.Provider {
	case "yahoo":
		fetcher = collector.NewYahooFetcher(cfg.DataSource.BaseURL, cfg.Proxy)
	default:
		fetcher = collector.NewTradingViewFetcher(cfg.DataSource.BaseURL, cfg.Proxy)
	}
	log.Printf("[INFO] data source: %s", fetcher.Name())

	// Init collector
	timeout := time.Duration(cfg.DataSource.TimeoutSeconds) * time.Second
	col := collector.NewCollector(fetcher, cfg.InstrumentList(), timeout)

	// Init window store and engine
	mode, _ := strategy.ParseFormationMode(cfg.Strategy.FormationMode)
	store := window.NewStore(cfg.Keys())
	eng := strategy.NewEngine(store, strategy.Detector{Mode: mode})
	log.Printf("[INFO] tracking %d series, formation mode %s", len(store.Keys()), mode)

	// Init subscribers
	subs, err := subscriber.NewManager(cfg.Subscribers.StateFile)
	if err != nil {
		log.Fatalf("[FATAL] init subscribers: %v", err)
	}
	log.Printf("[INFO] subscribers loaded: %v", subs.Count())

	// Init notifier
	var (
		note notifier.Notifier
		tn   *notifier.TelegramNotifier
	)
	switch cfg.Notifier.Driver {
	case "telegram":
		tn = notifier.NewTelegramNotifier(cfg.Telegram.BotToken, cfg.Telegram.ChatID, cfg.Proxy)
		note = tn
	case "discord":
		note = notifier.NewDiscordNotifier(cfg.Discord.WebhookURL, cfg.Proxy)
	default:
		note = notifier.LogNotifier{}
	}
	log.Printf("[INFO] notifier: %s", note.Name())

	// Init metrics
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	health := metrics.NewHealthStatus()

	// Init recorder
	rec := openRecorder(ctx, cfg, m)
	defer rec.Close()

	// Init scheduler
	sched := scheduler.NewScheduler(ctx, scheduler.Deps{
		Collector:   col,
		Engine:      eng,
		Notifier:    note,
		Subscribers: subs,
		Recorder:    rec,
		Metrics:     m,
		Health:      health,
		Concurrency: cfg.Schedule.Concurrency,
		MaxRetries:  3,
	})
	if _, err := sched.WarmStart(ctx); err != nil {
		log.Printf("[WARN] warm start: %v", err)
	}
	if err := sched.RegisterAll(cfg.Schedules(), cfg.Schedule.Heartbeat); err != nil {
		log.Fatalf("[FATAL] register cron tasks: %v", err)
	}
	sched.Start()
	defer sched.Stop()

	// Start status server
	var srv *server.Server
	if cfg.ServerEnabled() {
		gin.SetMode(gin.ReleaseMode)
		srv = server.New(cfg.Server.Addr, eng, health, reg)
		if cfg.Server.AdminToken != "" {
			srv.EnableSubscriptions(subs, cfg.Server.AdminToken)
			log.Println("[INFO] subscriber admin routes enabled")
		}
		go func() {
			if err := srv.Start(); err != nil {
				log.Printf("[ERROR] status server: %v", err)
			}
		}()
	}

	// Start Telegram polling
	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		log.Println("[INFO] Telegram polling started")
	}

	// Optional: run immediately on start
	if os.Getenv("RUN_ON_START") == "true" {
		log.Println("[INFO] RUN_ON_START enabled, executing ticks now")
		go func() {
			for _, tf := range model.Timeframes {
				if len(store.KeysFor(tf)) > 0 {
					sched.RunNow(tf)
				}
			}
		}()
	}

	log.Println("[INFO] SwingSentinel is running. Press Ctrl+C to stop.")

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Println("[INFO] shutdown signal received, stopping...")
	cancel()
	if srv != nil {
		shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("[WARN] status server shutdown: %v", err)
		}
		stop()
	}
	log.Println("[INFO] SwingSentinel stopped")
}

// openRecorder builds the configured storage backends. Backends that fail
// to open are skipped so the bot keeps alerting without history.
func openRecorder(ctx context.Context, cfg *config.Config, m *metrics.Metrics) recorder.Recorder {
	var backends recorder.Multi

	switch cfg.Database.Driver {
	case "sqlite":
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath)
		if err != nil {
			log.Printf("[WARN] init sqlite recorder failed: %v", err)
		} else {
			backends = append(backends, sr)
		}
	case "postgres":
		pr, err := recorder.NewPostgresRecorder(ctx, cfg.Database.PostgresDSN)
		if err != nil {
			log.Printf("[WARN] init postgres recorder failed: %v", err)
		} else {
			backends = append(backends, pr)
		}
	}

	if cfg.Redis.Enabled {
		rr, err := recorder.NewRedisRecorder(recorder.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			log.Printf("[WARN] init redis recorder failed: %v", err)
		} else {
			backends = append(backends, rr)
		}
	}

	if len(backends) == 0 {
		log.Println("[INFO] no recorder configured, using noop")
		return recorder.NewNoopRecorder()
	}

	async := recorder.NewAsync(backends, 1024)
	async.OnDrop = m.RecorderDrops.Inc
	go async.Run()
	return async
}
