package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"SwingSentinel/internal/model"
	"SwingSentinel/internal/strategy"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ConfigurationError reports a missing or invalid setting.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("config %s: %s", e.Field, e.Reason)
}

// InstrumentConfig is one tracked symbol with its provider routing.
type InstrumentConfig struct {
	Symbol   string `yaml:"symbol"`
	Screener string `yaml:"screener"`
	Exchange string `yaml:"exchange"`
}

// TimeframeConfig enables a timeframe and optionally overrides its cron schedule.
type TimeframeConfig struct {
	Name     string `yaml:"name"`
	Schedule string `yaml:"schedule"`
}

// Config holds all application configuration.
type Config struct {
	Notifier struct {
		Driver string `yaml:"driver"`
	} `yaml:"notifier"`
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram"`
	Discord struct {
		WebhookURL string `yaml:"webhook_url"`
	} `yaml:"discord"`
	DataSource struct {
		Provider       string `yaml:"provider"`
		BaseURL        string `yaml:"base_url"`
		TimeoutSeconds int    `yaml:"timeout_seconds"`
	} `yaml:"data_source"`
	Instruments []InstrumentConfig `yaml:"instruments"`
	Timeframes  []TimeframeConfig  `yaml:"timeframes"`
	Schedule    struct {
		TickSeconds int    `yaml:"tick_seconds"`
		Concurrency int    `yaml:"concurrency"`
		Heartbeat   string `yaml:"heartbeat"`
	} `yaml:"schedule"`
	Strategy struct {
		FormationMode string `yaml:"formation_mode"`
	} `yaml:"strategy"`
	Subscribers struct {
		StateFile string `yaml:"state_file"`
	} `yaml:"subscribers"`
	Database struct {
		Driver      string `yaml:"driver"`
		SQLitePath  string `yaml:"sqlite_path"`
		PostgresDSN string `yaml:"postgres_dsn"`
	} `yaml:"database"`
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`
	Server struct {
		Addr       string `yaml:"addr"` // "off" disables the HTTP surface
		AdminToken string `yaml:"admin_token"`
	} `yaml:"server"`
	Proxy string `yaml:"proxy"`
}

// defaultInstruments is the forex and CFD table the bot has always tracked.
var defaultInstruments = []InstrumentConfig{
	{Symbol: "EURUSD", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "GBPUSD", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "AUDUSD", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "NZDUSD", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "USDJPY", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "USDCAD", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "USDCHF", Screener: "forex", Exchange: "FOREXCOM"},
	{Symbol: "XAUUSD", Screener: "cfd", Exchange: "OANDA"},
	{Symbol: "US30USD", Screener: "cfd", Exchange: "OANDA"},
}

// closeSchedules fire 15s before each bar close. TradingView reports the bar
// that is still forming, so its readings are only final at these instants.
var closeSchedules = map[model.Timeframe]string{
	model.TimeframeShort: "CRON_TZ=UTC 45 59 0,4,8,12,16,20 * * *",
	model.TimeframeLong:  "CRON_TZ=UTC 45 59 15 * * *",
}

// LoadEnvFile loads KEY=VALUE pairs from a .env file into the process
// environment. A missing file is not an error.
func LoadEnvFile(path string) error {
	if err := godotenv.Load(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("load env file: %w", err)
	}
	return nil
}

// Load reads config from a YAML file, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if len(data) > 0 {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	// Environment variable overrides
	if v := os.Getenv("NOTIFIER_DRIVER"); v != "" {
		cfg.Notifier.Driver = v
	}
	if v := os.Getenv("TELEGRAM_BOT_TOKEN"); v != "" {
		cfg.Telegram.BotToken = v
	}
	if v := os.Getenv("TELEGRAM_CHAT_ID"); v != "" {
		cfg.Telegram.ChatID = v
	}
	if v := os.Getenv("DISCORD_WEBHOOK_URL"); v != "" {
		cfg.Discord.WebhookURL = v
	}
	if v := os.Getenv("DATA_PROVIDER"); v != "" {
		cfg.DataSource.Provider = v
	}
	if v := os.Getenv("HTTPS_PROXY"); v != "" {
		cfg.Proxy = v
	}
	if v := os.Getenv("TICK_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Schedule.TickSeconds = n
		}
	}
	if v := os.Getenv("DATABASE_DRIVER"); v != "" {
		cfg.Database.Driver = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Database.SQLitePath = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		cfg.Database.PostgresDSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SERVER_ADDR"); v != "" {
		cfg.Server.Addr = v
	}
	if v := os.Getenv("SERVER_ADMIN_TOKEN"); v != "" {
		cfg.Server.AdminToken = v
	}
	if v := os.Getenv("SUBSCRIBERS_FILE"); v != "" {
		cfg.Subscribers.StateFile = v
	}

	// Defaults
	if cfg.Notifier.Driver == "" {
		cfg.Notifier.Driver = "telegram"
	}
	if cfg.DataSource.Provider == "" {
		cfg.DataSource.Provider = "tradingview"
	}
	if cfg.DataSource.TimeoutSeconds == 0 {
		cfg.DataSource.TimeoutSeconds = 15
	}
	if len(cfg.Instruments) == 0 {
		cfg.Instruments = append([]InstrumentConfig(nil), defaultInstruments...)
	}
	if len(cfg.Timeframes) == 0 {
		cfg.Timeframes = []TimeframeConfig{{Name: "4H"}, {Name: "1D"}}
	}
	if cfg.Schedule.TickSeconds == 0 {
		cfg.Schedule.TickSeconds = 60
	}
	if cfg.Schedule.Concurrency == 0 {
		cfg.Schedule.Concurrency = 1
	}
	if cfg.Schedule.Heartbeat == "" {
		cfg.Schedule.Heartbeat = "@every 60s"
	}
	if cfg.Strategy.FormationMode == "" {
		cfg.Strategy.FormationMode = string(strategy.ModeBasic)
	}
	if cfg.Subscribers.StateFile == "" {
		cfg.Subscribers.StateFile = "data/subscribers.json"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "sqlite"
	}
	if cfg.Database.SQLitePath == "" {
		cfg.Database.SQLitePath = "data/swing_sentinel.db"
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Server.Addr == "" {
		cfg.Server.Addr = ":10000"
	}

	return cfg, nil
}

// Validate checks that all required fields are set. Every failure is a
// *ConfigurationError.
func (c *Config) Validate() error {
	switch c.Notifier.Driver {
	case "telegram":
		if c.Telegram.BotToken == "" {
			return &ConfigurationError{Field: "telegram.bot_token", Reason: "is required"}
		}
		if c.Telegram.ChatID == "" {
			return &ConfigurationError{Field: "telegram.chat_id", Reason: "is required"}
		}
	case "discord":
		if c.Discord.WebhookURL == "" {
			return &ConfigurationError{Field: "discord.webhook_url", Reason: "is required"}
		}
	case "log":
	default:
		return &ConfigurationError{Field: "notifier.driver", Reason: fmt.Sprintf("unknown driver %q", c.Notifier.Driver)}
	}

	switch c.DataSource.Provider {
	case "tradingview", "yahoo":
	default:
		return &ConfigurationError{Field: "data_source.provider", Reason: fmt.Sprintf("unknown provider %q", c.DataSource.Provider)}
	}
	if c.DataSource.TimeoutSeconds < 0 {
		return &ConfigurationError{Field: "data_source.timeout_seconds", Reason: "must not be negative"}
	}

	seen := make(map[string]bool, len(c.Instruments))
	for i, inst := range c.Instruments {
		field := fmt.Sprintf("instruments[%d]", i)
		if strings.TrimSpace(inst.Symbol) == "" {
			return &ConfigurationError{Field: field + ".symbol", Reason: "is required"}
		}
		if inst.Screener == "" {
			return &ConfigurationError{Field: field + ".screener", Reason: fmt.Sprintf("is required for %s", inst.Symbol)}
		}
		if inst.Exchange == "" {
			return &ConfigurationError{Field: field + ".exchange", Reason: fmt.Sprintf("is required for %s", inst.Symbol)}
		}
		if seen[inst.Symbol] {
			return &ConfigurationError{Field: field + ".symbol", Reason: fmt.Sprintf("duplicate symbol %s", inst.Symbol)}
		}
		seen[inst.Symbol] = true
	}

	tfSeen := make(map[model.Timeframe]bool)
	for i, tc := range c.Timeframes {
		tf, err := model.ParseTimeframe(tc.Name)
		if err != nil {
			return &ConfigurationError{Field: fmt.Sprintf("timeframes[%d].name", i), Reason: err.Error()}
		}
		if tfSeen[tf] {
			return &ConfigurationError{Field: fmt.Sprintf("timeframes[%d].name", i), Reason: fmt.Sprintf("duplicate timeframe %s", tf)}
		}
		tfSeen[tf] = true
		if c.DataSource.Provider == "tradingview" && strings.HasPrefix(strings.TrimSpace(tc.Schedule), "@every") {
			return &ConfigurationError{
				Field:  fmt.Sprintf("timeframes[%d].schedule", i),
				Reason: "tradingview reports the forming bar; schedule must fire at bar close, not @every",
			}
		}
	}

	if c.Schedule.TickSeconds <= 0 {
		return &ConfigurationError{Field: "schedule.tick_seconds", Reason: "must be positive"}
	}
	if c.Schedule.Concurrency <= 0 {
		return &ConfigurationError{Field: "schedule.concurrency", Reason: "must be positive"}
	}
	if _, err := strategy.ParseFormationMode(c.Strategy.FormationMode); err != nil {
		return &ConfigurationError{Field: "strategy.formation_mode", Reason: err.Error()}
	}

	switch c.Database.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Database.PostgresDSN == "" {
			return &ConfigurationError{Field: "database.postgres_dsn", Reason: "is required for postgres"}
		}
	default:
		return &ConfigurationError{Field: "database.driver", Reason: fmt.Sprintf("unknown driver %q", c.Database.Driver)}
	}
	return nil
}

// InstrumentList returns the configured instruments as model values.
func (c *Config) InstrumentList() []model.Instrument {
	out := make([]model.Instrument, 0, len(c.Instruments))
	for _, inst := range c.Instruments {
		out = append(out, model.Instrument{Symbol: inst.Symbol, Screener: inst.Screener, Exchange: inst.Exchange})
	}
	return out
}

// ServerEnabled reports whether the HTTP status surface should run.
func (c *Config) ServerEnabled() bool {
	return c.Server.Addr != "" && c.Server.Addr != "off"
}

// Schedules returns the cron spec for each enabled timeframe. Timeframes
// without an explicit schedule fire at bar close for tradingview and every
// schedule.tick_seconds otherwise.
func (c *Config) Schedules() map[model.Timeframe]string {
	out := make(map[model.Timeframe]string, len(c.Timeframes))
	for _, tc := range c.Timeframes {
		tf, err := model.ParseTimeframe(tc.Name)
		if err != nil {
			continue
		}
		spec := tc.Schedule
		switch {
		case spec != "":
		case c.DataSource.Provider == "tradingview":
			spec = closeSchedules[tf]
		default:
			spec = fmt.Sprintf("@every %ds", c.Schedule.TickSeconds)
		}
		out[tf] = spec
	}
	return out
}

// Keys returns every (symbol, timeframe) pair to track.
func (c *Config) Keys() []model.InstrumentKey {
	var keys []model.InstrumentKey
	for _, tc := range c.Timeframes {
		tf, err := model.ParseTimeframe(tc.Name)
		if err != nil {
			continue
		}
		for _, inst := range c.Instruments {
			keys = append(keys, model.InstrumentKey{Symbol: inst.Symbol, Timeframe: tf})
		}
	}
	return keys
}
