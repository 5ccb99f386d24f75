// Package config builds the single immutable configuration value passed into
// the engine. Values come from built-in defaults, an optional YAML file, a
// .env file and finally environment variables, in that order.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"signalbot/internal/model"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Mode selects the rule thresholds of the signal scorer.
type Mode string

const (
	ModeStandard Mode = "standard"
	ModeScalping Mode = "scalping"
)

// Tier is a named retention and sampling policy for rolling history.
type Tier struct {
	Name           string        `yaml:"name" json:"name"`
	MaxPoints      int           `yaml:"max_points" json:"max_points"`
	MinPoints      int           `yaml:"min_points" json:"min_points"`
	SampleInterval time.Duration `yaml:"sample_interval" json:"sample_interval"`
	Purpose        string        `yaml:"purpose" json:"purpose"`
}

// Risk holds position exit limits. Percents are fractions (0.02 = 2%).
type Risk struct {
	StopLossPercent   float64       `yaml:"stop_loss_percent"`
	TakeProfitPercent float64       `yaml:"take_profit_percent"`
	MaxHold           time.Duration `yaml:"max_hold"`
}

// Thresholds is the rule set of one scorer mode.
type Thresholds struct {
	Cooldown       time.Duration `yaml:"cooldown"`
	MinStrength    int           `yaml:"min_strength"`
	RSI3Oversold   float64       `yaml:"rsi3_oversold"`
	RSI3Overbought float64       `yaml:"rsi3_overbought"`
	ROC3Threshold  float64       `yaml:"roc3_threshold"`
	ROC5Threshold  float64       `yaml:"roc5_threshold"`
	CVLow          float64       `yaml:"cv_low"`
	CVHigh         float64       `yaml:"cv_high"`
}

// Signal holds the mandatory filters and the per-mode thresholds.
type Signal struct {
	VolumeThreshold     float64    `yaml:"volume_threshold"`
	VolatilityThreshold float64    `yaml:"volatility_threshold"`
	Standard            Thresholds `yaml:"standard"`
	Scalping            Thresholds `yaml:"scalping"`
}

// Archive controls how over-budget history is retained.
type Archive struct {
	Enabled   bool          `yaml:"enabled"`
	After     time.Duration `yaml:"after"`
	MaxPoints int           `yaml:"max_points"`
}

// Benchmark configures the dominant-asset trend reference.
type Benchmark struct {
	Enabled             bool    `yaml:"enabled"`
	Symbol              string  `yaml:"symbol"`
	Asset               string  `yaml:"asset"`
	VolatilityThreshold float64 `yaml:"volatility_threshold"`
	DivergencePercent   float64 `yaml:"divergence_percent"`
}

// Fetch configures market data I/O.
type Fetch struct {
	IndodaxURL      string        `yaml:"indodax_url"`
	BinanceURL      string        `yaml:"binance_url"`
	ProxyURL        string        `yaml:"proxy_url"`
	Timeout         time.Duration `yaml:"timeout"`
	Retries         int           `yaml:"retries"`
	Backoff         time.Duration `yaml:"backoff"`
	OrderBookDepth  int           `yaml:"orderbook_depth"`
	TradesWindow    int           `yaml:"trades_window"`
	BreakerFailures int           `yaml:"breaker_failures"`
	BreakerReset    time.Duration `yaml:"breaker_reset"`
}

// Storage selects the history backend and file locations.
type Storage struct {
	Backend     string `yaml:"backend"` // "json" or "sqlite"
	Dir         string `yaml:"dir"`
	SQLitePath  string `yaml:"sqlite_path"`
	JournalPath string `yaml:"journal_path"`
}

// Redis configures the trade-event publisher.
type Redis struct {
	Enabled      bool   `yaml:"enabled"`
	Addr         string `yaml:"addr"`
	Password     string `yaml:"-"`
	DB           int    `yaml:"db"`
	StreamMaxLen int64  `yaml:"stream_max_len"`
}

// Notify configures notification delivery.
type Notify struct {
	TelegramToken  string `yaml:"-"`
	TelegramChatID string `yaml:"-"`
	WebhookURL     string `yaml:"webhook_url"`
	SendHold       bool   `yaml:"send_hold"`
	BufferSize     int    `yaml:"buffer_size"`
}

// HTTP configures the metrics, health and API listener.
type HTTP struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Log configures logging and tracing.
type Log struct {
	Level   string `yaml:"level"`
	Tracing bool   `yaml:"tracing"`
}

// Config is the complete application configuration.
type Config struct {
	PollInterval  time.Duration      `yaml:"poll_interval"`
	StatsInterval time.Duration      `yaml:"stats_interval"`
	Mode          Mode               `yaml:"mode"`
	Instruments   []model.Instrument `yaml:"instruments"`
	Risk          Risk               `yaml:"risk"`
	Signal        Signal             `yaml:"signal"`
	Tiers         map[string]Tier    `yaml:"tiers"`
	ActiveTier    string             `yaml:"active_tier"`
	Archive       Archive            `yaml:"archive"`
	Benchmark     Benchmark          `yaml:"benchmark"`
	Fetch         Fetch              `yaml:"fetch"`
	Storage       Storage            `yaml:"storage"`
	Redis         Redis              `yaml:"redis"`
	Notify        Notify             `yaml:"notify"`
	HTTP          HTTP               `yaml:"http"`
	Log           Log                `yaml:"log"`
}

// Default returns the configuration with every field at its default.
func Default() Config {
	return Config{
		PollInterval:  5 * time.Second,
		StatsInterval: 10 * time.Minute,
		Mode:          ModeScalping,
		Instruments: []model.Instrument{
			{Name: "BTC", Pair: "btc_idr", DisplayName: "Bitcoin", Emoji: "₿", Asset: "btc", Enabled: true, ReferenceSymbol: "BTCUSDT"},
			{Name: "ETH", Pair: "eth_idr", DisplayName: "Ethereum", Emoji: "Ξ", Asset: "eth", Enabled: true, ReferenceSymbol: "ETHUSDT"},
			{Name: "SOL", Pair: "sol_idr", DisplayName: "Solana", Emoji: "◎", Asset: "sol", Enabled: true, ReferenceSymbol: "SOLUSDT"},
			{Name: "DOGE", Pair: "doge_idr", DisplayName: "Dogecoin", Emoji: "🐕", Asset: "doge"},
			{Name: "XRP", Pair: "xrp_idr", DisplayName: "Ripple", Emoji: "💧", Asset: "xrp"},
			{Name: "ADA", Pair: "ada_idr", DisplayName: "Cardano", Emoji: "🔷", Asset: "ada"},
			{Name: "BNB", Pair: "bnb_idr", DisplayName: "BNB", Emoji: "🟡", Asset: "bnb"},
		},
		Risk: Risk{
			StopLossPercent:   0.053,
			TakeProfitPercent: 0.02,
			MaxHold:           120 * time.Second,
		},
		Signal: Signal{
			VolumeThreshold:     0.7,
			VolatilityThreshold: 0.025,
			Standard: Thresholds{
				Cooldown:       120 * time.Second,
				MinStrength:    3,
				RSI3Oversold:   25,
				RSI3Overbought: 75,
				ROC3Threshold:  0.8,
				ROC5Threshold:  0.5,
				CVLow:          1.0,
				CVHigh:         3.0,
			},
			Scalping: Thresholds{
				Cooldown:       30 * time.Second,
				MinStrength:    2,
				RSI3Oversold:   25,
				RSI3Overbought: 75,
				ROC3Threshold:  0.8,
				ROC5Threshold:  0.5,
				CVLow:          1.0,
				CVHigh:         3.0,
			},
		},
		Tiers: map[string]Tier{
			"scalping": {Name: "scalping", MaxPoints: 2000, MinPoints: 100, SampleInterval: 5 * time.Second, Purpose: "short-term scalping"},
			"swing":    {Name: "swing", MaxPoints: 10000, MinPoints: 500, SampleInterval: 30 * time.Second, Purpose: "swing trading"},
			"position": {Name: "position", MaxPoints: 50000, MinPoints: 2000, SampleInterval: 300 * time.Second, Purpose: "long-term positions"},
		},
		ActiveTier: "scalping",
		Archive: Archive{
			Enabled:   true,
			After:     168 * time.Hour,
			MaxPoints: 100000,
		},
		Benchmark: Benchmark{
			Enabled:             true,
			Symbol:              "BTCUSDT",
			Asset:               "btc",
			VolatilityThreshold: 0.02,
			DivergencePercent:   2.0,
		},
		Fetch: Fetch{
			IndodaxURL:      "https://indodax.com/api",
			BinanceURL:      "https://api.binance.com",
			Timeout:         10 * time.Second,
			Retries:         3,
			Backoff:         500 * time.Millisecond,
			OrderBookDepth:  3,
			TradesWindow:    10,
			BreakerFailures: 5,
			BreakerReset:    30 * time.Second,
		},
		Storage: Storage{
			Backend:     "json",
			Dir:         "data",
			SQLitePath:  "data/history.db",
			JournalPath: "data/trades.db",
		},
		Redis: Redis{
			Addr:         "localhost:6379",
			StreamMaxLen: 5000,
		},
		Notify: Notify{
			BufferSize: 256,
		},
		HTTP: HTTP{
			Enabled: true,
			Addr:    ":9090",
		},
		Log: Log{
			Level: "info",
		},
	}
}

// Load builds the configuration. path may be empty, in which case only
// defaults, .env and environment variables apply.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("config: .env not loaded", "err", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Mode = Mode(getEnv("MODE", string(c.Mode)))
	c.PollInterval = getEnvDuration("POLL_INTERVAL", c.PollInterval)
	c.ActiveTier = getEnv("ACTIVE_TIER", c.ActiveTier)

	c.Notify.TelegramToken = getEnv("TELEGRAM_TOKEN", c.Notify.TelegramToken)
	c.Notify.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", c.Notify.TelegramChatID)
	c.Notify.WebhookURL = getEnv("WEBHOOK_URL", c.Notify.WebhookURL)
	c.Notify.SendHold = getEnvBool("SEND_HOLD_SIGNALS", c.Notify.SendHold)

	c.Redis.Enabled = getEnvBool("REDIS_ENABLED", c.Redis.Enabled)
	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.Dir = getEnv("DATA_DIR", c.Storage.Dir)
	c.Storage.SQLitePath = getEnv("SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.JournalPath = getEnv("JOURNAL_PATH", c.Storage.JournalPath)

	c.Fetch.ProxyURL = getEnv("BINANCE_PROXY_URL", c.Fetch.ProxyURL)
	c.HTTP.Addr = getEnv("HTTP_ADDR", c.HTTP.Addr)
	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Tracing = getEnvBool("TRACING_ENABLED", c.Log.Tracing)

	if pairs := getEnv("ENABLED_PAIRS", ""); pairs != "" {
		c.Instruments = EnablePairs(c.Instruments, pairs)
	}
}

// EnablePairs returns a copy of insts where exactly the comma-separated pairs
// are enabled. Unknown pairs are logged and skipped.
func EnablePairs(insts []model.Instrument, pairs string) []model.Instrument {
	want := make(map[string]bool)
	for _, p := range strings.Split(pairs, ",") {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			want[p] = true
		}
	}
	out := make([]model.Instrument, len(insts))
	for i, inst := range insts {
		inst.Enabled = want[inst.Pair]
		delete(want, inst.Pair)
		out[i] = inst
	}
	for p := range want {
		slog.Warn("config: skipping unknown pair", "pair", p)
	}
	return out
}

// Validate checks the configuration for values the engine cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Mode != ModeStandard && c.Mode != ModeScalping {
		errs = append(errs, fmt.Errorf("mode %q must be %q or %q", c.Mode, ModeStandard, ModeScalping))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll_interval must be positive"))
	}
	if len(c.EnabledInstruments()) == 0 {
		errs = append(errs, errors.New("no instrument enabled"))
	}
	if c.Risk.StopLossPercent <= 0 || c.Risk.StopLossPercent >= 1 {
		errs = append(errs, fmt.Errorf("risk.stop_loss_percent %v out of (0,1)", c.Risk.StopLossPercent))
	}
	if c.Risk.TakeProfitPercent <= 0 || c.Risk.TakeProfitPercent >= 1 {
		errs = append(errs, fmt.Errorf("risk.take_profit_percent %v out of (0,1)", c.Risk.TakeProfitPercent))
	}
	if c.Risk.MaxHold <= 0 {
		errs = append(errs, errors.New("risk.max_hold must be positive"))
	}
	if c.Thresholds().MinStrength <= 0 {
		errs = append(errs, errors.New("min_strength must be positive"))
	}
	tier, ok := c.Tiers[c.ActiveTier]
	if !ok {
		errs = append(errs, fmt.Errorf("active_tier %q not defined", c.ActiveTier))
	}
	for name, t := range c.Tiers {
		if t.MaxPoints <= 0 || t.MinPoints <= 0 || t.MinPoints > t.MaxPoints {
			errs = append(errs, fmt.Errorf("tier %q: need 0 < min_points <= max_points", name))
		}
	}
	if ok && tier.Name == "" {
		tier.Name = c.ActiveTier
		c.Tiers[c.ActiveTier] = tier
	}
	if c.Fetch.Retries < 1 {
		errs = append(errs, errors.New("fetch.retries must be at least 1"))
	}
	if c.Fetch.Timeout <= 0 {
		errs = append(errs, errors.New("fetch.timeout must be positive"))
	}
	if c.Storage.Backend != "json" && c.Storage.Backend != "sqlite" {
		errs = append(errs, fmt.Errorf("storage.backend %q must be json or sqlite", c.Storage.Backend))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: invalid: %w", err)
	}
	return nil
}

// Thresholds returns the rule set of the active mode.
func (c *Config) Thresholds() Thresholds {
	if c.Mode == ModeScalping {
		return c.Signal.Scalping
	}
	return c.Signal.Standard
}

// Tier returns the active data tier.
func (c *Config) Tier() Tier {
	return c.Tiers[c.ActiveTier]
}

// EnabledInstruments returns the instruments the engine should run.
func (c *Config) EnabledInstruments() []model.Instrument {
	var out []model.Instrument
	for _, inst := range c.Instruments {
		if inst.Enabled {
			out = append(out, inst)
		}
	}
	return out
}

func getEnv(key, fallback string) string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	return v
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: invalid bool", "key", key, "value", v)
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		slog.Warn("config: invalid duration", "key", key, "value", v)
		return fallback
	}
	return d
}
