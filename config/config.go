// Package config loads the service configuration from a YAML or JSON file
// and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"gopkg.in/yaml.v3"

	"github.com/rustyeddy/goldpair/admission"
	"github.com/rustyeddy/goldpair/engine"
	"github.com/rustyeddy/goldpair/journal"
	"github.com/rustyeddy/goldpair/market"
	"github.com/rustyeddy/goldpair/pairs"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var ErrInvalid = errors.New("invalid config")

// Config is the complete service configuration.
type Config struct {
	Symbol  string        `json:"symbol" yaml:"symbol"`
	Broker  BrokerConfig  `json:"broker" yaml:"broker"`
	Webhook WebhookConfig `json:"webhook" yaml:"webhook"`
	Trading TradingConfig `json:"trading" yaml:"trading"`
	Notify  NotifyConfig  `json:"notify" yaml:"notify"`
	Journal JournalConfig `json:"journal" yaml:"journal"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Sim     SimConfig     `json:"sim" yaml:"sim"`
}

const (
	BrokerOANDA = "oanda"
	BrokerPaper = "paper"
	BrokerSim   = "sim"
)

// BrokerConfig selects and authenticates the broker adapter.
type BrokerConfig struct {
	Kind        string  `json:"kind" yaml:"kind"` // oanda, paper or sim
	Env         string  `json:"env" yaml:"env"`   // practice or live
	Token       string  `json:"token,omitempty" yaml:"token,omitempty"`
	AccountID   string  `json:"account_id,omitempty" yaml:"account_id,omitempty"`
	UnitsPerLot float64 `json:"units_per_lot" yaml:"units_per_lot"`
	Stream      bool    `json:"stream" yaml:"stream"`
	RateLimit   float64 `json:"rate_limit" yaml:"rate_limit"` // requests per second
}

type WebhookConfig struct {
	Host string `json:"host" yaml:"host"`
	Port int    `json:"port" yaml:"port"`
}

func (w WebhookConfig) Addr() string {
	return w.Host + ":" + strconv.Itoa(w.Port)
}

// TradingConfig holds the pair and admission parameters. Durations are Go
// duration strings such as "15m" or "300ms".
type TradingConfig struct {
	TotalLot      float64 `json:"total_lot" yaml:"total_lot"`
	MinLot        float64 `json:"min_lot" yaml:"min_lot"`
	LotDecimals   int32   `json:"lot_decimals" yaml:"lot_decimals"`
	SLDistance    float64 `json:"sl_distance" yaml:"sl_distance"`
	HalfDistance  float64 `json:"half_distance" yaml:"half_distance"`
	TrailStep     float64 `json:"trail_step" yaml:"trail_step"`
	ATRMultiplier float64 `json:"atr_multiplier" yaml:"atr_multiplier"`
	ATRPeriod     int     `json:"atr_period" yaml:"atr_period"`
	TightSL       float64 `json:"tight_sl" yaml:"tight_sl"`

	MaxPerCategory int    `json:"max_per_category" yaml:"max_per_category"`
	SideCooldown   string `json:"side_cooldown" yaml:"side_cooldown"`
	RapidFireLock  string `json:"rapid_fire_lock" yaml:"rapid_fire_lock"`
	Grace          string `json:"grace" yaml:"grace"`
	LegDelay       string `json:"leg_delay" yaml:"leg_delay"`
	CallTimeout    string `json:"call_timeout" yaml:"call_timeout"`

	FreezeTicks       int    `json:"freeze_ticks" yaml:"freeze_ticks"`
	PollInterval      string `json:"poll_interval" yaml:"poll_interval"`
	ReconcileInterval string `json:"reconcile_interval" yaml:"reconcile_interval"`
	CandleCapacity    int    `json:"candle_capacity" yaml:"candle_capacity"`
	SignalIDCapacity  int    `json:"signal_id_capacity" yaml:"signal_id_capacity"`
	WarmupCandles     int    `json:"warmup_candles" yaml:"warmup_candles"`
	BrokerSideSL      bool   `json:"broker_side_sl" yaml:"broker_side_sl"`
}

type NotifyConfig struct {
	Token    string `json:"token,omitempty" yaml:"token,omitempty"`
	Chat     string `json:"chat,omitempty" yaml:"chat,omitempty"`
	RedisURL string `json:"redis_url,omitempty" yaml:"redis_url,omitempty"`
	Channel  string `json:"channel,omitempty" yaml:"channel,omitempty"`
}

// JournalConfig contains journaling parameters
type JournalConfig struct {
	Type string `json:"type" yaml:"type"` // none, csv or sqlite
	Path string `json:"path,omitempty" yaml:"path,omitempty"`
}

type LogConfig struct {
	Level  string `json:"level" yaml:"level"`
	Format string `json:"format" yaml:"format"` // json or console
}

// SimConfig seeds the offline broker.
type SimConfig struct {
	InitialBid float64 `json:"initial_bid" yaml:"initial_bid"`
	InitialAsk float64 `json:"initial_ask" yaml:"initial_ask"`
	Balance    float64 `json:"balance" yaml:"balance"`
}

// Default returns a configuration with sensible defaults
func Default() *Config {
	return &Config{
		Symbol: market.DefaultSymbol,
		Broker: BrokerConfig{
			Kind:        BrokerSim,
			Env:         "practice",
			UnitsPerLot: 100,
			Stream:      true,
			RateLimit:   20,
		},
		Webhook: WebhookConfig{Port: 3000},
		Trading: TradingConfig{
			TotalLot:          0.02,
			MinLot:            0.01,
			LotDecimals:       2,
			SLDistance:        8,
			HalfDistance:      5,
			TrailStep:         5,
			ATRMultiplier:     1.5,
			ATRPeriod:         14,
			TightSL:           5,
			MaxPerCategory:    1,
			SideCooldown:      "15m",
			RapidFireLock:     "2s",
			Grace:             "5s",
			LegDelay:          "300ms",
			CallTimeout:       "10s",
			FreezeTicks:       market.DefaultFreezeTicks,
			PollInterval:      "2s",
			ReconcileInterval: "15s",
			CandleCapacity:    400,
			SignalIDCapacity:  admission.DefaultSeenCapacity,
		},
		Journal: JournalConfig{Type: journal.TypeNone},
		Log:     LogConfig{Level: "info", Format: "json"},
		Sim: SimConfig{
			InitialBid: 2000.0,
			InitialAsk: 2000.3,
			Balance:    10000,
		},
	}
}

// LoadFromFile reads path over the defaults, YAML first with a JSON
// fallback, then applies environment overrides and validates.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := Default()

	// Try YAML first, fall back to JSON
	if err := yaml.Unmarshal(data, cfg); err != nil {
		cfg = Default()
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (tried YAML and JSON): %w", err)
		}
	}

	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Load is LoadFromFile when path is set, otherwise the defaults with
// environment overrides.
func Load(path string) (*Config, error) {
	if path != "" {
		return LoadFromFile(path)
	}
	cfg := Default()
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SaveToFile writes YAML for .yaml/.yml paths and indented JSON otherwise.
func (c *Config) SaveToFile(path string) error {
	var data []byte
	var err error

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		data, err = yaml.Marshal(c)
	} else {
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// ApplyEnv overrides fields from the environment.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("BROKER_TOKEN", &c.Broker.Token)
	str("BROKER_ACCOUNT_ID", &c.Broker.AccountID)
	str("BROKER_ENV", &c.Broker.Env)
	str("BROKER_KIND", &c.Broker.Kind)
	str("SYMBOL", &c.Symbol)
	str("NOTIFY_TOKEN", &c.Notify.Token)
	str("NOTIFY_CHAT", &c.Notify.Chat)
	str("REDIS_URL", &c.Notify.RedisURL)
	str("JOURNAL_TYPE", &c.Journal.Type)
	str("JOURNAL_PATH", &c.Journal.Path)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if v, ok := lookup("WEBHOOK_PORT"); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: WEBHOOK_PORT %q: %v", ErrInvalid, v, err)
		}
		c.Webhook.Port = port
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	var errs []error
	bad := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	if c.Symbol == "" {
		bad("symbol is required")
	}
	switch c.Broker.Kind {
	case BrokerOANDA, BrokerPaper:
		if c.Broker.Token == "" || c.Broker.AccountID == "" {
			bad("broker.token and broker.account_id are required for %s", c.Broker.Kind)
		}
		if c.Broker.Env != "practice" && c.Broker.Env != "live" {
			bad("broker.env must be practice or live")
		}
	case BrokerSim:
		if c.Sim.InitialBid <= 0 || c.Sim.InitialAsk <= 0 {
			bad("sim initial prices must be positive")
		}
		if c.Sim.InitialAsk < c.Sim.InitialBid {
			bad("sim.initial_ask must not be below sim.initial_bid")
		}
	default:
		bad("broker.kind must be oanda, paper or sim")
	}
	if c.Broker.UnitsPerLot <= 0 {
		bad("broker.units_per_lot must be positive")
	}
	if c.Webhook.Port <= 0 || c.Webhook.Port > 65535 {
		bad("webhook.port %d out of range", c.Webhook.Port)
	}

	t := c.Trading
	if t.TotalLot <= 0 || t.MinLot <= 0 {
		bad("trading.total_lot and trading.min_lot must be positive")
	}
	if t.LotDecimals < 0 {
		bad("trading.lot_decimals must not be negative")
	}
	for name, v := range map[string]float64{
		"sl_distance":    t.SLDistance,
		"half_distance":  t.HalfDistance,
		"trail_step":     t.TrailStep,
		"atr_multiplier": t.ATRMultiplier,
		"tight_sl":       t.TightSL,
	} {
		if v <= 0 {
			bad("trading.%s must be positive", name)
		}
	}
	if t.HalfDistance >= t.SLDistance {
		bad("trading.half_distance must be below trading.sl_distance")
	}
	if t.ATRPeriod <= 0 || t.MaxPerCategory <= 0 || t.FreezeTicks <= 0 ||
		t.CandleCapacity <= t.ATRPeriod || t.SignalIDCapacity <= 0 {
		bad("trading counts must be positive and candle_capacity must exceed atr_period")
	}
	if t.WarmupCandles < 0 {
		bad("trading.warmup_candles must not be negative")
	}
	if _, err := c.durations(); err != nil {
		errs = append(errs, err)
	}

	switch c.Journal.Type {
	case "", journal.TypeNone:
	case journal.TypeCSV, journal.TypeSQLite:
		if c.Journal.Path == "" {
			bad("journal.path is required for %s", c.Journal.Type)
		}
	default:
		bad("journal.type must be none, csv or sqlite")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

type durations struct {
	cooldown, rapidFire, grace, legDelay, callTimeout, poll, reconcile time.Duration
}

func (c *Config) durations() (durations, error) {
	var (
		d    durations
		errs []error
	)
	parse := func(name, s string, dst *time.Duration, allowZero bool) {
		v, err := time.ParseDuration(s)
		switch {
		case err != nil:
			errs = append(errs, fmt.Errorf("trading.%s: %w", name, err))
		case v < 0 || (v == 0 && !allowZero):
			errs = append(errs, fmt.Errorf("trading.%s must be positive", name))
		}
		*dst = v
	}
	t := c.Trading
	parse("side_cooldown", t.SideCooldown, &d.cooldown, true)
	parse("rapid_fire_lock", t.RapidFireLock, &d.rapidFire, true)
	parse("grace", t.Grace, &d.grace, true)
	parse("leg_delay", t.LegDelay, &d.legDelay, true)
	parse("call_timeout", t.CallTimeout, &d.callTimeout, false)
	parse("poll_interval", t.PollInterval, &d.poll, false)
	parse("reconcile_interval", t.ReconcileInterval, &d.reconcile, false)
	return d, errors.Join(errs...)
}

// Engine converts a validated config into the engine's settings.
func (c *Config) Engine() (engine.Config, error) {
	d, err := c.durations()
	if err != nil {
		return engine.Config{}, fmt.Errorf("%w: %w", ErrInvalid, err)
	}
	t := c.Trading
	return engine.Config{
		Pairs: pairs.Config{
			Symbol:        c.Symbol,
			TotalLot:      t.TotalLot,
			MinLot:        t.MinLot,
			LotDecimals:   t.LotDecimals,
			SLDistance:    t.SLDistance,
			HalfDistance:  t.HalfDistance,
			TrailStep:     t.TrailStep,
			ATRMultiplier: t.ATRMultiplier,
			TightSL:       t.TightSL,
			Grace:         d.grace,
			LegDelay:      d.legDelay,
			CallTimeout:   d.callTimeout,
			BrokerSideSL:  t.BrokerSideSL,
		},
		Admission: admission.Policy{
			MaxPerCategory:   t.MaxPerCategory,
			SideCooldown:     d.cooldown,
			RapidFireLock:    d.rapidFire,
			SignalIDCapacity: t.SignalIDCapacity,
		},
		ATRPeriod:         t.ATRPeriod,
		FreezeTicks:       t.FreezeTicks,
		CandleCapacity:    t.CandleCapacity,
		PollInterval:      d.poll,
		ReconcileInterval: d.reconcile,
		WarmupCandles:     t.WarmupCandles,
	}, nil
}

// Redacted returns a copy with secrets masked, for printing.
func (c *Config) Redacted() *Config {
	out := *c
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "********"
	}
	out.Broker.Token = mask(out.Broker.Token)
	out.Notify.Token = mask(out.Notify.Token)
	return &out
}
