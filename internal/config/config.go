package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"pegbook/internal/exchange"
	"pegbook/internal/types"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds all application configuration
type Config struct {
	Exchange ExchangeConfig `yaml:"exchange"`
	Peg      PegConfig      `yaml:"peg"`
	Display  DisplayConfig  `yaml:"display"`
	Server   ServerConfig   `yaml:"server"`
	Logging  LoggingConfig  `yaml:"logging"`
	App      AppConfig      `yaml:"app"`
}

// ExchangeConfig holds exchange-specific configuration
type ExchangeConfig struct {
	Name          exchange.ExchangeName `yaml:"name"`
	Symbol        string                `yaml:"symbol"`
	SnapshotLimit int                   `yaml:"snapshot_limit"`
	RESTBaseURL   string                `yaml:"rest_base_url"`
	WSBaseURL     string                `yaml:"ws_base_url"`
}

// PegConfig holds the buffers and limits used to derive pegged quotes.
// Values are decimal strings.
type PegConfig struct {
	BidBuffer string `yaml:"bid_buffer"`
	BidLimit  string `yaml:"bid_limit"`
	AskBuffer string `yaml:"ask_buffer"`
	AskLimit  string `yaml:"ask_limit"`
}

// DisplayConfig holds display-related configuration
type DisplayConfig struct {
	Top            int           `yaml:"top"`
	UpdateInterval time.Duration `yaml:"update_interval"`
}

// ServerConfig holds the feed server configuration
type ServerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    string `yaml:"port"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// AppConfig holds general application configuration
type AppConfig struct {
	DefaultTickLevel  types.TickLevel `yaml:"default_tick_level"`
	LogInterval       time.Duration   `yaml:"log_interval"`
	UpdateChannelSize int             `yaml:"update_channel_size"`
}

// Default returns the default configuration for ETHBTC on Binance Spot
func Default() Config {
	return Config{
		Exchange: ExchangeConfig{
			Name:          exchange.Binance,
			Symbol:        "ETHBTC",
			SnapshotLimit: 20,
		},
		Peg: PegConfig{
			BidBuffer: "0.00001",
			BidLimit:  "1",
			AskBuffer: "0.00001",
			AskLimit:  "0",
		},
		Display: DisplayConfig{
			Top:            10,
			UpdateInterval: 200 * time.Millisecond,
		},
		Server: ServerConfig{
			Enabled: true,
			Port:    "8086",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: true,
		},
		App: AppConfig{
			DefaultTickLevel:  types.Tick0001,
			LogInterval:       10 * time.Second,
			UpdateChannelSize: 1000,
		},
	}
}

// Load builds the configuration from defaults, an optional YAML file named
// by PEGBOOK_CONFIG and PEGBOOK_* environment variables, in that order.
// A .env file in the working directory is loaded first if present.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	if path := os.Getenv("PEGBOOK_CONFIG"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return cfg, err
		}
	}
	if err := cfg.ApplyEnv(os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// LoadFile overlays the YAML file at path onto c
func (c *Config) LoadFile(path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(b, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overlays PEGBOOK_* variables read through getenv onto c
func (c *Config) ApplyEnv(getenv func(string) string) error {
	strs := map[string]*string{
		"PEGBOOK_SYMBOL":     &c.Exchange.Symbol,
		"PEGBOOK_BID_BUFFER": &c.Peg.BidBuffer,
		"PEGBOOK_BID_LIMIT":  &c.Peg.BidLimit,
		"PEGBOOK_ASK_BUFFER": &c.Peg.AskBuffer,
		"PEGBOOK_ASK_LIMIT":  &c.Peg.AskLimit,
		"PEGBOOK_PORT":       &c.Server.Port,
		"PEGBOOK_LOG_LEVEL":  &c.Logging.Level,
	}
	for key, dst := range strs {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}

	if v := getenv("PEGBOOK_SNAPSHOT_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid PEGBOOK_SNAPSHOT_LIMIT %q: %w", v, err)
		}
		c.Exchange.SnapshotLimit = n
	}
	if v := getenv("PEGBOOK_LOG_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid PEGBOOK_LOG_INTERVAL %q: %w", v, err)
		}
		c.App.LogInterval = d
	}
	if v := getenv("PEGBOOK_LOG_PRETTY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid PEGBOOK_LOG_PRETTY %q: %w", v, err)
		}
		c.Logging.Pretty = b
	}
	return nil
}

// Validate checks the configuration for values the application cannot run with
func (c *Config) Validate() error {
	if c.Exchange.Name != exchange.Binance {
		return fmt.Errorf("unknown exchange: %s", c.Exchange.Name)
	}
	if c.Exchange.Symbol == "" {
		return fmt.Errorf("symbol is required")
	}
	if !c.App.DefaultTickLevel.IsValid() {
		return fmt.Errorf("unsupported tick level: %g", float64(c.App.DefaultTickLevel))
	}
	if c.App.LogInterval <= 0 {
		return fmt.Errorf("log interval must be positive, got %s", c.App.LogInterval)
	}
	if c.Display.UpdateInterval <= 0 {
		return fmt.Errorf("display update interval must be positive, got %s", c.Display.UpdateInterval)
	}
	return nil
}

// SetTickLevel updates the default tick level
func (c *Config) SetTickLevel(tick types.TickLevel) {
	c.App.DefaultTickLevel = tick
}

// SetDisplayTop updates the display top count
func (c *Config) SetDisplayTop(top int) {
	c.Display.Top = top
}

// SetUpdateInterval updates the display update interval
func (c *Config) SetUpdateInterval(interval time.Duration) {
	c.Display.UpdateInterval = interval
}
