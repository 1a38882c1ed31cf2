// Package config provides configuration management for the trading bot.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"

	"github.com/jbaeza/cyclebot/internal/models"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig     `yaml:"environment"`
	Broker      BrokerConfig          `yaml:"broker"`
	Symbols     []models.SymbolConfig `yaml:"symbols"`
	Strategies  []StrategyConfig      `yaml:"strategies"`
	Risk        models.RiskLimits     `yaml:"risk"`
	Loop        LoopConfig            `yaml:"loop"`
	Data        DataConfig            `yaml:"data"`
	Storage     StorageConfig         `yaml:"storage"`
	Status      StatusConfig          `yaml:"status"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines the gateway connection settings.
type BrokerConfig struct {
	UseRealBroker     bool   `yaml:"use_real_broker"`
	BridgeURL         string `yaml:"bridge_url"`
	APIKey            string `yaml:"api_key"`
	AccountID         string `yaml:"account_id"`
	MaxRetries        int    `yaml:"max_retries"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// RetryDelay returns the initial retry backoff.
func (b BrokerConfig) RetryDelay() time.Duration {
	return time.Duration(b.RetryDelaySeconds) * time.Second
}

// Timeout returns the per-request HTTP timeout.
func (b BrokerConfig) Timeout() time.Duration {
	return time.Duration(b.TimeoutSeconds) * time.Second
}

// StrategyConfig defines one strategy instance.
type StrategyConfig struct {
	Name           string   `yaml:"name"`
	Type           string   `yaml:"type"`
	Timeframe      string   `yaml:"timeframe"`
	AllowedSymbols []string `yaml:"allowed_symbols"`
	FastPeriod     int      `yaml:"fast_period"`
	SlowPeriod     int      `yaml:"slow_period"`
	LotSize        float64  `yaml:"lot_size"`
}

// LoopConfig selects and parameterises the cycle driver.
type LoopConfig struct {
	Mode                  string `yaml:"mode"` // interval | candle
	SleepSeconds          int    `yaml:"sleep_seconds"`
	TimeframeMinutes      int    `yaml:"timeframe_minutes"`
	WaitAfterCloseSeconds int    `yaml:"wait_after_close_seconds"`
}

// DataConfig overrides the per-timeframe historical bar caps.
type DataConfig struct {
	BarCaps map[string]int `yaml:"bar_caps"`
}

// StorageConfig defines trade-history persistence.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// StatusConfig defines the JSON status server.
type StatusConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// strategyTypes is the closed set of built-in strategy kinds.
var strategyTypes = map[string]bool{
	"sma_cross": true,
	"momentum":  true,
}

// Load reads, expands and validates a YAML configuration file.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &config, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}
	if c.Environment.Mode == "live" && !c.Broker.UseRealBroker {
		return fmt.Errorf("environment.mode 'live' requires broker.use_real_broker")
	}

	if c.Broker.UseRealBroker {
		if c.Broker.BridgeURL == "" {
			return fmt.Errorf("broker.bridge_url is required with use_real_broker")
		}
	}
	if c.Broker.MaxRetries < 0 {
		return fmt.Errorf("broker.max_retries must be >= 0")
	}

	if len(c.Symbols) == 0 {
		return fmt.Errorf("symbols must not be empty")
	}
	seenSymbols := make(map[string]bool)
	for i, s := range c.Symbols {
		if s.Name == "" {
			return fmt.Errorf("symbols[%d].name is required", i)
		}
		if seenSymbols[s.Name] {
			return fmt.Errorf("symbols[%d]: duplicate symbol %q", i, s.Name)
		}
		seenSymbols[s.Name] = true
		if !s.MinTimeframe.IsValid() {
			return fmt.Errorf("symbols[%d].min_timeframe: unknown timeframe %q", i, s.MinTimeframe)
		}
		if s.LotSize <= 0 {
			return fmt.Errorf("symbols[%d].lot_size must be > 0", i)
		}
	}

	if len(c.Strategies) == 0 {
		return fmt.Errorf("strategies must not be empty")
	}
	seenStrategies := make(map[string]bool)
	for i, s := range c.Strategies {
		if s.Name == "" {
			return fmt.Errorf("strategies[%d].name is required", i)
		}
		if seenStrategies[s.Name] {
			return fmt.Errorf("strategies[%d]: duplicate strategy %q", i, s.Name)
		}
		seenStrategies[s.Name] = true
		if !strategyTypes[s.Type] {
			return fmt.Errorf("strategies[%d].type: unknown strategy type %q", i, s.Type)
		}
		if _, err := models.ParseTimeframe(s.Timeframe); err != nil {
			return fmt.Errorf("strategies[%d].timeframe: %w", i, err)
		}
		if s.LotSize <= 0 {
			return fmt.Errorf("strategies[%d].lot_size must be > 0", i)
		}
		if s.Type == "sma_cross" {
			if s.FastPeriod <= 0 || s.SlowPeriod <= 0 {
				return fmt.Errorf("strategies[%d]: fast_period and slow_period must be > 0", i)
			}
			if s.FastPeriod >= s.SlowPeriod {
				return fmt.Errorf("strategies[%d]: fast_period must be < slow_period", i)
			}
		}
		for _, sym := range s.AllowedSymbols {
			if !seenSymbols[sym] {
				return fmt.Errorf("strategies[%d].allowed_symbols: unknown symbol %q", i, sym)
			}
		}
	}

	if c.Risk.InitialBalance <= 0 {
		return fmt.Errorf("risk.initial_balance must be > 0")
	}
	if c.Risk.DDGlobal != nil && (*c.Risk.DDGlobal < 0 || *c.Risk.DDGlobal > 100) {
		return fmt.Errorf("risk.dd_global must be between 0 and 100")
	}
	for sym, dd := range c.Risk.DDPerSymbol {
		if dd < 0 || dd > 100 {
			return fmt.Errorf("risk.dd_per_symbol[%s] must be between 0 and 100", sym)
		}
	}
	for strat, dd := range c.Risk.DDPerStrategy {
		if dd < 0 || dd > 100 {
			return fmt.Errorf("risk.dd_per_strategy[%s] must be between 0 and 100", strat)
		}
	}

	switch c.Loop.Mode {
	case "interval":
		if c.Loop.SleepSeconds <= 0 {
			return fmt.Errorf("loop.sleep_seconds must be > 0 in interval mode")
		}
	case "candle":
		if c.Loop.TimeframeMinutes <= 0 {
			return fmt.Errorf("loop.timeframe_minutes must be > 0 in candle mode")
		}
		if c.Loop.WaitAfterCloseSeconds < 0 {
			return fmt.Errorf("loop.wait_after_close_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("loop.mode must be 'interval' or 'candle'")
	}

	for tf, limit := range c.Data.BarCaps {
		if _, err := models.ParseTimeframe(tf); err != nil {
			return fmt.Errorf("data.bar_caps: %w", err)
		}
		if limit <= 0 {
			return fmt.Errorf("data.bar_caps[%s] must be > 0", tf)
		}
	}

	if c.Status.Enabled && (c.Status.Port <= 0 || c.Status.Port > 65535) {
		return fmt.Errorf("status.port must be a valid TCP port")
	}

	return nil
}
