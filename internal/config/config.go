// Package config loads the server configuration from a YAML file and the
// environment.
//
// Environment variables override the file:
//
//	CONFIG_PATH   path to the YAML file (optional)
//	DB_PATH       database.path
//	DB_DRIVER     database.driver (sqlite or bolt)
//	JWT_SECRET    auth.jwt_secret
//	LOG_LEVEL     log.level (debug, info, warn, error)
//	LISTEN_ADDR   listen
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mmynk/paysplit/internal/chain"
	"github.com/mmynk/paysplit/internal/money"
	"github.com/mmynk/paysplit/internal/validation"
)

const (
	DriverSQLite = "sqlite"
	DriverBolt   = "bolt"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be a string")
	}
	raw := strings.TrimSpace(value.Value)
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures the runtime configuration of the server.
type Config struct {
	Listen        string           `yaml:"listen"`
	MetricsListen string           `yaml:"metrics_listen"`
	Log           LogConfig        `yaml:"log"`
	Database      DatabaseConfig   `yaml:"database"`
	Auth          AuthConfig       `yaml:"auth"`
	Limits        LimitsConfig     `yaml:"limits"`
	Settlement    SettlementConfig `yaml:"settlement"`
	Chain         ChainConfig      `yaml:"chain"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // text or json
}

type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	Path   string `yaml:"path"`
}

type AuthConfig struct {
	JWTSecret  string   `yaml:"jwt_secret"`
	TokenTTL   Duration `yaml:"token_ttl"`
	BcryptCost int      `yaml:"bcrypt_cost"`
}

// LimitsConfig bounds splits and escrow amounts. Amounts are base-unit
// decimal strings.
type LimitsConfig struct {
	MinRecipients int    `yaml:"min_recipients"`
	MaxRecipients int    `yaml:"max_recipients"`
	MinAmount     string `yaml:"min_amount"`
	MaxAmount     string `yaml:"max_amount"`
}

// SettlementConfig sets withholding and confirmation waiting.
type SettlementConfig struct {
	FeeBasisPoints       uint32   `yaml:"fee_bps"`
	GasBufferBasisPoints uint32   `yaml:"gas_buffer_bps"`
	Confirmations        int      `yaml:"confirmations"`
	ConfirmationTimeout  Duration `yaml:"confirmation_timeout"`
	InitialBackoff       Duration `yaml:"initial_backoff"`
	MaxBackoff           Duration `yaml:"max_backoff"`
	MaxRetries           uint64   `yaml:"max_retries"`
}

// ChainConfig configures the simulated chain adapter and submit rate limit.
type ChainConfig struct {
	SubmitRate     float64  `yaml:"submit_rate"` // transfers per second, 0 disables the limit
	SubmitBurst    int      `yaml:"submit_burst"`
	SimulatedDelay Duration `yaml:"simulated_delay"`
}

// Load reads the file at path, if any, applies defaults and environment
// overrides, and validates the result. getenv is usually os.Getenv.
func Load(path string, getenv func(string) string) (Config, error) {
	cfg := Config{}
	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()
		dec := yaml.NewDecoder(file)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("decode config: %w", err)
		}
	}
	applyEnv(&cfg, getenv)
	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, getenv func(string) string) {
	if getenv == nil {
		return
	}
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&cfg.Database.Path, "DB_PATH")
	set(&cfg.Database.Driver, "DB_DRIVER")
	set(&cfg.Auth.JWTSecret, "JWT_SECRET")
	set(&cfg.Log.Level, "LOG_LEVEL")
	set(&cfg.Listen, "LISTEN_ADDR")
}

func applyDefaults(cfg *Config) {
	if cfg.Listen == "" {
		cfg.Listen = ":8080"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Database.Driver == "" {
		cfg.Database.Driver = DriverSQLite
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./data/paysplit.db"
	}
	if cfg.Auth.TokenTTL.Duration == 0 {
		cfg.Auth.TokenTTL.Duration = 24 * time.Hour
	}

	limits := validation.DefaultLimits()
	if cfg.Limits.MinRecipients == 0 {
		cfg.Limits.MinRecipients = limits.MinRecipients
	}
	if cfg.Limits.MaxRecipients == 0 {
		cfg.Limits.MaxRecipients = limits.MaxRecipients
	}
	if cfg.Limits.MinAmount == "" {
		cfg.Limits.MinAmount = limits.MinAmount.String()
	}
	if cfg.Limits.MaxAmount == "" {
		cfg.Limits.MaxAmount = limits.MaxAmount.String()
	}

	wait := chain.DefaultWaitPolicy()
	s := &cfg.Settlement
	if s.Confirmations == 0 {
		s.Confirmations = wait.Confirmations
	}
	if s.ConfirmationTimeout.Duration == 0 {
		s.ConfirmationTimeout.Duration = wait.Timeout
	}
	if s.InitialBackoff.Duration == 0 {
		s.InitialBackoff.Duration = wait.InitialBackoff
	}
	if s.MaxBackoff.Duration == 0 {
		s.MaxBackoff.Duration = wait.MaxBackoff
	}
	if s.MaxRetries == 0 {
		s.MaxRetries = wait.MaxRetries
	}

	if cfg.Chain.SubmitBurst == 0 {
		cfg.Chain.SubmitBurst = 1
	}
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	switch c.Database.Driver {
	case DriverSQLite, DriverBolt:
	default:
		errs = append(errs, fmt.Errorf("database.driver %q must be %s or %s", c.Database.Driver, DriverSQLite, DriverBolt))
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format %q must be text or json", c.Log.Format))
	}
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		errs = append(errs, errors.New("auth.jwt_secret must be configured"))
	}
	if uint64(c.Settlement.FeeBasisPoints)+uint64(c.Settlement.GasBufferBasisPoints) > validation.TotalBasisPoints {
		errs = append(errs, fmt.Errorf("settlement.fee_bps + settlement.gas_buffer_bps exceed %d", validation.TotalBasisPoints))
	}
	if c.Settlement.Confirmations < 0 {
		errs = append(errs, errors.New("settlement.confirmations must not be negative"))
	}
	if c.Chain.SubmitRate < 0 {
		errs = append(errs, errors.New("chain.submit_rate must not be negative"))
	}
	if _, err := c.ValidationLimits(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// ValidationLimits converts the limits section.
func (c Config) ValidationLimits() (validation.Limits, error) {
	minAmount, err := money.Parse(c.Limits.MinAmount)
	if err != nil {
		return validation.Limits{}, fmt.Errorf("limits.min_amount: %w", err)
	}
	maxAmount, err := money.Parse(c.Limits.MaxAmount)
	if err != nil {
		return validation.Limits{}, fmt.Errorf("limits.max_amount: %w", err)
	}
	limits := validation.Limits{
		MinRecipients: c.Limits.MinRecipients,
		MaxRecipients: c.Limits.MaxRecipients,
		MinAmount:     minAmount,
		MaxAmount:     maxAmount,
	}
	if limits.MinRecipients < 1 || limits.MaxRecipients < limits.MinRecipients {
		return validation.Limits{}, fmt.Errorf("limits: recipients range [%d, %d] is invalid", limits.MinRecipients, limits.MaxRecipients)
	}
	if minAmount.Cmp(maxAmount) > 0 {
		return validation.Limits{}, fmt.Errorf("limits: min_amount %s exceeds max_amount %s", minAmount, maxAmount)
	}
	return limits, nil
}

// WaitPolicy converts the confirmation settings.
func (s SettlementConfig) WaitPolicy() chain.WaitPolicy {
	return chain.WaitPolicy{
		Confirmations:  s.Confirmations,
		Timeout:        s.ConfirmationTimeout.Duration,
		InitialBackoff: s.InitialBackoff.Duration,
		MaxBackoff:     s.MaxBackoff.Duration,
		MaxRetries:     s.MaxRetries,
	}
}
