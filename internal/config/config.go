// Package config loads runtime settings for subsku.
//
// Sources, lowest to highest precedence:
//  1. built-in defaults
//  2. an optional CUE file, checked against the embedded schema
//  3. SUBSKU_* environment variables
//  4. command-line flags (applied by the cli package)
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/kelseyhightower/envconfig"
)

//go:embed schema.cue
var schemaSource string

// EnvPrefix prefixes every environment override.
const EnvPrefix = "SUBSKU"

// Config holds runtime settings.
type Config struct {
	DBPath   string `envconfig:"DB_PATH"`
	HTTPAddr string `envconfig:"HTTP_ADDR"`

	QueueLimit      int           `envconfig:"QUEUE_LIMIT"`
	MaxAttempts     int           `envconfig:"MAX_ATTEMPTS"`
	InitialInterval time.Duration `envconfig:"INITIAL_INTERVAL"`
	MaxInterval     time.Duration `envconfig:"MAX_INTERVAL"`
	JobTimeout      time.Duration `envconfig:"JOB_TIMEOUT"`

	// RatePerSecond of 0 disables platform rate limiting.
	RatePerSecond float64 `envconfig:"RATE_PER_SECOND"`
	RateBurst     int     `envconfig:"RATE_BURST"`

	LogLevel string `envconfig:"LOG_LEVEL"`
}

// Default returns the built-in settings.
func Default() Config {
	return Config{
		DBPath:          "subsku.db",
		HTTPAddr:        ":8080",
		QueueLimit:      1000,
		MaxAttempts:     5,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     30 * time.Second,
		JobTimeout:      60 * time.Second,
		RatePerSecond:   2,
		RateBurst:       1,
		LogLevel:        "info",
	}
}

// fileConfig mirrors #Config in schema.cue.
type fileConfig struct {
	DBPath          *string  `json:"db_path"`
	HTTPAddr        *string  `json:"http_addr"`
	QueueLimit      *int     `json:"queue_limit"`
	MaxAttempts     *int     `json:"max_attempts"`
	InitialInterval *string  `json:"initial_interval"`
	MaxInterval     *string  `json:"max_interval"`
	JobTimeout      *string  `json:"job_timeout"`
	RatePerSecond   *float64 `json:"rate_per_second"`
	RateBurst       *int     `json:"rate_burst"`
	LogLevel        *string  `json:"log_level"`
}

// Load builds a Config from defaults, the CUE file at path (skipped when
// path is empty) and the environment.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := cfg.applyCUE(data, path); err != nil {
			return Config{}, err
		}
	}
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return Config{}, fmt.Errorf("environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// applyCUE unifies data with the schema and copies set fields onto cfg.
func (c *Config) applyCUE(data []byte, filename string) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	file := ctx.CompileBytes(data, cue.Filename(filename))
	if err := file.Err(); err != nil {
		return fmt.Errorf("parse %s: %s", filename, cueerrors.Details(err, nil))
	}

	v := schema.LookupPath(cue.ParsePath("#Config")).Unify(file)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %s", filename, cueerrors.Details(err, nil))
	}

	var fc fileConfig
	if err := v.Decode(&fc); err != nil {
		return fmt.Errorf("decode %s: %w", filename, err)
	}
	return c.merge(fc)
}

func (c *Config) merge(fc fileConfig) error {
	if fc.DBPath != nil {
		c.DBPath = *fc.DBPath
	}
	if fc.HTTPAddr != nil {
		c.HTTPAddr = *fc.HTTPAddr
	}
	if fc.QueueLimit != nil {
		c.QueueLimit = *fc.QueueLimit
	}
	if fc.MaxAttempts != nil {
		c.MaxAttempts = *fc.MaxAttempts
	}
	if fc.RatePerSecond != nil {
		c.RatePerSecond = *fc.RatePerSecond
	}
	if fc.RateBurst != nil {
		c.RateBurst = *fc.RateBurst
	}
	if fc.LogLevel != nil {
		c.LogLevel = *fc.LogLevel
	}

	durations := []struct {
		name string
		src  *string
		dst  *time.Duration
	}{
		{"initial_interval", fc.InitialInterval, &c.InitialInterval},
		{"max_interval", fc.MaxInterval, &c.MaxInterval},
		{"job_timeout", fc.JobTimeout, &c.JobTimeout},
	}
	for _, d := range durations {
		if d.src == nil {
			continue
		}
		v, err := time.ParseDuration(*d.src)
		if err != nil {
			return fmt.Errorf("%s: %w", d.name, err)
		}
		*d.dst = v
	}
	return nil
}

// Validate checks cross-field constraints that survive every source.
func (c Config) Validate() error {
	var errs []error
	if c.DBPath == "" {
		errs = append(errs, errors.New("db path is required"))
	}
	if c.MaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("max attempts must be >= 1, got %d", c.MaxAttempts))
	}
	if c.InitialInterval <= 0 {
		errs = append(errs, fmt.Errorf("initial interval must be positive, got %s", c.InitialInterval))
	}
	if c.MaxInterval < c.InitialInterval {
		errs = append(errs, fmt.Errorf("max interval %s is below initial interval %s", c.MaxInterval, c.InitialInterval))
	}
	if c.JobTimeout <= 0 {
		errs = append(errs, fmt.Errorf("job timeout must be positive, got %s", c.JobTimeout))
	}
	if c.RatePerSecond < 0 {
		errs = append(errs, fmt.Errorf("rate per second must be >= 0, got %v", c.RatePerSecond))
	}
	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log level %q: %w", c.LogLevel, err)
	}
	return l, nil
}
