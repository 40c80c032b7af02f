// Package config loads docagg settings from defaults, an optional config
// file and DOCAGG_* environment variables, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/roach88/docagg/internal/emulator"
)

// EnvPrefix prefixes environment variables: emulator.page_size is read
// from DOCAGG_EMULATOR_PAGE_SIZE.
const EnvPrefix = "DOCAGG"

// Config is the complete docagg configuration.
type Config struct {
	Emulator EmulatorConfig `mapstructure:"emulator"`
	Query    QueryConfig    `mapstructure:"query"`
	Log      LogConfig      `mapstructure:"log"`
}

// EmulatorConfig configures the local document database.
type EmulatorConfig struct {
	Path              string  `mapstructure:"path"`
	PageSize          int     `mapstructure:"page_size"`
	MaxBatches        int     `mapstructure:"max_batches"`
	ChargePerDocument float64 `mapstructure:"charge_per_document"`
	ProgramCache      int     `mapstructure:"program_cache"`
}

// QueryConfig configures pipeline runs.
type QueryConfig struct {
	MaxItemCount int `mapstructure:"max_item_count"`
	Workers      int `mapstructure:"workers"`
}

// LogConfig configures the process logger.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("emulator.path", "docagg.db")
	v.SetDefault("emulator.page_size", emulator.DefaultPageSize)
	v.SetDefault("emulator.max_batches", 0)
	v.SetDefault("emulator.charge_per_document", emulator.DefaultChargePerDocument)
	v.SetDefault("emulator.program_cache", emulator.DefaultProgramCacheSize)
	v.SetDefault("query.max_item_count", 0)
	v.SetDefault("query.workers", 4)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads the configuration. path names an optional config file (YAML,
// JSON or TOML by extension); an empty path reads defaults and environment
// only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if errors.As(err, &notFound) {
				return nil, fmt.Errorf("config file %s not found", path)
			}
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Emulator.Path == "" {
		errs = append(errs, fmt.Errorf("emulator.path is required"))
	}
	if c.Emulator.PageSize <= 0 {
		errs = append(errs, fmt.Errorf("emulator.page_size must be positive, got %d", c.Emulator.PageSize))
	}
	if c.Emulator.ChargePerDocument < 0 {
		errs = append(errs, fmt.Errorf("emulator.charge_per_document must not be negative"))
	}
	if c.Emulator.ProgramCache <= 0 {
		errs = append(errs, fmt.Errorf("emulator.program_cache must be positive, got %d", c.Emulator.ProgramCache))
	}
	if c.Query.MaxItemCount < 0 {
		errs = append(errs, fmt.Errorf("query.max_item_count must not be negative"))
	}
	if c.Query.Workers <= 0 {
		errs = append(errs, fmt.Errorf("query.workers must be positive, got %d", c.Query.Workers))
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	return errors.Join(errs...)
}

// Options returns the emulator options for this configuration.
func (c EmulatorConfig) Options() []emulator.Option {
	return []emulator.Option{
		emulator.WithPageSize(c.PageSize),
		emulator.WithMaxBatches(c.MaxBatches),
		emulator.WithChargePerDocument(c.ChargePerDocument),
		emulator.WithProgramCacheSize(c.ProgramCache),
	}
}
