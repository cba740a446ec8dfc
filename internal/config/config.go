package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tonearm/tonearm/internal/consensus"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig      `yaml:"store" mapstructure:"store"`
	Decode    DecodeConfig     `yaml:"decode" mapstructure:"decode"`
	Aubio     AubioConfig      `yaml:"aubio" mapstructure:"aubio"`
	Providers []ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Consensus consensus.Config `yaml:"consensus" mapstructure:"consensus"`
	Batch     BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Server    ServerConfig     `yaml:"server" mapstructure:"server"`
	Log       LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// DecodeConfig configures audio decoding.
type DecodeConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path" mapstructure:"ffmpeg_path"`
	SampleRate int    `yaml:"sample_rate" mapstructure:"sample_rate"`
}

// AubioConfig configures the external aubio provider.
type AubioConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ProviderConfig enables an analysis provider and sets its vote weight.
type ProviderConfig struct {
	Name    string  `yaml:"name" mapstructure:"name"`
	Weight  float64 `yaml:"weight" mapstructure:"weight"`
	Enabled bool    `yaml:"enabled" mapstructure:"enabled"`
}

// BatchConfig configures batch processing.
type BatchConfig struct {
	MaxConcurrentFiles int     `yaml:"max_concurrent_files" mapstructure:"max_concurrent_files"`
	RatePerSec         float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// ServerConfig configures the debug HTTP server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// DefaultProviders is the provider roster used when the config file
// names none.
func DefaultProviders() []ProviderConfig {
	return []ProviderConfig{
		{Name: "onsetgrid", Weight: 1.0, Enabled: true},
		{Name: "chromaprof", Weight: 1.0, Enabled: true},
		{Name: "aubio", Weight: 0.8, Enabled: false},
	}
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("TONEARM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "tonearm.db")
	v.SetDefault("decode.ffmpeg_path", "ffmpeg")
	v.SetDefault("decode.sample_rate", 22050)
	v.SetDefault("aubio.path", "aubio")
	v.SetDefault("batch.max_concurrent_files", 4)
	v.SetDefault("batch.rate_per_sec", 8)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	engine := consensus.DefaultConfig()
	v.SetDefault("consensus.tempo_tolerance_bpm", engine.TempoToleranceBPM)
	v.SetDefault("consensus.plausible_tempo.min", engine.PlausibleTempo.Min)
	v.SetDefault("consensus.plausible_tempo.max", engine.PlausibleTempo.Max)
	v.SetDefault("consensus.fold_ratios", engine.FoldRatios)
	v.SetDefault("consensus.correction_ratios", engine.CorrectionRatios)
	v.SetDefault("consensus.agreement_bonus", engine.AgreementBonus)
	v.SetDefault("consensus.disagreement_penalty", engine.DisagreementPenalty)
	v.SetDefault("consensus.correction_penalty", engine.CorrectionPenalty)
	v.SetDefault("consensus.default_raw_confidence", engine.DefaultRawConfidence)
	v.SetDefault("consensus.single_estimate_cap", engine.SingleEstimateCap)
	v.SetDefault("consensus.provider_timeout_secs", engine.ProviderTimeoutSecs)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if len(cfg.Providers) == 0 {
		cfg.Providers = DefaultProviders()
	}

	return &cfg, nil
}

// Validate checks the fields required by the given run mode. Mode is
// one of "analyze", "batch", or "serve".
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "analyze", "batch", "serve":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "sqlite":
		if c.Store.Path == "" {
			errs = append(errs, "store.path is required for the sqlite driver")
		}
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q is not supported (sqlite, postgres)", c.Store.Driver))
	}

	if c.Decode.SampleRate < 8000 {
		errs = append(errs, "decode.sample_rate must be >= 8000")
	}

	enabled := 0
	for _, p := range c.Providers {
		if p.Name == "" {
			errs = append(errs, "providers entries need a name")
		}
		if p.Weight < 0 {
			errs = append(errs, fmt.Sprintf("provider %s weight must be >= 0", p.Name))
		}
		if p.Enabled {
			enabled++
		}
	}
	if enabled == 0 {
		errs = append(errs, "at least one provider must be enabled")
	}

	if mode == "batch" {
		if c.Batch.MaxConcurrentFiles < 1 || c.Batch.MaxConcurrentFiles > 64 {
			errs = append(errs, "batch.max_concurrent_files must be between 1 and 64")
		}
		if c.Batch.RatePerSec <= 0 {
			errs = append(errs, "batch.rate_per_sec must be > 0")
		}
	}

	if mode == "serve" && c.Server.Port <= 0 {
		errs = append(errs, "server.port must be > 0")
	}

	if err := c.Consensus.Validate(); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
