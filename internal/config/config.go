package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store           StoreConfig           `yaml:"store" mapstructure:"store"`
	Sources         SourcesConfig         `yaml:"sources" mapstructure:"sources"`
	Characteristics CharacteristicsConfig `yaml:"characteristics" mapstructure:"characteristics"`
	Collect         CollectConfig         `yaml:"collect" mapstructure:"collect"`
	Cache           CacheConfig           `yaml:"cache" mapstructure:"cache"`
	Batch           BatchConfig           `yaml:"batch" mapstructure:"batch"`
	Log             LogConfig             `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourcesConfig locates the declarative per-source/per-entity configuration.
type SourcesConfig struct {
	Dir           string `yaml:"dir" mapstructure:"dir"`
	DefaultSource string `yaml:"default_source" mapstructure:"default_source"`
}

// CharacteristicsConfig locates the characteristic-definition and
// conversion-formula files used when no database-backed repository is
// configured.
type CharacteristicsConfig struct {
	File     string `yaml:"file" mapstructure:"file"`
	Formulas string `yaml:"formulas" mapstructure:"formulas"`
}

// CollectConfig configures the external API collector.
type CollectConfig struct {
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries    int     `yaml:"max_retries" mapstructure:"max_retries"`
	PageSize      int     `yaml:"page_size" mapstructure:"page_size"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
	UserAgent     string  `yaml:"user_agent" mapstructure:"user_agent"`
}

// CacheConfig configures the fetch cache.
type CacheConfig struct {
	Driver   string `yaml:"driver" mapstructure:"driver"` // "memory", "sqlite" or "off"
	Path     string `yaml:"path" mapstructure:"path"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// BatchConfig configures multi-entity batch imports.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("KROSMOZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("sources.dir", "configs/sources")
	v.SetDefault("sources.default_source", "dofusdb")
	v.SetDefault("characteristics.file", "configs/characteristics.json")
	v.SetDefault("characteristics.formulas", "configs/formulas.json")
	v.SetDefault("collect.timeout_secs", 30)
	v.SetDefault("collect.max_retries", 3)
	v.SetDefault("collect.page_size", 50)
	v.SetDefault("collect.rate_per_second", 5)
	v.SetDefault("collect.user_agent", "krosmoz-import/1.0")
	v.SetDefault("cache.driver", "memory")
	v.SetDefault("cache.path", "fetch-cache.db")
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("batch.max_concurrent_entities", 3)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

	return &cfg, nil
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
