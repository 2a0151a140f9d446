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
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	ILOStat  SourceConfig   `yaml:"ilostat" mapstructure:"ilostat"`
	GHO      SourceConfig   `yaml:"gho" mapstructure:"gho"`
	WGI      SourceConfig   `yaml:"wgi" mapstructure:"wgi"`
	Pipeline PipelineConfig `yaml:"pipeline" mapstructure:"pipeline"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// SourceConfig configures one upstream statistical API client.
type SourceConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"` // requests per second
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MinYear     int     `yaml:"min_year" mapstructure:"min_year"` // acceptable observation window
}

// PipelineConfig configures batch processing.
type PipelineConfig struct {
	MaxConcurrentCountries int `yaml:"max_concurrent_countries" mapstructure:"max_concurrent_countries"`
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
	v.SetEnvPrefix("OSHINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pipeline.max_concurrent_countries", 4)
	v.SetDefault("ilostat.base_url", "https://rplumber.ilo.org/data/indicator")
	v.SetDefault("ilostat.rate_limit", 2.0)
	v.SetDefault("ilostat.timeout_secs", 15)
	v.SetDefault("ilostat.min_year", 2010)
	v.SetDefault("gho.base_url", "https://ghoapi.azureedge.net/api")
	v.SetDefault("gho.rate_limit", 2.0)
	v.SetDefault("gho.timeout_secs", 15)
	v.SetDefault("gho.min_year", 2010)
	v.SetDefault("wgi.base_url", "https://api.worldbank.org/v2")
	v.SetDefault("wgi.rate_limit", 2.0)
	v.SetDefault("wgi.timeout_secs", 15)
	v.SetDefault("wgi.min_year", 2010)

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
