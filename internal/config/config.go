package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rossycoder/carcatlog-backend/internal/store"
)

// Config holds the full application configuration.
type Config struct {
	Store  StoreConfig  `yaml:"store" mapstructure:"store"`
	UKVD   UKVDConfig   `yaml:"ukvd" mapstructure:"ukvd"`
	CapHPI CapHPIConfig `yaml:"caphpi" mapstructure:"caphpi"`
	Cache  CacheConfig  `yaml:"cache" mapstructure:"cache"`
	Lookup LookupConfig `yaml:"lookup" mapstructure:"lookup"`
	Batch  BatchConfig  `yaml:"batch" mapstructure:"batch"`
	Server ServerConfig `yaml:"server" mapstructure:"server"`
	Log    LogConfig    `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string            `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string            `yaml:"database_url" mapstructure:"database_url"`
	Pool        *store.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// UKVDConfig holds the vehicle specification provider settings.
type UKVDConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	Sandbox   bool    `yaml:"sandbox" mapstructure:"sandbox"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CapHPIConfig holds the valuation provider settings.
type CapHPIConfig struct {
	Key       string  `yaml:"key" mapstructure:"key"`
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// CacheConfig configures the vehicle-data cache.
type CacheConfig struct {
	TTLDays int `yaml:"ttl_days" mapstructure:"ttl_days"`
}

// LookupConfig configures enrichment behavior.
type LookupConfig struct {
	DefaultMileage int `yaml:"default_mileage" mapstructure:"default_mileage"`
	RetryAttempts  int `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	// PolicyFile optionally points at a YAML merge-policy file that
	// overrides the built-in defaults.
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file"`
}

// BatchConfig configures batch warm processing.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Validate checks that the configuration carries everything the given
// mode needs. Modes are "lookup", "serve" and "batch".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch mode {
	case "lookup", "batch":
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if c.UKVD.Key == "" {
		problems = append(problems, "ukvd.key is required")
	}
	if c.CapHPI.Key == "" {
		problems = append(problems, "caphpi.key is required")
	}
	if c.Store.Driver == "postgres" && c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required for the postgres driver")
	}
	if c.Cache.TTLDays <= 0 {
		problems = append(problems, "cache.ttl_days must be > 0")
	}
	if c.Batch.Concurrency < 1 || c.Batch.Concurrency > 50 {
		problems = append(problems, "batch.concurrency must be between 1 and 50")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CARCATLOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("ukvd.base_url", "https://uk1.ukvehicledata.co.uk")
	v.SetDefault("ukvd.rate_limit", 10.0)
	v.SetDefault("caphpi.base_url", "https://api.cap-hpi.co.uk")
	v.SetDefault("caphpi.rate_limit", 10.0)
	v.SetDefault("cache.ttl_days", 30)
	v.SetDefault("lookup.default_mileage", 60000)
	v.SetDefault("lookup.retry_attempts", 1)
	v.SetDefault("batch.concurrency", 5)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
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
