package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	API      APIConfig      `yaml:"api" mapstructure:"api"`
	Server   ServerConfig   `yaml:"server" mapstructure:"server"`
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Features FeaturesConfig `yaml:"features" mapstructure:"features"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
}

// APIConfig configures the upstream data API client.
type APIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	UserAgent   string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateLimit   float64 `yaml:"rate_limit" mapstructure:"rate_limit"`

	// BreakerThreshold is the number of consecutive failed requests to a
	// host that opens its circuit breaker. 0 disables the breaker.
	BreakerThreshold    int `yaml:"breaker_threshold" mapstructure:"breaker_threshold"`
	BreakerCooldownSecs int `yaml:"breaker_cooldown_secs" mapstructure:"breaker_cooldown_secs"`
}

// Timeout returns the per-request timeout.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSecs) * time.Second
}

// BreakerCooldown returns how long an open breaker rejects requests.
func (c APIConfig) BreakerCooldown() time.Duration {
	return time.Duration(c.BreakerCooldownSecs) * time.Second
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	SessionTTLMins int      `yaml:"session_ttl_mins" mapstructure:"session_ttl_mins"`
}

// SessionTTL returns the idle session lifetime.
func (c ServerConfig) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMins) * time.Minute
}

// StoreConfig configures the metadata snapshot backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	SQLitePath  string `yaml:"sqlite_path" mapstructure:"sqlite_path"`
}

// FeaturesConfig holds the feature-toggle years.
type FeaturesConfig struct {
	FirstYear          int `yaml:"first_year" mapstructure:"first_year"`
	LastYear           int `yaml:"last_year" mapstructure:"last_year"`
	OccupationLastYear int `yaml:"occupation_last_year" mapstructure:"occupation_last_year"`
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
	v.SetEnvPrefix("INDUSTRYVIZ")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("api.base_url", "https://datlas.example.org/api")
	v.SetDefault("api.timeout_secs", 30)
	v.SetDefault("api.max_attempts", 1)
	v.SetDefault("api.user_agent", "industry-viz/1.0")
	v.SetDefault("api.rate_limit", 20)
	v.SetDefault("api.breaker_threshold", 5)
	v.SetDefault("api.breaker_cooldown_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:4200"})
	v.SetDefault("server.session_ttl_mins", 30)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.sqlite_path", "industry-viz.db")
	v.SetDefault("features.first_year", 2008)
	v.SetDefault("features.last_year", 2016)
	v.SetDefault("features.occupation_last_year", 2016)
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

// Validate checks the settings a command mode needs: "serve", "load" or
// "metadata".
func (c *Config) Validate(mode string) error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server.port must be > 0 and <= 65535")
		}
		if c.Server.SessionTTLMins <= 0 {
			add("server.session_ttl_mins must be > 0")
		}
	case "load", "metadata":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		add("api.base_url must be an absolute URL")
	}
	if c.API.MaxAttempts < 1 {
		add("api.max_attempts must be >= 1")
	}
	if c.API.RateLimit <= 0 {
		add("api.rate_limit must be > 0")
	}
	if c.API.BreakerThreshold < 0 {
		add("api.breaker_threshold must be >= 0")
	}
	if c.Features.FirstYear > c.Features.LastYear {
		add("features.first_year must be <= features.last_year")
	}

	switch c.Store.Driver {
	case "sqlite", "none":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			add("store.database_url is required for the postgres driver")
		}
	default:
		add("store.driver must be sqlite, postgres or none")
	}
	if mode == "metadata" && c.Store.Driver == "none" {
		add("store.driver none has no snapshots to manage")
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
