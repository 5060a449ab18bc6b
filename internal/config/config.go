package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store   StoreConfig   `yaml:"store" mapstructure:"store"`
	Redis   RedisConfig   `yaml:"redis" mapstructure:"redis"`
	Engines EnginesConfig `yaml:"engines" mapstructure:"engines"`
	Jobs    JobsConfig    `yaml:"jobs" mapstructure:"jobs"`
	Server  ServerConfig  `yaml:"server" mapstructure:"server"`
	Log     LogConfig     `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
}

// RedisConfig configures the optional shared rate-limit backend.
// When Addr is empty each process keeps its windows in memory.
type RedisConfig struct {
	Addr     string `yaml:"addr" mapstructure:"addr"`
	Password string `yaml:"password" mapstructure:"password"`
	DB       int    `yaml:"db" mapstructure:"db"`
}

// EnginesConfig holds per-engine collector settings.
type EnginesConfig struct {
	Perplexity EngineConfig `yaml:"perplexity" mapstructure:"perplexity"`
	OpenAI     EngineConfig `yaml:"openai" mapstructure:"openai"`
	Gemini     EngineConfig `yaml:"gemini" mapstructure:"gemini"`
	Anthropic  EngineConfig `yaml:"anthropic" mapstructure:"anthropic"`
}

// EngineConfig configures a single answer engine collector.
type EngineConfig struct {
	Key            string `yaml:"key" mapstructure:"key"`
	BaseURL        string `yaml:"base_url" mapstructure:"base_url"`
	Model          string `yaml:"model" mapstructure:"model"`
	RequestsPerMin int    `yaml:"requests_per_min" mapstructure:"requests_per_min"`
	TimeoutSecs    int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxAttempts    int    `yaml:"max_attempts" mapstructure:"max_attempts"`
}

// Enabled reports whether the engine has credentials configured.
func (e EngineConfig) Enabled() bool {
	return e.Key != ""
}

// Timeout returns the per-request deadline.
func (e EngineConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSecs) * time.Second
}

// JobsConfig configures the collection job worker pool.
type JobsConfig struct {
	Workers          int `yaml:"workers" mapstructure:"workers"`
	PollIntervalSecs int `yaml:"poll_interval_secs" mapstructure:"poll_interval_secs"`
	MaxAttempts      int `yaml:"max_attempts" mapstructure:"max_attempts"`
	ScheduleHours    int `yaml:"schedule_hours" mapstructure:"schedule_hours"`
}

// PollInterval returns the idle worker polling cadence.
func (j JobsConfig) PollInterval() time.Duration {
	return time.Duration(j.PollIntervalSecs) * time.Second
}

// ScheduleInterval returns the cadence of automatic full collections.
// Zero disables the scheduler.
func (j JobsConfig) ScheduleInterval() time.Duration {
	return time.Duration(j.ScheduleHours) * time.Hour
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("VISIBILITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("redis.db", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("jobs.workers", 4)
	v.SetDefault("jobs.poll_interval_secs", 2)
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.schedule_hours", 24)
	v.SetDefault("engines.perplexity.base_url", "https://api.perplexity.ai")
	v.SetDefault("engines.perplexity.model", "sonar-pro")
	v.SetDefault("engines.perplexity.requests_per_min", 20)
	v.SetDefault("engines.perplexity.timeout_secs", 45)
	v.SetDefault("engines.perplexity.max_attempts", 3)
	v.SetDefault("engines.openai.model", "gpt-4o-search-preview")
	v.SetDefault("engines.openai.requests_per_min", 20)
	v.SetDefault("engines.openai.timeout_secs", 45)
	v.SetDefault("engines.openai.max_attempts", 3)
	v.SetDefault("engines.gemini.model", "gemini-2.0-flash")
	v.SetDefault("engines.gemini.requests_per_min", 20)
	v.SetDefault("engines.gemini.timeout_secs", 45)
	v.SetDefault("engines.gemini.max_attempts", 3)
	v.SetDefault("engines.anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("engines.anthropic.requests_per_min", 20)
	v.SetDefault("engines.anthropic.timeout_secs", 45)
	v.SetDefault("engines.anthropic.max_attempts", 3)

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
