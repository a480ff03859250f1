package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type ServerConfig struct {
	Port           int           `mapstructure:"port"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	URL          string        `mapstructure:"url"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
}

// EngineConfig carries the lifecycle policy knobs.
type EngineConfig struct {
	QuoteValidity           time.Duration `mapstructure:"quote_validity"`
	RequestTTL              time.Duration `mapstructure:"request_ttl"`
	ProviderPendingQuoteCap int           `mapstructure:"provider_pending_quote_cap"`
	StartWindowBefore       time.Duration `mapstructure:"start_window_before"`
	StartWindowAfter        time.Duration `mapstructure:"start_window_after"`
	CancellationNotice      time.Duration `mapstructure:"cancellation_notice"`
	RetryBudget             int           `mapstructure:"retry_budget"`
	RequirePayment          bool          `mapstructure:"require_payment"`
	SlotHorizonDays         int           `mapstructure:"slot_horizon_days"`
	SlotCacheTTL            time.Duration `mapstructure:"slot_cache_ttl"`
}

type SweeperConfig struct {
	Interval        time.Duration `mapstructure:"interval"`
	BatchSize       int           `mapstructure:"batch_size"`
	OutboxRetention time.Duration `mapstructure:"outbox_retention"`
}

type OutboxConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	PollInterval  time.Duration `mapstructure:"poll_interval"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
}

type EmailConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
	// RecipientDomain synthesizes recipient addresses as
	// <kind>-<id>@<domain> for alias routing. Empty disables email.
	RecipientDomain string `mapstructure:"recipient_domain"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	Outbox    OutboxConfig    `mapstructure:"outbox"`
	Email     EmailConfig     `mapstructure:"email"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

// envOverrides are applied on top of the file so deployments can inject
// credentials without editing config files.
type envOverrides struct {
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	RedisURL         string `envconfig:"REDIS_URL"`
	JWTSecret        string `envconfig:"JWT_SECRET"`
	EmailPassword    string `envconfig:"EMAIL_PASSWORD"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	viper.AutomaticEnv()
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	var env envOverrides
	if err := envconfig.Process("marketplace", &env); err != nil {
		return nil, fmt.Errorf("failed to process env overrides: %w", err)
	}
	if env.DatabaseHost != "" {
		config.Database.Host = env.DatabaseHost
	}
	if env.DatabasePassword != "" {
		config.Database.Password = env.DatabasePassword
	}
	if env.RedisURL != "" {
		config.Redis.URL = env.RedisURL
	}
	if env.JWTSecret != "" {
		config.JWT.Secret = env.JWTSecret
	}
	if env.EmailPassword != "" {
		config.Email.Password = env.EmailPassword
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", 10*time.Second)
	viper.SetDefault("server.write_timeout", 10*time.Second)
	viper.SetDefault("server.request_timeout", 30*time.Second)

	viper.SetDefault("database.driver", "postgres")
	viper.SetDefault("database.host", "localhost")
	viper.SetDefault("database.port", 5432)
	viper.SetDefault("database.sslmode", "disable")

	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("redis.max_retries", 3)
	viper.SetDefault("redis.retry_backoff", 100*time.Millisecond)
	viper.SetDefault("redis.pool_size", 10)
	viper.SetDefault("redis.min_idle_conns", 2)

	viper.SetDefault("engine.quote_validity", 7*24*time.Hour)
	viper.SetDefault("engine.request_ttl", 30*24*time.Hour)
	viper.SetDefault("engine.provider_pending_quote_cap", 20)
	viper.SetDefault("engine.start_window_before", 2*time.Hour)
	viper.SetDefault("engine.start_window_after", 30*time.Minute)
	viper.SetDefault("engine.cancellation_notice", 24*time.Hour)
	viper.SetDefault("engine.retry_budget", 3)
	viper.SetDefault("engine.require_payment", false)
	viper.SetDefault("engine.slot_horizon_days", 30)
	viper.SetDefault("engine.slot_cache_ttl", 30*time.Second)

	viper.SetDefault("sweeper.interval", 10*time.Minute)
	viper.SetDefault("sweeper.batch_size", 100)
	viper.SetDefault("sweeper.outbox_retention", 7*24*time.Hour)

	viper.SetDefault("outbox.batch_size", 100)
	viper.SetDefault("outbox.poll_interval", 5*time.Second)
	viper.SetDefault("outbox.retry_attempts", 3)
	viper.SetDefault("outbox.retry_delay", 5*time.Second)

	viper.SetDefault("rate_limit.rps", 50)
	viper.SetDefault("rate_limit.burst", 100)
}
