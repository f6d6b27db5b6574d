// Package config provides configuration loading and validation utilities.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads configuration from YAML files and environment variables, validates it, and returns the resulting Config.
func Load() (*Config, *viper.Viper, error) {
	// missing env files are fine; the environment may already be populated
	_ = godotenv.Load(".env.local", ".env")

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	return LoadFile(fmt.Sprintf("./configs/%s.yaml", env), env)
}

// LoadFile reads the given YAML file (if present) merged with environment overrides.
func LoadFile(path, env string) (*Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.AppEnv = env

	if err := Validate(&cfg); err != nil {
		return nil, nil, err
	}

	return &cfg, v, nil
}

// Validate checks struct tags and cross-field rules.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	switch cfg.Events.Driver {
	case EventsDriverRabbitMQ:
		if cfg.Events.RabbitMQ.URL == "" || cfg.Events.RabbitMQ.Queue == "" {
			return fmt.Errorf("validate config: events.rabbitmq.url and events.rabbitmq.queue are required")
		}
	case EventsDriverKafka:
		if len(cfg.Events.Kafka.Brokers) == 0 || cfg.Events.Kafka.Topic == "" {
			return fmt.Errorf("validate config: events.kafka.brokers and events.kafka.topic are required")
		}
	}

	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.platform", PlatformDiscord)
	v.SetDefault("bot.token", "")
	v.SetDefault("bot.super_admin_id", 0)
	v.SetDefault("bot.guild_id", "")
	v.SetDefault("bot.language", "ko")
	v.SetDefault("bot.telegram_timeout", 10*time.Second)

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "frostbank")
	v.SetDefault("database.password", "")
	v.SetDefault("database.name", "frostbank")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.connect_timeout", 5)
	v.SetDefault("database.max_open_conns", 10)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.min_idle_conns", 2)
	v.SetDefault("redis.pool_timeout", 4*time.Second)
	v.SetDefault("redis.idle_timeout", 5*time.Minute)
	v.SetDefault("redis.max_retries", 3)
	v.SetDefault("redis.settings_ttl", 5*time.Minute)
	v.SetDefault("redis.idempotency_ttl", 24*time.Hour)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "text")
	v.SetDefault("logger.file", "")
	v.SetDefault("logger.max_size_mb", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age_days", 28)

	v.SetDefault("sentry.enabled", false)
	v.SetDefault("sentry.dsn", "")
	v.SetDefault("sentry.sample_rate", 1.0)
	v.SetDefault("sentry.environment", "development")

	v.SetDefault("server.port", "8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("rate_limit.enabled", false)
	v.SetDefault("rate_limit.per_user.limit", 20)
	v.SetDefault("rate_limit.per_user.window", "1m")
	v.SetDefault("rate_limit.commands.transfer.limit", 5)
	v.SetDefault("rate_limit.commands.transfer.window", "1m")
	v.SetDefault("rate_limit.commands.grant.limit", 10)
	v.SetDefault("rate_limit.commands.grant.window", "1m")
	v.SetDefault("rate_limit.commands.withdraw.limit", 10)
	v.SetDefault("rate_limit.commands.withdraw.window", "1m")
	v.SetDefault("rate_limit.commands.export.limit", 2)
	v.SetDefault("rate_limit.commands.export.window", "1m")
	v.SetDefault("rate_limit.whitelist", []int64{})
	v.SetDefault("rate_limit.cleanup_interval", time.Hour)

	v.SetDefault("bank.random_reward_min", 1)
	v.SetDefault("bank.random_reward_max", 100)
	v.SetDefault("bank.random_reward_cooldown", 30*time.Minute)
	v.SetDefault("bank.message_reward", 2)
	v.SetDefault("bank.message_reward_cooldown", time.Minute)
	v.SetDefault("bank.voice_reward", 3)
	v.SetDefault("bank.voice_reward_interval", time.Minute)
	v.SetDefault("bank.leaderboard_size", 10)
	v.SetDefault("bank.stats_interval", 30*time.Second)

	v.SetDefault("events.driver", EventsDriverNone)
	v.SetDefault("events.rabbitmq.url", "")
	v.SetDefault("events.rabbitmq.queue", "frostbank.ledger")
	v.SetDefault("events.kafka.brokers", []string{})
	v.SetDefault("events.kafka.topic", "frostbank.ledger")
}
