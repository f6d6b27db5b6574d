package config

import (
	"fmt"
	"time"
)

// Platform names accepted by bot.platform.
const (
	PlatformDiscord  = "discord"
	PlatformTelegram = "telegram"
)

// Event stream drivers accepted by events.driver.
const (
	EventsDriverNone     = "none"
	EventsDriverRabbitMQ = "rabbitmq"
	EventsDriverKafka    = "kafka"
)

// Config holds runtime configuration for the frostbank bot.
type Config struct {
	AppEnv string `mapstructure:"app_env"`

	Bot       BotConfig       `mapstructure:"bot"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Logger    LoggerConfig    `mapstructure:"logger"`
	Sentry    SentryConfig    `mapstructure:"sentry"`
	Server    ServerConfig    `mapstructure:"server"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
	Bank      BankConfig      `mapstructure:"bank"`
	Events    EventsConfig    `mapstructure:"events"`
}

// BotConfig describes the chat platform the bot connects to.
type BotConfig struct {
	Platform     string `mapstructure:"platform" validate:"oneof=discord telegram"`
	Token        string `mapstructure:"token" validate:"required"`
	SuperAdminID int64  `mapstructure:"super_admin_id"`
	// GuildID restricts Discord slash command registration to a single guild. Empty registers globally.
	GuildID         string        `mapstructure:"guild_id"`
	Language        string        `mapstructure:"language" validate:"required"`
	TelegramTimeout time.Duration `mapstructure:"telegram_timeout"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host" validate:"required"`
	Port            int           `mapstructure:"port" validate:"gt=0"`
	User            string        `mapstructure:"user" validate:"required"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name" validate:"required"`
	SSLMode         string        `mapstructure:"sslmode"`
	ConnectTimeout  int           `mapstructure:"connect_timeout"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis connection settings. Redis is optional.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr" validate:"required_if=Enabled true"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	PoolTimeout  time.Duration `mapstructure:"pool_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	MaxRetries   int           `mapstructure:"max_retries"`
	SettingsTTL  time.Duration `mapstructure:"settings_ttl"`

	// IdempotencyTTL is how long a handled interaction id is remembered.
	IdempotencyTTL time.Duration `mapstructure:"idempotency_ttl"`
}

// LoggerConfig configures structured logging.
type LoggerConfig struct {
	Level      string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `mapstructure:"format" validate:"oneof=text json"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// SentryConfig configures error reporting.
type SentryConfig struct {
	Enabled     bool    `mapstructure:"enabled"`
	DSN         string  `mapstructure:"dsn" validate:"required_if=Enabled true"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Environment string  `mapstructure:"environment"`
}

// ServerConfig configures the operations HTTP server (metrics and probes).
type ServerConfig struct {
	Port            string        `mapstructure:"port" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// RateLimitRule is a limit over a window, e.g. 20 per "1m".
type RateLimitRule struct {
	Limit  int    `mapstructure:"limit"`
	Window string `mapstructure:"window"`
}

// RateLimitCommands holds per-command limits.
type RateLimitCommands struct {
	Transfer RateLimitRule `mapstructure:"transfer"`
	Grant    RateLimitRule `mapstructure:"grant"`
	Withdraw RateLimitRule `mapstructure:"withdraw"`
	Export   RateLimitRule `mapstructure:"export"`
}

// RateLimitConfig configures command rate limiting.
type RateLimitConfig struct {
	Enabled         bool              `mapstructure:"enabled"`
	PerUser         RateLimitRule     `mapstructure:"per_user"`
	Commands        RateLimitCommands `mapstructure:"commands"`
	Whitelist       []int64           `mapstructure:"whitelist"`
	CleanupInterval time.Duration     `mapstructure:"cleanup_interval"`
}

// BankConfig tunes the ledger rewards.
type BankConfig struct {
	RandomRewardMin       int64         `mapstructure:"random_reward_min" validate:"gte=1"`
	RandomRewardMax       int64         `mapstructure:"random_reward_max" validate:"gtefield=RandomRewardMin"`
	RandomRewardCooldown  time.Duration `mapstructure:"random_reward_cooldown" validate:"gt=0"`
	MessageReward         int64         `mapstructure:"message_reward" validate:"gte=0"`
	MessageRewardCooldown time.Duration `mapstructure:"message_reward_cooldown" validate:"gt=0"`
	VoiceReward           int64         `mapstructure:"voice_reward" validate:"gte=0"`
	VoiceRewardInterval   time.Duration `mapstructure:"voice_reward_interval" validate:"gt=0"`
	LeaderboardSize       int           `mapstructure:"leaderboard_size" validate:"gte=1,lte=25"`
	StatsInterval         time.Duration `mapstructure:"stats_interval"`
}

// RabbitMQConfig configures the RabbitMQ event publisher.
type RabbitMQConfig struct {
	URL   string `mapstructure:"url"`
	Queue string `mapstructure:"queue"`
}

// KafkaConfig configures the Kafka event publisher.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// EventsConfig selects where ledger events are published.
type EventsConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=none rabbitmq kafka"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
}

// GetDBConnectionString returns PostgreSQL DSN based on config values.
func (c *Config) GetDBConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s connect_timeout=%d",
		c.Database.Host,
		c.Database.Port,
		c.Database.User,
		c.Database.Password,
		c.Database.Name,
		c.Database.SSLMode,
		c.Database.ConnectTimeout,
	)
}
