package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Store drivers.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	CORS     CORSConfig
	Log      LogConfig
	Store    StoreConfig
	Ledger   LedgerConfig
	FeeCache FeeCacheConfig
	Webhook  WebhookConfig
	Expiry   ExpiryConfig
	Receipts ReceiptsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// JWTConfig holds the shared secret used to verify tokens issued by the account system.
type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// StoreConfig selects the entity store backend and bounds every transaction.
type StoreConfig struct {
	Driver  string
	Timeout time.Duration
}

// LedgerConfig holds provisioning defaults and the retry policy for infrastructure failures.
type LedgerConfig struct {
	DefaultPeriodDays int
	DefaultClassLimit int
	RetryAttempts     int
	RetryBackoff      time.Duration
	RetryMaxBackoff   time.Duration
}

// FeeCacheConfig toggles the Redis read cache for fee status.
type FeeCacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// WebhookConfig configures the payment gateway callback endpoint.
type WebhookConfig struct {
	Secret        string
	RatePerSecond int
	Burst         int
}

// ExpiryConfig controls the periodic subscription expiry sweep.
type ExpiryConfig struct {
	Enabled  bool
	Schedule string
}

// ReceiptsConfig customises rendered payment receipts.
type ReceiptsConfig struct {
	AcademyName string
	LinkSecret  string
	LinkTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := fromViper(v)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Development secrets shipped as defaults. Production refuses to start with them.
const (
	devJWTSecret     = "dev_secret"
	devWebhookSecret = "dev_webhook_secret"
	devReceiptSecret = "dev_receipt_secret"
)

// Validate rejects settings that would leave a production deployment unauthenticated.
func (c *Config) Validate() error {
	if c.Env != EnvProduction {
		return nil
	}
	secrets := []struct {
		key, value, dev string
	}{
		{"JWT_SECRET", c.JWT.Secret, devJWTSecret},
		{"PAYMENT_WEBHOOK_SECRET", c.Webhook.Secret, devWebhookSecret},
		{"RECEIPT_LINK_SECRET", c.Receipts.LinkSecret, devReceiptSecret},
	}
	for _, secret := range secrets {
		if strings.TrimSpace(secret.value) == "" || secret.value == secret.dev {
			return fmt.Errorf("%s must be set to a non-default value in production", secret.key)
		}
	}
	return nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	driver := strings.ToLower(v.GetString("STORE_DRIVER"))
	if driver != StoreDriverMemory {
		driver = StoreDriverPostgres
	}
	cfg.Store = StoreConfig{
		Driver:  driver,
		Timeout: parseDuration(v.GetString("STORE_TIMEOUT"), 5*time.Second),
	}

	cfg.Ledger = LedgerConfig{
		DefaultPeriodDays: positiveOr(v.GetInt("LEDGER_DEFAULT_PERIOD_DAYS"), 30),
		DefaultClassLimit: positiveOr(v.GetInt("LEDGER_DEFAULT_CLASS_LIMIT"), 8),
		RetryAttempts:     positiveOr(v.GetInt("LEDGER_RETRY_ATTEMPTS"), 3),
		RetryBackoff:      parseDuration(v.GetString("LEDGER_RETRY_BACKOFF"), 100*time.Millisecond),
		RetryMaxBackoff:   parseDuration(v.GetString("LEDGER_RETRY_MAX_BACKOFF"), 2*time.Second),
	}

	cfg.FeeCache = FeeCacheConfig{
		Enabled: v.GetBool("ENABLE_FEE_CACHE"),
		TTL:     parseDuration(v.GetString("FEE_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Webhook = WebhookConfig{
		Secret:        v.GetString("PAYMENT_WEBHOOK_SECRET"),
		RatePerSecond: positiveOr(v.GetInt("PAYMENT_WEBHOOK_RPS"), 10),
		Burst:         positiveOr(v.GetInt("PAYMENT_WEBHOOK_BURST"), 20),
	}

	cfg.Expiry = ExpiryConfig{
		Enabled:  v.GetBool("ENABLE_EXPIRY_SWEEP"),
		Schedule: v.GetString("EXPIRY_SWEEP_CRON"),
	}

	cfg.Receipts = ReceiptsConfig{
		AcademyName: v.GetString("RECEIPT_ACADEMY_NAME"),
		LinkSecret:  v.GetString("RECEIPT_LINK_SECRET"),
		LinkTTL:     parseDuration(v.GetString("RECEIPT_LINK_TTL"), 72*time.Hour),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "academy_ledger")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", devJWTSecret)

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)
	v.SetDefault("STORE_TIMEOUT", "5s")

	v.SetDefault("LEDGER_DEFAULT_PERIOD_DAYS", 30)
	v.SetDefault("LEDGER_DEFAULT_CLASS_LIMIT", 8)
	v.SetDefault("LEDGER_RETRY_ATTEMPTS", 3)
	v.SetDefault("LEDGER_RETRY_BACKOFF", "100ms")
	v.SetDefault("LEDGER_RETRY_MAX_BACKOFF", "2s")

	v.SetDefault("ENABLE_FEE_CACHE", false)
	v.SetDefault("FEE_CACHE_TTL", "5m")

	v.SetDefault("PAYMENT_WEBHOOK_SECRET", devWebhookSecret)
	v.SetDefault("PAYMENT_WEBHOOK_RPS", 10)
	v.SetDefault("PAYMENT_WEBHOOK_BURST", 20)

	v.SetDefault("ENABLE_EXPIRY_SWEEP", false)
	v.SetDefault("EXPIRY_SWEEP_CRON", "15 0 * * *")

	v.SetDefault("RECEIPT_ACADEMY_NAME", "Art Academy")
	v.SetDefault("RECEIPT_LINK_SECRET", devReceiptSecret)
	v.SetDefault("RECEIPT_LINK_TTL", "72h")
}

func isMissingFile(err error) bool {
	return strings.Contains(err.Error(), "no such file or directory")
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func positiveOr(value, fallback int) int {
	if value <= 0 {
		return fallback
	}
	return value
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
