package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestFromViperDefaults(t *testing.T) {
	v := viper.New()
	setDefaults(v)

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverPostgres, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 30, cfg.Ledger.DefaultPeriodDays)
	assert.Equal(t, 8, cfg.Ledger.DefaultClassLimit)
	assert.Equal(t, 3, cfg.Ledger.RetryAttempts)
	assert.Equal(t, 100*time.Millisecond, cfg.Ledger.RetryBackoff)
	assert.False(t, cfg.FeeCache.Enabled)
	assert.Equal(t, "15 0 * * *", cfg.Expiry.Schedule)
	assert.Equal(t, 72*time.Hour, cfg.Receipts.LinkTTL)
}

func TestFromViperOverrides(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("STORE_DRIVER", "MEMORY")
	v.Set("STORE_TIMEOUT", "not-a-duration")
	v.Set("LEDGER_RETRY_ATTEMPTS", -1)
	v.Set("ALLOWED_ORIGINS", "https://academy.test, ,https://admin.academy.test")

	cfg := fromViper(v)
	assert.Equal(t, StoreDriverMemory, cfg.Store.Driver)
	assert.Equal(t, 5*time.Second, cfg.Store.Timeout)
	assert.Equal(t, 3, cfg.Ledger.RetryAttempts)
	assert.Equal(t, []string{"https://academy.test", "https://admin.academy.test"}, cfg.CORS.AllowedOrigins)
}

func TestValidateRequiresSecretsInProduction(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	cfg := fromViper(v)
	assert.NoError(t, cfg.Validate())

	cfg.Env = EnvProduction
	assert.ErrorContains(t, cfg.Validate(), "JWT_SECRET")

	cfg.JWT.Secret = "prod-jwt"
	assert.ErrorContains(t, cfg.Validate(), "PAYMENT_WEBHOOK_SECRET")

	cfg.Webhook.Secret = "  "
	assert.ErrorContains(t, cfg.Validate(), "PAYMENT_WEBHOOK_SECRET")

	cfg.Webhook.Secret = "prod-webhook"
	cfg.Receipts.LinkSecret = ""
	assert.ErrorContains(t, cfg.Validate(), "RECEIPT_LINK_SECRET")

	cfg.Receipts.LinkSecret = "prod-receipt"
	assert.NoError(t, cfg.Validate())
}
