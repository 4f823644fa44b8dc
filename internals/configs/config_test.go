package configs

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PAYMENT_CURRENCY", "idr")
	t.Setenv("FEE_TX_TIMEOUT", "")

	cfg := Load(viper.New())

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, "IDR", cfg.Currency)
	assert.Equal(t, "require", cfg.DBSSLMode)
	assert.Equal(t, 60*time.Second, cfg.ReportCacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.PendingPaymentTTL)
	assert.False(t, cfg.MidtransUseProd)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("FEE_TX_TIMEOUT", "2s")
	t.Setenv("MIDTRANS_USE_PROD", "true")
	t.Setenv("CHECKOUT_SECRET", "s3cret")

	cfg := Load(viper.New())

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 2*time.Second, cfg.TxTimeout)
	assert.True(t, cfg.MidtransUseProd)
	assert.Equal(t, "s3cret", cfg.CheckoutSecret)
}

func TestGetEnvDefault(t *testing.T) {
	assert.Equal(t, "fallback", GetEnv("FEELEDGER_SURELY_UNSET_KEY", "fallback"))
	t.Setenv("FEELEDGER_SET_KEY", "v")
	assert.Equal(t, "v", GetEnv("FEELEDGER_SET_KEY", "fallback"))
}
