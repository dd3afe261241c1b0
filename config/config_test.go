package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, env := range []string{"PORT", "DB_DRIVER", "BLOB_BACKEND", "REQUEST_TIMEOUT", "MAX_UPLOAD_BYTES", "PAYMENT_TOKEN_DECIMALS", "ALLOWED_ORIGINS"} {
		t.Setenv(env, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, 24*time.Hour, cfg.Requests.Timeout)
	assert.Equal(t, int64(5*1024*1024), cfg.Requests.MaxUploadBytes)
	assert.Equal(t, int32(18), cfg.Chain.PaymentTokenDecimals)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.App.AllowedOrigins)
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DB_DRIVER", " Postgres ")
	t.Setenv("REQUEST_TIMEOUT", "48h")
	t.Setenv("ALLOWED_ORIGINS", "https://app.example.com, ,https://admin.example.com")
	t.Setenv("CHAIN_ID", "8453")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, 48*time.Hour, cfg.Requests.Timeout)
	assert.Equal(t, int64(8453), cfg.Chain.ChainID)
	assert.Equal(t, []string{"https://app.example.com", "https://admin.example.com"}, cfg.App.AllowedOrigins)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := &Config{}
		cfg.Auth.JWTSecret = "secret"
		cfg.Auth.AdminSecret = "admin"
		cfg.Database.Driver = "sqlite"
		cfg.Blob.Backend = "local"
		cfg.Requests.Timeout = time.Hour
		return cfg
	}
	require.NoError(t, valid().Validate())

	cfg := valid()
	cfg.Auth.JWTSecret = ""
	cfg.Blob.Backend = "pinata"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "PINATA_JWT")

	cfg = valid()
	cfg.Database.Driver = "mysql"
	assert.ErrorContains(t, cfg.Validate(), "DB_DRIVER")

	cfg = valid()
	cfg.Blob.Backend = "r2"
	assert.ErrorContains(t, cfg.Validate(), "R2_BUCKET_NAME")
}

func TestChainEnabled(t *testing.T) {
	cfg := &Config{}
	assert.False(t, cfg.ChainEnabled())
	cfg.Chain.RPCURL = "http://localhost:8545"
	cfg.Chain.PrivateKey = "abc"
	cfg.Chain.OrchestratorAddress = "0x0000000000000000000000000000000000000001"
	assert.True(t, cfg.ChainEnabled())
}
