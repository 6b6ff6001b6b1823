package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("ENV", "development")
	t.Setenv("JWT_SECRET", "")
	t.Setenv("LOW_STOCK_THRESHOLD", "")

	cfg := Load()
	assert.Equal(t, DevJWTSecret, cfg.Auth.JWTSecret)
	assert.Equal(t, 5, cfg.Business.LowStockThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsDefaultSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "")

	cfg := Load()
	assert.ErrorIs(t, cfg.Validate(), ErrInsecureSecret)

	t.Setenv("JWT_SECRET", DevJWTSecret)
	assert.ErrorIs(t, Load().Validate(), ErrInsecureSecret)
}

func TestValidateAcceptsCustomSecretInProduction(t *testing.T) {
	t.Setenv("ENV", "production")
	t.Setenv("JWT_SECRET", "a-long-random-secret")

	cfg := Load()
	require.Equal(t, "a-long-random-secret", cfg.Auth.JWTSecret)
	assert.NoError(t, cfg.Validate())
}
