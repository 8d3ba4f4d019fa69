package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("STAGELY_APP_ENV", "dev")
	t.Setenv("STAGELY_APP_PORT", "8080")
	t.Setenv("STAGELY_REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("STAGELY_JWT_SECRET", "test-secret")
	t.Setenv("STAGELY_JWT_ISSUER", "stagely")
}

func TestLoadWithExplicitDSN(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAGELY_DB_DSN", "postgres://app:pw@localhost:5432/stagely?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	require.Equal(t, "postgres://app:pw@localhost:5432/stagely?sslmode=disable", cfg.DB.DSN)
	require.True(t, cfg.App.IsDev())
	require.False(t, cfg.App.IsProd())
	require.Equal(t, "api", cfg.Service.Kind)
	require.Equal(t, 15*time.Minute, cfg.Sync.Interval)
	require.Equal(t, 200, cfg.Sync.BatchSize)
	require.Equal(t, 10*time.Minute, cfg.Sync.LockTTL)
	require.Equal(t, 50, cfg.Plans.StandardPhotoLimit)
	require.Equal(t, 300, cfg.Plans.AgencyPhotoLimit)
	require.Equal(t, 5, cfg.Plans.FreePhotoLimit)
	require.Equal(t, 60, cfg.JWT.ExpirationMinutes)
}

func TestLoadBuildsDSNFromLegacyParts(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAGELY_DB_DSN", "")
	t.Setenv("STAGELY_DB_HOST", "db.internal")
	t.Setenv("STAGELY_DB_USER", "app")
	t.Setenv("STAGELY_DB_PASSWORD", "pw")
	t.Setenv("STAGELY_DB_NAME", "stagely")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "postgres://app:pw@db.internal:5432/stagely?sslmode=disable", cfg.DB.DSN)
}

func TestLoadMissingDatabaseConfigFails(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("STAGELY_DB_DSN", "")
	t.Setenv("STAGELY_DB_HOST", "db.internal")
	t.Setenv("STAGELY_DB_USER", "")
	t.Setenv("STAGELY_DB_NAME", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "STAGELY_DB_USER")
}

func TestStripeEnvironmentNormalized(t *testing.T) {
	require.Equal(t, "live", StripeConfig{Env: " Live "}.Environment())
	require.Equal(t, "test", StripeConfig{}.Environment())
}
