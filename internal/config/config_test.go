package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("POSTGRES_CONN", "postgres://localhost/rfq")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DATABASE_DRIVER", "")
	t.Setenv("SERVER_ADDRESS", "")
	t.Setenv("RFQ_RATE_LIMIT_GUEST", "")
	t.Setenv("RFQ_RATE_LIMIT_AUTH", "")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, "0.0.0.0:8080", cfg.Server.Address)
	require.Equal(t, "postgres", cfg.Database.Driver)
	require.Equal(t, "postgres://localhost/rfq", cfg.Database.URL)
	require.Equal(t, 10, cfg.RateLimit.GuestPerHour)
	require.Equal(t, 20, cfg.RateLimit.AuthPerHour)
	require.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadRequiresSecret(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	require.Contains(t, err.Error(), "JWT_SECRET")
}

func TestLoadRejectsBadLimit(t *testing.T) {
	t.Setenv("DATABASE_URL", "file:test.db")
	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("RFQ_RATE_LIMIT_GUEST", "ten")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsDriver(t *testing.T) {
	t.Setenv("DATABASE_URL", "mysql://x")
	t.Setenv("DATABASE_DRIVER", "mysql")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	require.Error(t, err)
}
