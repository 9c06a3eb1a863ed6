package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dvcrn/storefront-api-proxy/internal/authclient"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://api.shop.test/v1/")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9877", cfg.Port)
	assert.Equal(t, "https://api.shop.test/v1", cfg.BackendURL)
	assert.Equal(t, "https://api.shop.test/v1/auth/refresh", cfg.RefreshURL())
	assert.Equal(t, "https://api.shop.test/v1/auth/login", cfg.LoginURL())
	assert.Equal(t, []string{"/auth/login", "/auth/refresh"}, cfg.ExemptPaths)
	assert.Equal(t, authclient.DefaultPublicLocations, cfg.PublicLocations)
	assert.Equal(t, authclient.DefaultExpiryPhrases, cfg.ExpiryPhrases)
	assert.Equal(t, authclient.DefaultRefreshTimeout, cfg.RefreshTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout)
	assert.Zero(t, cfg.SyncInterval)
	assert.Equal(t, StoreMemory, cfg.CredentialStore)
	assert.False(t, cfg.UsesOAuth2())
	assert.Equal(t, "/login", cfg.LoginRedirect)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("BACKEND_URL", "http://backend:8080")
	t.Setenv("REFRESH_PATH", "session/renew")
	t.Setenv("EXEMPT_PATHS", "/auth/register, /health")
	t.Setenv("REFRESH_TIMEOUT", "3s")
	t.Setenv("REQUEST_TIMEOUT", "nonsense")
	t.Setenv("CREDENTIAL_STORE", "Redis")
	t.Setenv("OAUTH_TOKEN_URL", "https://idp.test/token")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://backend:8080/session/renew", cfg.RefreshURL())
	assert.Equal(t, []string{"/auth/login", "session/renew", "/auth/register", "/health"}, cfg.ExemptPaths)
	assert.Equal(t, 3*time.Second, cfg.RefreshTimeout)
	assert.Equal(t, 30*time.Second, cfg.RequestTimeout, "bad values fall back to the default")
	assert.Equal(t, StoreRedis, cfg.CredentialStore)
	assert.True(t, cfg.UsesOAuth2())
}

func TestLoadErrors(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	_, err := Load()
	require.Error(t, err)

	t.Setenv("BACKEND_URL", "not a url")
	_, err = Load()
	require.Error(t, err)

	t.Setenv("BACKEND_URL", "http://backend")
	t.Setenv("CREDENTIAL_STORE", "etcd")
	_, err = Load()
	require.Error(t, err)
}
