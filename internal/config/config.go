package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/dvcrn/storefront-api-proxy/internal/authclient"
	"github.com/dvcrn/storefront-api-proxy/internal/env"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
)

// Credential store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreKV     = "kv"
)

// Config is the gateway configuration, read from the environment.
type Config struct {
	Port       string
	BackendURL string

	RefreshPath     string
	LoginPath       string
	ExemptPaths     []string
	PublicLocations []string
	ExpiryPhrases   []string
	LoginRedirect   string

	RefreshTimeout time.Duration
	RequestTimeout time.Duration
	SyncInterval   time.Duration

	CredentialStore string
	CredsPath       string
	RedisAddr       string
	RedisKey        string
	RedisTTL        time.Duration

	OAuthTokenURL     string
	OAuthClientID     string
	OAuthClientSecret string

	AdminAPIKey string
}

// Load reads the configuration. BACKEND_URL is required.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              env.GetOrDefault("PORT", "9877"),
		RefreshPath:       env.GetOrDefault("REFRESH_PATH", "/auth/refresh"),
		LoginPath:         env.GetOrDefault("LOGIN_PATH", "/auth/login"),
		PublicLocations:   env.GetList("PUBLIC_LOCATIONS", authclient.DefaultPublicLocations),
		ExpiryPhrases:     env.GetList("EXPIRY_PHRASES", authclient.DefaultExpiryPhrases),
		LoginRedirect:     env.GetOrDefault("LOGIN_REDIRECT", "/login"),
		RefreshTimeout:    duration("REFRESH_TIMEOUT", authclient.DefaultRefreshTimeout),
		RequestTimeout:    duration("REQUEST_TIMEOUT", 30*time.Second),
		SyncInterval:      duration("CREDENTIAL_SYNC_INTERVAL", 0),
		CredentialStore:   strings.ToLower(env.GetOrDefault("CREDENTIAL_STORE", StoreMemory)),
		CredsPath:         env.GetOrDefault("STOREFRONT_CREDS_PATH", ""),
		RedisAddr:         env.GetOrDefault("REDIS_ADDR", "127.0.0.1:6379"),
		RedisKey:          env.GetOrDefault("REDIS_KEY", ""),
		RedisTTL:          duration("REDIS_TTL", 0),
		OAuthTokenURL:     env.GetOrDefault("OAUTH_TOKEN_URL", ""),
		OAuthClientID:     env.GetOrDefault("OAUTH_CLIENT_ID", ""),
		OAuthClientSecret: env.GetOrDefault("OAUTH_CLIENT_SECRET", ""),
		AdminAPIKey:       env.GetOrDefault("ADMIN_API_KEY", ""),
	}

	backend, ok := env.Get("BACKEND_URL")
	if !ok {
		return nil, fmt.Errorf("BACKEND_URL is required")
	}
	u, err := url.Parse(backend)
	if err != nil || !u.IsAbs() {
		return nil, fmt.Errorf("BACKEND_URL %q is not an absolute URL", backend)
	}
	cfg.BackendURL = strings.TrimRight(backend, "/")

	switch cfg.CredentialStore {
	case StoreMemory, StoreFile, StoreRedis, StoreKV:
	default:
		return nil, fmt.Errorf("unknown CREDENTIAL_STORE %q", cfg.CredentialStore)
	}

	// The login and refresh endpoints must never trigger a refresh themselves.
	cfg.ExemptPaths = append([]string{cfg.LoginPath, cfg.RefreshPath}, env.GetList("EXEMPT_PATHS", nil)...)

	return cfg, nil
}

func duration(key string, def time.Duration) time.Duration {
	d, ok := env.GetDuration(key, def)
	if !ok {
		raw, _ := env.Get(key)
		logger.Get().Warn().Str("key", key).Str("value", raw).Dur("default", def).Msg("Invalid duration, using default")
	}
	return d
}

// RefreshURL is the absolute refresh endpoint.
func (c *Config) RefreshURL() string {
	return c.BackendURL + "/" + strings.TrimLeft(c.RefreshPath, "/")
}

// LoginURL is the absolute login endpoint.
func (c *Config) LoginURL() string {
	return c.BackendURL + "/" + strings.TrimLeft(c.LoginPath, "/")
}

// UsesOAuth2 reports whether refresh goes through an OAuth2 token endpoint
// instead of the backend's refresh path.
func (c *Config) UsesOAuth2() bool {
	return c.OAuthTokenURL != ""
}
