package authclient

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
	"github.com/dvcrn/storefront-api-proxy/internal/metrics"
)

// Option configures a Client.
type Option func(*Client)

// DefaultRefreshTimeout bounds a single refresh call.
const DefaultRefreshTimeout = 15 * time.Second

// DefaultPublicLocations are locations where a failed refresh does not signal
// session invalidation, since the user is already somewhere unauthenticated.
var DefaultPublicLocations = []string{"/login", "/register", "/forgot-password", "/auth"}

// SessionInvalidHandler is called once per failed refresh unless the caller's
// location is public. err is the RefreshFailedError handed to callers.
type SessionInvalidHandler func(ctx context.Context, err error)

// WithBaseURL sets the URL relative request URLs are resolved against.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.rawBaseURL = baseURL
	}
}

// WithExemptPaths adds paths whose auth failures are returned unchanged and
// never trigger a refresh. The login and refresh endpoints belong here.
func WithExemptPaths(paths ...string) Option {
	return func(c *Client) {
		c.exemptPaths = append(c.exemptPaths, paths...)
	}
}

// WithExpiryPhrases replaces the phrases that mark a 403 as a credential problem.
func WithExpiryPhrases(phrases ...string) Option {
	return func(c *Client) {
		c.expiryPhrases = append([]string(nil), phrases...)
	}
}

// WithRefreshTimeout bounds each refresh call.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.refreshTimeout = d
		}
	}
}

// WithStore mirrors credential changes into store.
func WithStore(store credentials.Store) Option {
	return func(c *Client) {
		c.store = store
	}
}

// WithLogger sets the logger.
func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithMetrics enables metrics collection.
func WithMetrics(m *metrics.Collector) Option {
	return func(c *Client) {
		c.metrics = m
	}
}

// WithSessionInvalidHandler sets the hook signalled when a refresh fails.
func WithSessionInvalidHandler(h SessionInvalidHandler) Option {
	return func(c *Client) {
		c.onSessionInvalid = h
	}
}

// WithPublicLocations replaces the public location prefixes.
func WithPublicLocations(prefixes ...string) Option {
	return func(c *Client) {
		c.publicLocations = append([]string(nil), prefixes...)
	}
}

// WithCredential sets the initial credential.
func WithCredential(cred credentials.Credential) Option {
	return func(c *Client) {
		c.cred = cred
	}
}
