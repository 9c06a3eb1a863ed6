package server

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/dvcrn/storefront-api-proxy/internal/authclient"
	"github.com/dvcrn/storefront-api-proxy/internal/config"
	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
	apihttp "github.com/dvcrn/storefront-api-proxy/internal/http"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
	"github.com/dvcrn/storefront-api-proxy/internal/metrics"
)

// Server is the storefront gateway: it forwards /api calls to the backend
// through an authclient.Client and exposes the admin endpoints that manage
// the session.
type Server struct {
	cfg        *config.Config
	client     *authclient.Client
	httpClient apihttp.HTTPClient
	registry   *prometheus.Registry
	mux        *http.ServeMux
	log        *zerolog.Logger

	mu             sync.Mutex
	invalidatedAt  time.Time
	invalidatedErr string
}

// NewServer wires the gateway. transport carries both business calls and
// login calls; refresher renews the credential; store may be nil.
func NewServer(cfg *config.Config, transport apihttp.HTTPClient, refresher credentials.Refresher, store credentials.Store, registry *prometheus.Registry) (*Server, error) {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	s := &Server{
		cfg:        cfg,
		httpClient: transport,
		registry:   registry,
		mux:        http.NewServeMux(),
		log:        logger.Component("server"),
	}

	opts := []authclient.Option{
		authclient.WithBaseURL(cfg.BackendURL),
		authclient.WithExemptPaths(cfg.ExemptPaths...),
		authclient.WithExpiryPhrases(cfg.ExpiryPhrases...),
		authclient.WithPublicLocations(cfg.PublicLocations...),
		authclient.WithRefreshTimeout(cfg.RefreshTimeout),
		authclient.WithMetrics(metrics.NewCollector(registry)),
		authclient.WithSessionInvalidHandler(s.onSessionInvalid),
	}
	if store != nil {
		opts = append(opts, authclient.WithStore(store))
	}

	client, err := authclient.New(transport, refresher, opts...)
	if err != nil {
		return nil, err
	}
	s.client = client
	s.setupRoutes()

	return s, nil
}

// Client exposes the underlying authenticated client.
func (s *Server) Client() *authclient.Client {
	return s.client
}

// LoadCredentials restores the persisted credential, if any.
func (s *Server) LoadCredentials(ctx context.Context) error {
	restored, err := s.client.Restore(ctx)
	if err != nil {
		return err
	}
	if restored {
		s.log.Info().Str("store", s.client.StoreName()).Msg("Restored credential")
	}
	return nil
}

// Start serves on addr until ctx is done. When a sync interval is
// configured the persisted credential is re-read periodically, so a login
// made through another replica is picked up.
func (s *Server) Start(ctx context.Context, addr string) error {
	if err := s.LoadCredentials(ctx); err != nil {
		s.log.Error().Err(err).Msg("Failed to load credentials")
		s.log.Warn().Msg("The proxy will run but backend calls will fail until a login")
	}

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.Info().Msgf("Starting proxy server on %s", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})
	if s.cfg.SyncInterval > 0 {
		g.Go(func() error {
			s.syncCredentials(ctx, s.cfg.SyncInterval)
			return nil
		})
	}
	return g.Wait()
}

// syncCredentials re-reads the store every interval until ctx is done.
func (s *Server) syncCredentials(ctx context.Context, interval time.Duration) {
	s.log.Info().Dur("sync_interval", interval).Msg("Starting periodic credential sync")

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.log.Debug().Msg("Running periodic credential sync...")
			if err := s.LoadCredentials(ctx); err != nil {
				s.log.Error().Err(err).Msg("Error during periodic credential sync")
			}
		}
	}
}

// onSessionInvalid records the last invalidation for the status endpoint.
func (s *Server) onSessionInvalid(ctx context.Context, err error) {
	s.mu.Lock()
	s.invalidatedAt = time.Now()
	s.invalidatedErr = err.Error()
	s.mu.Unlock()

	s.log.Warn().
		Str("location", authclient.LocationFrom(ctx)).
		Str("redirect", s.cfg.LoginRedirect).
		Msg("Session invalidated, login required")
}

func (s *Server) lastInvalidation() (time.Time, string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.invalidatedAt, s.invalidatedErr
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/api/", s.proxyHandler)
	s.mux.HandleFunc("/admin/login", s.adminMiddleware(s.loginHandler))
	s.mux.HandleFunc("/admin/credentials", s.adminMiddleware(s.credentialsHandler))
	s.mux.HandleFunc("/admin/credentials/status", s.adminMiddleware(s.credentialsStatusHandler))
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

// ServeHTTP implements http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	loggingMiddleware(s.mux).ServeHTTP(w, r)
}
