package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/dvcrn/storefront-api-proxy/internal/config"
	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
	apihttp "github.com/dvcrn/storefront-api-proxy/internal/http"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
	"github.com/dvcrn/storefront-api-proxy/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("Invalid configuration")
	}

	store, err := newStore(cfg)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("Failed to create credential store")
	}

	httpClient := apihttp.NewHTTPClient(cfg.RequestTimeout)

	var refresher credentials.Refresher
	if cfg.UsesOAuth2() {
		refresher = credentials.NewOAuth2Refresher(cfg.OAuthTokenURL, cfg.OAuthClientID, cfg.OAuthClientSecret, &http.Client{Timeout: cfg.RefreshTimeout})
		logger.Get().Info().Str("token_url", cfg.OAuthTokenURL).Msg("Using OAuth2 token refresh")
	} else {
		refresher = credentials.NewEndpointRefresher(httpClient, cfg.RefreshURL())
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	srv, err := server.NewServer(cfg, httpClient, refresher, store, registry)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("Failed to create server")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Start(ctx, ":"+cfg.Port); err != nil {
		logger.Get().Fatal().Err(err).Msg("Failed to start server")
	}
}

func newStore(cfg *config.Config) (credentials.Store, error) {
	switch cfg.CredentialStore {
	case config.StoreFile:
		store, err := credentials.NewFileStore(cfg.CredsPath)
		if err != nil {
			return nil, err
		}
		logger.Get().Info().Str("path", store.Path()).Msg("Using file credential store")
		return store, nil
	case config.StoreRedis:
		client := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		logger.Get().Info().Str("addr", cfg.RedisAddr).Msg("Using redis credential store")
		return credentials.NewRedisStore(client, cfg.RedisKey, cfg.RedisTTL), nil
	default:
		return credentials.NewMemoryStore(), nil
	}
}
