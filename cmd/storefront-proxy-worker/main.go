//go:build js && wasm

package main

import (
	"context"

	"github.com/syumai/workers"

	"github.com/dvcrn/storefront-api-proxy/internal/config"
	"github.com/dvcrn/storefront-api-proxy/internal/credentials"
	apihttp "github.com/dvcrn/storefront-api-proxy/internal/http"
	"github.com/dvcrn/storefront-api-proxy/internal/logger"
	"github.com/dvcrn/storefront-api-proxy/internal/server"
)

var srv *server.Server

func init() {
	cfg, err := config.Load()
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("Invalid configuration")
	}

	httpClient := apihttp.NewHTTPClient(cfg.RequestTimeout)

	var store credentials.Store
	if kv, err := credentials.NewKVStore(); err != nil {
		// Continue without persistence, a login is needed after every cold start
		logger.Get().Error().Err(err).Msg("Failed to open KV credential store")
	} else {
		store = kv
	}

	srv, err = server.NewServer(cfg, httpClient, credentials.NewEndpointRefresher(httpClient, cfg.RefreshURL()), store, nil)
	if err != nil {
		logger.Get().Fatal().Err(err).Msg("Failed to create server")
	}

	if err := srv.LoadCredentials(context.Background()); err != nil {
		logger.Get().Error().Err(err).Msg("Failed to load credentials")
		logger.Get().Warn().Msg("The proxy will run but backend calls will fail until a login")
	}
}

func main() {
	// Serve using workers - it handles all the HTTP server setup
	workers.Serve(srv)
}
