package app

import (
	"context"
	"log/slog"

	httpapp "shadowsentry/internal/app/httpserver"
	"shadowsentry/internal/config"
	sentryhttp "shadowsentry/internal/http"
	"shadowsentry/internal/http/handlers"
	"shadowsentry/internal/lib/jwt"
	"shadowsentry/internal/services/auth"
	"shadowsentry/internal/services/feeds"
	"shadowsentry/internal/services/feeds/hibp"
	"shadowsentry/internal/services/incident"
	"shadowsentry/internal/services/watchlist"
	"shadowsentry/internal/storage/mongodb"
)

type App struct {
	HTTPSrv *httpapp.App

	storage *mongodb.Storage
	logger  *slog.Logger
}

func New(ctx context.Context, logger *slog.Logger, cfg *config.Config) *App {
	storage, err := mongodb.New(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		panic(err)
	}

	signer, err := jwt.NewSigner(cfg.JWT.Secret, cfg.JWT.Issuer)
	if err != nil {
		panic(err)
	}

	watchlistService := watchlist.New(logger, storage)
	incidentService := incident.New(logger, storage, watchlistService)
	authService := auth.New(
		logger,
		storage,
		storage,
		storage,
		watchlistService,
		signer,
		cfg.JWT.AccessTokenTTL,
		cfg.JWT.RefreshTokenTTL,
	)

	hibpFeed := hibp.New(logger, cfg.HIBP.BaseURL, cfg.HIBP.APIKey, cfg.HIBP.UserAgent, cfg.HIBP.Timeout)
	orchestrator := feeds.New(logger, incidentService, hibpFeed)

	router := sentryhttp.NewRouter(signer, sentryhttp.Handlers{
		Auth:      handlers.NewAuthHandler(logger, authService, cfg.JWT.AccessTokenTTL, cfg.JWT.RefreshTokenTTL),
		Incidents: handlers.NewIncidentHandler(logger, incidentService, orchestrator),
		Watchlist: handlers.NewWatchlistHandler(logger, watchlistService),
		Feeds:     handlers.NewFeedHandler(logger, orchestrator),
	})

	httpApp := httpapp.New(logger, router, cfg.HTTP.Address, cfg.HTTP.ReadTimeout, cfg.HTTP.IdleTimeout)

	return &App{
		HTTPSrv: httpApp,
		storage: storage,
		logger:  logger,
	}
}

// Stop shuts the server down gracefully and releases the storage connection.
func (a *App) Stop(ctx context.Context) {
	a.HTTPSrv.Stop(ctx)

	if err := a.storage.Close(ctx); err != nil {
		a.logger.Error("failed to close storage", slog.String("error", err.Error()))
	}
}
