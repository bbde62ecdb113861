package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

type App struct {
	logger  *slog.Logger
	server  *http.Server
	address string
}

func New(
	logger *slog.Logger,
	handler http.Handler,
	address string,
	readTimeout time.Duration,
	idleTimeout time.Duration,
) *App {
	server := &http.Server{
		Addr:        address,
		Handler:     handler,
		ReadTimeout: readTimeout,
		IdleTimeout: idleTimeout,
	}
	return &App{
		logger:  logger,
		server:  server,
		address: address,
	}
}

func (a *App) MustRun() {
	if err := a.Run(); err != nil {
		panic(err)
	}
}

func (a *App) Run() error {
	const op = "httpserver.Run"

	log := a.logger.With(
		slog.String("op", op),
		slog.String("address", a.address),
	)

	log.Info("HTTP server is running")

	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("%s: %w", op, err)
	}

	return nil
}

func (a *App) Stop(ctx context.Context) {
	const op = "httpserver.Stop"
	log := a.logger.With(slog.String("op", op))
	log.Info("stopping HTTP server", slog.String("address", a.address))

	if err := a.server.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", slog.String("error", err.Error()))
	}
}
