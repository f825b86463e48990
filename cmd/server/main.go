package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"maze-scores/internal/config"
	"maze-scores/internal/constants"
	fxmodules "maze-scores/internal/fx"
	"maze-scores/internal/metrics"
	"maze-scores/internal/repository"
	"maze-scores/internal/server"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	scoreServer *server.ScoreServer,
	store repository.ScoreStore,
	m *metrics.Metrics,
	cfg *config.Config,
	logger zerolog.Logger,
) {
	logger.Info().
		Str("env", cfg.Env).
		Str("store_driver", cfg.StoreDriver).
		Str("server_port", cfg.ServerPort).
		Str("log_level", cfg.LogLevel.String()).
		Bool("delete_gate", cfg.DeleteGateEnabled()).
		Msg("configuration loaded")

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           server.NewRouter(scoreServer, m, logger),
		ReadHeaderTimeout: constants.ReadHeaderTimeout,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				logger.Info().Str("addr", srv.Addr).Msg("server starting")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					logger.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return shutdown(srv, store, logger)
		},
	})
}

type httpServer interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops accepting connections, drains in-flight requests and only
// then closes the store. The store is closed even when draining fails.
func shutdown(srv httpServer, store repository.ScoreStore, logger zerolog.Logger) error {
	logger.Info().Msg("closing HTTP server connections")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
	defer cancel()

	shutdownErr := srv.Shutdown(shutdownCtx)
	if shutdownErr != nil {
		logger.Error().Err(shutdownErr).Msg("server shutdown failed")
	}

	logger.Info().Msg("closing database connections")
	if err := store.Close(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("error closing database connection")
	}

	if shutdownErr != nil {
		return shutdownErr
	}
	logger.Info().Msg("server stopped gracefully")
	return nil
}
