package fx

import (
	"context"
	"fmt"

	"maze-scores/internal/config"
	"maze-scores/internal/database"
	"maze-scores/internal/logger"
	"maze-scores/internal/metrics"
	"maze-scores/internal/repository"
	"maze-scores/internal/server"
	"maze-scores/internal/service"

	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

// ProvideStore opens the backend selected by STORE_DRIVER.
func ProvideStore(cfg *config.Config, logger zerolog.Logger) (repository.ScoreStore, error) {
	switch cfg.StoreDriver {
	case config.DriverSQLite:
		db, err := database.NewSQLite(cfg.DBPath, logger)
		if err != nil {
			return nil, err
		}
		return repository.NewSQLiteScoreRepository(db, logger), nil

	case config.DriverMongo:
		ctx := context.Background()
		logger.Info().
			Str("uri", cfg.RedactedMongoURI()).
			Str("db", cfg.DBName).
			Str("collection", cfg.CollectionName).
			Msg("connecting to mongodb")

		client, err := database.NewMongo(ctx, cfg.MongoURI, logger)
		if err != nil {
			return nil, err
		}
		store, err := repository.NewMongoScoreRepository(ctx, client, cfg.DBName, cfg.CollectionName, logger)
		if err != nil {
			_ = client.Disconnect(ctx)
			return nil, err
		}
		return store, nil
	}
	return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
}

var Module = fx.Options(
	fx.Provide(config.Load),
	fx.Provide(logger.New),
	fx.Provide(metrics.New),
	// store
	fx.Provide(ProvideStore),
	// svc
	fx.Provide(service.NewScoreService),
	// server
	fx.Provide(server.NewScoreServer),
)
