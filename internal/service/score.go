package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"

	"maze-scores/internal/config"
	"maze-scores/internal/constants"
	"maze-scores/internal/domain"
	"maze-scores/internal/metrics"
	"maze-scores/internal/repository"

	"github.com/rs/zerolog"
)

// ErrUnauthorized is returned when a delete carries the wrong shared secret.
var ErrUnauthorized = errors.New("missing or incorrect password")

type ScoreService struct {
	store          repository.ScoreStore
	metrics        *metrics.Metrics
	deletePassword string
	logger         zerolog.Logger
}

func NewScoreService(store repository.ScoreStore, m *metrics.Metrics, cfg *config.Config, logger zerolog.Logger) *ScoreService {
	s := &ScoreService{
		store:          store,
		metrics:        m,
		deletePassword: cfg.DeletePassword,
		logger:         logger.With().Str("origin", "score_service").Logger(),
	}
	if s.deletePassword == "" {
		s.logger.Warn().Msg("DELETE_PASSWORD is not set, deletes are not password protected")
	}
	return s
}

func (s *ScoreService) Get(ctx context.Context, scoreKey string) (*domain.Score, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	log := s.logger.With().Str("op", "get").Str("score_key", scoreKey).Logger()

	score, err := s.store.FindByKey(ctx, scoreKey)
	if errors.Is(err, domain.ErrNotFound) {
		s.metrics.ObserveStore("find_by_key", "not_found")
		log.Debug().Msg("score not found")
		return nil, err
	}
	if err != nil {
		s.metrics.ObserveStore("find_by_key", "error")
		log.Error().Err(err).Msg("failed to find score")
		return nil, err
	}

	s.metrics.ObserveStore("find_by_key", "ok")
	log.Debug().Msg("score found")
	return score, nil
}

func (s *ScoreService) List(ctx context.Context, filter repository.Filter) ([]domain.Score, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	scores, err := s.store.FindAll(ctx, filter)
	if err != nil {
		s.metrics.ObserveStore("find_all", "error")
		s.logger.Error().Err(err).Str("op", "list").Msg("failed to list scores")
		return nil, err
	}

	s.metrics.ObserveStore("find_all", "ok")
	s.logger.Debug().
		Str("op", "list").
		Str("team_id", filter.TeamID).
		Str("maze_id", filter.MazeID).
		Str("score_key", filter.ScoreKey).
		Int("count", len(scores)).
		Msg("scores listed")
	return scores, nil
}

// Save validates the score and inserts it, or replaces the stored score with
// the same key.
func (s *ScoreService) Save(ctx context.Context, score *domain.Score) (repository.UpsertResult, error) {
	if err := score.Validate(); err != nil {
		s.logger.Debug().Err(err).Str("op", "save").Msg("rejected invalid score")
		return repository.UpsertResult{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	key := score.ScoreKey()
	res, err := s.store.Upsert(ctx, score)
	if err != nil {
		s.metrics.ObserveStore("upsert", "error")
		s.logger.Error().Err(err).Str("op", "save").Str("score_key", key).Msg("failed to save score")
		return repository.UpsertResult{}, err
	}

	s.metrics.ObserveStore("upsert", "ok")
	s.metrics.ObserveUpsert(res.Inserted)

	action := "updated"
	if res.Inserted {
		action = "inserted"
	}
	s.logger.Info().Str("op", "save").Str("score_key", key).Str("action", action).Msg("score saved")
	return res, nil
}

// Delete removes the score with the given key. When a delete password is
// configured the caller's secret must match it.
func (s *ScoreService) Delete(ctx context.Context, scoreKey, secret string) (int64, error) {
	log := s.logger.With().Str("op", "delete").Str("score_key", scoreKey).Logger()

	if !s.authorizeDelete(secret) {
		log.Warn().Msg("delete rejected, bad password")
		return 0, ErrUnauthorized
	}
	if scoreKey == "" {
		return 0, fmt.Errorf("%w: scoreKey is required", domain.ErrValidation)
	}

	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	n, err := s.store.DeleteByKey(ctx, scoreKey)
	if err != nil {
		s.metrics.ObserveStore("delete", "error")
		log.Error().Err(err).Msg("failed to delete score")
		return 0, err
	}

	s.metrics.ObserveStore("delete", "ok")
	log.Warn().Int64("count", n).Msg("document(s) deleted")
	return n, nil
}

func (s *ScoreService) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()
	return s.store.Ping(ctx)
}

func (s *ScoreService) authorizeDelete(secret string) bool {
	if s.deletePassword == "" {
		return true
	}
	return subtle.ConstantTimeCompare([]byte(secret), []byte(s.deletePassword)) == 1
}
