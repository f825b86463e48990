package repository

import (
	"context"
	"errors"
	"fmt"

	"maze-scores/internal/domain"
)

// ErrStorage wraps every failure reported by the underlying database.
var ErrStorage = errors.New("storage error")

// Filter selects scores by exact match. Empty fields are ignored.
type Filter struct {
	ScoreKey string
	TeamID   string
	MazeID   string
}

func (f Filter) IsEmpty() bool {
	return f.ScoreKey == "" && f.TeamID == "" && f.MazeID == ""
}

type UpsertResult struct {
	Inserted bool
}

// ScoreStore persists scores keyed by their derived score key. Upsert must be
// atomic: concurrent calls for one key leave exactly one record.
type ScoreStore interface {
	FindByKey(ctx context.Context, scoreKey string) (*domain.Score, error)
	FindAll(ctx context.Context, filter Filter) ([]domain.Score, error)
	Upsert(ctx context.Context, score *domain.Score) (UpsertResult, error)
	DeleteByKey(ctx context.Context, scoreKey string) (int64, error)
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
