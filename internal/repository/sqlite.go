package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"maze-scores/internal/domain"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const scoreColumns = `score_key, maze_id, team_id, game_id, game_round, move_count,
	backtrack_count, bonus_points, game_result, created_at, updated_at`

type SQLiteScoreRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewSQLiteScoreRepository(sqlDB *sql.DB, logger zerolog.Logger) *SQLiteScoreRepository {
	return &SQLiteScoreRepository{
		db:     sqlDB,
		logger: logger.With().Str("store", "sqlite").Logger(),
	}
}

func (r *SQLiteScoreRepository) FindByKey(ctx context.Context, scoreKey string) (*domain.Score, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+scoreColumns+` FROM scores WHERE score_key = ?`, scoreKey)

	score, err := scanScore(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, storageErr("find score", err)
	}
	return score, nil
}

func (r *SQLiteScoreRepository) FindAll(ctx context.Context, filter Filter) ([]domain.Score, error) {
	var (
		conds []string
		args  []any
	)
	if filter.ScoreKey != "" {
		conds = append(conds, "score_key = ?")
		args = append(args, filter.ScoreKey)
	}
	if filter.TeamID != "" {
		conds = append(conds, "team_id = ?")
		args = append(args, filter.TeamID)
	}
	if filter.MazeID != "" {
		conds = append(conds, "maze_id = ?")
		args = append(args, filter.MazeID)
	}

	query := `SELECT ` + scoreColumns + ` FROM scores`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY score_key"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr("list scores", err)
	}
	defer rows.Close()

	scores := []domain.Score{}
	for rows.Next() {
		score, err := scanScore(rows)
		if err != nil {
			return nil, storageErr("scan score", err)
		}
		scores = append(scores, *score)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list scores", err)
	}
	return scores, nil
}

// Upsert inserts the score or overwrites the row holding its key. The unique
// index on score_key keeps a single row per key even under concurrent calls.
func (r *SQLiteScoreRepository) Upsert(ctx context.Context, score *domain.Score) (UpsertResult, error) {
	key := score.ScoreKey()
	now := time.Now().UTC()

	id, err := gonanoid.New()
	if err != nil {
		return UpsertResult{}, fmt.Errorf("failed to generate nanoid: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return UpsertResult{}, storageErr("begin transaction", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO scores (id, `+scoreColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(score_key) DO NOTHING`,
		id, key, score.MazeID, score.TeamID, score.GameID, score.GameRound, score.MoveCount,
		score.BacktrackCount, score.BonusPoints, string(score.GameResult), now, now,
	)
	if err != nil {
		return UpsertResult{}, storageErr("insert score", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return UpsertResult{}, storageErr("insert score", err)
	}
	inserted := affected == 1

	if !inserted {
		_, err = tx.ExecContext(ctx, `
			UPDATE scores SET
				maze_id = ?, team_id = ?, game_id = ?, game_round = ?, move_count = ?,
				backtrack_count = ?, bonus_points = ?, game_result = ?, updated_at = ?
			WHERE score_key = ?`,
			score.MazeID, score.TeamID, score.GameID, score.GameRound, score.MoveCount,
			score.BacktrackCount, score.BonusPoints, string(score.GameResult), now, key,
		)
		if err != nil {
			return UpsertResult{}, storageErr("update score", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return UpsertResult{}, storageErr("commit upsert", err)
	}

	if inserted {
		score.CreatedAt = now
	}
	score.UpdatedAt = now

	r.logger.Debug().Str("score_key", key).Bool("inserted", inserted).Msg("score upserted")
	return UpsertResult{Inserted: inserted}, nil
}

func (r *SQLiteScoreRepository) DeleteByKey(ctx context.Context, scoreKey string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM scores WHERE score_key = ?`, scoreKey)
	if err != nil {
		return 0, storageErr("delete score", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, storageErr("delete score", err)
	}
	return n, nil
}

func (r *SQLiteScoreRepository) Ping(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return storageErr("ping", err)
	}
	return nil
}

func (r *SQLiteScoreRepository) Close(_ context.Context) error {
	return r.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScore(row rowScanner) (*domain.Score, error) {
	var (
		s      domain.Score
		result string
	)
	err := row.Scan(
		new(string), &s.MazeID, &s.TeamID, &s.GameID, &s.GameRound, &s.MoveCount,
		&s.BacktrackCount, &s.BonusPoints, &result, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	s.GameResult = domain.GameResult(result)
	return &s, nil
}
