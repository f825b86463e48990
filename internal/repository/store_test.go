package repository

import (
	"context"
	"sync"
	"testing"

	"maze-scores/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestScore(t *testing.T, maze, team, game string, round, moves int, result domain.GameResult) *domain.Score {
	t.Helper()
	s, err := domain.NewScore(maze, team, game, round)
	require.NoError(t, err)
	s.MoveCount = moves
	s.GameResult = result
	return s
}

// runStoreContract exercises the behaviour every ScoreStore must share.
func runStoreContract(t *testing.T, newStore func(t *testing.T) ScoreStore) {
	t.Run("upsert then replace", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		res, err := store.Upsert(ctx, newTestScore(t, "m1", "t1", "g1", 1, 10, domain.ResultWin))
		require.NoError(t, err)
		assert.True(t, res.Inserted)

		all, err := store.FindAll(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, "m1:t1:g1:1", all[0].ScoreKey())

		res, err = store.Upsert(ctx, newTestScore(t, "m1", "t1", "g1", 1, 15, domain.ResultWin))
		require.NoError(t, err)
		assert.False(t, res.Inserted)

		all, err = store.FindAll(ctx, Filter{})
		require.NoError(t, err)
		require.Len(t, all, 1)
		assert.Equal(t, 15, all[0].MoveCount)

		n, err := store.DeleteByKey(ctx, "m1:t1:g1:1")
		require.NoError(t, err)
		assert.EqualValues(t, 1, n)

		_, err = store.FindByKey(ctx, "m1:t1:g1:1")
		assert.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("find by key returns stored fields", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		s := newTestScore(t, "maze-a", "team-a", "game-a", 2, 33, domain.ResultDeathTrap)
		s.BacktrackCount = 4
		s.BonusPoints = 9
		_, err := store.Upsert(ctx, s)
		require.NoError(t, err)

		got, err := store.FindByKey(ctx, "maze-a:team-a:game-a:2")
		require.NoError(t, err)
		assert.Equal(t, "maze-a", got.MazeID)
		assert.Equal(t, "team-a", got.TeamID)
		assert.Equal(t, "game-a", got.GameID)
		assert.Equal(t, 2, got.GameRound)
		assert.Equal(t, 33, got.MoveCount)
		assert.Equal(t, 4, got.BacktrackCount)
		assert.Equal(t, 9, got.BonusPoints)
		assert.Equal(t, domain.ResultDeathTrap, got.GameResult)
		assert.False(t, got.CreatedAt.IsZero())
	})

	t.Run("delete missing key", func(t *testing.T) {
		store := newStore(t)

		n, err := store.DeleteByKey(context.Background(), "nope:nope:nope:0")
		require.NoError(t, err)
		assert.EqualValues(t, 0, n)
	})

	t.Run("filters", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		for _, s := range []*domain.Score{
			newTestScore(t, "m1", "T1", "g1", 1, 1, domain.ResultWin),
			newTestScore(t, "m2", "T1", "g2", 1, 2, domain.ResultOutOfMoves),
			newTestScore(t, "m1", "T2", "g3", 1, 3, domain.ResultInProgress),
		} {
			_, err := store.Upsert(ctx, s)
			require.NoError(t, err)
		}

		byTeam, err := store.FindAll(ctx, Filter{TeamID: "T1"})
		require.NoError(t, err)
		require.Len(t, byTeam, 2)
		for _, s := range byTeam {
			assert.Equal(t, "T1", s.TeamID)
		}

		byMaze, err := store.FindAll(ctx, Filter{MazeID: "m1"})
		require.NoError(t, err)
		assert.Len(t, byMaze, 2)

		both, err := store.FindAll(ctx, Filter{MazeID: "m1", TeamID: "T2"})
		require.NoError(t, err)
		require.Len(t, both, 1)
		assert.Equal(t, "g3", both[0].GameID)

		byKey, err := store.FindAll(ctx, Filter{ScoreKey: "m2:T1:g2:1"})
		require.NoError(t, err)
		require.Len(t, byKey, 1)

		none, err := store.FindAll(ctx, Filter{TeamID: "T9"})
		require.NoError(t, err)
		assert.Empty(t, none)
	})

	t.Run("concurrent upserts keep one record", func(t *testing.T) {
		store := newStore(t)
		ctx := context.Background()

		var wg sync.WaitGroup
		errs := make(chan error, 16)
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func(moves int) {
				defer wg.Done()
				s, err := domain.NewScore("race", "team", "game", 1)
				if err != nil {
					errs <- err
					return
				}
				s.MoveCount = moves
				if _, err := store.Upsert(ctx, s); err != nil {
					errs <- err
				}
			}(i)
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			require.NoError(t, err)
		}

		all, err := store.FindAll(ctx, Filter{ScoreKey: "race:team:game:1"})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}
