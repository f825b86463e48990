package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"testing"

	"maze-scores/internal/config"
	"maze-scores/internal/database"
	"maze-scores/internal/domain"
	"maze-scores/internal/logger"
	"maze-scores/internal/metrics"
	"maze-scores/internal/repository"
	"maze-scores/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, store repository.ScoreStore, password string) http.Handler {
	t.Helper()

	m := metrics.New()
	svc := service.NewScoreService(store, m, &config.Config{DeletePassword: password}, logger.Nop())
	srv, err := NewScoreServer(svc, logger.Nop())
	require.NoError(t, err)
	return NewRouter(srv, m, logger.Nop())
}

func newSQLiteStore(t *testing.T) repository.ScoreStore {
	t.Helper()

	db, err := database.NewSQLite(filepath.Join(t.TempDir(), "scores.db"), logger.Nop())
	require.NoError(t, err)
	store := repository.NewSQLiteScoreRepository(db, logger.Nop())
	t.Cleanup(func() { _ = store.Close(context.Background()) })
	return store
}

func do(t *testing.T, h http.Handler, method, target, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeStatus(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func decodeScores(t *testing.T, rr *httptest.ResponseRecorder) []map[string]any {
	t.Helper()
	var out []map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out), "body: %s", rr.Body.String())
	return out
}

func TestScoreLifecycle(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	rr := do(t, h, http.MethodPost, "/scores/m1/t1/g1/1/10/0/0/WIN", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "Score Inserted", decodeStatus(t, rr)["status"])
	assert.Equal(t, "m1:t1:g1:1", decodeStatus(t, rr)["scoreKey"])

	rr = do(t, h, http.MethodGet, "/scores", "")
	require.Equal(t, http.StatusOK, rr.Code)
	scores := decodeScores(t, rr)
	require.Len(t, scores, 1)
	assert.Equal(t, "m1:t1:g1:1", scores[0]["scoreKey"])

	rr = do(t, h, http.MethodPost, "/scores/m1/t1/g1/1/15/0/0/WIN", "")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	assert.Equal(t, "Score Updated", decodeStatus(t, rr)["status"])

	rr = do(t, h, http.MethodGet, "/scores", "")
	scores = decodeScores(t, rr)
	require.Len(t, scores, 1)
	assert.EqualValues(t, 15, scores[0]["moveCount"])

	rr = do(t, h, http.MethodDelete, "/scores/m1:t1:g1:1", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeStatus(t, rr)["count"])

	rr = do(t, h, http.MethodGet, "/scores/m1:t1:g1:1", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "Score not found: m1:t1:g1:1", decodeStatus(t, rr)["status"])
}

func TestGetScore(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/scores/m1/t1/g1/2/7/3/5/DEATH_TRAP", "").Code)

	for _, target := range []string{"/scores/m1:t1:g1:2", "/scores/m1%3At1%3Ag1%3A2", "/get/m1:t1:g1:2"} {
		t.Run(target, func(t *testing.T) {
			rr := do(t, h, http.MethodGet, target, "")
			require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())

			got := decodeStatus(t, rr)
			assert.Equal(t, "m1", got["mazeId"])
			assert.EqualValues(t, 2, got["gameRound"])
			assert.EqualValues(t, 7, got["moveCount"])
			assert.EqualValues(t, 3, got["backtrackCount"])
			assert.EqualValues(t, 5, got["bonusPoints"])
			assert.Equal(t, "DEATH_TRAP", got["gameResult"])
		})
	}
}

func TestScoreKey_PercentInIdentity(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	tests := []struct {
		name    string
		post    string
		team    string
		wantKey string
	}{
		{"escaped escape sequence", "/scores/m1/a%2541/g1/1/10/0/0/WIN", "a%41", "m1:a%41:g1:1"},
		{"literal percent", "/scores/m1/50%25off/g1/1/10/0/0/WIN", "50%off", "m1:50%off:g1:1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.post, "")
			require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
			assert.Equal(t, tt.wantKey, decodeStatus(t, rr)["scoreKey"])

			targets := []string{
				"/scores/" + url.PathEscape(tt.wantKey),
				"/scores/" + strings.ReplaceAll(url.PathEscape(tt.wantKey), ":", "%3A"),
			}
			for _, target := range targets {
				rr = do(t, h, http.MethodGet, target, "")
				require.Equal(t, http.StatusOK, rr.Code, "%s: %s", target, rr.Body.String())
				got := decodeStatus(t, rr)
				assert.Equal(t, tt.team, got["teamId"])
				assert.Equal(t, tt.wantKey, got["scoreKey"])
			}
		})
	}
}

func TestListScores_Filters(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")
	for _, p := range []string{
		"/scores/m1/T1/g1/1/1/0/0/WIN",
		"/scores/m2/T1/g2/1/1/0/0/IN_PROGRESS",
		"/scores/m1/T2/g3/1/1/0/0/OUT_OF_TIME",
	} {
		require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, p, "").Code)
	}

	t.Run("team", func(t *testing.T) {
		scores := decodeScores(t, do(t, h, http.MethodGet, "/scores?teamId=T1", ""))
		require.Len(t, scores, 2)
		for _, s := range scores {
			assert.Equal(t, "T1", s["teamId"])
		}
	})

	t.Run("maze via legacy route", func(t *testing.T) {
		scores := decodeScores(t, do(t, h, http.MethodGet, "/get?mazeId=m1", ""))
		assert.Len(t, scores, 2)
	})

	t.Run("score key", func(t *testing.T) {
		scores := decodeScores(t, do(t, h, http.MethodGet, "/scores?scoreKey=m1:T2:g3:1", ""))
		require.Len(t, scores, 1)
		assert.Equal(t, "OUT_OF_TIME", scores[0]["gameResult"])
	})

	t.Run("no match", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/scores?teamId=nobody", "")
		require.Equal(t, http.StatusOK, rr.Code)
		assert.Equal(t, "No scores found.", decodeStatus(t, rr)["status"])
	})

	t.Run("unknown filter", func(t *testing.T) {
		rr := do(t, h, http.MethodGet, "/scores?color=red", "")
		assert.Equal(t, http.StatusBadRequest, rr.Code)
	})
}

func TestAddUpdateScore_Validation(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	tests := []struct {
		name   string
		target string
	}{
		{"non numeric round", "/scores/m1/t1/g1/one/10/0/0/WIN"},
		{"non numeric moves", "/scores/m1/t1/g1/1/ten/0/0/WIN"},
		{"negative bonus", "/scores/m1/t1/g1/1/10/0/-4/WIN"},
		{"unknown result", "/scores/m1/t1/g1/1/10/0/0/SURRENDER"},
		{"blank team", "/scores/m1/%20/g1/1/10/0/0/WIN"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, tt.target, "")
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}

	scores := decodeStatus(t, do(t, h, http.MethodGet, "/scores", ""))
	assert.Equal(t, "No scores found.", scores["status"], "invalid requests must not write")
}

func TestAddUpdateScore_LegacyNumericResult(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	rr := do(t, h, http.MethodGet, "/add_update/m1/t1/g1/1/10/2/3/4", "")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	got := decodeStatus(t, do(t, h, http.MethodGet, "/scores/m1:t1:g1:1", ""))
	assert.Equal(t, "DEATH_TRAP", got["gameResult"])
}

func TestCreateScore_JSONBody(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	body := `{"mazeId":"m1","teamId":"t1","gameId":"g1","gameRound":3,"moveCount":42,"gameResult":"OUT_OF_MOVES"}`
	rr := do(t, h, http.MethodPost, "/scores", body)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	assert.Equal(t, "m1:t1:g1:3", decodeStatus(t, rr)["scoreKey"])

	tests := []struct {
		name string
		body string
	}{
		{"missing team", `{"mazeId":"m1","gameId":"g1","gameRound":3}`},
		{"not json", `{"mazeId":`},
		{"wrong type", `{"mazeId":"m1","teamId":"t1","gameId":"g1","gameRound":"three"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/scores", tt.body)
			assert.Equal(t, http.StatusBadRequest, rr.Code, rr.Body.String())
		})
	}
}

func TestDeleteScore_PasswordGate(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "hunter2")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/scores/m1/t1/g1/1/10/0/0/WIN", "").Code)

	rr := do(t, h, http.MethodDelete, "/scores/m1:t1:g1:1", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodDelete, "/scores/m1:t1:g1:1", "", DeletePasswordHeader, "wrong")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = do(t, h, http.MethodGet, "/delete/m1:t1:g1:1/wrong", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	require.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/scores/m1:t1:g1:1", "").Code, "score must survive rejected deletes")

	rr = do(t, h, http.MethodGet, "/delete/m1:t1:g1:1/hunter2", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 1, decodeStatus(t, rr)["count"])

	rr = do(t, h, http.MethodDelete, "/scores/m1:t1:g1:1", "", DeletePasswordHeader, "hunter2")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.EqualValues(t, 0, decodeStatus(t, rr)["count"])
}

func TestRenderList(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")
	require.Equal(t, http.StatusCreated, do(t, h, http.MethodPost, "/scores/maze%3Cb%3E/t1/g1/1/10/0/0/WIN", "").Code)

	rr := do(t, h, http.MethodGet, "/list", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rr.Body.String(), "Scores (1)")
	assert.Contains(t, rr.Body.String(), "maze&lt;b&gt;:t1:g1:1")
	assert.Contains(t, rr.Body.String(), "WIN (0)")
}

func TestUnknownRouteRendersIndex(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	rr := do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Contains(t, rr.Body.String(), "/scores/{scoreKey}")
}

func TestHealthAndMetrics(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	rr := do(t, h, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rr.Code)

	do(t, h, http.MethodGet, "/scores", "")
	rr = do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "score_service_http_requests_total")
	assert.Contains(t, rr.Body.String(), "score_service_store_operations_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestRouter(t, newSQLiteStore(t), "")

	req := httptest.NewRequest(http.MethodOptions, "/scores/m1:t1:g1:1", nil)
	req.Header.Set("Origin", "http://maze.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodDelete)
	req.Header.Set("Access-Control-Request-Headers", DeletePasswordHeader)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "*", rr.Header().Get("Access-Control-Allow-Origin"))
}

// failingStore simulates a database that cannot be reached.
type failingStore struct{}

var errUnreachable = fmt.Errorf("%w: server selection timeout", repository.ErrStorage)

func (failingStore) FindByKey(context.Context, string) (*domain.Score, error) {
	return nil, errUnreachable
}

func (failingStore) FindAll(context.Context, repository.Filter) ([]domain.Score, error) {
	return nil, errUnreachable
}

func (failingStore) Upsert(context.Context, *domain.Score) (repository.UpsertResult, error) {
	return repository.UpsertResult{}, errUnreachable
}

func (failingStore) DeleteByKey(context.Context, string) (int64, error) {
	return 0, errUnreachable
}

func (failingStore) Ping(context.Context) error  { return errUnreachable }
func (failingStore) Close(context.Context) error { return nil }

func TestStorageErrorsAreReported(t *testing.T) {
	h := newTestRouter(t, failingStore{}, "")

	requests := []struct {
		method string
		target string
		want   int
	}{
		{http.MethodGet, "/scores", http.StatusInternalServerError},
		{http.MethodGet, "/scores/m1:t1:g1:1", http.StatusInternalServerError},
		{http.MethodPost, "/scores/m1/t1/g1/1/10/0/0/WIN", http.StatusInternalServerError},
		{http.MethodDelete, "/scores/m1:t1:g1:1", http.StatusInternalServerError},
		{http.MethodGet, "/list", http.StatusInternalServerError},
		{http.MethodGet, "/health", http.StatusServiceUnavailable},
	}

	for _, tt := range requests {
		t.Run(tt.method+" "+tt.target, func(t *testing.T) {
			rr := do(t, h, tt.method, tt.target, "")
			assert.Equal(t, tt.want, rr.Code)
			assert.NotEmpty(t, decodeStatus(t, rr)["status"])
		})
	}
}
