package server

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"strconv"

	"maze-scores/internal/domain"
	"maze-scores/internal/repository"
	"maze-scores/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

const DeletePasswordHeader = "X-Delete-Password"

const maxBodyBytes = 64 << 10

//go:embed templates/*.html
var templateFS embed.FS

type statusResponse struct {
	Status   string `json:"status"`
	ScoreKey string `json:"scoreKey,omitempty"`
}

type deleteResponse struct {
	Status string `json:"status"`
	Count  int64  `json:"count"`
}

type ScoreServer struct {
	svc       *service.ScoreService
	templates *template.Template
	logger    zerolog.Logger
}

func NewScoreServer(svc *service.ScoreService, logger zerolog.Logger) (*ScoreServer, error) {
	tmpl, err := template.ParseFS(templateFS, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}
	return &ScoreServer{
		svc:       svc,
		templates: tmpl,
		logger:    logger.With().Str("origin", "score_server").Logger(),
	}, nil
}

// ListScores returns every score matching the scoreKey, teamId and mazeId
// query parameters.
func (s *ScoreServer) ListScores(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromQuery(r.URL.Query())
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	scores, err := s.svc.List(r.Context(), filter)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if len(scores) == 0 {
		writeJSON(w, http.StatusOK, statusResponse{Status: "No scores found."})
		return
	}
	writeJSON(w, http.StatusOK, scores)
}

func (s *ScoreServer) GetScore(w http.ResponseWriter, r *http.Request) {
	key, err := urlParam(r, "scoreKey")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	score, err := s.svc.Get(r.Context(), key)
	if errors.Is(err, domain.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, statusResponse{Status: "Score not found: " + key})
		return
	}
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, score)
}

// AddUpdateScore builds a score from the path and upserts it.
func (s *ScoreServer) AddUpdateScore(w http.ResponseWriter, r *http.Request) {
	score, err := scoreFromPath(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.save(w, r, score)
}

// CreateScore upserts a score sent as a JSON body.
func (s *ScoreServer) CreateScore(w http.ResponseWriter, r *http.Request) {
	var score domain.Score
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&score); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: invalid score body: %v", domain.ErrValidation, err)
		}
		s.writeError(w, r, err)
		return
	}
	s.save(w, r, &score)
}

func (s *ScoreServer) save(w http.ResponseWriter, r *http.Request, score *domain.Score) {
	res, err := s.svc.Save(r.Context(), score)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	if res.Inserted {
		writeJSON(w, http.StatusCreated, statusResponse{Status: "Score Inserted", ScoreKey: score.ScoreKey()})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "Score Updated", ScoreKey: score.ScoreKey()})
}

// DeleteScore removes a score. The secret comes from the password path
// segment on the legacy route, otherwise from the X-Delete-Password header.
func (s *ScoreServer) DeleteScore(w http.ResponseWriter, r *http.Request) {
	key, err := urlParam(r, "scoreKey")
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	secret := r.Header.Get(DeletePasswordHeader)
	if chi.URLParam(r, "password") != "" {
		if secret, err = urlParam(r, "password"); err != nil {
			s.writeError(w, r, err)
			return
		}
	}

	n, err := s.svc.Delete(r.Context(), key, secret)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, deleteResponse{Status: "ok", Count: n})
}

func (s *ScoreServer) RenderList(w http.ResponseWriter, r *http.Request) {
	scores, err := s.svc.List(r.Context(), repository.Filter{})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.render(w, r, http.StatusOK, "list.html", map[string]any{"Scores": scores})
}

func (s *ScoreServer) RenderIndex(w http.ResponseWriter, r *http.Request) {
	zerolog.Ctx(r.Context()).Debug().Str("path", r.URL.Path).Msg("invalid route, rendering index")
	s.render(w, r, http.StatusNotFound, "index.html", map[string]any{
		"Host":   r.Host,
		"Routes": Routes,
	})
}

func (s *ScoreServer) Health(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Ping(r.Context()); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, statusResponse{Status: "unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

func (s *ScoreServer) render(w http.ResponseWriter, r *http.Request, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if err := s.templates.ExecuteTemplate(w, name, data); err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("template", name).Msg("failed to render template")
	}
}

// writeError maps service errors onto status codes. Storage failures are
// reported to the caller; they never stop the process.
func (s *ScoreServer) writeError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())

	switch {
	case errors.Is(err, domain.ErrValidation):
		log.Debug().Err(err).Str("path", r.URL.Path).Msg("bad request")
		writeJSON(w, http.StatusBadRequest, statusResponse{Status: err.Error()})
	case errors.Is(err, service.ErrUnauthorized):
		writeJSON(w, http.StatusUnauthorized, statusResponse{Status: "Missing or incorrect password."})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, statusResponse{Status: err.Error()})
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeJSON(w, http.StatusInternalServerError, statusResponse{Status: "Error accessing scores: " + err.Error()})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func filterFromQuery(q url.Values) (repository.Filter, error) {
	var f repository.Filter
	for name, values := range q {
		if len(values) != 1 {
			return f, fmt.Errorf("%w: query parameter %s must be given once", domain.ErrValidation, name)
		}
		switch name {
		case "scoreKey":
			f.ScoreKey = values[0]
		case "teamId":
			f.TeamID = values[0]
		case "mazeId":
			f.MazeID = values[0]
		default:
			return f, fmt.Errorf("%w: unsupported filter %q", domain.ErrValidation, name)
		}
	}
	return f, nil
}

func scoreFromPath(r *http.Request) (*domain.Score, error) {
	params := make(map[string]string, 8)
	for _, name := range []string{"mazeId", "teamId", "gameId", "gameRound", "moveCount", "backtrackCount", "bonusPoints", "gameResult"} {
		v, err := urlParam(r, name)
		if err != nil {
			return nil, err
		}
		params[name] = v
	}

	ints := make(map[string]int, 4)
	for _, name := range []string{"gameRound", "moveCount", "backtrackCount", "bonusPoints"} {
		n, err := strconv.Atoi(params[name])
		if err != nil {
			return nil, fmt.Errorf("%w: %s must be an integer, got %q", domain.ErrValidation, name, params[name])
		}
		ints[name] = n
	}

	result, err := domain.ParseGameResult(params["gameResult"])
	if err != nil {
		return nil, err
	}

	score, err := domain.NewScore(params["mazeId"], params["teamId"], params["gameId"], ints["gameRound"])
	if err != nil {
		return nil, err
	}
	score.MoveCount = ints["moveCount"]
	score.BacktrackCount = ints["backtrackCount"]
	score.BonusPoints = ints["bonusPoints"]
	score.GameResult = result
	return score, nil
}

// urlParam returns the decoded path parameter. chi matches on RawPath when
// the request carried one, so only those parameters are still escaped.
func urlParam(r *http.Request, name string) (string, error) {
	v := chi.URLParam(r, name)
	if r.URL.RawPath == "" {
		return v, nil
	}
	v, err := url.PathUnescape(v)
	if err != nil {
		return "", fmt.Errorf("%w: malformed %s", domain.ErrValidation, name)
	}
	return v, nil
}
