package server

import (
	"net/http"

	"maze-scores/internal/constants"
	"maze-scores/internal/metrics"
	"maze-scores/internal/middleware"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

const addUpdateParams = "/{mazeId}/{teamId}/{gameId}/{gameRound}/{moveCount}/{backtrackCount}/{bonusPoints}/{gameResult}"

// Routes lists the public routes; it is rendered on the index page.
var Routes = []string{
	"GET    /scores?scoreKey=&teamId=&mazeId=",
	"GET    /scores/{scoreKey}",
	"POST   /scores",
	"POST   /scores" + addUpdateParams,
	"DELETE /scores/{scoreKey}  (header " + DeletePasswordHeader + ")",
	"GET    /list",
	"GET    /health",
	"GET    /metrics",
	"GET    /get, /get/{scoreKey}, /add_update/..., /delete/{scoreKey}/{password}  (legacy)",
}

func NewRouter(s *ScoreServer, m *metrics.Metrics, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID(logger))
	r.Use(middleware.Metrics(m))
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(constants.RequestTimeout))
	r.Use(chimw.Compress(5))

	r.Route("/scores", func(r chi.Router) {
		r.Get("/", s.ListScores)
		r.Post("/", s.CreateScore)
		r.Get("/{scoreKey}", s.GetScore)
		r.Delete("/{scoreKey}", s.DeleteScore)
		r.Post(addUpdateParams, s.AddUpdateScore)
	})

	// routes kept from the first versions of the service
	r.Get("/get", s.ListScores)
	r.Get("/get/{scoreKey}", s.GetScore)
	r.Get("/add_update"+addUpdateParams, s.AddUpdateScore)
	r.Get("/delete/{scoreKey}/{password}", s.DeleteScore)

	r.Get("/list", s.RenderList)
	r.Get("/health", s.Health)
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.NotFound(s.RenderIndex)

	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Origin", "X-Requested-With", "Content-Type", "Accept", DeletePasswordHeader, middleware.RequestIDHeader},
	})
	return c.Handler(r)
}
