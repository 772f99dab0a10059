package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

func NewHandler(ideaHandler *IdeaHandler, voteHandler *VoteHandler, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})

	r.Route("/api", func(r chi.Router) {
		r.Route("/ideas", func(r chi.Router) {
			r.Post("/", ideaHandler.SubmitIdea)
			r.Get("/", ideaHandler.ListIdeas)
			r.Get("/{id}", ideaHandler.GetIdea)
		})

		r.Post("/vote", voteHandler.CastVote)
		r.Get("/results", voteHandler.Results)
	})

	return r
}
