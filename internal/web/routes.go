package web

import (
	"github.com/go-chi/chi/v5"
)

func (s *Server) setupRoutes() {
	// Root routes are what the attendance API calls; /api/v1 mirrors them.
	s.mount(s.router)
	s.router.Route("/api/v1", func(r chi.Router) {
		s.mount(r)
	})
}

func (s *Server) mount(r chi.Router) {
	r.Get("/health", s.faces.Health)
	r.Post("/recognize", s.faces.Recognize)
	r.Post("/register", s.faces.Register)
	r.Post("/migrate-embeddings", s.faces.MigrateEmbeddings)
	if s.metrics != nil {
		r.Method("GET", "/metrics", s.metrics)
	}
}
