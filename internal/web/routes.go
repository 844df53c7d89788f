package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/photo-cluster/internal/web/handlers"
)

func (s *Server) setupRoutes() {
	clustersHandler := handlers.NewClustersHandler(s.deps.Store, s.deps.Recomputer, s.deps.Logger)
	statsHandler := handlers.NewStatsHandler(s.deps.Store, s.deps.Queue)

	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Get("/stats", statsHandler.Get)

		// Cluster dump
		r.Get("/clusters", clustersHandler.List)
		r.Post("/clusters/import", clustersHandler.Import)
		r.Get("/clusters/{id}", clustersHandler.Get)
		r.Post("/clusters/{id}/recompute", clustersHandler.Recompute)
		r.Get("/graph", clustersHandler.Graph)

		r.Get("/pictures/{id}/cluster", clustersHandler.PictureCluster)
	})
}
