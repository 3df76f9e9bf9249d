package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Analysis API
	mux.HandleFunc("/analyze/file", s.analyze.AnalyzeFileHandler)   // POST - submit a catalog file
	mux.HandleFunc("/analyze/status/", s.analyze.StatusRouteHandler) // GET/DELETE /{job_id}
	mux.HandleFunc("/analyze/merge", s.analyze.MergeHandler)        // POST - queue batch matching

	// System
	mux.HandleFunc("/health", s.health.HealthHandler)

	return mux
}
