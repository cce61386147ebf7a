package api

import (
	"net/http"
)

// statsResponse is the JSON response for GET /v1/stats.
type statsResponse struct {
	PendingJobs int  `json:"pending_jobs"`
	Closing     bool `json:"closing"`
	Backends    int  `json:"backends"`
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	n, err := s.engine.PendingJobs(r.Context())
	if err != nil {
		s.writeEngineError(w, err, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, statsResponse{
		PendingJobs: n,
		Closing:     s.engine.Closing(),
		Backends:    len(s.registry.List()),
	})
}
