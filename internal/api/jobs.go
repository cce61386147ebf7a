package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/oklog/ulid/v2"

	"github.com/seantiz/scribe/internal/backend"
	"github.com/seantiz/scribe/internal/engine"
	"github.com/seantiz/scribe/internal/model"
)

const maxBodySize = 1 << 20 // 1 MB

// updateRequest is the JSON body for POST /v1/jobs/{id}/updates.
type updateRequest struct {
	Pending bool            `json:"pending"`
	Payload json.RawMessage `json:"payload"`
}

// failRequest is the JSON body for POST /v1/jobs/{id}/fail.
type failRequest struct {
	Message string `json:"message"`
}

type acceptedResponse struct {
	Status string `json:"status"`
}

func (s *Server) handleCreateJob(w http.ResponseWriter, r *http.Request) {
	var req engine.JobRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.ID == 0 {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	reg, err := s.engine.Submit(r.Context(), req)
	if errors.Is(err, backend.ErrNoBackend) {
		s.writeError(w, http.StatusBadRequest, "unknown model")
		return
	}
	if err != nil {
		s.writeEngineError(w, err, "failed to submit job")
		return
	}

	s.writeJSON(w, http.StatusAccepted, reg)
}

func (s *Server) handleJobUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if !s.decode(w, r, &req) {
		return
	}

	u := model.TranscriptionUpdate{JobID: id, Pending: req.Pending, Payload: req.Payload}
	if err := s.engine.Deliver(r.Context(), u); err != nil {
		s.writeEngineError(w, err, "failed to deliver update")
		return
	}
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleJobFail(w http.ResponseWriter, r *http.Request) {
	id, ok := s.jobID(w, r)
	if !ok {
		return
	}
	var req failRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Message == "" {
		s.writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	if err := s.engine.Fail(r.Context(), id, req.Message); err != nil {
		s.writeEngineError(w, err, "failed to fail job")
		return
	}
	s.writeJSON(w, http.StatusAccepted, acceptedResponse{Status: "accepted"})
}

func (s *Server) handleRegistrationEvents(w http.ResponseWriter, r *http.Request) {
	rid := chi.URLParam(r, "rid")
	if _, err := ulid.ParseStrict(rid); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid registration id")
		return
	}

	broker := s.engine.Broker()
	if !broker.Has(rid) {
		s.writeError(w, http.StatusNotFound, "registration not found")
		return
	}

	// Subscribe replays retained events, so a registration that resolved
	// before the client connected still yields its events and a done marker.
	ch, unsub := broker.Subscribe(rid)
	defer unsub()
	s.stream(w, r, streamRegistration, ch)
}

// jobID parses the {id} URL parameter, writing a 400 on failure.
func (s *Server) jobID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id == 0 {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return 0, false
	}
	return id, true
}
