package api

import (
	"encoding/json"
	"net/http"

	"github.com/seantiz/scribe/internal/engine"
	"github.com/seantiz/scribe/internal/model"
)

// quotaRequest is the JSON body for POST /v1/quota.
type quotaRequest struct {
	WeeklyLimit        int32 `json:"weekly_limit"`
	MaxDurationSeconds int32 `json:"max_duration_seconds"`
	CooldownUntil      int64 `json:"cooldown_until"`
}

// quotaUpdateResponse is the JSON response for POST /v1/quota.
type quotaUpdateResponse struct {
	Quota   model.QuotaUpdate `json:"quota"`
	Changed bool              `json:"changed"`
}

func (s *Server) handleGetQuota(w http.ResponseWriter, r *http.Request) {
	snap, ok, err := s.engine.CurrentQuota(r.Context())
	if err != nil {
		s.writeEngineError(w, err, "failed to get quota")
		return
	}
	if !ok {
		s.writeError(w, http.StatusForbidden, "session has no speech recognition trial")
		return
	}
	s.writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpdateQuota(w http.ResponseWriter, r *http.Request) {
	var req quotaRequest
	if !s.decode(w, r, &req) {
		return
	}

	snap, changed, err := s.engine.UpdateQuota(r.Context(), req.WeeklyLimit, req.MaxDurationSeconds, req.CooldownUntil)
	if err != nil {
		s.writeEngineError(w, err, "failed to update quota")
		return
	}
	s.writeJSON(w, http.StatusOK, quotaUpdateResponse{Quota: snap, Changed: changed})
}

// handleQuotaEvents streams quota snapshots. The current snapshot is sent
// first so a reconnecting client resynchronizes without polling.
func (s *Server) handleQuotaEvents(w http.ResponseWriter, r *http.Request) {
	ch, unsub := s.engine.Broker().Subscribe(engine.QuotaTopic)
	defer unsub()

	snap, ok, err := s.engine.CurrentQuota(r.Context())
	if err != nil {
		s.writeEngineError(w, err, "failed to get quota")
		return
	}

	var first []string
	if ok {
		data, err := json.Marshal(snap)
		if err != nil {
			s.logger.Error("encode quota snapshot", "error", err)
			s.writeError(w, http.StatusInternalServerError, "failed to encode quota")
			return
		}
		first = append(first, string(data))
	}
	s.stream(w, r, streamQuota, ch, first...)
}
