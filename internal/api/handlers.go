package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/devrunner/internal/storage"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.status.Status()
	respondJSON(w, http.StatusOK, StatusResponse{
		Name:          st.Name,
		Pipeline:      st.Pipeline,
		Artifact:      st.Artifact,
		DelayMs:       st.DelayMs,
		ConfigHash:    st.ConfigHash,
		StartedAt:     st.StartedAt,
		Build:         st.Build,
		Worker:        st.Worker,
		RecentEvents:  s.events.Types(),
		DroppedEvents: s.events.Dropped(),
	})
}

func (s *Server) handleBuilds(w http.ResponseWriter, r *http.Request) {
	if s.history == nil {
		s.writeError(w, http.StatusNotFound, "build history is disabled")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be between 1 and 1000")
			return
		}
		limit = n
	}

	recs, err := s.history.Recent(r.Context(), s.runner, limit)
	if err != nil {
		s.logger.Error("Failed to read build history", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to read build history")
		return
	}
	if recs == nil {
		recs = []storage.BuildRecord{}
	}
	respondJSON(w, http.StatusOK, BuildsResponse{Builds: recs})
}

func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

func respondJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
