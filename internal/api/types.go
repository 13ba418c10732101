package api

import (
	"time"

	"github.com/mattjoyce/devrunner/internal/dispatch"
	"github.com/mattjoyce/devrunner/internal/state"
	"github.com/mattjoyce/devrunner/internal/storage"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	Name          string           `json:"name"`
	Pipeline      string           `json:"pipeline"`
	Artifact      string           `json:"artifact"`
	DelayMs       int64            `json:"delay_ms"`
	ConfigHash    string           `json:"config_hash,omitempty"`
	StartedAt     time.Time        `json:"started_at"`
	Build         state.Snapshot   `json:"build"`
	Worker        *dispatch.Worker `json:"worker,omitempty"`
	RecentEvents  []string         `json:"recent_events"`
	DroppedEvents int64            `json:"dropped_events"` // deliveries lost to slow stream clients
}

// BuildsResponse is returned by GET /builds.
type BuildsResponse struct {
	Builds []storage.BuildRecord `json:"builds"`
}
