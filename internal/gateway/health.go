package gateway

import (
	"context"
	"net/http"
	"time"

	"docquery/internal/maintenance"
	"docquery/internal/version"
)

// HealthResponse is the body of GET /api/v1/health next to the envelope
// fields.
type HealthResponse struct {
	Service     string                            `json:"service"`
	Version     string                            `json:"version"`
	Uptime      string                            `json:"uptime"`
	Database    ComponentHealth                   `json:"database"`
	Documents   int                               `json:"documents"`
	Indexes     IndexHealth                       `json:"indexes"`
	Maintenance map[string]maintenance.TaskStatus `json:"maintenance,omitempty"`
}

// ComponentHealth reports one dependency.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Error   string `json:"error,omitempty"`
}

// IndexHealth summarizes the index store.
type IndexHealth struct {
	ComponentHealth
	Count               int       `json:"count"`
	TotalBytes          int64     `json:"total_bytes"`
	OldestAccess        time.Time `json:"oldest_access,omitzero"`
	InactivityThreshold string    `json:"inactivity_threshold"`
}

// handleHealth handles GET /api/v1/health. A failing database or index store
// turns the answer into 503.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := HealthResponse{
		Service: "docquery",
		Version: version.Info(),
		Uptime:  time.Since(g.startedAt).Round(time.Second).String(),
	}

	resp.Database.Healthy = true
	if err := g.deps.DB.PingContext(ctx); err != nil {
		resp.Database = ComponentHealth{Error: err.Error()}
	} else if n, err := g.deps.Documents.Count(ctx); err != nil {
		resp.Database = ComponentHealth{Error: err.Error()}
	} else {
		resp.Documents = n
	}

	resp.Indexes.InactivityThreshold = g.config.Index.InactivityThreshold().String()
	if entries, err := g.deps.Indexes.List(ctx); err != nil {
		resp.Indexes.Error = err.Error()
	} else {
		resp.Indexes.Healthy = true
		resp.Indexes.Count = len(entries)
		for _, e := range entries {
			resp.Indexes.TotalBytes += e.SizeBytes
			if resp.Indexes.OldestAccess.IsZero() || e.LastAccess.Before(resp.Indexes.OldestAccess) {
				resp.Indexes.OldestAccess = e.LastAccess
			}
		}
	}

	if g.deps.Scheduler != nil {
		resp.Maintenance = g.deps.Scheduler.GetStatus()
	}

	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	if !resp.Database.Healthy || !resp.Indexes.Healthy {
		writeJSON(w, http.StatusServiceUnavailable, envelope{
			"status":  0,
			"message": "Service degraded",
			"code":    http.StatusServiceUnavailable,
			"health":  resp,
		})
		return
	}
	writeSuccess(w, http.StatusOK, "Service healthy", envelope{"health": resp})
}
