// Package httpapi exposes the thin operational surface of the service:
// manual sync triggers, status and schedule queries, and a health probe.
package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	json "github.com/goccy/go-json"
	"github.com/rs/zerolog/log"

	"github.com/fundops/backoffice/internal/domain"
	"github.com/fundops/backoffice/internal/usecase/scheduler"
)

// SyncOrchestrator is the scheduler surface the controller drives.
type SyncOrchestrator interface {
	TriggerSync(ctx context.Context, syncType scheduler.SyncType) (*scheduler.RunResult, error)
	GetStatus(syncType scheduler.SyncType) (scheduler.Status, error)
	GetSchedule(syncType scheduler.SyncType) (scheduler.ScheduleInfo, error)
	UpdateSchedule(syncType scheduler.SyncType, spec string, enabled bool) error
}

// SyncController handles the /sync/{type}/* routes.
type SyncController struct {
	orchestrator SyncOrchestrator
}

func NewSyncController(orchestrator SyncOrchestrator) *SyncController {
	return &SyncController{orchestrator: orchestrator}
}

func (c *SyncController) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /sync/{type}/trigger", c.triggerSync)
	mux.HandleFunc("GET /sync/{type}/status", c.getStatus)
	mux.HandleFunc("GET /sync/{type}/schedule", c.getSchedule)
	mux.HandleFunc("PUT /sync/{type}/schedule", c.updateSchedule)
}

// tenantSummary is the wire shape of one share class's run outcome.
type tenantSummary struct {
	ShareClass string `json:"share_class"`
	Count      int    `json:"count"`
	Error      string `json:"error,omitempty"`
}

// runResult is the wire shape of one completed sync run.
type runResult struct {
	Type       string          `json:"type"`
	StartedAt  time.Time       `json:"started_at"`
	DurationMS int64           `json:"duration_ms"`
	Total      int             `json:"total"`
	Tenants    []tenantSummary `json:"tenants,omitempty"`
	Message    string          `json:"message,omitempty"`
}

type scheduleResponse struct {
	Enabled bool       `json:"enabled"`
	Cron    string     `json:"cron"`
	Next    *time.Time `json:"next,omitempty"`
	Prev    *time.Time `json:"prev,omitempty"`
}

type statusResponse struct {
	Running    bool             `json:"running"`
	LastRun    *time.Time       `json:"last_run,omitempty"`
	LastResult *runResult       `json:"last_result,omitempty"`
	Schedule   scheduleResponse `json:"schedule"`
}

type updateScheduleRequest struct {
	Cron    string `json:"cron"`
	Enabled bool   `json:"enabled"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (c *SyncController) triggerSync(w http.ResponseWriter, r *http.Request) {
	syncType, ok := parseSyncType(w, r)
	if !ok {
		return
	}

	result, err := c.orchestrator.TriggerSync(r.Context(), syncType)
	if err != nil {
		if errors.Is(err, domain.ErrAlreadyRunning) {
			writeJSON(w, http.StatusConflict, errorResponse{Error: err.Error()})
			return
		}
		log.Error().Err(err).Str("sync_type", string(syncType)).Msg("manual sync trigger failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, toRunResult(result))
}

func (c *SyncController) getStatus(w http.ResponseWriter, r *http.Request) {
	syncType, ok := parseSyncType(w, r)
	if !ok {
		return
	}

	status, err := c.orchestrator.GetStatus(syncType)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}

	resp := statusResponse{
		Running:  status.Running,
		Schedule: toSchedule(status.Schedule),
	}
	if !status.LastRun.IsZero() {
		resp.LastRun = &status.LastRun
	}
	if status.LastResult != nil {
		result := toRunResult(status.LastResult)
		resp.LastResult = &result
	}
	writeJSON(w, http.StatusOK, resp)
}

func (c *SyncController) getSchedule(w http.ResponseWriter, r *http.Request) {
	syncType, ok := parseSyncType(w, r)
	if !ok {
		return
	}

	info, err := c.orchestrator.GetSchedule(syncType)
	if err != nil {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toSchedule(info))
}

func (c *SyncController) updateSchedule(w http.ResponseWriter, r *http.Request) {
	syncType, ok := parseSyncType(w, r)
	if !ok {
		return
	}

	var req updateScheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid request body"})
		return
	}
	if req.Cron == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "cron is required"})
		return
	}

	if err := c.orchestrator.UpdateSchedule(syncType, req.Cron, req.Enabled); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}

	info, err := c.orchestrator.GetSchedule(syncType)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, toSchedule(info))
}

// parseSyncType validates the {type} path segment, writing a 404 on unknown
// types.
func parseSyncType(w http.ResponseWriter, r *http.Request) (scheduler.SyncType, bool) {
	syncType := scheduler.SyncType(r.PathValue("type"))
	switch syncType {
	case scheduler.SyncAccounts, scheduler.SyncTransfers, scheduler.SyncRates:
		return syncType, true
	default:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown sync type: " + string(syncType)})
		return "", false
	}
}

func toRunResult(result *scheduler.RunResult) runResult {
	out := runResult{
		Type:       string(result.Type),
		StartedAt:  result.StartedAt,
		DurationMS: result.Duration.Milliseconds(),
		Total:      result.Total,
		Message:    result.Message,
	}
	for _, tenant := range result.Tenants {
		out.Tenants = append(out.Tenants, tenantSummary(tenant))
	}
	return out
}

func toSchedule(info scheduler.ScheduleInfo) scheduleResponse {
	resp := scheduleResponse{Enabled: info.Enabled, Cron: info.Cron}
	if !info.Next.IsZero() {
		next := info.Next
		resp.Next = &next
	}
	if !info.Prev.IsZero() {
		prev := info.Prev
		resp.Prev = &prev
	}
	return resp
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
