package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/engine"
	"github.com/frostline/repofreeze/internal/freezestore"
	"github.com/frostline/repofreeze/internal/metrics"
	"github.com/frostline/repofreeze/internal/model"
)

// FreezeService is the slice of the lifecycle engine the handlers invoke.
type FreezeService interface {
	CreateFreeze(ctx context.Context, req engine.CreateFreezeRequest) (*model.FreezeRecord, error)
	EndFreeze(ctx context.Context, installationID int64, repo model.Repo, actor string) error
	Status(ctx context.Context, installationID int64, repo model.Repo) (*engine.FreezeStatus, error)
	UnlockPR(ctx context.Context, installationID int64, repo model.Repo, prNumber int, actor string) (*model.UnlockedPr, error)
}

// AllRefresher runs a full synchronization pass over every frozen repository.
type AllRefresher interface {
	RefreshAll(ctx context.Context) (map[string]*model.RefreshResult, error)
}

// FreezeHandlers provides HTTP handlers for the freeze command surface.
type FreezeHandlers struct {
	service FreezeService
	refresh AllRefresher
	logger  *zap.Logger
	metrics *metrics.Metrics
}

// NewFreezeHandlers creates a new FreezeHandlers instance.
func NewFreezeHandlers(service FreezeService, refresh AllRefresher, logger *zap.Logger, m *metrics.Metrics) *FreezeHandlers {
	return &FreezeHandlers{
		service: service,
		refresh: refresh,
		logger:  logger,
		metrics: m,
	}
}

// HandleFreeze handles POST /api/v1/freeze requests to create a freeze.
// Returns:
//   - 201 Created: freeze created (active or scheduled)
//   - 400 Bad Request: invalid request body or validation error
//   - 409 Conflict: window overlaps an existing active freeze
//   - 500 Internal Server Error: storage or internal error
func (h *FreezeHandlers) HandleFreeze(w http.ResponseWriter, r *http.Request) {
	var req model.FreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode freeze request", zap.Error(err))
		h.recordMetric("freeze", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo, installationID, actor, ok := h.validateTarget(w, "freeze", req.Repository, req.InstallationID, req.Actor)
	if !ok {
		return
	}

	create := engine.CreateFreezeRequest{
		InstallationID: installationID,
		Repo:           repo,
		Start:          req.Start,
		End:            req.End,
		Reason:         req.Reason,
		Branch:         req.Branch,
		Actor:          actor,
		IssueNumber:    req.IssueNumber,
	}

	if req.Duration != nil {
		d, err := time.ParseDuration(*req.Duration)
		if err != nil || d <= 0 {
			h.recordMetric("freeze", "failure")
			h.respondError(w, http.StatusBadRequest, "Invalid freeze duration")
			return
		}
		create.Duration = &d
	}

	rec, err := h.service.CreateFreeze(r.Context(), create)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrInvalidWindow):
			h.recordMetric("freeze", "failure")
			h.respondError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, freezestore.ErrOverlap):
			h.logger.Debug("Freeze window overlap",
				zap.String("repository", repo.FullName()),
				zap.Int64("installation_id", installationID),
			)
			h.recordMetric("freeze", "conflict")
			h.respondError(w, http.StatusConflict, "Freeze window overlaps an existing active freeze")
		default:
			h.logger.Error("Failed to create freeze", zap.Error(err))
			h.recordMetric("freeze", "failure")
			h.respondError(w, http.StatusInternalServerError, "Failed to create freeze")
		}
		return
	}

	h.recordMetric("freeze", "success")
	h.respondJSON(w, http.StatusCreated, model.APIResponse{
		Status:  string(rec.Status),
		Message: "Freeze created",
		Record:  rec,
	})
}

// HandleUnfreeze handles POST /api/v1/unfreeze requests to end a freeze.
// Returns:
//   - 200 OK: every active freeze on the repository ended
//   - 400 Bad Request: invalid request body or validation error
//   - 404 Not Found: repository has no active freeze
//   - 500 Internal Server Error: storage or internal error
func (h *FreezeHandlers) HandleUnfreeze(w http.ResponseWriter, r *http.Request) {
	var req model.UnfreezeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode unfreeze request", zap.Error(err))
		h.recordMetric("unfreeze", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo, installationID, actor, ok := h.validateTarget(w, "unfreeze", req.Repository, req.InstallationID, req.Actor)
	if !ok {
		return
	}

	if err := h.service.EndFreeze(r.Context(), installationID, repo, actor); err != nil {
		if errors.Is(err, engine.ErrNoActiveFreeze) {
			h.recordMetric("unfreeze", "not_found")
			h.respondError(w, http.StatusNotFound, "No active freeze for repository")
			return
		}

		h.logger.Error("Failed to end freeze", zap.Error(err))
		h.recordMetric("unfreeze", "failure")
		h.respondError(w, http.StatusInternalServerError, "Failed to end freeze")
		return
	}

	h.recordMetric("unfreeze", "success")
	h.respondJSON(w, http.StatusOK, model.APIResponse{
		Status:  "ended",
		Message: "Freeze ended",
	})
}

// freezeStatusResponse wraps the engine status for GET requests.
type freezeStatusResponse struct {
	Frozen  bool                `json:"frozen"`
	Expired bool                `json:"expired"`
	Record  *model.FreezeRecord `json:"record,omitempty"`
}

// HandleGetFreeze handles GET /api/v1/freeze/{owner}/{repo} requests.
// Returns:
//   - 200 OK: an active (possibly window-expired) freeze record exists
//   - 400 Bad Request: invalid path or installation parameter
//   - 404 Not Found: no active freeze for the repository
//   - 500 Internal Server Error: storage or internal error
func (h *FreezeHandlers) HandleGetFreeze(w http.ResponseWriter, r *http.Request) {
	repo := model.Repo{
		Owner: strings.TrimSpace(chi.URLParam(r, "owner")),
		Name:  strings.TrimSpace(chi.URLParam(r, "repo")),
	}
	if repo.Owner == "" || repo.Name == "" {
		h.recordMetric("get", "failure")
		h.respondError(w, http.StatusBadRequest, "Repository owner and name are required")
		return
	}

	installationID, err := strconv.ParseInt(r.URL.Query().Get("installation"), 10, 64)
	if err != nil || installationID <= 0 {
		h.recordMetric("get", "failure")
		h.respondError(w, http.StatusBadRequest, "Valid installation query parameter is required")
		return
	}

	status, err := h.service.Status(r.Context(), installationID, repo)
	if err != nil {
		h.logger.Error("Failed to get freeze status", zap.Error(err))
		h.recordMetric("get", "failure")
		h.respondError(w, http.StatusInternalServerError, "Failed to get freeze status")
		return
	}

	if status.Record == nil {
		h.recordMetric("get", "success")
		h.respondJSON(w, http.StatusNotFound, model.APIResponse{
			Status:  "not_frozen",
			Message: "No active freeze for repository",
		})
		return
	}

	h.recordMetric("get", "success")
	h.respondJSON(w, http.StatusOK, freezeStatusResponse{
		Frozen:  status.Frozen,
		Expired: status.Expired,
		Record:  status.Record,
	})
}

// HandleUnlock handles POST /api/v1/unlock requests to grant one pull request
// an override during an active freeze.
// Returns:
//   - 200 OK: override recorded
//   - 400 Bad Request: invalid request body or validation error
//   - 409 Conflict: repository has no active freeze to override
//   - 500 Internal Server Error: storage or internal error
func (h *FreezeHandlers) HandleUnlock(w http.ResponseWriter, r *http.Request) {
	var req model.UnlockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.logger.Error("Failed to decode unlock request", zap.Error(err))
		h.recordMetric("unlock", "failure")
		h.respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	repo, installationID, actor, ok := h.validateTarget(w, "unlock", req.Repository, req.InstallationID, req.Actor)
	if !ok {
		return
	}
	if req.PRNumber <= 0 {
		h.recordMetric("unlock", "failure")
		h.respondError(w, http.StatusBadRequest, "Valid pull request number is required")
		return
	}

	record, err := h.service.UnlockPR(r.Context(), installationID, repo, req.PRNumber, actor)
	if err != nil {
		if errors.Is(err, engine.ErrNoActiveFreeze) {
			h.recordMetric("unlock", "conflict")
			h.respondError(w, http.StatusConflict, "No active freeze to override")
			return
		}

		h.logger.Error("Failed to unlock pull request", zap.Error(err))
		h.recordMetric("unlock", "failure")
		h.respondError(w, http.StatusInternalServerError, "Failed to unlock pull request")
		return
	}

	h.recordMetric("unlock", "success")
	h.respondJSON(w, http.StatusOK, model.APIResponse{
		Status:  "unlocked",
		Message: "Pull request unlocked for the current freeze",
		Unlock:  record,
	})
}

// HandleRefresh handles POST /api/v1/refresh requests. The pass runs in the
// background; the request context ends with the response.
// Returns:
//   - 202 Accepted: synchronization pass started
func (h *FreezeHandlers) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	go func() {
		results, err := h.refresh.RefreshAll(context.Background())
		if err != nil {
			h.logger.Error("Background refresh failed", zap.Error(err))
			h.recordMetric("refresh", "failure")
			return
		}
		h.recordMetric("refresh", "success")
		h.logger.Info("Background refresh finished", zap.Int("repositories", len(results)))
	}()

	h.respondJSON(w, http.StatusAccepted, model.APIResponse{
		Status:  "accepted",
		Message: "Refresh started",
	})
}

// validateTarget checks the fields every mutating request carries. On failure
// it writes the error response and returns ok=false.
func (h *FreezeHandlers) validateTarget(w http.ResponseWriter, operation, repository string, installationID int64, actor string) (model.Repo, int64, string, bool) {
	repo, err := model.ParseRepo(strings.TrimSpace(repository))
	if err != nil {
		h.recordMetric(operation, "failure")
		h.respondError(w, http.StatusBadRequest, err.Error())
		return model.Repo{}, 0, "", false
	}

	if installationID <= 0 {
		h.recordMetric(operation, "failure")
		h.respondError(w, http.StatusBadRequest, "Valid installation_id is required")
		return model.Repo{}, 0, "", false
	}

	actor = strings.TrimSpace(actor)
	if actor == "" {
		h.recordMetric(operation, "failure")
		h.respondError(w, http.StatusBadRequest, "Actor is required")
		return model.Repo{}, 0, "", false
	}

	return repo, installationID, actor, true
}

// respondError sends an error response.
func (h *FreezeHandlers) respondError(w http.ResponseWriter, status int, message string) {
	h.respondJSON(w, status, model.APIResponse{
		Status:  "error",
		Message: message,
	})
}

// respondJSON sends a JSON response.
func (h *FreezeHandlers) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
}

// recordMetric records a freeze operation metric.
func (h *FreezeHandlers) recordMetric(operation, status string) {
	if h.metrics != nil && h.metrics.FreezeOperationsTotal != nil {
		h.metrics.FreezeOperationsTotal.WithLabelValues(operation, status).Inc()
	}
}
