package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/frostline/repofreeze/internal/handlers"
	"github.com/frostline/repofreeze/internal/health"
)

// setupAPIRoutes configures the API server routes.
func setupAPIRoutes(r *chi.Mux, api *handlers.FreezeHandlers, logger *zap.Logger) {
	r.Get("/ping", handlePing(logger))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/freeze", api.HandleFreeze)
		r.Post("/unfreeze", api.HandleUnfreeze)
		r.Get("/freeze/{owner}/{repo}", api.HandleGetFreeze)
		r.Post("/unlock", api.HandleUnlock)
		r.Post("/refresh", api.HandleRefresh)
	})
}

// setupProbeRoutes configures the probe server routes.
func setupProbeRoutes(r *chi.Mux, manager *health.Manager, logger *zap.Logger) {
	r.Get("/healthz/startup", handleStartup(manager, logger))
	r.Get("/healthz/live", handleLiveness(manager, logger))
	r.Get("/healthz/ready", handleReadiness(manager, logger))
}

// handlePing handles the /ping endpoint.
func handlePing(logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, logger, http.StatusOK, map[string]string{"status": "pong"})
	}
}

// handleStartup reports whether every registered check has passed at least
// once. Kubernetes keeps probing until it gets a 200.
func handleStartup(manager *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := manager.GetStartupStatus(r.Context())

		status := http.StatusOK
		if response.Status != health.StatusOK {
			status = http.StatusServiceUnavailable
		}

		respondJSON(w, logger, status, response)
	}
}

// handleLiveness reports only that the process is serving requests.
func handleLiveness(manager *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, logger, http.StatusOK, manager.GetLivenessStatus())
	}
}

// handleReadiness reports whether the service should receive traffic.
func handleReadiness(manager *health.Manager, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		response := manager.GetReadinessStatus(r.Context())

		status := http.StatusOK
		if !response.Ready {
			status = http.StatusServiceUnavailable
		}

		respondJSON(w, logger, status, response)
	}
}

func respondJSON(w http.ResponseWriter, logger *zap.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger.Error("Failed to encode response", zap.Error(err))
	}
}
