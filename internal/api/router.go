package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradepilot/backend/internal/api/handlers"
	"github.com/tradepilot/backend/internal/bridge"
	"github.com/tradepilot/backend/pkg/logger"
)

// Handlers groups the handler set wired into the router.
type Handlers struct {
	Signals     *handlers.SignalHandler
	Positions   *handlers.PositionHandler
	Performance *handlers.PerformanceHandler
	Bridge      *handlers.BridgeHandler
	Scheduler   *handlers.SchedulerHandler
	Settings    *handlers.SettingsHandler
	Events      *EventStream
}

// NewRouter creates and configures the HTTP router
func NewRouter(h Handlers, manager *bridge.Manager, log *logger.Logger) http.Handler {
	r := mux.NewRouter()

	// Health check
	r.HandleFunc("/health", healthCheckHandler(manager)).Methods("GET")

	// Event stream
	r.HandleFunc("/ws", h.Events.ServeWS).Methods("GET")

	// API v1
	api := r.PathPrefix("/api").Subrouter()

	// Signal endpoints
	api.HandleFunc("/signals", h.Signals.GetActive).Methods("GET")
	api.HandleFunc("/signals/{id}", h.Signals.GetByID).Methods("GET")

	// Position endpoints
	api.HandleFunc("/positions", h.Positions.GetOpen).Methods("GET")
	api.HandleFunc("/positions/history", h.Positions.GetHistory).Methods("GET")

	// Performance endpoint
	api.HandleFunc("/performance", h.Performance.GetSummary).Methods("GET")

	// Bridge connection management
	api.HandleFunc("/bridge/status", h.Bridge.GetStatus).Methods("GET")
	api.HandleFunc("/bridge/account", h.Bridge.GetAccount).Methods("GET")
	api.HandleFunc("/bridge/configure", h.Bridge.Configure).Methods("POST")
	api.HandleFunc("/bridge/configure", h.Bridge.RemoveConfiguration).Methods("DELETE")
	api.HandleFunc("/bridge/connect", h.Bridge.Connect).Methods("POST")

	// Scheduler control
	api.HandleFunc("/scheduler/jobs", h.Scheduler.GetJobs).Methods("GET")
	api.HandleFunc("/scheduler/jobs/{name}/history", h.Scheduler.GetJobHistory).Methods("GET")
	api.HandleFunc("/scheduler/jobs/{name}/run", h.Scheduler.RunJob).Methods("POST")
	api.HandleFunc("/cycle/run", h.Scheduler.RunCycle).Methods("POST")

	// Settings
	api.HandleFunc("/settings/policy", h.Settings.GetPolicy).Methods("GET")
	api.HandleFunc("/settings/policy", h.Settings.UpdatePolicy).Methods("PUT")

	// Apply middleware
	r.Use(loggingMiddleware(log))
	r.Use(recoveryMiddleware(log))

	return r
}

// healthCheckHandler returns server health status including the bridge
// connection state
func healthCheckHandler(manager *bridge.Manager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		state := manager.State()
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"status":           "ok",
			"service":          "tradepilot-api",
			"bridge_state":     state.State,
			"bridge_connected": state.IsConnected(),
		})
	}
}

// loggingMiddleware logs HTTP requests
func loggingMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// Call next handler
			next.ServeHTTP(w, r)

			// Log request
			log.WithFields(map[string]interface{}{
				"method":   r.Method,
				"path":     r.URL.Path,
				"duration": time.Since(start),
			}).Debug("HTTP request")
		})
	}
}

// recoveryMiddleware recovers from panics
func recoveryMiddleware(log *logger.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					log.WithFields(map[string]interface{}{
						"error": err,
						"path":  r.URL.Path,
					}).Error("Panic recovered")

					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					json.NewEncoder(w).Encode(map[string]string{
						"error": "Internal server error",
					})
				}
			}()

			next.ServeHTTP(w, r)
		})
	}
}
