package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tradepilot/backend/internal/contracts"
	"github.com/tradepilot/backend/internal/scheduler"
	"github.com/tradepilot/backend/pkg/logger"
)

// SchedulerHandler handles scheduler inspection and forced runs
type SchedulerHandler struct {
	scheduler *scheduler.Scheduler
	logger    *logger.Logger
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(s *scheduler.Scheduler, log *logger.Logger) *SchedulerHandler {
	return &SchedulerHandler{
		scheduler: s,
		logger:    log,
	}
}

// GetJobs returns statistics for all registered jobs
// GET /api/scheduler/jobs
func (h *SchedulerHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    h.scheduler.GetJobStats(),
	})
}

// GetJobHistory returns the run history of one job
// GET /api/scheduler/jobs/{name}/history
func (h *SchedulerHandler) GetJobHistory(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	history, err := h.scheduler.GetJobHistory(name)
	if err != nil {
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"data":    history.Results,
	})
}

// RunJob triggers a job immediately, under the single-flight guard
// POST /api/scheduler/jobs/{name}/run
func (h *SchedulerHandler) RunJob(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]

	if err := h.scheduler.RunJob(name); err != nil {
		if errors.Is(err, contracts.ErrCycleInFlight) {
			respondError(w, http.StatusConflict, "job is already running")
			return
		}
		respondError(w, http.StatusNotFound, err.Error())
		return
	}

	h.logger.WithField("job", name).Info("Job triggered manually")
	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
		"job":     name,
	})
}

// RunCycle triggers one generation cycle immediately
// POST /api/cycle/run
func (h *SchedulerHandler) RunCycle(w http.ResponseWriter, r *http.Request) {
	if err := h.scheduler.RunJob("signal_generation"); err != nil {
		if errors.Is(err, contracts.ErrCycleInFlight) {
			respondError(w, http.StatusConflict, "a cycle is already in flight")
			return
		}
		respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	respondJSON(w, http.StatusAccepted, map[string]interface{}{
		"success": true,
	})
}
