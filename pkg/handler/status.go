package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/kernel"
	"github.com/agile-defense/evc/pkg/messages"
)

// Onboard is the running supervision kernel
type Onboard interface {
	Last() kernel.Output
	Enqueue(in kernel.Input)
}

// StatusHandler serves the onboard status and takes driver actions
type StatusHandler struct {
	onboard Onboard
	id      string
	logger  zerolog.Logger
}

// NewStatusHandler creates a new StatusHandler
func NewStatusHandler(onboard Onboard, id string, logger zerolog.Logger) *StatusHandler {
	return &StatusHandler{
		onboard: onboard,
		id:      id,
		logger:  logger.With().Str("handler", "status").Logger(),
	}
}

// Routes returns the status routes
func (h *StatusHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.GetStatus)
	r.Get("/cycle", h.GetCycle)
	r.Get("/targets", h.GetTargets)
	r.Post("/driver/{action}", h.PostDriverAction)

	return r
}

// GetStatus handles GET /api/v1/status with the driver display view of the
// last cycle
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	out := h.onboard.Last()
	if out.Cycle == 0 {
		WriteError(w, http.StatusServiceUnavailable, "no cycle completed yet", GetCorrelationID(r.Context()))
		return
	}
	WriteJSON(w, http.StatusOK, out.Report(messages.NewEnvelope(h.id, "evc")))
}

// GetCycle handles GET /api/v1/status/cycle with the full output of the last cycle
func (h *StatusHandler) GetCycle(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.onboard.Last())
}

// TargetsResponse lists the supervised targets
type TargetsResponse struct {
	Cycle         uint64                `json:"cycle"`
	EstFront      float64               `json:"est_front"`
	Targets       []messages.TargetInfo `json:"targets"`
	CorrelationID string                `json:"correlation_id"`
}

// GetTargets handles GET /api/v1/status/targets
func (h *StatusHandler) GetTargets(w http.ResponseWriter, r *http.Request) {
	out := h.onboard.Last()
	report := out.Report(messages.Envelope{})

	targets := report.Targets
	if targets == nil {
		targets = []messages.TargetInfo{}
	}
	WriteJSON(w, http.StatusOK, TargetsResponse{
		Cycle:         out.Cycle,
		EstFront:      out.EstFront,
		Targets:       targets,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

var driverActions = map[kernel.DriverAction]bool{
	kernel.AckTrip:           true,
	kernel.AckEmergencyBrake: true,
	kernel.OverrideOn:        true,
	kernel.OverrideOff:       true,
}

// PostDriverAction handles POST /api/v1/status/driver/{action}. The action is
// queued for the next cycle.
func (h *StatusHandler) PostDriverAction(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())
	action := kernel.DriverAction(chi.URLParam(r, "action"))
	if !driverActions[action] {
		WriteError(w, http.StatusBadRequest, "unknown driver action "+string(action), correlationID)
		return
	}

	h.onboard.Enqueue(kernel.Input{Source: kernel.SourceDriver, Driver: action})
	h.logger.Info().
		Str("action", string(action)).
		Str("correlation_id", correlationID).
		Msg("Driver action queued")

	WriteSuccess(w, http.StatusAccepted, "queued", nil, correlationID)
}
