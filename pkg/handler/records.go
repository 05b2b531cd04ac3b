package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/postgres"
)

// Records is the juridical recorder store
type Records interface {
	ListBrakeCommands(ctx context.Context, filter postgres.Filter) ([]postgres.BrakeRow, error)
	ListFaults(ctx context.Context, filter postgres.Filter) ([]postgres.FaultRow, error)
	ListTransitions(ctx context.Context, filter postgres.Filter) ([]postgres.TransitionRow, error)
}

// RecordHandler serves the juridical record
type RecordHandler struct {
	db     Records
	logger zerolog.Logger
}

// NewRecordHandler creates a new RecordHandler
func NewRecordHandler(db Records, logger zerolog.Logger) *RecordHandler {
	return &RecordHandler{
		db:     db,
		logger: logger.With().Str("handler", "records").Logger(),
	}
}

// Routes returns the record routes
func (h *RecordHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/brakes", h.ListBrakeCommands)
	r.Get("/faults", h.ListFaults)
	r.Get("/transitions", h.ListTransitions)

	return r
}

// RecordListResponse represents a page of records
type RecordListResponse struct {
	Records       interface{} `json:"records"`
	Count         int         `json:"count"`
	Limit         int         `json:"limit"`
	Offset        int         `json:"offset"`
	CorrelationID string      `json:"correlation_id"`
}

func (h *RecordHandler) filter(w http.ResponseWriter, r *http.Request) (postgres.Filter, bool) {
	filter := postgres.Filter{
		Source: r.URL.Query().Get("source"),
		Kind:   r.URL.Query().Get("kind"),
		Limit:  queryInt(r, "limit"),
		Offset: queryInt(r, "offset"),
	}
	var err error
	if filter.Since, err = queryTime(r, "since"); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid since timestamp", GetCorrelationID(r.Context()))
		return filter, false
	}
	if filter.Until, err = queryTime(r, "until"); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid until timestamp", GetCorrelationID(r.Context()))
		return filter, false
	}
	if filter.Limit == 0 {
		filter.Limit = 100
	}
	return filter, true
}

func (h *RecordHandler) respond(w http.ResponseWriter, r *http.Request, filter postgres.Filter, records interface{}, count int, err error) {
	correlationID := GetCorrelationID(r.Context())
	if err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to list records")
		WriteError(w, http.StatusInternalServerError, "failed to retrieve records", correlationID)
		return
	}
	WriteJSON(w, http.StatusOK, RecordListResponse{
		Records:       records,
		Count:         count,
		Limit:         filter.Limit,
		Offset:        filter.Offset,
		CorrelationID: correlationID,
	})
}

// ListBrakeCommands handles GET /api/v1/records/brakes
func (h *RecordHandler) ListBrakeCommands(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	rows, err := h.db.ListBrakeCommands(r.Context(), filter)
	if rows == nil {
		rows = []postgres.BrakeRow{}
	}
	h.respond(w, r, filter, rows, len(rows), err)
}

// ListFaults handles GET /api/v1/records/faults
func (h *RecordHandler) ListFaults(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	rows, err := h.db.ListFaults(r.Context(), filter)
	if rows == nil {
		rows = []postgres.FaultRow{}
	}
	h.respond(w, r, filter, rows, len(rows), err)
}

// ListTransitions handles GET /api/v1/records/transitions
func (h *RecordHandler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	filter, ok := h.filter(w, r)
	if !ok {
		return
	}
	rows, err := h.db.ListTransitions(r.Context(), filter)
	if rows == nil {
		rows = []postgres.TransitionRow{}
	}
	h.respond(w, r, filter, rows, len(rows), err)
}
