package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/agile-defense/evc/pkg/onboard"
)

// CoverStore holds the virtual balise covers of the train
type CoverStore interface {
	List() []onboard.Cover
	Set(c onboard.Cover) error
	Remove(country, marker int) error
}

// CoverHandler manages virtual balise covers from the maintenance interface
type CoverHandler struct {
	store    CoverStore
	validate *validator.Validate
	now      func() time.Time
	logger   zerolog.Logger
}

// NewCoverHandler creates a new CoverHandler
func NewCoverHandler(store CoverStore, logger zerolog.Logger) *CoverHandler {
	return &CoverHandler{
		store:    store,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger.With().Str("handler", "covers").Logger(),
	}
}

// Routes returns the cover routes
func (h *CoverHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.ListCovers)
	r.Put("/", h.SetCover)
	r.Delete("/{country}/{marker}", h.RemoveCover)

	return r
}

// CoverListResponse lists the stored covers
type CoverListResponse struct {
	Covers        []onboard.Cover `json:"covers"`
	CorrelationID string          `json:"correlation_id"`
}

// ListCovers handles GET /api/v1/covers
func (h *CoverHandler) ListCovers(w http.ResponseWriter, r *http.Request) {
	covers := h.store.List()
	if covers == nil {
		covers = []onboard.Cover{}
	}
	WriteJSON(w, http.StatusOK, CoverListResponse{
		Covers:        covers,
		CorrelationID: GetCorrelationID(r.Context()),
	})
}

// SetCoverRequest sets a cover valid for a number of days
type SetCoverRequest struct {
	Country int `json:"nid_c" validate:"gte=0,lte=1023"`
	Marker  int `json:"nid_vbcmk" validate:"gte=0,lte=63"`
	Days    int `json:"t_vbc" validate:"gte=1,lte=63"`
}

// SetCover handles PUT /api/v1/covers
func (h *CoverHandler) SetCover(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	var req SetCoverRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body", correlationID)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		WriteError(w, http.StatusUnprocessableEntity, err.Error(), correlationID)
		return
	}

	cover := onboard.Cover{
		Country: req.Country,
		Marker:  req.Marker,
		Expiry:  h.now().Add(time.Duration(req.Days) * 24 * time.Hour),
	}
	if err := h.store.Set(cover); err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to set cover")
		WriteError(w, http.StatusInternalServerError, "failed to store cover", correlationID)
		return
	}

	h.logger.Info().
		Int("nid_c", cover.Country).
		Int("nid_vbcmk", cover.Marker).
		Time("expiry", cover.Expiry).
		Msg("Cover set")
	WriteSuccess(w, http.StatusOK, "cover set", cover, correlationID)
}

// RemoveCover handles DELETE /api/v1/covers/{country}/{marker}
func (h *CoverHandler) RemoveCover(w http.ResponseWriter, r *http.Request) {
	correlationID := GetCorrelationID(r.Context())

	country, err1 := strconv.Atoi(chi.URLParam(r, "country"))
	marker, err2 := strconv.Atoi(chi.URLParam(r, "marker"))
	if err1 != nil || err2 != nil {
		WriteError(w, http.StatusBadRequest, "invalid cover identity", correlationID)
		return
	}

	if err := h.store.Remove(country, marker); err != nil {
		h.logger.Error().Err(err).Str("correlation_id", correlationID).Msg("Failed to remove cover")
		WriteError(w, http.StatusInternalServerError, "failed to remove cover", correlationID)
		return
	}

	WriteSuccess(w, http.StatusOK, "cover removed", nil, correlationID)
}
