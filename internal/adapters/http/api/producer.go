package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/okian/pulse/internal/domain/producer"
	"github.com/okian/pulse/pkg/logger"
)

const maxBodyBytes = 1 << 10

// ProducerHandler exposes producer control.
type ProducerHandler struct {
	control StreamControl
	logger  logger.Logger
}

// NewProducerHandler creates a new producer handler.
func NewProducerHandler(control StreamControl) *ProducerHandler {
	return &ProducerHandler{control: control, logger: logger.Get().Named("api")}
}

type rateRequest struct {
	Rate *int `json:"rate"`
}

// HandleStart handles POST /api/producer/start.
func (h *ProducerHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	if err := h.control.StartProducer(r.Context()); err != nil {
		h.logger.Error(r.Context(), "start producer", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, h.control.StreamStats())
}

// HandleStop handles POST /api/producer/stop.
func (h *ProducerHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	if err := h.control.StopProducer(r.Context()); err != nil {
		h.logger.Error(r.Context(), "stop producer", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, h.control.StreamStats())
}

// HandleSetRate handles PUT /api/producer/rate with a {"rate": n} body.
func (h *ProducerHandler) HandleSetRate(w http.ResponseWriter, r *http.Request) {
	var req rateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: %w", ErrBadRequest, err))
		return
	}
	if req.Rate == nil {
		writeError(w, http.StatusBadRequest, "bad_request", fmt.Errorf("%w: missing rate", ErrBadRequest))
		return
	}

	err := h.control.SetRate(r.Context(), *req.Rate)
	switch {
	case errors.Is(err, producer.ErrInvalidRate):
		writeError(w, http.StatusBadRequest, "invalid_rate", err)
		return
	case err != nil:
		h.logger.Error(r.Context(), "set rate", logger.Error(err))
		writeError(w, http.StatusInternalServerError, "internal", err)
		return
	}
	writeJSON(w, http.StatusOK, h.control.StreamStats())
}
