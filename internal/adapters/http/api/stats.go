package api

import (
	"net/http"
)

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats() map[string]any
}

// StatsHandler handles stats requests.
type StatsHandler struct {
	statsProvider StatsProvider
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(statsProvider StatsProvider) *StatsHandler {
	return &StatsHandler{statsProvider: statsProvider}
}

// HandleStats handles GET /stats requests.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.statsProvider.GetStats())
}

// LimiterHandler reports admission limiter state.
type LimiterHandler struct {
	admission Admission
}

// NewLimiterHandler creates a new limiter handler.
func NewLimiterHandler(admission Admission) *LimiterHandler {
	return &LimiterHandler{admission: admission}
}

// HandleLimiter handles GET /api/limiter requests.
func (h *LimiterHandler) HandleLimiter(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.admission.Stats())
}
