package handler

import (
	"net/http"

	"github.com/sakif/script-executor/internal/metrics"
	"github.com/sakif/script-executor/internal/respond"
)

// HandleHealth is an unauthenticated liveness probe.
func HandleHealth(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// MetricsHandler exposes the execution counters.
type MetricsHandler struct {
	counters *metrics.Counters
}

func NewMetricsHandler(counters *metrics.Counters) *MetricsHandler {
	return &MetricsHandler{counters: counters}
}

func (h *MetricsHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	respond.JSON(w, http.StatusOK, h.counters.Snapshot())
}
