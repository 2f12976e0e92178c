package main

import (
	"encoding/json"
	"net/http"

	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/metrics"
	"github.com/openCoreEMR/oce-module-sinch-conversations/internal/tracing"
)

// handleMetrics returns current application metrics as JSON
func (s *Server) handleMetrics() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snapshot := metrics.GetAllMetrics()

		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")

		encoder := json.NewEncoder(w)
		encoder.SetIndent("", "  ")

		if err := encoder.Encode(snapshot); err != nil {
			s.logger.WithError(err).
				WithField("request_id", tracing.GetRequestID(r.Context())).
				Error("Failed to encode metrics response")
			http.Error(w, "Internal server error", http.StatusInternalServerError)
		}
	}
}
