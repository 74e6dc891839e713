package handler

import (
	"net/http"
	"time"
)

// HealthCheck reports liveness. It never touches upstream services.
// GET /api/health
func HealthCheck(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
