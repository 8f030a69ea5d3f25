package api

import (
	"context"
	"net/http"
	"time"
)

// Pinger is a dependency the health check probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status     string            `json:"status"`
	Version    string            `json:"version"`
	Components map[string]string `json:"components"`
}

// HealthHandler reports "healthy" when every component answers its ping
// within two seconds, and 503 otherwise.
func HealthHandler(version string, components map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := HealthResponse{
			Status:     "healthy",
			Version:    version,
			Components: make(map[string]string, len(components)),
		}
		status := http.StatusOK

		for name, p := range components {
			if err := p.Ping(ctx); err != nil {
				resp.Components[name] = "unavailable: " + err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Components[name] = "ok"
		}

		respondJSON(w, status, resp)
	}
}
