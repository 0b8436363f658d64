package server

import (
	"context"
	"net/http"
	"time"
)

// HealthResponse represents the JSON response for health endpoints
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Service   string            `json:"service"`
	Version   string            `json:"version,omitempty"`
	Checks    map[string]string `json:"checks,omitempty"`
	Details   map[string]string `json:"details,omitempty"`
}

// Pinger is a dependency whose reachability is part of readiness
type Pinger interface {
	Ping(ctx context.Context) error
}

// LivenessHandler checks if the server is running and accepting requests.
// Always returns 200 OK, no external dependencies required.
func (s *Server) LivenessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.logger.DebugContext(ctx, "liveness check requested")

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   Version,
	})
}

// ReadinessHandler returns 200 OK if the image store and the result cache are reachable, 503 if not
func (s *Server) ReadinessHandler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	s.logger.DebugContext(ctx, "readiness check requested")

	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Service:   ServiceName,
		Version:   Version,
		Checks:    make(map[string]string),
	}

	if s.store != nil {
		if s.store.Accessible(ctx) {
			response.Checks["storage"] = "accessible"
		} else {
			response.Status = "unhealthy"
			response.Checks["storage"] = "inaccessible"
		}
	}

	if s.cache != nil {
		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		err := s.cache.Ping(pingCtx)
		cancel()
		if err == nil {
			response.Checks["cache"] = "reachable"
		} else {
			response.Status = "unhealthy"
			response.Checks["cache"] = "unreachable"
			response.Details = map[string]string{"cache": err.Error()}
		}
	}

	if s.ingestor == nil {
		response.Checks["credentials"] = "missing"
	} else {
		response.Checks["credentials"] = "configured"
	}

	status := http.StatusOK
	if response.Status != "healthy" {
		status = http.StatusServiceUnavailable
		s.logger.ErrorContext(ctx, "readiness check failed", "checks", response.Checks)
	}
	writeJSON(w, status, response)
}
