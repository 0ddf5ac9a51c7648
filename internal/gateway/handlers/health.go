package handlers

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"
)

var (
	startTime time.Time
	startOnce sync.Once
)

// InitStartTime records the server start time. Only the first call counts.
func InitStartTime() {
	startOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version"`
	Uptime  int64             `json:"uptime"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// HealthHandler returns a health check handler. When any check fails the
// status is "degraded" and the response code 503.
func HealthHandler(version string, checks map[string]HealthCheck) http.HandlerFunc {
	names := make([]string, 0, len(checks))
	for name := range checks {
		names = append(names, name)
	}
	sort.Strings(names)

	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(0)
		if !startTime.IsZero() {
			uptime = int64(time.Since(startTime).Seconds())
		}

		resp := HealthResponse{Status: "ok", Version: version, Uptime: uptime}
		code := http.StatusOK

		if len(names) > 0 {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			resp.Checks = make(map[string]string, len(names))
			for _, name := range names {
				if err := checks[name](ctx); err != nil {
					resp.Checks[name] = err.Error()
					resp.Status = "degraded"
					code = http.StatusServiceUnavailable
					continue
				}
				resp.Checks[name] = "ok"
			}
		}

		SendJSON(w, code, resp)
	}
}
