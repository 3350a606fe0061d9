package runner

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves /health: database connectivity, the last run report
// and, when sched is not nil, the next scheduled run.
func HealthHandler(db Pinger, runner *Runner, sched *Scheduler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		health := struct {
			Status     string         `json:"status"`
			Components map[string]any `json:"components"`
		}{
			Status:     "healthy",
			Components: make(map[string]any),
		}

		if err := db.Ping(ctx); err != nil {
			health.Status = "unhealthy"
			health.Components["database"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			health.Components["database"] = "connected"
		}

		if last := runner.Last(); last != nil {
			health.Components["last_run"] = last
			if last.Failed() && health.Status == "healthy" {
				health.Status = "degraded"
			}
		}
		if sched != nil {
			health.Components["next_run"] = sched.NextRun()
		}

		w.Header().Set("Content-Type", "application/json")
		if health.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(health); err != nil {
			runner.logger.Debug("failed to write health response", "error", err)
		}
	})

	return mux
}
