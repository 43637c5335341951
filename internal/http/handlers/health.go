package handlers

import (
	"net/http"
	"time"
)

var startedAt = time.Now()

// Health reports liveness plus a few counters useful when poking a running
// instance.
func (a *App) Health(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"jobs":      len(a.Jobs.ListJobs()),
		"active":    a.Jobs.ActiveJob(),
		"providers": len(a.Registry.Catalog()),
		"uptime_s":  int(time.Since(startedAt).Seconds()),
	})
}
