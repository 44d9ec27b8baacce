package serve

import (
	"encoding/json"
	"github.com/Infopercept/opensearch-sdk-go/rpc/metrics"
	"github.com/Infopercept/opensearch-sdk-go/rpc/server"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"net/http"
)

// newAdminRouter serves the Prometheus metrics and the health report
func newAdminRouter(observer *metrics.Observer, health *server.HealthService) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/metrics", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")
		observer.WritePrometheus(w)
	})

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		report := health.Report()
		status := http.StatusOK
		if report.Status == server.Unhealthy {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_ = json.NewEncoder(w).Encode(report)
	})

	return r
}
