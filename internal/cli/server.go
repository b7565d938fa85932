package cli

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	storage "github.com/sispop-dev/storage"
)

// newOpsRouter serves metrics, health and node state for operators.
func newOpsRouter(node *storage.Node, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Method(http.MethodGet, "/health", storage.HealthHandler(node))
	r.Method(http.MethodGet, "/live", storage.LivenessHandler(node))
	r.Get("/debug/state", func(w http.ResponseWriter, r *http.Request) {
		body, err := node.DumpStateJSON()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	})
	return r
}
