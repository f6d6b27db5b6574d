package lifecycle

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Proton-105/frostbank/internal/middleware"
	"github.com/Proton-105/frostbank/pkg/logger"
)

type probeResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewOpsHandler serves /metrics, /healthz and /readyz.
func NewOpsHandler(probes HealthChecker, log *slog.Logger) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := probes.Liveness(r.Context()); err != nil {
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: err.Error()})
			return
		}
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok"})
	})

	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		checks, err := probes.Readiness(r.Context())
		if err != nil {
			writeProbe(w, http.StatusServiceUnavailable, probeResponse{Status: "unavailable", Checks: checks})
			return
		}
		writeProbe(w, http.StatusOK, probeResponse{Status: "ok", Checks: checks})
	})

	return logger.Middleware(middleware.New(log)(mux))
}

func writeProbe(w http.ResponseWriter, status int, body probeResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
