package prover

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// proofRunsTotal counts terminal results by backend and status.
	proofRunsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prover_runs_total",
		Help: "Total proof runs by backend and status",
	}, []string{"backend", "status"})

	// proofRunSeconds tracks end-to-end wall clock per backend.
	proofRunSeconds = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "prover_run_seconds",
		Help:    "Proof run duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
	}, []string{"backend"})

	// installAttemptsTotal counts auto-install attempts by result.
	installAttemptsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "prover_install_attempts_total",
		Help: "Auto-install attempts by result",
	}, []string{"result"})

	// backendAvailable is 1 when the last probe found the backend.
	backendAvailable = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "prover_backend_available",
		Help: "Whether the last availability probe found the backend (1) or not (0)",
	}, []string{"backend"})
)

func observeResult(r ProofResult) {
	proofRunsTotal.WithLabelValues(r.Backend.String(), string(r.Status)).Inc()
	proofRunSeconds.WithLabelValues(r.Backend.String()).Observe(r.ElapsedSeconds())
}

func observeAvailability(summary map[BackendID]bool) {
	for b, ok := range summary {
		v := 0.0
		if ok {
			v = 1
		}
		backendAvailable.WithLabelValues(b.String()).Set(v)
	}
}
