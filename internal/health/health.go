// Package health serves liveness and local counters over HTTP for the
// long-running Kafka source.
package health

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"cloudtrail-notifier/pkg/metrics"
)

// Snapshotter returns the current counters of this instance.
type Snapshotter interface {
	GetSnapshot() *metrics.InstanceMetrics
}

// NewHandler returns the mux with /health and /api/v1/metrics. A nil
// snapshotter makes the metrics route answer 503.
func NewHandler(s Snapshotter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	mux.HandleFunc("/api/v1/metrics", func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		if s == nil {
			http.Error(w, "Metrics not enabled", http.StatusServiceUnavailable)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(s.GetSnapshot()); err != nil {
			slog.Error("Failed to encode metrics response", "error", err)
		}
	})

	return mux
}

// NewServer creates the HTTP server listening on addr.
func NewServer(addr string, s Snapshotter) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      NewHandler(s),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}
