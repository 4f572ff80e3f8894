// Package server exposes the ops HTTP surface: /healthz, /status with the
// current stream position, and Prometheus /metrics.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/onnwee/chat-tap/stream"
)

// NewMux returns the HTTP handler with all routes. status is sampled per
// request.
func NewMux(status func() stream.Status) http.Handler {
	mux := http.NewServeMux()

	mux.Handle("/metrics", promhttp.Handler())

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(status()); err != nil {
			slog.Warn("encode status response", slog.Any("err", err))
		}
	})

	return mux
}

// Start runs the ops server until ctx is cancelled. Always returns nil after
// a clean shutdown.
func Start(ctx context.Context, addr string, status func() stream.Status) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(status),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("ops server shutdown", slog.Any("err", err))
		}
	}()

	slog.Info("ops server listening", slog.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
