// plexodb - PLEXOS solution bundle to DuckDB assembler
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes run progress as Prometheus counters/gauges on an
// optional --metrics-addr HTTP endpoint.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry groups the counters a pipeline run updates as it progresses,
// backed by its own prometheus.Registry so repeated runs in the same
// process (tests, long-lived tooling) don't collide on the default
// global registry.
type Registry struct {
	TablesWritten prometheus.Counter
	RowsWritten   prometheus.Counter
	BytesRead     prometheus.Counter
	TablesTotal   prometheus.Gauge

	registry *prometheus.Registry
}

// NewRegistry builds a fresh metric set.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Registry{
		TablesWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "plexodb_tables_written_total",
			Help: "Number of time-series tables merged into the destination database.",
		}),
		RowsWritten: factory.NewCounter(prometheus.CounterOpts{
			Name: "plexodb_rows_written_total",
			Help: "Number of time-series rows written across all tables.",
		}),
		BytesRead: factory.NewCounter(prometheus.CounterOpts{
			Name: "plexodb_bin_bytes_read_total",
			Help: "Number of bytes read from BIN period-data files.",
		}),
		TablesTotal: factory.NewGauge(prometheus.GaugeOpts{
			Name: "plexodb_tables_total",
			Help: "Number of time-series tables the current run will produce.",
		}),
		registry: reg,
	}
}

// Server serves a Registry's counters on addr until ctx is cancelled,
// mirroring the teacher's HTTPServerService: start ListenAndServe in a
// goroutine, then Shutdown on context cancellation.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) an HTTP server exposing reg on
// addr's /metrics path.
func NewServer(addr string, reg *Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.registry, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Serve runs the server until ctx is cancelled, then shuts it down with a
// bounded grace period. It returns nil on a clean shutdown.
func (s *Server) Serve(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("metrics server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down metrics server: %w", err)
		}
		return nil
	}
}
