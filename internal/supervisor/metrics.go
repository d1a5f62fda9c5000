package supervisor

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rteval-org/parserd/internal/adapter/observability"
)

// metricsServer is the loopback-bound, scrape-only HTTP surface carrying
// /metrics and /healthz. It is not the RPC/report-submission HTTP surface
// §1's Non-goals exclude: it accepts no submissions, answers no queries,
// and exposes no control operations, the same distinction the teacher
// draws between its business router and its internal-only metrics port.
type metricsServer struct {
	srv *http.Server
}

// startMetricsServer binds addr (typically 127.0.0.1:<port>) and starts
// serving in its own goroutine, exactly as the teacher's worker starts its
// metrics listener. A bind failure is logged, not fatal: the daemon's core
// function doesn't depend on the metrics surface being reachable.
func startMetricsServer(addr string, log *slog.Logger) *metricsServer {
	observability.InitMetrics()

	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server failed", slog.String("addr", addr), slog.Any("error", err))
		}
	}()
	log.Info("metrics server listening", slog.String("addr", addr))

	return &metricsServer{srv: srv}
}

// Shutdown gracefully stops the metrics server.
func (m *metricsServer) Shutdown(ctx context.Context) {
	if m == nil || m.srv == nil {
		return
	}
	_ = m.srv.Shutdown(ctx)
}
