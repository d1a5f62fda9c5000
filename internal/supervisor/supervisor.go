// Package supervisor constructs and tears down the submission pipeline's
// shared topology: the job queue, the worker pool, the Dispatcher, and the
// signal handlers that drive graceful shutdown.
package supervisor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/rteval-org/parserd/internal/config"
	"github.com/rteval-org/parserd/internal/dispatcher"
	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/internal/queue"
	"github.com/rteval-org/parserd/internal/worker"
)

// workerStartupGrace is how long Run sleeps after launching the worker
// pool before running the Dispatcher, giving workers time to reach their
// receive loop.
const workerStartupGrace = 3 * time.Second

// GatewayDialer constructs a new domain.Gateway against cfg's database
// settings, letting Supervisor stay independent of the concrete pgx
// implementation in internal/adapter/db.
type GatewayDialer func(ctx context.Context, dsn string, log *slog.Logger) (domain.Gateway, error)

// Supervisor owns every shared resource the submission pipeline's
// goroutines need: the job queue, the worker-count and registration
// mutexes, the engine handle, and the shutdown flag.
type Supervisor struct {
	cfg    config.Config
	log    *slog.Logger
	engine domain.PlanEngine
	dial   GatewayDialer

	shutdown         *domain.AtomicFlag
	activeCount      *dispatcher.ActiveWorkerCount
	registrationLock sync.Mutex
	jobQueue         *queue.Queue

	dispatcherGateway domain.Gateway
	workerGateways    []domain.Gateway

	metricsServer *metricsServer
	cancel        context.CancelFunc
}

// New constructs a Supervisor. Run performs the rest of the startup
// sequence described in §4.4.
func New(cfg config.Config, log *slog.Logger, engine domain.PlanEngine, dial GatewayDialer) *Supervisor {
	return &Supervisor{
		cfg:         cfg,
		log:         log,
		engine:      engine,
		dial:        dial,
		shutdown:    &domain.AtomicFlag{},
		activeCount: &dispatcher.ActiveWorkerCount{},
	}
}

// Run executes the full startup sequence, blocks running the Dispatcher,
// and performs shutdown when the Dispatcher returns or a signal fires.
func (s *Supervisor) Run(ctx context.Context, metricsAddr string) error {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	defer cancel()

	s.jobQueue = queue.New()
	s.log.Info("job queue created", slog.Int("capacity", queue.DefaultCapacity()))

	var err error
	s.dispatcherGateway, err = s.dial(ctx, s.cfg.DSN(), s.log)
	if err != nil {
		return fmt.Errorf("op=supervisor.Run: connecting dispatcher gateway: %w", err)
	}

	s.workerGateways = make([]domain.Gateway, 0, s.cfg.Threads)
	for i := 0; i < s.cfg.Threads; i++ {
		gw, err := s.dial(ctx, s.cfg.DSN(), s.log)
		if err != nil {
			return fmt.Errorf("op=supervisor.Run: connecting worker %d gateway: %w", i, err)
		}
		s.workerGateways = append(s.workerGateways, gw)
	}

	stopSignals := s.installSignalHandlers()
	defer stopSignals()

	s.metricsServer = startMetricsServer(metricsAddr, s.log)
	defer s.metricsServer.Shutdown(context.Background())

	var wg sync.WaitGroup
	for i, gw := range s.workerGateways {
		w := &worker.Worker{
			ID:               i,
			Gateway:          gw,
			Engine:           s.engine,
			JobQueue:         s.jobQueue,
			Shutdown:         s.shutdown,
			ActiveCount:      s.activeCount,
			RegistrationLock: &s.registrationLock,
			ArchiveRoot:      s.cfg.ReportDir,
			MaxReportSize:    s.cfg.MaxReportSize,
			SelfSignalUSR1:   s.SelfSignalUSR1,
			Log:              s.log.With(slog.Int("worker_id", i)),
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(ctx)
		}()
	}

	time.Sleep(workerStartupGrace)

	d := dispatcher.New(s.dispatcherGateway, s.jobQueue, s.shutdown, s.activeCount, s.log.With(slog.String("component", "dispatcher")))
	dispatchErr := d.Run(ctx)

	wg.Wait()
	s.closeGateways(context.Background())

	if dispatchErr != nil && dispatchErr != domain.ErrShutdown {
		return dispatchErr
	}
	return nil
}

func (s *Supervisor) closeGateways(ctx context.Context) {
	if err := s.dispatcherGateway.Close(ctx); err != nil {
		s.log.Warn("error closing dispatcher gateway", slog.Any("error", err))
	}
	for i, gw := range s.workerGateways {
		if err := gw.Close(ctx); err != nil {
			s.log.Warn("error closing worker gateway", slog.Int("worker_id", i), slog.Any("error", err))
		}
	}
}

// Shutdown raises the shared shutdown flag and cancels Run's context, the
// same effect a consumed signal has. Canceling the context is what lets a
// shutdown interrupt the Dispatcher while it is blocked in
// WaitForNotification, rather than waiting for the next notification or
// reconnect probe to notice the flag.
func (s *Supervisor) Shutdown() {
	s.shutdown.Set()
	if s.cancel != nil {
		s.cancel()
	}
}
