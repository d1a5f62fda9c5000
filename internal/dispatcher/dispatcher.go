// Package dispatcher converts queue-table notifications into job queue
// sends, with backpressure.
package dispatcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/rteval-org/parserd/internal/adapter/observability"
	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/internal/queue"
)

// notificationChannel is the database channel name submission_ready
// notifications arrive on; the project-specific name the original source
// called rteval_submq.
const notificationChannel = "submission_ready"

// stallRetryInterval is how long a saturated-queue send waits before
// retrying while the Dispatcher is still running.
const stallRetryInterval = 60 * time.Second

// drainRetryInterval is the shorter retry interval used only during the
// shutdown drain, so workers unblock promptly.
const drainRetryInterval = 10 * time.Second

// Dispatcher holds gateway, jobQueue, and a local mutex serializing calls
// to ClaimNextSubmission, preserved as an explicit contract for
// multi-dispatcher variants even though one Dispatcher makes it redundant.
type Dispatcher struct {
	gateway     domain.Gateway
	jobQueue    *queue.Queue
	claimMutex  sync.Mutex
	shutdown    *domain.AtomicFlag
	activeCount *ActiveWorkerCount
	log         *slog.Logger
}

// ActiveWorkerCount is the worker-count mutex + counter the Dispatcher
// consults at the top of each loop iteration and uses to size the shutdown
// drain.
type ActiveWorkerCount struct {
	mu    sync.Mutex
	count int
}

// Get returns the current active worker count.
func (c *ActiveWorkerCount) Get() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.count
}

// Inc increments the active worker count.
func (c *ActiveWorkerCount) Inc() {
	c.mu.Lock()
	c.count++
	c.mu.Unlock()
}

// Dec decrements the active worker count.
func (c *ActiveWorkerCount) Dec() {
	c.mu.Lock()
	c.count--
	c.mu.Unlock()
}

// New constructs a Dispatcher.
func New(gateway domain.Gateway, jobQueue *queue.Queue, shutdown *domain.AtomicFlag, activeCount *ActiveWorkerCount, log *slog.Logger) *Dispatcher {
	return &Dispatcher{
		gateway:     gateway,
		jobQueue:    jobQueue,
		shutdown:    shutdown,
		activeCount: activeCount,
		log:         log,
	}
}

// Run executes the Dispatcher's loop until the shared shutdown flag is
// set, then performs the shutdown drain. It returns the error that caused
// the loop to exit, or nil if it exited only because shutdown was already
// set by another goroutine.
func (d *Dispatcher) Run(ctx context.Context) error {
	err := d.loop(ctx)
	d.drain()
	return err
}

func (d *Dispatcher) loop(ctx context.Context) error {
	for !d.shutdown.IsSet() {
		if d.activeCount.Get() < 1 {
			d.shutdown.Set()
			return domain.ErrShutdown
		}
		if !d.gateway.Ping(ctx) {
			d.shutdown.Set()
			return domain.ErrShutdown
		}

		job, err := d.gateway.ClaimNextSubmission(ctx, &d.claimMutex)
		if err != nil {
			d.log.Error("claim_next_submission failed, shutting down", slog.Any("error", err))
			d.shutdown.Set()
			return err
		}

		if !job.Present {
			if err := d.gateway.WaitForNotification(ctx, d.shutdown, notificationChannel); err != nil {
				d.log.Error("wait_for_notification failed, shutting down", slog.Any("error", err))
				d.shutdown.Set()
				return err
			}
			continue
		}

		if err := d.sendWithBackpressure(job, stallRetryInterval); err != nil {
			d.shutdown.Set()
			return err
		}
	}
	return nil
}

// sendWithBackpressure sends job to the job queue, retrying every interval
// and logging a warning once per stall when the queue is saturated.
func (d *Dispatcher) sendWithBackpressure(job domain.JobDescriptor, interval time.Duration) error {
	if d.jobQueue.TrySend(job) {
		return nil
	}
	warned := false
	for {
		if !warned {
			d.log.Warn("job queue saturated, dispatcher stalling",
				slog.Uint64("submission_id", job.SubmissionID), slog.Duration("retry_interval", interval))
			observability.RecordDispatcherStall()
			warned = true
		}
		time.Sleep(interval)
		if d.jobQueue.TrySend(job) {
			return nil
		}
	}
}

// drain sends one empty Job Descriptor per currently active worker so each
// unblocks on its next receive and observes the shutdown flag, using the
// shorter drain retry interval.
func (d *Dispatcher) drain() {
	n := d.activeCount.Get()
	d.log.Info("dispatcher draining", slog.Int("active_workers", n))
	for i := 0; i < n; i++ {
		if err := d.sendWithBackpressure(domain.Empty(), drainRetryInterval); err != nil {
			d.log.Error("drain send failed", slog.Any("error", err))
			return
		}
	}
}
