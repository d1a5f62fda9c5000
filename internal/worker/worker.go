// Package worker implements the Parse Worker: the per-job pipeline that
// turns one claimed submission into a terminal status.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rteval-org/parserd/internal/adapter/observability"
	"github.com/rteval-org/parserd/internal/dispatcher"
	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/internal/queue"
	"github.com/rteval-org/parserd/pkg/textx"
)

// Worker executes claimed submissions end-to-end, one job at a time, on
// its own privately owned Database Gateway.
type Worker struct {
	ID               int
	Gateway          domain.Gateway
	Engine           domain.PlanEngine
	JobQueue         *queue.Queue
	Shutdown         *domain.AtomicFlag
	ActiveCount      *dispatcher.ActiveWorkerCount
	RegistrationLock *sync.Mutex
	ArchiveRoot      string
	MaxReportSize    int64
	SelfSignalUSR1   func()
	Log              *slog.Logger
}

// Run executes the worker's main loop until the shutdown flag is set or
// the worker's own Ping fails. A worker whose Ping fails always exits; if
// it was the last live worker it also triggers SelfSignalUSR1 first.
func (w *Worker) Run(ctx context.Context) {
	w.ActiveCount.Inc()
	defer w.ActiveCount.Dec()
	observability.ActiveWorkers.Inc()
	defer observability.ActiveWorkers.Dec()

	for !w.Shutdown.IsSet() {
		if !w.Gateway.Ping(ctx) {
			w.Log.Error("gateway ping failed", slog.Int("worker_id", w.ID))
			if w.ActiveCount.Get() <= 1 {
				w.Log.Error("last live worker lost its connection, triggering shutdown", slog.Int("worker_id", w.ID))
				w.SelfSignalUSR1()
			}
			return
		}

		job := w.JobQueue.Receive()
		observability.QueueDepth.Set(float64(w.JobQueue.Len()))

		if w.Shutdown.IsSet() {
			return
		}
		if !job.Present {
			continue
		}

		w.processJob(ctx, job)
	}
}

// processJob transitions the submission to in_progress, runs the per-job
// transaction, and records its final status.
func (w *Worker) processJob(ctx context.Context, job domain.JobDescriptor) {
	start := time.Now()
	tracer := otel.Tracer("worker")
	ctx, span := tracer.Start(ctx, "job.process")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("submission_id", int64(job.SubmissionID)),
		attribute.String("client_id", job.ClientID),
	)

	if err := w.Gateway.UpdateSubmissionStatus(ctx, job.SubmissionID, domain.StatusInProgress); err != nil {
		w.Log.Error("failed to mark submission in_progress, skipping",
			slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return
	}

	status := w.runTransaction(ctx, job)
	span.SetAttributes(attribute.String("status", status.String()))

	if err := w.Gateway.UpdateSubmissionStatus(ctx, job.SubmissionID, status); err != nil {
		w.Log.Error("failed to record final status",
			slog.Uint64("submission_id", job.SubmissionID), slog.String("status", status.String()), slog.Any("error", err))
	}
	observability.RecordJobTerminal(status.String(), time.Since(start).Seconds())
}

// runTransaction executes the per-job transaction steps a-j and returns
// the resulting terminal status. It never returns StatusNew, StatusAssigned,
// or StatusInProgress.
func (w *Worker) runTransaction(ctx context.Context, job domain.JobDescriptor) domain.Status {
	// A stat failure (vanished file, permission error) is distinct from
	// the file genuinely being oversized: check_filesize() in the original
	// parser returns -1 for a stat failure and only 0 for "too big", and
	// parse_report() maps only the 0 case to STAT_FTOOBIG, letting a -1
	// fall through to the XML parse attempt, where the missing/unreadable
	// file surfaces naturally as STAT_XMLFAIL. The mimetype pre-check and
	// os.ReadFile below do exactly that here.
	if info, err := os.Stat(job.FilePath); err == nil && info.Size() > w.MaxReportSize {
		w.Log.Warn("report exceeds max size",
			slog.Uint64("submission_id", job.SubmissionID), slog.Int64("size", info.Size()))
		return domain.StatusFileTooBig
	} else if err != nil {
		w.Log.Warn("report stat failed, attempting parse anyway",
			slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
	}

	mtype, err := mimetype.DetectFile(job.FilePath)
	if err != nil || !isXMLFamily(mtype) {
		w.Log.Warn("report failed mimetype pre-check", slog.Uint64("submission_id", job.SubmissionID))
		return domain.StatusXMLParseFailed
	}

	reportXML, err := os.ReadFile(job.FilePath)
	if err != nil {
		return domain.StatusXMLParseFailed
	}

	// A report that passes the mimetype pre-check can still be malformed or
	// lack a required element; the engine rejects it with ErrInvalidPlan.
	if _, err := w.Engine.Transform(ctx, reportXML); err != nil {
		w.Log.Warn("report failed to parse", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusXMLParseFailed
	}

	w.RegistrationLock.Lock()
	syskey, err := w.Gateway.RegisterSystem(ctx, w.Engine, reportXML)
	if err != nil {
		w.RegistrationLock.Unlock()
		w.Log.Error("register_system failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusSystemRegFailed
	}
	rterid, err := w.Gateway.ReserveRunID(ctx)
	w.RegistrationLock.Unlock()
	if err != nil {
		w.Log.Error("reserve_run_id failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusRterIDRegFailed
	}

	if err := w.Gateway.Begin(ctx); err != nil {
		w.Log.Error("begin failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusGeneralDBFailed
	}

	archivePath := w.archivePath(job.ClientID, rterid)

	if err := w.Gateway.RegisterRun(ctx, w.Engine, reportXML, job.SubmissionID, syskey, rterid, archivePath); err != nil {
		w.rollback(ctx, job.SubmissionID)
		w.Log.Error("register_run failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusRunRegFailed
	}

	if err := w.Gateway.RegisterMeasurements(ctx, w.Engine, reportXML, rterid); err != nil {
		w.rollback(ctx, job.SubmissionID)
		w.Log.Error("register_measurements failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusCyclicRegFailed
	}

	if err := os.MkdirAll(filepath.Dir(archivePath), 0o755); err != nil {
		w.rollback(ctx, job.SubmissionID)
		w.Log.Error("mkdir archive dir failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusFileMoveFailed
	}
	if err := os.Rename(job.FilePath, archivePath); err != nil {
		w.rollback(ctx, job.SubmissionID)
		w.Log.Error("archive rename failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusFileMoveFailed
	}

	if err := w.Gateway.Commit(ctx); err != nil {
		w.Log.Error("commit failed", slog.Uint64("submission_id", job.SubmissionID), slog.Any("error", err))
		return domain.StatusGeneralDBFailed
	}
	return domain.StatusSuccess
}

func (w *Worker) rollback(ctx context.Context, submissionID uint64) {
	if err := w.Gateway.Rollback(ctx); err != nil {
		w.Log.Error("rollback failed", slog.Uint64("submission_id", submissionID), slog.Any("error", err))
	}
}

// archivePath builds <archive_root>/<client_id>/report-<rterid>.xml. The
// client ID comes off the wire via the queue table, so it is sanitized
// before it becomes a path component.
func (w *Worker) archivePath(clientID string, rterid int64) string {
	return filepath.Join(w.ArchiveRoot, textx.SanitizeText(clientID), fmt.Sprintf("report-%d.xml", rterid))
}

// isXMLFamily reports whether the detected MIME type belongs to the XML
// family, the cheap pre-check short-circuiting obviously-wrong uploads
// before the full plan engine ever runs.
func isXMLFamily(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if m.Is("text/xml") || m.Is("application/xml") {
			return true
		}
	}
	return false
}

