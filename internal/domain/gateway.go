package domain

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gateway mediates all relational I/O for the submission pipeline. Every
// operation is synchronous and blocks on the Gateway's single underlying
// connection; implementations are not expected to be safe for concurrent
// calls on the same Gateway value (callers serialize with a mutex where the
// protocol requires it, e.g. claimMutex below).
type Gateway interface {
	// Ping sends a no-op round-trip. On failure it attempts one reset and
	// reports success only if the connection is usable afterward. Every
	// other Gateway method assumes a live connection and does not
	// auto-reconnect.
	Ping(ctx context.Context) bool

	// Begin, Commit, and Rollback execute the corresponding transaction
	// command. They are not nestable: calling Begin while a transaction is
	// already open returns ErrTxAlreadyOpen.
	Begin(ctx context.Context) error
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error

	// Insert executes plan's protocol in full: schema-version check,
	// prepared INSERT built from plan's declared field order, one execution
	// per record, and collection of the RETURNING key ("0" per record when
	// the plan declares no key column; no object identifier is read). It
	// returns the collected keys in record order. Any record's failure discards the partial result; the
	// caller is responsible for rolling back the enclosing transaction.
	Insert(ctx context.Context, plan InsertionPlan) ([]string, error)

	// WaitForNotification issues LISTEN on channel, blocks until a
	// notification arrives or shutdown is observed, then issues UNLISTEN
	// before returning either way. A true shutdown flag observed during the
	// wait is reported as success (nil error), not ErrShutdown.
	WaitForNotification(ctx context.Context, shutdown *AtomicFlag, channel string) error

	// ClaimNextSubmission selects the oldest new submission and marks it
	// assigned, all under claimMutex held for the whole operation. It
	// returns a zero-value (Present == false) JobDescriptor when the queue
	// is empty.
	ClaimNextSubmission(ctx context.Context, claimMutex *sync.Mutex) (JobDescriptor, error)

	// UpdateSubmissionStatus applies status's fixed column-update mapping
	// (the statusUpdateKind table in internal/adapter/db) to the submission
	// row identified by submissionID.
	// Passing StatusNew, or any value outside the declared mapping, is a
	// programming error and returns a non-nil error without touching the
	// row.
	UpdateSubmissionStatus(ctx context.Context, submissionID uint64, status Status) error

	// RegisterSystem registers the report's originating system, returning
	// its syskey. Idempotent by the report's extracted sysid. Must be
	// called under the Supervisor's registration mutex.
	RegisterSystem(ctx context.Context, engine PlanEngine, reportXML []byte) (syskey string, err error)

	// ReserveRunID fetches the next value of the run-id sequence.
	ReserveRunID(ctx context.Context) (rterid int64, err error)

	// RegisterRun inserts the rtevalruns and rtevalruns_details rows for one
	// submission. Must be called inside a transaction.
	RegisterRun(ctx context.Context, engine PlanEngine, reportXML []byte, submissionID uint64, syskey string, rterid int64, archivePath string) error

	// RegisterMeasurements inserts the cyclic_statistics, cyclic_histogram,
	// and cyclic_rawdata rows, in that order, skipping any that are empty.
	// Must be called inside a transaction.
	RegisterMeasurements(ctx context.Context, engine PlanEngine, reportXML []byte, rterid int64) error

	// SchemaVersion reports the schema version discovered at Connect time.
	SchemaVersion() int

	// Close releases the underlying connection.
	Close(ctx context.Context) error
}

// AtomicFlag is the shutdown signal shared between the Supervisor, the
// Dispatcher, and every Parse Worker: the Go replacement for the original
// daemon's raw sig_atomic_t shutdown flag.
type AtomicFlag struct {
	v atomic.Bool
}

// Set raises the flag. Safe to call from any goroutine, any number of
// times.
func (f *AtomicFlag) Set() {
	f.v.Store(true)
}

// IsSet reports whether the flag has been raised.
func (f *AtomicFlag) IsSet() bool {
	return f.v.Load()
}
