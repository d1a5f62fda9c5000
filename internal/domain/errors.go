package domain

import "errors"

// Error taxonomy (sentinels). Adapters wrap these with fmt.Errorf("op=...:
// %w", err) so callers can still errors.Is against the sentinel.
var (
	// ErrNotFound is returned when a lookup finds no matching row.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a uniqueness invariant is violated, e.g.
	// more than one systems row sharing a sysid.
	ErrConflict = errors.New("conflict")
	// ErrSchemaTooNew is returned when an insertion plan requires a schema
	// version newer than the gateway's connected database.
	ErrSchemaTooNew = errors.New("plan requires newer schema version")
	// ErrInvalidPlan is returned when an insertion plan fails its own
	// structural invariants (e.g. a cell referencing an undeclared field).
	ErrInvalidPlan = errors.New("invalid insertion plan")
	// ErrShutdown is returned by the Dispatcher when it stops its loop and
	// raises the shutdown flag itself (no active workers, or a failed ping).
	ErrShutdown = errors.New("shutdown in progress")
	// ErrQueueClosed is returned when a send or receive is attempted on a
	// job queue that has already been closed.
	ErrQueueClosed = errors.New("job queue closed")
	// ErrTxAlreadyOpen is returned by Begin when the gateway already has an
	// open transaction; gateways do not support nested transactions.
	ErrTxAlreadyOpen = errors.New("transaction already open")
	// ErrNoTx is returned by Commit/Rollback when no transaction is open.
	ErrNoTx = errors.New("no transaction open")
)
