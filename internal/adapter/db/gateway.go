// Package db implements the Database Gateway: the sole mediator of
// relational I/O for the submission pipeline, built on a single
// github.com/jackc/pgx/v5 connection per Gateway rather than a pool.
//
// A pool is the teacher's own choice for its connectionless HTTP handlers
// (internal/adapter/repo/postgres), but LISTEN/NOTIFY and
// conn.WaitForNotification are session-scoped primitives a pool would
// silently break by handing the listening connection back to another
// caller between calls. Each Gateway therefore owns one *pgx.Conn for its
// entire lifetime.
package db

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/exaring/otelpgx"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/rteval-org/parserd/internal/domain"
)

// Gateway is the pgx-backed implementation of domain.Gateway.
type Gateway struct {
	conn          *pgx.Conn
	connID        string
	dsn           string
	schemaVersion int
	tx            pgx.Tx
	log           *slog.Logger
}

// minSchemaVersion is the earliest schema version this Gateway supports;
// a lower or unreadable discovered version is clamped up to it.
const minSchemaVersion = 100

// schemaVersionQuery reads the database's own schema version from the
// metadata table the migration tooling maintains.
const schemaVersionQuery = `SELECT version FROM schema_version ORDER BY version DESC LIMIT 1`

// Connect establishes a new session against dsn and discovers its schema
// version. A connection identifier derived from a fresh UUID's first 8 hex
// characters is embedded in every subsequent log line this Gateway emits.
func Connect(ctx context.Context, dsn string, log *slog.Logger) (*Gateway, error) {
	connID := uuid.New().String()[:8]
	gwLog := log.With(slog.String("conn_id", connID))

	conn, err := connectTraced(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("op=db.Connect: %w", err)
	}

	g := &Gateway{
		conn:   conn,
		connID: connID,
		dsn:    dsn,
		log:    gwLog,
	}

	var version int
	row := conn.QueryRow(ctx, schemaVersionQuery)
	if err := row.Scan(&version); err != nil {
		gwLog.Warn("schema version query failed, defaulting", slog.Any("error", err))
		version = minSchemaVersion
	}
	if version < minSchemaVersion {
		version = minSchemaVersion
	}
	g.schemaVersion = version
	gwLog.Info("gateway connected", slog.Int("schema_version", version))
	return g, nil
}

// connectTraced parses dsn and attaches otelpgx's query tracer before
// dialing, the same instrumentation the teacher wires onto its own pool
// connections, so every statement this Gateway issues shows up as a span
// under the pgx.query child of the caller's trace.
func connectTraced(ctx context.Context, dsn string) (*pgx.Conn, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	cfg.Tracer = otelpgx.NewTracer()
	return pgx.ConnectConfig(ctx, cfg)
}

// SchemaVersion reports the schema version discovered at Connect time.
func (g *Gateway) SchemaVersion() int { return g.schemaVersion }

// Close releases the underlying connection.
func (g *Gateway) Close(ctx context.Context) error {
	return g.conn.Close(ctx)
}

// Ping sends a no-op round-trip; on failure it attempts exactly one
// reconnect and reports success only if the reconnected connection answers.
// Every other Gateway method assumes a live connection and does not
// auto-reconnect.
func (g *Gateway) Ping(ctx context.Context) bool {
	if err := g.conn.Ping(ctx); err == nil {
		return true
	}
	g.log.Warn("ping failed, attempting reconnect")
	newConn, err := connectTraced(ctx, g.dsn)
	if err != nil {
		g.log.Error("reconnect failed", slog.Any("error", err))
		return false
	}
	if err := newConn.Ping(ctx); err != nil {
		g.log.Error("reconnect ping failed", slog.Any("error", err))
		_ = newConn.Close(ctx)
		return false
	}
	_ = g.conn.Close(ctx)
	g.conn = newConn
	g.log.Info("reconnect succeeded")
	return true
}

// Begin starts a transaction. Gateways do not support nested transactions.
func (g *Gateway) Begin(ctx context.Context) error {
	if g.tx != nil {
		return domain.ErrTxAlreadyOpen
	}
	tx, err := g.conn.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=db.Begin: %w", err)
	}
	g.tx = tx
	return nil
}

// Commit commits the open transaction.
func (g *Gateway) Commit(ctx context.Context) error {
	if g.tx == nil {
		return domain.ErrNoTx
	}
	err := g.tx.Commit(ctx)
	g.tx = nil
	if err != nil {
		return fmt.Errorf("op=db.Commit: %w", err)
	}
	return nil
}

// Rollback rolls back the open transaction.
func (g *Gateway) Rollback(ctx context.Context) error {
	if g.tx == nil {
		return domain.ErrNoTx
	}
	err := g.tx.Rollback(ctx)
	g.tx = nil
	if err != nil {
		return fmt.Errorf("op=db.Rollback: %w", err)
	}
	return nil
}

// querier is satisfied by both *pgx.Conn and pgx.Tx, letting Gateway
// methods run either inside or outside an open transaction without
// branching on g.tx at every call site.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgx.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// q returns the open transaction if one exists, otherwise the bare
// connection.
func (g *Gateway) q() querier {
	if g.tx != nil {
		return g.tx
	}
	return g.conn
}
