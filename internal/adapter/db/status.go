package db

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rteval-org/parserd/internal/domain"
)

const (
	maxFilenameBytes = 4094
	maxClientIDBytes = 254
)

// ClaimNextSubmission selects the oldest new submission and marks it
// assigned, all under claimMutex held for the whole operation.
func (g *Gateway) ClaimNextSubmission(ctx context.Context, claimMutex *sync.Mutex) (domain.JobDescriptor, error) {
	claimMutex.Lock()
	defer claimMutex.Unlock()

	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.claim_next_submission")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.sql.table", "queue"),
	)

	const selectQuery = `SELECT submid, filename, clientid FROM queue WHERE status = $1 ORDER BY submid ASC LIMIT 1`
	var (
		submid   uint64
		filename string
		clientid string
	)
	row := g.conn.QueryRow(ctx, selectQuery, int(domain.StatusNew))
	if err := row.Scan(&submid, &filename, &clientid); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.JobDescriptor{}, nil
		}
		return domain.JobDescriptor{}, fmt.Errorf("op=db.ClaimNextSubmission: %w", err)
	}

	if len(filename) > maxFilenameBytes {
		filename = filename[:maxFilenameBytes]
	}
	if len(clientid) > maxClientIDBytes {
		clientid = clientid[:maxClientIDBytes]
	}

	const updateQuery = `UPDATE queue SET status = $1 WHERE submid = $2`
	if _, err := g.conn.Exec(ctx, updateQuery, int(domain.StatusAssigned), submid); err != nil {
		return domain.JobDescriptor{}, fmt.Errorf("op=db.ClaimNextSubmission: %w", err)
	}

	return domain.JobDescriptor{
		Present:      true,
		SubmissionID: submid,
		ClientID:     clientid,
		FilePath:     filename,
	}, nil
}

// statusUpdate describes how one status value maps onto a row update.
type statusUpdate int

const (
	updateStatusOnly statusUpdate = iota
	updateStatusAndParseStart
	updateStatusAndParseEnd
)

var statusUpdateKind = map[domain.Status]statusUpdate{
	domain.StatusAssigned:        updateStatusOnly,
	domain.StatusRterIDRegFailed: updateStatusOnly,
	domain.StatusFileMoveFailed:  updateStatusOnly,
	domain.StatusXMLParseFailed:  updateStatusOnly,
	domain.StatusFileTooBig:      updateStatusOnly,

	domain.StatusInProgress: updateStatusAndParseStart,

	domain.StatusSuccess:         updateStatusAndParseEnd,
	domain.StatusUnknownFailure:  updateStatusAndParseEnd,
	domain.StatusSystemRegFailed: updateStatusAndParseEnd,
	domain.StatusGeneralDBFailed: updateStatusAndParseEnd,
	domain.StatusRunRegFailed:    updateStatusAndParseEnd,
	domain.StatusCyclicRegFailed: updateStatusAndParseEnd,
}

// UpdateSubmissionStatus applies the fixed status-to-SQL mapping: StatusNew
// and any status outside the declared mapping are rejected as a programming
// error.
func (g *Gateway) UpdateSubmissionStatus(ctx context.Context, submissionID uint64, status domain.Status) error {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.update_submission_status")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "UPDATE"),
		attribute.String("db.sql.table", "queue"),
		attribute.String("status", status.String()),
	)

	kind, ok := statusUpdateKind[status]
	if !ok {
		return fmt.Errorf("op=db.UpdateSubmissionStatus: status %s is not a valid target status", status)
	}

	var query string
	switch kind {
	case updateStatusAndParseStart:
		query = `UPDATE queue SET status = $1, parsestart = now() WHERE submid = $2`
	case updateStatusAndParseEnd:
		query = `UPDATE queue SET status = $1, parseend = now() WHERE submid = $2`
	default:
		query = `UPDATE queue SET status = $1 WHERE submid = $2`
	}

	if _, err := g.q().Exec(ctx, query, int(status), submissionID); err != nil {
		return fmt.Errorf("op=db.UpdateSubmissionStatus: %w", err)
	}
	return nil
}
