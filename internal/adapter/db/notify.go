package db

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rteval-org/parserd/internal/adapter/observability"
	"github.com/rteval-org/parserd/internal/domain"
)

// WaitForNotification issues LISTEN on channel, blocks until a notification
// arrives or shutdown is observed, then issues UNLISTEN before returning
// either way. On connection loss it attempts one reset; a second failure is
// fatal.
func (g *Gateway) WaitForNotification(ctx context.Context, shutdown *domain.AtomicFlag, channel string) error {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.wait_for_notification")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "LISTEN"),
	)

	if _, err := g.conn.Exec(ctx, "LISTEN "+channel); err != nil {
		return fmt.Errorf("op=db.WaitForNotification: listen: %w", err)
	}
	defer func() {
		if _, err := g.conn.Exec(context.Background(), "UNLISTEN "+channel); err != nil {
			g.log.Warn("unlisten failed", slog.Any("error", err))
		}
	}()

	_, err := g.conn.WaitForNotification(ctx)
	if err == nil {
		observability.RecordNotification()
		return nil
	}
	if shutdown.IsSet() {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}

	g.log.Warn("notification wait lost connection, attempting reconnect", slog.Any("error", err))
	if !g.Ping(ctx) {
		observability.RecordGatewayReconnect("failed")
		return fmt.Errorf("op=db.WaitForNotification: %w", err)
	}
	observability.RecordGatewayReconnect("ok")
	return nil
}
