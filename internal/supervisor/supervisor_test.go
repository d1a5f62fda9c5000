package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/rteval-org/parserd/internal/config"
	"github.com/rteval-org/parserd/internal/domain"
)

type stubGateway struct {
	jobsOnce sync.Once
	job      domain.JobDescriptor
	served   bool
}

func (g *stubGateway) Ping(context.Context) bool      { return true }
func (g *stubGateway) Begin(context.Context) error    { return nil }
func (g *stubGateway) Commit(context.Context) error   { return nil }
func (g *stubGateway) Rollback(context.Context) error { return nil }
func (g *stubGateway) Insert(context.Context, domain.InsertionPlan) ([]string, error) {
	return nil, nil
}
func (g *stubGateway) WaitForNotification(_ context.Context, shutdown *domain.AtomicFlag, _ string) error {
	shutdown.Set()
	return nil
}
func (g *stubGateway) ClaimNextSubmission(context.Context, *sync.Mutex) (domain.JobDescriptor, error) {
	return domain.JobDescriptor{}, nil
}
func (g *stubGateway) UpdateSubmissionStatus(context.Context, uint64, domain.Status) error { return nil }
func (g *stubGateway) RegisterSystem(context.Context, domain.PlanEngine, []byte) (string, error) {
	return "", nil
}
func (g *stubGateway) ReserveRunID(context.Context) (int64, error) { return 1, nil }
func (g *stubGateway) RegisterRun(context.Context, domain.PlanEngine, []byte, uint64, string, int64, string) error {
	return nil
}
func (g *stubGateway) RegisterMeasurements(context.Context, domain.PlanEngine, []byte, int64) error {
	return nil
}
func (g *stubGateway) SchemaVersion() int          { return 100 }
func (g *stubGateway) Close(context.Context) error { return nil }

type stubEngine struct{}

func (stubEngine) Transform(context.Context, []byte) ([]domain.InsertionPlan, error) {
	return nil, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSupervisorRunShutsDownWithNoSubmissions(t *testing.T) {
	cfg := config.Defaults()
	cfg.Threads = 2
	cfg.ReportDir = t.TempDir()

	dial := func(context.Context, string, *slog.Logger) (domain.Gateway, error) {
		return &stubGateway{}, nil
	}

	s := New(cfg, testLogger(), stubEngine{}, dial)

	done := make(chan error, 1)
	go func() { done <- s.Run(context.Background(), "127.0.0.1:0") }()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("supervisor did not shut down in time")
	}
}
