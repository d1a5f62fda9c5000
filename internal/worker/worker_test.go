package worker

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rteval-org/parserd/internal/dispatcher"
	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/internal/queue"
)

type fakeGateway struct {
	pingOK            bool
	statusUpdates     []domain.Status
	registerSystemErr error
	reserveRunIDErr   error
	beginErr          error
	registerRunErr    error
	registerMeasErr   error
	commitErr         error
	rollbackCalled    bool
}

func (g *fakeGateway) Ping(context.Context) bool { return g.pingOK }
func (g *fakeGateway) Begin(context.Context) error { return g.beginErr }
func (g *fakeGateway) Commit(context.Context) error { return g.commitErr }
func (g *fakeGateway) Rollback(context.Context) error {
	g.rollbackCalled = true
	return nil
}
func (g *fakeGateway) Insert(context.Context, domain.InsertionPlan) ([]string, error) { return nil, nil }
func (g *fakeGateway) WaitForNotification(context.Context, *domain.AtomicFlag, string) error {
	return nil
}
func (g *fakeGateway) ClaimNextSubmission(context.Context, *sync.Mutex) (domain.JobDescriptor, error) {
	return domain.JobDescriptor{}, nil
}
func (g *fakeGateway) UpdateSubmissionStatus(_ context.Context, _ uint64, status domain.Status) error {
	g.statusUpdates = append(g.statusUpdates, status)
	return nil
}
func (g *fakeGateway) RegisterSystem(context.Context, domain.PlanEngine, []byte) (string, error) {
	return "syskey-1", g.registerSystemErr
}
func (g *fakeGateway) ReserveRunID(context.Context) (int64, error) { return 42, g.reserveRunIDErr }
func (g *fakeGateway) RegisterRun(context.Context, domain.PlanEngine, []byte, uint64, string, int64, string) error {
	return g.registerRunErr
}
func (g *fakeGateway) RegisterMeasurements(context.Context, domain.PlanEngine, []byte, int64) error {
	return g.registerMeasErr
}
func (g *fakeGateway) SchemaVersion() int          { return 100 }
func (g *fakeGateway) Close(context.Context) error { return nil }

type fakeEngine struct{}

func (fakeEngine) Transform(context.Context, []byte) ([]domain.InsertionPlan, error) {
	return []domain.InsertionPlan{{Table: "rtevalruns"}}, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestWorker(gw *fakeGateway, archiveRoot string) *Worker {
	return &Worker{
		ID:               1,
		Gateway:          gw,
		Engine:           fakeEngine{},
		JobQueue:         queue.NewWithCapacity(1),
		Shutdown:         &domain.AtomicFlag{},
		ActiveCount:      &dispatcher.ActiveWorkerCount{},
		RegistrationLock: &sync.Mutex{},
		ArchiveRoot:      archiveRoot,
		MaxReportSize:    1 << 20,
		SelfSignalUSR1:   func() {},
		Log:              testLogger(),
	}
}

func writeReport(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

const xmlReport = `<?xml version="1.0"?><rteval><run></run></rteval>`

func TestRunTransactionSuccess(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.xml", xmlReport)
	gw := &fakeGateway{pingOK: true}
	w := newTestWorker(gw, filepath.Join(dir, "archive"))

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "client-a", FilePath: reportPath}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusSuccess {
		t.Fatalf("status = %v, want success", status)
	}
	archived := filepath.Join(dir, "archive", "client-a", "report-42.xml")
	if _, err := os.Stat(archived); err != nil {
		t.Errorf("expected archived file at %s: %v", archived, err)
	}
	if _, err := os.Stat(reportPath); !os.IsNotExist(err) {
		t.Errorf("expected original report path to be gone after rename")
	}
}

func TestRunTransactionFileTooBig(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.xml", xmlReport)
	gw := &fakeGateway{pingOK: true}
	w := newTestWorker(gw, dir)
	w.MaxReportSize = 1

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "c", FilePath: reportPath}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusFileTooBig {
		t.Errorf("status = %v, want file_too_big", status)
	}
}

func TestRunTransactionStatFailureFallsThroughToXMLParseFailed(t *testing.T) {
	dir := t.TempDir()
	gw := &fakeGateway{pingOK: true}
	w := newTestWorker(gw, dir)

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "c", FilePath: filepath.Join(dir, "does-not-exist.xml")}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusXMLParseFailed {
		t.Errorf("status = %v, want xml_parse_failed (stat failure should fall through, not report file_too_big)", status)
	}
}

func TestRunTransactionXMLParseFailed(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.bin", "\x00\x01\x02 not xml")
	gw := &fakeGateway{pingOK: true}
	w := newTestWorker(gw, dir)

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "c", FilePath: reportPath}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusXMLParseFailed {
		t.Errorf("status = %v, want xml_parse_failed", status)
	}
}

func TestRunTransactionSystemRegFailed(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.xml", xmlReport)
	gw := &fakeGateway{pingOK: true, registerSystemErr: errBoom}
	w := newTestWorker(gw, dir)

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "c", FilePath: reportPath}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusSystemRegFailed {
		t.Errorf("status = %v, want system_reg_failed", status)
	}
}

func TestRunTransactionRunRegFailedRollsBack(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.xml", xmlReport)
	gw := &fakeGateway{pingOK: true, registerRunErr: errBoom}
	w := newTestWorker(gw, dir)

	job := domain.JobDescriptor{Present: true, SubmissionID: 1, ClientID: "c", FilePath: reportPath}
	status := w.runTransaction(context.Background(), job)
	if status != domain.StatusRunRegFailed {
		t.Errorf("status = %v, want run_reg_failed", status)
	}
	if !gw.rollbackCalled {
		t.Error("expected rollback to be called")
	}
}

func TestProcessJobRecordsInProgressThenFinalStatus(t *testing.T) {
	dir := t.TempDir()
	reportPath := writeReport(t, dir, "report.xml", xmlReport)
	gw := &fakeGateway{pingOK: true}
	w := newTestWorker(gw, filepath.Join(dir, "archive"))

	job := domain.JobDescriptor{Present: true, SubmissionID: 9, ClientID: "c", FilePath: reportPath}
	w.processJob(context.Background(), job)

	if len(gw.statusUpdates) != 2 {
		t.Fatalf("expected 2 status updates, got %v", gw.statusUpdates)
	}
	if gw.statusUpdates[0] != domain.StatusInProgress {
		t.Errorf("first update = %v, want in_progress", gw.statusUpdates[0])
	}
	if gw.statusUpdates[1] != domain.StatusSuccess {
		t.Errorf("second update = %v, want success", gw.statusUpdates[1])
	}
}

var errBoom = &boomError{}

type boomError struct{}

func (*boomError) Error() string { return "boom" }
