//go:build integration

package db_test

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	adapterdb "github.com/rteval-org/parserd/internal/adapter/db"
	"github.com/rteval-org/parserd/internal/domain"
)

// Integration tests run against a real Postgres container, grounded in the
// teacher's own testcontainers-go container bootstrap. They are gated
// behind the "integration" build tag and are not part of the default test
// run.

const schemaDDL = `
CREATE TABLE schema_version (version int not null);
INSERT INTO schema_version VALUES (100);

CREATE TABLE queue (
	submid bigserial primary key,
	filename text not null,
	clientid text not null,
	status int not null default 0,
	parsestart timestamptz,
	parseend timestamptz
);

CREATE TABLE systems (
	syskey bigserial primary key,
	sysid text not null
);

CREATE TABLE systems_hostname (
	syskey bigint not null,
	hostname text not null,
	ipaddr text
);
`

func startPostgres(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		Env:          map[string]string{"POSTGRES_PASSWORD": "postgres", "POSTGRES_USER": "postgres", "POSTGRES_DB": "rteval"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForLog("database system is ready to accept connections").WithStartupTimeout(90 * time.Second),
	}
	c, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{ContainerRequest: req, Started: true})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Terminate(ctx) })

	host, err := c.Host(ctx)
	require.NoError(t, err)
	port, err := c.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s dbname=rteval user=postgres password=postgres", host, port.Port())

	conn, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer conn.Close(ctx)
	_, err = conn.Exec(ctx, schemaDDL)
	require.NoError(t, err)

	return dsn
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

func TestGatewayConnectAndClaim(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	gw, err := adapterdb.Connect(ctx, dsn, testLogger())
	require.NoError(t, err)
	defer gw.Close(ctx)

	require.Equal(t, 100, gw.SchemaVersion())
	require.True(t, gw.Ping(ctx))

	admin, err := pgx.Connect(ctx, dsn)
	require.NoError(t, err)
	defer admin.Close(ctx)
	_, err = admin.Exec(ctx, `INSERT INTO queue (filename, clientid, status) VALUES ('report.xml', 'client-a', 0)`)
	require.NoError(t, err)

	var mu sync.Mutex
	job, err := gw.ClaimNextSubmission(ctx, &mu)
	require.NoError(t, err)
	require.True(t, job.Present)
	require.Equal(t, "client-a", job.ClientID)

	err = gw.UpdateSubmissionStatus(ctx, job.SubmissionID, domain.StatusSuccess)
	require.NoError(t, err)

	var status int
	row := admin.QueryRow(ctx, `SELECT status FROM queue WHERE submid = $1`, job.SubmissionID)
	require.NoError(t, row.Scan(&status))
	require.Equal(t, int(domain.StatusSuccess), status)
}

func TestGatewayInsertWithReturningKey(t *testing.T) {
	dsn := startPostgres(t)
	ctx := context.Background()

	gw, err := adapterdb.Connect(ctx, dsn, testLogger())
	require.NoError(t, err)
	defer gw.Close(ctx)

	plan := domain.InsertionPlan{
		Table: "systems",
		Key:   "syskey",
		Fields: []domain.Field{
			{FieldID: 1, Name: "sysid"},
		},
		Records: []domain.Record{
			{Cells: []domain.Cell{{FieldID: 1, Type: domain.CellScalar, Payload: "sysid-1"}}},
		},
	}
	keys, err := gw.Insert(ctx, plan)
	require.NoError(t, err)
	require.Len(t, keys, 1)
	require.NotEmpty(t, keys[0])
}
