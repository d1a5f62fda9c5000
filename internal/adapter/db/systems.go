package db

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rteval-org/parserd/internal/domain"
)

// cellString extracts a scalar/xmlblob cell's payload from plan by field
// name, returning "" if absent. Used to pull the handful of fields the
// registration algorithms need to inspect directly (sysid, hostname,
// ipaddr) out of a plan the PlanEngine already built.
func cellString(plan domain.InsertionPlan, fieldName string) string {
	if len(plan.Records) == 0 {
		return ""
	}
	for _, f := range plan.Fields {
		if f.Name != fieldName {
			continue
		}
		if cell, ok := plan.Records[0].CellByFieldID(f.FieldID); ok {
			return cell.Payload
		}
	}
	return ""
}

// RegisterSystem registers the report's originating system, idempotent by
// the report's extracted sysid. Must be called under the Supervisor's
// registration mutex.
func (g *Gateway) RegisterSystem(ctx context.Context, engine domain.PlanEngine, reportXML []byte) (string, error) {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.register_system")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "systems"))

	plans, err := engine.Transform(ctx, reportXML)
	if err != nil {
		return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
	}
	systemsPlan, hostnamePlan, ok := findSystemPlans(plans)
	if !ok {
		return "", fmt.Errorf("op=db.RegisterSystem: %w: plan engine did not produce a systems plan", domain.ErrInvalidPlan)
	}
	sysid := cellString(systemsPlan, "sysid")

	var syskeys []string
	const selectQuery = `SELECT syskey FROM systems WHERE sysid = $1`
	rows, err := g.q().Query(ctx, selectQuery, sysid)
	if err != nil {
		return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
	}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			rows.Close()
			return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
		}
		syskeys = append(syskeys, key)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
	}

	if len(syskeys) > 1 {
		return "", fmt.Errorf("op=db.RegisterSystem: %w: sysid %s has %d systems rows", domain.ErrConflict, sysid, len(syskeys))
	}

	if len(syskeys) == 0 {
		keys, err := g.Insert(ctx, systemsPlan)
		if err != nil {
			return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
		}
		syskey := keys[0]
		hostnamePlan = withSyskey(hostnamePlan, syskey)
		if _, err := g.Insert(ctx, hostnamePlan); err != nil {
			return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
		}
		return syskey, nil
	}

	syskey := syskeys[0]
	hostname := cellString(hostnamePlan, "hostname")
	ipaddr := cellString(hostnamePlan, "ipaddr")

	var existing int
	const checkQuery = `SELECT count(*) FROM systems_hostname WHERE syskey = $1 AND hostname = $2 AND ipaddr IS NOT DISTINCT FROM $3`
	var ipaddrArg any = ipaddr
	if ipaddr == "" {
		ipaddrArg = nil
	}
	row := g.q().QueryRow(ctx, checkQuery, syskey, hostname, ipaddrArg)
	if err := row.Scan(&existing); err != nil {
		return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
	}
	if existing == 0 {
		hostnamePlan = withSyskey(hostnamePlan, syskey)
		if _, err := g.Insert(ctx, hostnamePlan); err != nil {
			return "", fmt.Errorf("op=db.RegisterSystem: %w", err)
		}
	}
	return syskey, nil
}

// findSystemPlans locates the "systems" and "systems_hostname" plans among
// those the PlanEngine produced.
func findSystemPlans(plans []domain.InsertionPlan) (systems, hostname domain.InsertionPlan, ok bool) {
	var foundSystems, foundHostname bool
	for _, p := range plans {
		switch p.Table {
		case "systems":
			systems = p
			foundSystems = true
		case "systems_hostname":
			hostname = p
			foundHostname = true
		}
	}
	return systems, hostname, foundSystems && foundHostname
}

// withSyskey returns a copy of plan with syskey set on every record's
// "syskey" cell.
func withSyskey(plan domain.InsertionPlan, syskey string) domain.InsertionPlan {
	var syskeyFieldID int
	for _, f := range plan.Fields {
		if f.Name == "syskey" {
			syskeyFieldID = f.FieldID
			break
		}
	}
	records := make([]domain.Record, len(plan.Records))
	for i, rec := range plan.Records {
		cells := make([]domain.Cell, 0, len(rec.Cells)+1)
		for _, c := range rec.Cells {
			if c.FieldID != syskeyFieldID {
				cells = append(cells, c)
			}
		}
		cells = append(cells, domain.Cell{FieldID: syskeyFieldID, Type: domain.CellScalar, Payload: syskey})
		records[i] = domain.Record{Cells: cells}
	}
	plan.Records = records
	return plan
}

// ReserveRunID fetches the next value of the run-id sequence.
func (g *Gateway) ReserveRunID(ctx context.Context) (int64, error) {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.reserve_run_id")
	defer span.End()

	var rterid int64
	row := g.q().QueryRow(ctx, `SELECT nextval('rtevalruns_rterid_seq')`)
	if err := row.Scan(&rterid); err != nil {
		return 0, fmt.Errorf("op=db.ReserveRunID: %w", err)
	}
	if rterid < 1 {
		return 0, fmt.Errorf("op=db.ReserveRunID: sequence returned invalid value %d", rterid)
	}
	return rterid, nil
}

// RegisterRun inserts the rtevalruns and rtevalruns_details rows for one
// submission. Must be called inside a transaction.
func (g *Gateway) RegisterRun(ctx context.Context, engine domain.PlanEngine, reportXML []byte, submissionID uint64, syskey string, rterid int64, archivePath string) error {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.register_run")
	defer span.End()
	span.SetAttributes(attribute.String("db.system", "postgresql"), attribute.String("db.sql.table", "rtevalruns"))

	plans, err := engine.Transform(ctx, reportXML)
	if err != nil {
		return fmt.Errorf("op=db.RegisterRun: %w", err)
	}

	var runPlan, detailsPlan domain.InsertionPlan
	var haveRun, haveDetails bool
	for _, p := range plans {
		switch p.Table {
		case "rtevalruns":
			runPlan = p
			haveRun = true
		case "rtevalruns_details":
			detailsPlan = p
			haveDetails = true
		}
	}
	if !haveRun || !haveDetails {
		return fmt.Errorf("op=db.RegisterRun: %w: plan engine did not produce rtevalruns plans", domain.ErrInvalidPlan)
	}

	runPlan = withRunParams(runPlan, submissionID, syskey, rterid, archivePath)
	if _, err := g.Insert(ctx, runPlan); err != nil {
		return fmt.Errorf("op=db.RegisterRun: %w", err)
	}
	detailsPlan = withRunParams(detailsPlan, submissionID, syskey, rterid, archivePath)
	if _, err := g.Insert(ctx, detailsPlan); err != nil {
		return fmt.Errorf("op=db.RegisterRun: %w", err)
	}
	return nil
}

// withRunParams overlays the submission/syskey/rterid/archivePath
// parameters onto every record of plan, by field name, leaving fields the
// plan doesn't declare untouched.
func withRunParams(plan domain.InsertionPlan, submissionID uint64, syskey string, rterid int64, archivePath string) domain.InsertionPlan {
	overlay := map[string]string{
		"submid":      fmt.Sprintf("%d", submissionID),
		"syskey":      syskey,
		"rterid":      fmt.Sprintf("%d", rterid),
		"report_file": archivePath,
	}
	fieldIDByName := make(map[string]int, len(plan.Fields))
	for _, f := range plan.Fields {
		fieldIDByName[f.Name] = f.FieldID
	}
	records := make([]domain.Record, len(plan.Records))
	for i, rec := range plan.Records {
		cells := append([]domain.Cell{}, rec.Cells...)
		for name, value := range overlay {
			fieldID, ok := fieldIDByName[name]
			if !ok {
				continue
			}
			cells = setCell(cells, fieldID, value)
		}
		records[i] = domain.Record{Cells: cells}
	}
	plan.Records = records
	return plan
}

// setCell returns cells with the cell for fieldID replaced (or appended)
// with a scalar cell carrying value.
func setCell(cells []domain.Cell, fieldID int, value string) []domain.Cell {
	for i, c := range cells {
		if c.FieldID == fieldID {
			cells[i] = domain.Cell{FieldID: fieldID, Type: domain.CellScalar, Payload: value}
			return cells
		}
	}
	return append(cells, domain.Cell{FieldID: fieldID, Type: domain.CellScalar, Payload: value})
}

// withRterid overlays rterid onto every record of plan's "rterid" field.
func withRterid(plan domain.InsertionPlan, rterid int64) domain.InsertionPlan {
	var rteridFieldID int
	var found bool
	for _, f := range plan.Fields {
		if f.Name == "rterid" {
			rteridFieldID = f.FieldID
			found = true
			break
		}
	}
	if !found {
		return plan
	}
	records := make([]domain.Record, len(plan.Records))
	for i, rec := range plan.Records {
		records[i] = domain.Record{Cells: setCell(append([]domain.Cell{}, rec.Cells...), rteridFieldID, fmt.Sprintf("%d", rterid))}
	}
	plan.Records = records
	return plan
}

// measurementTables lists the three cyclic measurement tables in the order
// register_measurements must insert them.
var measurementTables = []string{"cyclic_statistics", "cyclic_histogram", "cyclic_rawdata"}

// RegisterMeasurements inserts the cyclic measurement tables' rows, in
// order, skipping any whose plan has no records. Must be called inside a
// transaction.
func (g *Gateway) RegisterMeasurements(ctx context.Context, engine domain.PlanEngine, reportXML []byte, rterid int64) error {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.register_measurements")
	defer span.End()

	plans, err := engine.Transform(ctx, reportXML)
	if err != nil {
		return fmt.Errorf("op=db.RegisterMeasurements: %w", err)
	}
	byTable := make(map[string]domain.InsertionPlan, len(plans))
	for _, p := range plans {
		byTable[p.Table] = p
	}

	anyInserted := false
	for _, table := range measurementTables {
		plan, ok := byTable[table]
		if !ok || len(plan.Records) == 0 {
			continue
		}
		plan = withRterid(plan, rterid)
		if _, err := g.Insert(ctx, plan); err != nil {
			return fmt.Errorf("op=db.RegisterMeasurements: %s: %w", table, err)
		}
		anyInserted = true
	}
	if !anyInserted {
		g.log.Warn("register_measurements inserted no data for any of the three tables", "rterid", rterid)
	}
	return nil
}
