package db

import (
	"testing"

	"github.com/rteval-org/parserd/internal/domain"
)

func TestCellString(t *testing.T) {
	plan := domain.InsertionPlan{
		Fields: []domain.Field{{FieldID: 1, Name: "sysid"}},
		Records: []domain.Record{
			{Cells: []domain.Cell{{FieldID: 1, Type: domain.CellScalar, Payload: "abc123"}}},
		},
	}
	if got := cellString(plan, "sysid"); got != "abc123" {
		t.Errorf("cellString = %q", got)
	}
	if got := cellString(plan, "missing"); got != "" {
		t.Errorf("cellString for missing field = %q, want empty", got)
	}
}

func TestFindSystemPlans(t *testing.T) {
	plans := []domain.InsertionPlan{
		{Table: "rtevalruns"},
		{Table: "systems"},
		{Table: "systems_hostname"},
	}
	systems, hostname, ok := findSystemPlans(plans)
	if !ok {
		t.Fatal("expected both plans found")
	}
	if systems.Table != "systems" || hostname.Table != "systems_hostname" {
		t.Errorf("wrong plans returned: %+v %+v", systems, hostname)
	}
}

func TestFindSystemPlansMissing(t *testing.T) {
	_, _, ok := findSystemPlans([]domain.InsertionPlan{{Table: "rtevalruns"}})
	if ok {
		t.Error("expected ok=false when systems plans are absent")
	}
}

func TestWithSyskeyOverwritesExisting(t *testing.T) {
	plan := domain.InsertionPlan{
		Fields: []domain.Field{{FieldID: 1, Name: "syskey"}, {FieldID: 2, Name: "hostname"}},
		Records: []domain.Record{
			{Cells: []domain.Cell{
				{FieldID: 1, Type: domain.CellScalar, Payload: "old"},
				{FieldID: 2, Type: domain.CellScalar, Payload: "host1"},
			}},
		},
	}
	out := withSyskey(plan, "new-key")
	cell, ok := out.Records[0].CellByFieldID(1)
	if !ok || cell.Payload != "new-key" {
		t.Errorf("syskey not overwritten: %+v", cell)
	}
	hostCell, ok := out.Records[0].CellByFieldID(2)
	if !ok || hostCell.Payload != "host1" {
		t.Errorf("unrelated field should be untouched: %+v", hostCell)
	}
}

func TestSetCellAppendsWhenAbsent(t *testing.T) {
	cells := setCell(nil, 5, "v")
	if len(cells) != 1 || cells[0].FieldID != 5 || cells[0].Payload != "v" {
		t.Errorf("setCell append: %+v", cells)
	}
}

func TestWithRteridSkipsWhenFieldUndeclared(t *testing.T) {
	plan := domain.InsertionPlan{Table: "cyclic_statistics"}
	out := withRterid(plan, 42)
	if len(out.Records) != 0 {
		t.Errorf("expected no records added when rterid field undeclared")
	}
}
