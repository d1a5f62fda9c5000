package db

import (
	"crypto/sha1"
	"encoding/hex"
	"testing"

	"github.com/rteval-org/parserd/internal/domain"
)

func TestBuildInsertSQL(t *testing.T) {
	plan := domain.InsertionPlan{
		Table: "systems",
		Key:   "syskey",
		Fields: []domain.Field{
			{FieldID: 1, Name: "sysid"},
			{FieldID: 2, Name: "cpu_cores"},
		},
	}
	stmt, err := buildInsertSQL(plan)
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	want := "INSERT INTO systems (sysid, cpu_cores) VALUES ($1, $2) RETURNING syskey"
	if stmt != want {
		t.Errorf("got %q, want %q", stmt, want)
	}
}

func TestBuildInsertSQLNoKey(t *testing.T) {
	plan := domain.InsertionPlan{
		Table:  "rtevalruns_details",
		Fields: []domain.Field{{FieldID: 1, Name: "rterid"}},
	}
	stmt, err := buildInsertSQL(plan)
	if err != nil {
		t.Fatalf("buildInsertSQL: %v", err)
	}
	if stmt != "INSERT INTO rtevalruns_details (rterid) VALUES ($1)" {
		t.Errorf("unexpected statement: %q", stmt)
	}
}

func TestBuildInsertSQLNoFields(t *testing.T) {
	plan := domain.InsertionPlan{Table: "systems"}
	if _, err := buildInsertSQL(plan); err == nil {
		t.Error("expected error for plan with no fields")
	}
}

func TestRenderCellScalar(t *testing.T) {
	v, err := renderCell(domain.Cell{Type: domain.CellScalar, Payload: "hello"})
	if err != nil || v != "hello" {
		t.Errorf("renderCell scalar: %q, %v", v, err)
	}
}

func TestRenderCellHashed(t *testing.T) {
	v, err := renderCell(domain.Cell{Type: domain.CellScalar, Hash: domain.HashSHA1, Payload: ""})
	if err != nil {
		t.Fatalf("renderCell: %v", err)
	}
	// sha1("") is well known.
	want := "da39a3ee5e6b4b0d3255bfef95601890afd80709"
	if v != want {
		t.Errorf("got %q, want %q", v, want)
	}
}

func TestRenderCellArray(t *testing.T) {
	v, err := renderCell(domain.Cell{
		Type: domain.CellArray,
		ArrayValues: []domain.Cell{
			{Type: domain.CellScalar, Payload: "1"},
			{Type: domain.CellScalar, Payload: "abc"},
		},
	})
	if err != nil {
		t.Fatalf("renderCell array: %v", err)
	}
	if v != "{1,'abc'}" {
		t.Errorf("got %q", v)
	}
}

func TestRenderCellXMLBlobStripsDeclAndLeadingNodes(t *testing.T) {
	raw := `<?xml version="1.0"?><!-- comment --><uname><sysname>Linux</sysname><empty></empty></uname>`
	v, err := renderCell(domain.Cell{Type: domain.CellXMLBlob, Payload: raw})
	if err != nil {
		t.Fatalf("renderCell xmlblob: %v", err)
	}
	want := "<uname><sysname>Linux</sysname><empty></empty></uname>"
	if v != want {
		t.Errorf("got %q, want %q", v, want)
	}
}

func TestRenderCellXMLBlobOnlyFirstElementChild(t *testing.T) {
	raw := `<uname><sysname>Linux</sysname></uname><hardware><cpu_cores>8</cpu_cores></hardware>`
	v, err := renderCell(domain.Cell{Type: domain.CellXMLBlob, Payload: raw})
	if err != nil {
		t.Fatalf("renderCell xmlblob: %v", err)
	}
	want := "<uname><sysname>Linux</sysname></uname>"
	if v != want {
		t.Errorf("got %q, want %q", v, want)
	}
}

func TestRenderCellXMLBlobHashed(t *testing.T) {
	v, err := renderCell(domain.Cell{Type: domain.CellXMLBlob, Hash: domain.HashSHA1, Payload: "<a></a>"})
	if err != nil {
		t.Fatalf("renderCell xmlblob hashed: %v", err)
	}
	sum := sha1.Sum([]byte("<a></a>"))
	if v != hex.EncodeToString(sum[:]) {
		t.Errorf("got %q", v)
	}
}

func TestRenderRecordArgsMissingFieldIsNull(t *testing.T) {
	plan := domain.InsertionPlan{
		Fields: []domain.Field{{FieldID: 1, Name: "a"}, {FieldID: 2, Name: "b"}},
	}
	rec := domain.Record{Cells: []domain.Cell{{FieldID: 1, Type: domain.CellScalar, Payload: "x"}}}
	args, err := renderRecordArgs(plan, rec)
	if err != nil {
		t.Fatalf("renderRecordArgs: %v", err)
	}
	if args[0] != "x" || args[1] != nil {
		t.Errorf("args = %v", args)
	}
}
