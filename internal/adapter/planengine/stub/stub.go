// Package stub provides a deterministic, dependency-free domain.PlanEngine
// used by tests and by cmd/parserd, which always wires it in; no other
// transformation engine is loaded or configurable. It implements enough of the
// report's XML shape to exercise the full Database Gateway protocol; the
// real XSLT-driven transformation rules are out of scope for this module
// (see the systems/runs/measurements field lists below for what it
// extracts).
package stub

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"

	"github.com/rteval-org/parserd/internal/domain"
)

// report is the minimal shape this engine understands: a system
// description, optional cyclictest measurement blocks, each block holding
// one value per measurement sample.
type report struct {
	XMLName xml.Name `xml:"rteval"`
	Run     struct {
		Uname struct {
			Sysname  string `xml:"sysname"`
			Nodename string `xml:"nodename"`
			Release  string `xml:"release"`
			Machine  string `xml:"machine"`
			RawInner string `xml:",innerxml"`
		} `xml:"uname"`
		Hardware struct {
			CPUCores int `xml:"cpu_cores"`
		} `xml:"hardware"`
		IPAddr string `xml:"ipaddr"`
	} `xml:"run"`
	Cyclictest struct {
		Statistics []string `xml:"statistics>value"`
		Histogram  []string `xml:"histogram>value"`
		Rawdata    []string `xml:"rawdata>value"`
	} `xml:"cyclictest"`
}

const (
	fieldSysID = iota + 1
	fieldCPUCores
	fieldSyskey
	fieldHostname
	fieldIPAddr
	fieldSubmid
	fieldRterid
	fieldReportFile
	fieldMeasurement
	fieldUnameXML
)

// Engine is the stub domain.PlanEngine implementation.
type Engine struct{}

// New returns a ready-to-use stub Engine.
func New() *Engine { return &Engine{} }

// Transform parses raw as the minimal report shape above and returns the
// systems, systems_hostname, rtevalruns, rtevalruns_details, and three
// cyclic measurement plans, in that order.
func (Engine) Transform(_ context.Context, raw []byte) ([]domain.InsertionPlan, error) {
	var rpt report
	if err := xml.Unmarshal(raw, &rpt); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrInvalidPlan, err)
	}
	if rpt.Run.Uname.Nodename == "" {
		return nil, fmt.Errorf("%w: report missing run/uname/nodename", domain.ErrInvalidPlan)
	}

	sysid := sysidDigest(rpt)

	plans := []domain.InsertionPlan{
		systemsPlan(sysid, rpt),
		systemsHostnamePlan(rpt),
		runPlan(),
		runDetailsPlan(rpt),
		measurementPlan("cyclic_statistics", rpt.Cyclictest.Statistics),
		measurementPlan("cyclic_histogram", rpt.Cyclictest.Histogram),
		measurementPlan("cyclic_rawdata", rpt.Cyclictest.Rawdata),
	}
	return plans, nil
}

// sysidDigest derives a stable identifier for the reporting host from its
// kernel release and machine architecture, the two attributes least likely
// to change between runs of the same physical system.
func sysidDigest(rpt report) string {
	sum := sha1.Sum([]byte(rpt.Run.Uname.Release + "|" + rpt.Run.Uname.Machine))
	return hex.EncodeToString(sum[:])
}

func systemsPlan(sysid string, rpt report) domain.InsertionPlan {
	return domain.InsertionPlan{
		Table: "systems",
		Key:   "syskey",
		Fields: []domain.Field{
			{FieldID: fieldSysID, Name: "sysid"},
			{FieldID: fieldCPUCores, Name: "cpu_cores"},
		},
		Records: []domain.Record{{Cells: []domain.Cell{
			{FieldID: fieldSysID, Type: domain.CellScalar, Payload: sysid},
			{FieldID: fieldCPUCores, Type: domain.CellScalar, Payload: fmt.Sprintf("%d", rpt.Run.Hardware.CPUCores)},
		}}},
	}
}

func systemsHostnamePlan(rpt report) domain.InsertionPlan {
	cells := []domain.Cell{
		{FieldID: fieldSyskey, Type: domain.CellScalar, IsNull: true},
		{FieldID: fieldHostname, Type: domain.CellScalar, Payload: rpt.Run.Uname.Nodename},
	}
	if rpt.Run.IPAddr == "" {
		cells = append(cells, domain.Cell{FieldID: fieldIPAddr, Type: domain.CellScalar, IsNull: true})
	} else {
		cells = append(cells, domain.Cell{FieldID: fieldIPAddr, Type: domain.CellScalar, Payload: rpt.Run.IPAddr})
	}
	return domain.InsertionPlan{
		Table: "systems_hostname",
		Fields: []domain.Field{
			{FieldID: fieldSyskey, Name: "syskey"},
			{FieldID: fieldHostname, Name: "hostname"},
			{FieldID: fieldIPAddr, Name: "ipaddr"},
		},
		Records: []domain.Record{{Cells: cells}},
	}
}

func runPlan() domain.InsertionPlan {
	return domain.InsertionPlan{
		Table: "rtevalruns",
		Fields: []domain.Field{
			{FieldID: fieldSubmid, Name: "submid"},
			{FieldID: fieldSyskey, Name: "syskey"},
			{FieldID: fieldRterid, Name: "rterid"},
			{FieldID: fieldReportFile, Name: "report_file"},
		},
		Records: []domain.Record{{Cells: []domain.Cell{
			{FieldID: fieldSubmid, Type: domain.CellScalar, IsNull: true},
			{FieldID: fieldSyskey, Type: domain.CellScalar, IsNull: true},
			{FieldID: fieldRterid, Type: domain.CellScalar, IsNull: true},
			{FieldID: fieldReportFile, Type: domain.CellScalar, IsNull: true},
		}}},
	}
}

// runDetailsPlan carries the run's raw <uname> subtree as an xmlblob cell
// alongside the rterid/report_file scalars. The Database Gateway reduces
// that raw subtree to its first element child per CellXMLBlob's contract;
// the stub only has to reconstruct the element's own open/close tag around
// the innerxml capture.
func runDetailsPlan(rpt report) domain.InsertionPlan {
	unameXML := fmt.Sprintf("<uname>%s</uname>", rpt.Run.Uname.RawInner)
	return domain.InsertionPlan{
		Table: "rtevalruns_details",
		Fields: []domain.Field{
			{FieldID: fieldRterid, Name: "rterid"},
			{FieldID: fieldReportFile, Name: "report_file"},
			{FieldID: fieldUnameXML, Name: "uname_xml"},
		},
		Records: []domain.Record{{Cells: []domain.Cell{
			{FieldID: fieldRterid, Type: domain.CellScalar, IsNull: true},
			{FieldID: fieldReportFile, Type: domain.CellScalar, IsNull: true, Hash: domain.HashSHA1},
			{FieldID: fieldUnameXML, Type: domain.CellXMLBlob, Payload: unameXML},
		}}},
	}
}

// measurementPlan builds the plan for one of the three cyclic measurement
// tables. An empty values slice yields a plan with zero records, which
// RegisterMeasurements treats as "nothing to insert" per its skip rule.
func measurementPlan(table string, values []string) domain.InsertionPlan {
	plan := domain.InsertionPlan{
		Table: table,
		Fields: []domain.Field{
			{FieldID: fieldRterid, Name: "rterid"},
			{FieldID: fieldMeasurement, Name: "samples"},
		},
	}
	if len(values) == 0 {
		return plan
	}
	arrayCells := make([]domain.Cell, len(values))
	for i, v := range values {
		arrayCells[i] = domain.Cell{FieldID: fieldMeasurement, Type: domain.CellScalar, Payload: v}
	}
	plan.Records = []domain.Record{{Cells: []domain.Cell{
		{FieldID: fieldRterid, Type: domain.CellScalar, IsNull: true},
		{FieldID: fieldMeasurement, Type: domain.CellArray, ArrayValues: arrayCells},
	}}}
	return plan
}
