package stub

import (
	"context"
	"testing"

	"github.com/rteval-org/parserd/internal/domain"
)

const sampleReport = `<?xml version="1.0"?>
<rteval>
  <run>
    <uname>
      <sysname>Linux</sysname>
      <nodename>host-a</nodename>
      <release>6.1.0</release>
      <machine>x86_64</machine>
    </uname>
    <hardware><cpu_cores>8</cpu_cores></hardware>
    <ipaddr>10.0.0.5</ipaddr>
  </run>
  <cyclictest>
    <statistics><value>1.0</value><value>2.0</value></statistics>
    <histogram></histogram>
    <rawdata><value>99</value></rawdata>
  </cyclictest>
</rteval>`

func TestTransformProducesAllPlans(t *testing.T) {
	e := New()
	plans, err := e.Transform(context.Background(), []byte(sampleReport))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	tables := make(map[string]domain.InsertionPlan, len(plans))
	for _, p := range plans {
		tables[p.Table] = p
	}
	for _, want := range []string{"systems", "systems_hostname", "rtevalruns", "rtevalruns_details",
		"cyclic_statistics", "cyclic_histogram", "cyclic_rawdata"} {
		if _, ok := tables[want]; !ok {
			t.Errorf("missing plan for table %q", want)
		}
	}
	if len(tables["cyclic_histogram"].Records) != 0 {
		t.Errorf("expected empty histogram plan to have no records")
	}
	if len(tables["cyclic_statistics"].Records) != 1 {
		t.Errorf("expected one record (the array cell) for cyclic_statistics")
	}
	for _, p := range plans {
		if err := p.Validate(); err != nil {
			t.Errorf("plan %q failed Validate: %v", p.Table, err)
		}
	}
}

func TestTransformEmitsUnameXMLBlobCell(t *testing.T) {
	e := New()
	plans, err := e.Transform(context.Background(), []byte(sampleReport))
	if err != nil {
		t.Fatalf("Transform: %v", err)
	}
	var details domain.InsertionPlan
	for _, p := range plans {
		if p.Table == "rtevalruns_details" {
			details = p
		}
	}
	cell, ok := details.Records[0].CellByFieldID(fieldUnameXML)
	if !ok {
		t.Fatal("rtevalruns_details record has no uname_xml cell")
	}
	if cell.Type != domain.CellXMLBlob {
		t.Fatalf("expected CellXMLBlob, got %v", cell.Type)
	}
	if cell.Payload == "" || cell.Payload == "<uname></uname>" {
		t.Fatalf("expected uname_xml payload to carry the captured subtree, got %q", cell.Payload)
	}
}

func TestTransformRejectsMissingNodename(t *testing.T) {
	e := New()
	_, err := e.Transform(context.Background(), []byte(`<rteval><run><uname></uname></run></rteval>`))
	if err == nil {
		t.Fatal("expected error for missing nodename")
	}
}

func TestTransformRejectsMalformedXML(t *testing.T) {
	e := New()
	_, err := e.Transform(context.Background(), []byte(`not xml at all`))
	if err == nil {
		t.Fatal("expected error for malformed XML")
	}
}
