package domain

import "fmt"

// DefaultSchemaVersionRequired is the schema version an insertion plan
// requires when it does not specify one, encoded as major*100 + minor.
const DefaultSchemaVersionRequired = 100

// CellType distinguishes how a Cell's payload should be rendered by the
// Database Gateway when it builds the positional argument for an INSERT.
type CellType int

const (
	// CellScalar is a plain string/number payload inserted as-is.
	CellScalar CellType = iota
	// CellXMLBlob's Payload holds the raw XML text the PlanEngine captured
	// for this cell (which may carry leading whitespace/comments and more
	// than one top-level node). The Database Gateway serializes it down to
	// just the first element child: UTF-8 text, no XML declaration, empty
	// elements written as an explicit open/close pair rather than a
	// self-closing tag.
	CellXMLBlob
	// CellArray is a sequence of nested scalar cells rendered as the
	// backend's array literal (see pkg/arraylit).
	CellArray
)

// HashKind selects whether a cell's payload is hashed before insertion.
type HashKind int

const (
	// HashNone inserts the payload verbatim.
	HashNone HashKind = iota
	// HashSHA1 inserts the lowercase hex SHA-1 digest of the payload's raw
	// text instead of the payload itself.
	HashSHA1
)

// Field declares one column an InsertionPlan will populate. FieldID is the
// stable numeric handle Cells use to reference it; Name is the SQL column
// name.
type Field struct {
	FieldID int
	Name    string
}

// Cell is one value within one Record. Which of Payload / ArrayValues is
// meaningful depends on Type.
//
// Invariants:
//   - FieldID must reference a Field declared in the owning InsertionPlan.
//   - IsNull, when true, contributes NULL regardless of Payload.
//   - Hash == HashSHA1 inserts the lowercase hex SHA-1 of the rendered text:
//     Payload for CellScalar, the serialized first element for
//     CellXMLBlob. It is ignored for CellArray.
type Cell struct {
	FieldID     int
	Type        CellType
	Hash        HashKind
	IsNull      bool
	Payload     string
	ArrayValues []Cell // populated only when Type == CellArray
}

// Record is one row to insert, expressed as an ordered sequence of cells.
// Cells may appear in any order; the Database Gateway matches FieldID to
// the plan's declared field order when building the positional argument
// list for the prepared statement.
type Record struct {
	Cells []Cell
}

// InsertionPlan is the neutral document produced by the (out-of-scope)
// XML-to-tabular transformation engine and consumed by the Database
// Gateway's Insert operation.
type InsertionPlan struct {
	Table                 string
	Key                   string // optional: column whose value INSERT should RETURNING
	SchemaVersionRequired  int    // major*100 + minor; 0 means "use the default"
	Fields                []Field
	Records               []Record
}

// EffectiveSchemaVersionRequired returns SchemaVersionRequired, substituting
// DefaultSchemaVersionRequired when the plan didn't specify one.
func (p InsertionPlan) EffectiveSchemaVersionRequired() int {
	if p.SchemaVersionRequired == 0 {
		return DefaultSchemaVersionRequired
	}
	return p.SchemaVersionRequired
}

// Validate checks the plan's structural invariants: every field_id a cell
// references (directly, or nested inside an array cell) must be declared in
// Fields.
func (p InsertionPlan) Validate() error {
	if p.Table == "" {
		return fmt.Errorf("%w: missing table name", ErrInvalidPlan)
	}
	declared := make(map[int]bool, len(p.Fields))
	for _, f := range p.Fields {
		declared[f.FieldID] = true
	}
	for ri, rec := range p.Records {
		for _, c := range rec.Cells {
			if err := validateCell(c, declared); err != nil {
				return fmt.Errorf("%w: record %d: %s", ErrInvalidPlan, ri, err)
			}
		}
	}
	return nil
}

func validateCell(c Cell, declared map[int]bool) error {
	if !declared[c.FieldID] {
		return fmt.Errorf("cell references undeclared field_id %d", c.FieldID)
	}
	if c.Type == CellArray {
		for _, inner := range c.ArrayValues {
			if !declared[inner.FieldID] {
				return fmt.Errorf("array cell references undeclared field_id %d", inner.FieldID)
			}
		}
	}
	return nil
}

// FieldNamesInOrder returns the plan's column names in declaration order,
// the order the Database Gateway uses to build "INSERT INTO t (...)".
func (p InsertionPlan) FieldNamesInOrder() []string {
	names := make([]string, len(p.Fields))
	for i, f := range p.Fields {
		names[i] = f.Name
	}
	return names
}

// CellByFieldID returns the cell in rec whose FieldID matches id, and
// whether one was found. A record that omits a declared field contributes
// NULL for that position.
func (r Record) CellByFieldID(id int) (Cell, bool) {
	for _, c := range r.Cells {
		if c.FieldID == id {
			return c, true
		}
	}
	return Cell{}, false
}
