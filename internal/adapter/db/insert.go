package db

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rteval-org/parserd/internal/domain"
	"github.com/rteval-org/parserd/pkg/arraylit"
)

// Insert executes plan's protocol: reject on schema mismatch, build one
// parameterized INSERT from the plan's declared field order, prepare it
// once, execute it per record, and collect the RETURNING key for each
// record. When the plan declares no key column, "0" is collected for each
// record; the inserted row's object identifier is not read.
func (g *Gateway) Insert(ctx context.Context, plan domain.InsertionPlan) ([]string, error) {
	tracer := otel.Tracer("adapter.db")
	ctx, span := tracer.Start(ctx, "db.insert")
	defer span.End()
	span.SetAttributes(
		attribute.String("db.system", "postgresql"),
		attribute.String("db.operation", "INSERT"),
		attribute.String("db.sql.table", plan.Table),
	)

	if err := plan.Validate(); err != nil {
		return nil, fmt.Errorf("op=db.Insert: %w", err)
	}
	if plan.EffectiveSchemaVersionRequired() > g.schemaVersion {
		return nil, fmt.Errorf("op=db.Insert: %w: plan requires %d, have %d",
			domain.ErrSchemaTooNew, plan.EffectiveSchemaVersionRequired(), g.schemaVersion)
	}

	stmt, err := buildInsertSQL(plan)
	if err != nil {
		return nil, fmt.Errorf("op=db.Insert: %w", err)
	}

	keys := make([]string, 0, len(plan.Records))
	for i, rec := range plan.Records {
		args, err := renderRecordArgs(plan, rec)
		if err != nil {
			return nil, fmt.Errorf("op=db.Insert: record %d: %w", i, err)
		}

		if plan.Key != "" {
			var key string
			row := g.q().QueryRow(ctx, stmt, args...)
			if err := row.Scan(&key); err != nil {
				return nil, fmt.Errorf("op=db.Insert: record %d: %w", i, err)
			}
			keys = append(keys, key)
			continue
		}

		// No key column was declared: this backend does not expose a
		// stable object identifier through pgx's Exec, so the inserted
		// row's key is reported as unavailable.
		if _, err := g.q().Exec(ctx, stmt, args...); err != nil {
			return nil, fmt.Errorf("op=db.Insert: record %d: %w", i, err)
		}
		keys = append(keys, "0")
	}
	return keys, nil
}

// buildInsertSQL constructs "INSERT INTO <table> (<fields>) VALUES
// ($1,...,$n) [RETURNING <key>]" using the plan's declared field order.
func buildInsertSQL(plan domain.InsertionPlan) (string, error) {
	names := plan.FieldNamesInOrder()
	if len(names) == 0 {
		return "", fmt.Errorf("%w: plan declares no fields", domain.ErrInvalidPlan)
	}
	placeholders := make([]string, len(names))
	for i := range names {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		plan.Table, strings.Join(names, ", "), strings.Join(placeholders, ", "))
	if plan.Key != "" {
		stmt += " RETURNING " + plan.Key
	}
	return stmt, nil
}

// renderRecordArgs builds the positional argument array for one record,
// matching each declared field to the record's cell by field_id. A
// declared field the record omits contributes NULL.
func renderRecordArgs(plan domain.InsertionPlan, rec domain.Record) ([]any, error) {
	args := make([]any, len(plan.Fields))
	for i, f := range plan.Fields {
		cell, ok := rec.CellByFieldID(f.FieldID)
		if !ok || cell.IsNull {
			args[i] = nil
			continue
		}
		v, err := renderCell(cell)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		args[i] = v
	}
	return args, nil
}

// renderCell renders one cell's payload per its type and hash kind.
func renderCell(c domain.Cell) (string, error) {
	switch c.Type {
	case domain.CellScalar:
		payload := c.Payload
		if c.Hash == domain.HashSHA1 {
			sum := sha1.Sum([]byte(payload))
			return hex.EncodeToString(sum[:]), nil
		}
		return payload, nil
	case domain.CellXMLBlob:
		payload, err := renderXMLBlob(c.Payload)
		if err != nil {
			return "", err
		}
		if c.Hash == domain.HashSHA1 {
			sum := sha1.Sum([]byte(payload))
			return hex.EncodeToString(sum[:]), nil
		}
		return payload, nil
	case domain.CellArray:
		values := make([]string, len(c.ArrayValues))
		for i, inner := range c.ArrayValues {
			v, err := renderCell(inner)
			if err != nil {
				return "", err
			}
			values[i] = v
		}
		return arraylit.Render(values), nil
	default:
		return "", fmt.Errorf("unknown cell type %d", c.Type)
	}
}

// renderXMLBlob serializes the first element child found in raw, the same
// transform eurephia_xml.c's xmlNodeToString performs on that node when
// called with XML_SAVE_NO_EMPTY|XML_SAVE_NO_DECL: no XML declaration, and
// empty elements written as an explicit open/close pair rather than the
// self-closing shorthand. Any text, comments, or processing instructions
// preceding the first element are skipped, matching xmlparser.c's
// sqldataExtractContent, which walks sql_n->children past non-element
// nodes before serializing. encoding/xml's Encoder never emits the
// self-closing form and EncodeToken never writes a leading declaration, so
// a straight token copy loop already satisfies both flags; only the
// first-element-only scoping needs to be enforced explicitly.
func renderXMLBlob(raw string) (string, error) {
	dec := xml.NewDecoder(strings.NewReader(raw))
	var buf bytes.Buffer
	enc := xml.NewEncoder(&buf)

	started := false
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("op=db.renderXMLBlob: %w", err)
		}

		if !started {
			if _, ok := tok.(xml.StartElement); !ok {
				continue
			}
			started = true
		}

		switch tok.(type) {
		case xml.StartElement:
			depth++
		case xml.EndElement:
			depth--
		}

		if err := enc.EncodeToken(tok); err != nil {
			return "", fmt.Errorf("op=db.renderXMLBlob: %w", err)
		}
		if depth == 0 {
			break
		}
	}
	if !started {
		return "", fmt.Errorf("op=db.renderXMLBlob: no element child found")
	}
	if err := enc.Flush(); err != nil {
		return "", fmt.Errorf("op=db.renderXMLBlob: %w", err)
	}
	return buf.String(), nil
}
