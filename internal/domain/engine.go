package domain

import "context"

// PlanEngine turns one report file's raw bytes into the InsertionPlans the
// Database Gateway will insert. The XML-to-tabular transformation rules
// themselves are out of scope for this module; PlanEngine is the seam a
// native implementation of those rules plugs into.
//
// Implementations must be safe for concurrent use: the worker pool calls
// Transform from multiple goroutines, one per in-flight job, with no
// shared mutable state between calls.
type PlanEngine interface {
	// Transform parses raw (the report file's bytes) and returns the
	// ordered InsertionPlans required to persist it: typically a systems
	// plan, a run plan, and zero or more cyclic-measurement plans, in the
	// order they must be inserted.
	//
	// Transform returns ErrInvalidPlan wrapped around a descriptive cause
	// when raw is not well-formed XML or is missing a required element;
	// callers map that to StatusXMLParseFailed.
	Transform(ctx context.Context, raw []byte) ([]InsertionPlan, error)
}
