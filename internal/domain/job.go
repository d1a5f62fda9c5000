package domain

import "fmt"

// Limits on the bounded-string fields carried by a JobDescriptor. These
// mirror the column widths of the external queue table.
const (
	MaxClientIDBytes = 255
	MaxFilePathBytes = 4095
)

// JobDescriptor is the immutable unit of work passed from the Dispatcher to
// a Parse Worker over the job queue. The zero value (Present == false)
// signals "no work available" and tells the Dispatcher to block on a
// database notification instead of enqueuing anything.
//
// A JobDescriptor is exclusively owned by whichever goroutine currently
// holds it: the Dispatcher before it is sent, the receiving worker after.
// It is never mutated after it is emitted.
type JobDescriptor struct {
	Present      bool
	SubmissionID uint64
	ClientID     string
	FilePath     string
}

// Empty returns the JobDescriptor the Dispatcher sends as a shutdown nudge:
// Present is false and every other field is its zero value.
func Empty() JobDescriptor {
	return JobDescriptor{}
}

// Validate reports whether the descriptor's bounded-string fields respect
// the external schema's column widths. Callers are expected to truncate
// before constructing a JobDescriptor; Validate exists as a defensive check
// at the boundary between the Database Gateway and the rest of the pipeline.
func (j JobDescriptor) Validate() error {
	if len(j.ClientID) > MaxClientIDBytes {
		return fmt.Errorf("client_id exceeds %d bytes", MaxClientIDBytes)
	}
	if len(j.FilePath) > MaxFilePathBytes {
		return fmt.Errorf("file_path exceeds %d bytes", MaxFilePathBytes)
	}
	return nil
}
