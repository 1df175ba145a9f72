package etl

import (
	"fmt"
	"time"
)

// PartitionResult is the outcome for one targeted dt partition.
type PartitionResult struct {
	DT   string
	Rows int
	Err  error
}

// RunResult enumerates per-partition outcomes. Success is never collapsed
// into one boolean upstream of this type: callers inspect Failed() to see
// exactly which dates need a retry.
type RunResult struct {
	RunID           string
	Partitions      []PartitionResult
	RowsRead        int
	RowsAccepted    int
	RowsQuarantined int
}

// Succeeded reports whether every targeted partition committed cleanly.
func (r RunResult) Succeeded() bool {
	for _, p := range r.Partitions {
		if p.Err != nil {
			return false
		}
	}
	return true
}

// Failed returns the partitions that did not commit.
func (r RunResult) Failed() []PartitionResult {
	var out []PartitionResult
	for _, p := range r.Partitions {
		if p.Err != nil {
			out = append(out, p)
		}
	}
	return out
}

// Committed returns dt -> row count for partitions that committed.
func (r RunResult) Committed() map[string]int {
	out := make(map[string]int)
	for _, p := range r.Partitions {
		if p.Err == nil {
			out[p.DT] = p.Rows
		}
	}
	return out
}

// QuarantineRatioError fails a run whose rejected-row share exceeds the
// configured ceiling. A batch this corrupt should not be processed quietly.
type QuarantineRatioError struct {
	Quarantined int
	Total       int
	Max         float64
}

func (e *QuarantineRatioError) Error() string {
	return fmt.Sprintf("quarantine ratio %.3f (%d of %d rows) exceeds max %.3f",
		float64(e.Quarantined)/float64(e.Total), e.Quarantined, e.Total, e.Max)
}

// NewRunID names a run. Split for testability.
var NewRunID = func() string {
	return time.Now().UTC().Format("20060102T150405.000000000Z")
}
