package partition

import (
	"errors"
	"fmt"
	"time"
)

// Datasets written through the store.
const (
	DatasetOrders  = "orders"
	DatasetMetrics = "daily_restaurant_metrics"
)

// ErrNotCommitted is returned when a partition has no committed content.
var ErrNotCommitted = errors.New("partition not committed")

// WriteError reports a failed staging or commit for one dt partition.
// The previously committed content for that partition is untouched.
type WriteError struct {
	Dataset string
	DT      string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("partition write %s dt=%s: %v", e.Dataset, e.DT, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// Store commits and reads whole dt partitions of encoded rows. Commit is
// all-or-nothing: readers observe either the prior content or the full new
// content, never a partial write. Committing the same input twice yields the
// same committed row set. Concurrent commits to the same (dataset, dt) must
// be serialized by the caller.
type Store interface {
	// Commit replaces the partition content with rows, atomically.
	Commit(dataset string, dt string, rows [][]byte) error
	// Read returns the committed rows, or ErrNotCommitted.
	Read(dataset string, dt string) ([][]byte, error)
	// List returns the dts with committed content, ascending.
	List(dataset string) ([]string, error)
}

// NewVersionID names a staged partition version. Split for testability.
var NewVersionID = func() string {
	return fmt.Sprintf("v%d", time.Now().UTC().UnixNano())
}
