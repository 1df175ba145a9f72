package partition

import (
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func rowsOf(ss ...string) [][]byte {
	var rows [][]byte
	for _, s := range ss {
		rows = append(rows, []byte(s))
	}
	return rows
}

func TestFSStore_CommitAndRead(t *testing.T) {
	s := NewFSStore(t.TempDir())
	want := rowsOf(`{"order_id":"o1"}`, `{"order_id":"o2"}`)
	if err := s.Commit(DatasetOrders, "2024-01-05", want); err != nil {
		t.Fatalf("commit: %v", err)
	}
	got, err := s.Read(DatasetOrders, "2024-01-05")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("read back mismatch: %q vs %q", got, want)
	}
}

func TestFSStore_ReadUncommitted(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if _, err := s.Read(DatasetOrders, "2024-01-05"); !errors.Is(err, ErrNotCommitted) {
		t.Fatalf("want ErrNotCommitted, got %v", err)
	}
}

func TestFSStore_RecommitReplacesPartition(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if err := s.Commit(DatasetOrders, "2024-01-05", rowsOf("a", "b", "c")); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	if err := s.Commit(DatasetOrders, "2024-01-05", rowsOf("x")); err != nil {
		t.Fatalf("second commit: %v", err)
	}
	got, err := s.Read(DatasetOrders, "2024-01-05")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if !reflect.DeepEqual(got, rowsOf("x")) {
		t.Fatalf("overwrite did not replace content: %q", got)
	}
}

func TestFSStore_FailedStagingLeavesPriorCommitIntact(t *testing.T) {
	dir := t.TempDir()
	s := NewFSStore(dir)
	want := rowsOf("committed")
	if err := s.Commit(DatasetOrders, "2024-01-05", want); err != nil {
		t.Fatalf("first commit: %v", err)
	}

	// Force the next staging step to fail: plant a file where the stage
	// directory must be created.
	old := NewVersionID
	defer func() { NewVersionID = old }()
	NewVersionID = func() string { return "vclash" }
	clash := filepath.Join(dir, DatasetOrders, "dt=2024-01-05", stagePrefix+"vclash")
	if err := os.WriteFile(clash, []byte("x"), 0o644); err != nil {
		t.Fatalf("plant clash: %v", err)
	}

	err := s.Commit(DatasetOrders, "2024-01-05", rowsOf("doomed"))
	var we *WriteError
	if !errors.As(err, &we) {
		t.Fatalf("want WriteError, got %v", err)
	}
	if we.Dataset != DatasetOrders || we.DT != "2024-01-05" {
		t.Fatalf("error should name the partition: %+v", we)
	}

	got, rerr := s.Read(DatasetOrders, "2024-01-05")
	if rerr != nil {
		t.Fatalf("read after failed commit: %v", rerr)
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("prior commit corrupted: %q", got)
	}
}

func TestFSStore_List(t *testing.T) {
	s := NewFSStore(t.TempDir())
	for _, dt := range []string{"2024-01-06", "2024-01-05"} {
		if err := s.Commit(DatasetOrders, dt, rowsOf("r")); err != nil {
			t.Fatalf("commit %s: %v", dt, err)
		}
	}
	dts, err := s.List(DatasetOrders)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if !reflect.DeepEqual(dts, []string{"2024-01-05", "2024-01-06"}) {
		t.Fatalf("list: %v", dts)
	}
	other, err := s.List(DatasetMetrics)
	if err != nil || other != nil {
		t.Fatalf("empty dataset list: %v %v", other, err)
	}
}

func TestFSStore_EmptyPartitionCommit(t *testing.T) {
	s := NewFSStore(t.TempDir())
	if err := s.Commit(DatasetOrders, "2024-01-05", nil); err != nil {
		t.Fatalf("empty commit: %v", err)
	}
	got, err := s.Read(DatasetOrders, "2024-01-05")
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("want empty partition, got %q", got)
	}
}
