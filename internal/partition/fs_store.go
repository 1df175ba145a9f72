package partition

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

const (
	commitFile  = "_COMMIT"
	rowsFile    = "records.jsonl"
	stagePrefix = ".stage-"
)

// commitInfo is the content of a partition's _COMMIT file. Renaming it into
// place is the single atomic step that switches reader visibility.
type commitInfo struct {
	Version              string `json:"version"`
	Rows                 int    `json:"rows"`
	CreatedAtEpochSecond int64  `json:"createdAt"`
}

// FSStore keeps partitions as dt=<date> directories under a root. Each
// commit writes a fresh version directory and then swaps the _COMMIT pointer.
type FSStore struct {
	root string
}

func NewFSStore(root string) *FSStore {
	return &FSStore{root: root}
}

func (s *FSStore) partitionDir(dataset, dt string) string {
	return filepath.Join(s.root, dataset, "dt="+dt)
}

func (s *FSStore) Commit(dataset string, dt string, rows [][]byte) error {
	dir := s.partitionDir(dataset, dt)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("mkdir: %w", err)}
	}
	version := NewVersionID()
	stage := filepath.Join(dir, stagePrefix+version)
	if err := os.Mkdir(stage, 0o755); err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("stage dir: %w", err)}
	}
	if err := writeRows(filepath.Join(stage, rowsFile), rows); err != nil {
		_ = os.RemoveAll(stage)
		return &WriteError{Dataset: dataset, DT: dt, Err: err}
	}
	if err := os.Rename(stage, filepath.Join(dir, version)); err != nil {
		_ = os.RemoveAll(stage)
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("publish version: %w", err)}
	}
	if err := s.switchCommit(dir, version, len(rows)); err != nil {
		_ = os.RemoveAll(filepath.Join(dir, version))
		return &WriteError{Dataset: dataset, DT: dt, Err: err}
	}
	s.dropStaleVersions(dir, version)
	return nil
}

func writeRows(path string, rows [][]byte) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create rows: %w", err)
	}
	w := bufio.NewWriter(f)
	for _, r := range rows {
		if _, err := w.Write(r); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
		if err := w.WriteByte('\n'); err != nil {
			_ = f.Close()
			return fmt.Errorf("write row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush rows: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync rows: %w", err)
	}
	return f.Close()
}

// switchCommit writes the commit pointer to a temp file and renames it over
// _COMMIT. The rename is the visibility switch.
func (s *FSStore) switchCommit(dir, version string, rows int) error {
	info := commitInfo{
		Version:              version,
		Rows:                 rows,
		CreatedAtEpochSecond: time.Now().UTC().Unix(),
	}
	b, err := json.Marshal(&info)
	if err != nil {
		return fmt.Errorf("marshal commit: %w", err)
	}
	tmp := filepath.Join(dir, ".commit-"+version)
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write commit: %w", err)
	}
	if err := os.Rename(tmp, filepath.Join(dir, commitFile)); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("switch commit: %w", err)
	}
	return nil
}

// dropStaleVersions removes superseded version directories. Best effort:
// a stale version is unreachable once _COMMIT names its successor.
func (s *FSStore) dropStaleVersions(dir, live string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == live {
			continue
		}
		_ = os.RemoveAll(filepath.Join(dir, e.Name()))
	}
}

func (s *FSStore) Read(dataset string, dt string) ([][]byte, error) {
	dir := s.partitionDir(dataset, dt)
	b, err := os.ReadFile(filepath.Join(dir, commitFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotCommitted
		}
		return nil, fmt.Errorf("read commit: %w", err)
	}
	var info commitInfo
	if err := json.Unmarshal(b, &info); err != nil {
		return nil, fmt.Errorf("unmarshal commit: %w", err)
	}
	f, err := os.Open(filepath.Join(dir, info.Version, rowsFile))
	if err != nil {
		return nil, fmt.Errorf("open rows: %w", err)
	}
	defer f.Close()

	var rows [][]byte
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		rows = append(rows, append([]byte(nil), sc.Bytes()...))
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan rows: %w", err)
	}
	if len(rows) != info.Rows {
		return nil, fmt.Errorf("partition %s dt=%s: commit names %d rows, read %d", dataset, dt, info.Rows, len(rows))
	}
	return rows, nil
}

func (s *FSStore) List(dataset string) ([]string, error) {
	entries, err := os.ReadDir(filepath.Join(s.root, dataset))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("list partitions: %w", err)
	}
	var dts []string
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "dt=") {
			continue
		}
		dt := strings.TrimPrefix(e.Name(), "dt=")
		if _, err := os.Stat(filepath.Join(s.root, dataset, e.Name(), commitFile)); err == nil {
			dts = append(dts, dt)
		}
	}
	sort.Strings(dts)
	return dts, nil
}
