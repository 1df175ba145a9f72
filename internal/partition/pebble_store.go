package partition

import (
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/cockroachdb/pebble"
)

// PebbleStore implements Store on PebbleDB. A partition replacement is a
// single batch (range delete + row sets + meta set), which Pebble commits
// atomically, so readers see the old or the new partition, never a mix.
type PebbleStore struct {
	db *pebble.DB
}

func NewPebbleStore(dir string) (*PebbleStore, error) {
	opts := &pebble.Options{
		MemTableSize:             64 << 20,
		MaxConcurrentCompactions: func() int { return 2 },
		L0CompactionThreshold:    4,
	}
	d, err := pebble.Open(filepath.Clean(dir), opts)
	if err != nil {
		return nil, fmt.Errorf("pebble open: %w", err)
	}
	return &PebbleStore{db: d}, nil
}

func (p *PebbleStore) Close() error { return p.db.Close() }

type pebbleMeta struct {
	Version string `json:"version"`
	Rows    int    `json:"rows"`
}

func metaKey(dataset, dt string) []byte {
	return []byte("m:" + dataset + "#" + dt)
}

func rowKey(dataset, dt string, i int) []byte {
	return []byte(fmt.Sprintf("r:%s#%s#%09d", dataset, dt, i))
}

func rowBounds(dataset, dt string) (lower, upper []byte) {
	prefix := "r:" + dataset + "#" + dt + "#"
	return []byte(prefix), []byte(prefix + "\xff")
}

func (p *PebbleStore) Commit(dataset string, dt string, rows [][]byte) error {
	meta := pebbleMeta{Version: NewVersionID(), Rows: len(rows)}
	mb, err := json.Marshal(&meta)
	if err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("marshal meta: %w", err)}
	}
	wb := p.db.NewBatch()
	defer wb.Close()
	lower, upper := rowBounds(dataset, dt)
	if err := wb.DeleteRange(lower, upper, nil); err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("clear rows: %w", err)}
	}
	for i, r := range rows {
		if err := wb.Set(rowKey(dataset, dt, i), r, nil); err != nil {
			return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("stage row %d: %w", i, err)}
		}
	}
	if err := wb.Set(metaKey(dataset, dt), mb, nil); err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("stage meta: %w", err)}
	}
	if err := wb.Commit(pebble.Sync); err != nil {
		return &WriteError{Dataset: dataset, DT: dt, Err: fmt.Errorf("commit batch: %w", err)}
	}
	return nil
}

func (p *PebbleStore) Read(dataset string, dt string) ([][]byte, error) {
	v, closer, err := p.db.Get(metaKey(dataset, dt))
	if err == pebble.ErrNotFound {
		return nil, ErrNotCommitted
	}
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	var meta pebbleMeta
	uerr := json.Unmarshal(v, &meta)
	_ = closer.Close()
	if uerr != nil {
		return nil, fmt.Errorf("unmarshal meta: %w", uerr)
	}

	lower, upper := rowBounds(dataset, dt)
	it, err := p.db.NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return nil, fmt.Errorf("iter rows: %w", err)
	}
	defer it.Close()
	var rows [][]byte
	for it.First(); it.Valid(); it.Next() {
		rows = append(rows, append([]byte(nil), it.Value()...))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate rows: %w", err)
	}
	if len(rows) != meta.Rows {
		return nil, fmt.Errorf("partition %s dt=%s: meta names %d rows, read %d", dataset, dt, meta.Rows, len(rows))
	}
	return rows, nil
}

func (p *PebbleStore) List(dataset string) ([]string, error) {
	prefix := "m:" + dataset + "#"
	it, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, fmt.Errorf("iter meta: %w", err)
	}
	defer it.Close()
	var dts []string
	for it.First(); it.Valid(); it.Next() {
		dts = append(dts, strings.TrimPrefix(string(it.Key()), prefix))
	}
	if err := it.Error(); err != nil {
		return nil, fmt.Errorf("iterate meta: %w", err)
	}
	sort.Strings(dts)
	return dts, nil
}
