package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"orderlake/internal/aggregate"
	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/partition"
)

// Gold recomputes daily restaurant metrics from committed silver partitions.
// Each targeted dt is read back in full, reduced, and committed as one
// atomic gold partition; a failing date leaves its silver data and every
// other gold partition untouched. Discover, Manifest and Metrics may be nil.
type Gold struct {
	Silver   partition.Store
	Gold     partition.Store
	Chunks   int
	Discover manifest.Reader
	Manifest manifest.Publisher
	Metrics  *metrics.Registry
	Log      zerolog.Logger
}

// Run refreshes the given dts, or every committed silver partition when dts
// is empty (discovered through the silver run manifest when available).
func (g *Gold) Run(ctx context.Context, dts []string) (RunResult, error) {
	res := RunResult{RunID: NewRunID()}
	if len(dts) == 0 {
		var err error
		dts, err = g.targets()
		if err != nil {
			return res, err
		}
	}
	sort.Strings(dts)

	var rowsRead int64
	results := make([]PartitionResult, len(dts))
	var wg sync.WaitGroup
	for i, dt := range dts {
		if ctx.Err() != nil {
			results[i] = PartitionResult{DT: dt, Err: ctx.Err()}
			continue
		}
		i, dt := i, dt
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = g.refreshPartition(dt, &rowsRead)
		}()
	}
	wg.Wait()
	res.Partitions = results
	res.RowsRead = int(atomic.LoadInt64(&rowsRead))

	if g.Manifest != nil {
		m := manifest.RunManifest{
			RunID:      res.RunID,
			Dataset:    partition.DatasetMetrics,
			Partitions: res.Committed(),
			RowsRead:   res.RowsRead,
		}
		if err := g.Manifest.PublishLatest(m); err != nil {
			return res, fmt.Errorf("publish manifest: %w", err)
		}
	}
	g.Log.Info().
		Str("run", res.RunID).
		Int("partitions", len(res.Partitions)).
		Int("failed", len(res.Failed())).
		Msg("gold run finished")
	return res, nil
}

func (g *Gold) targets() ([]string, error) {
	if g.Discover != nil {
		m, err := g.Discover.ReadLatest(partition.DatasetOrders)
		if err == nil {
			dts := make([]string, 0, len(m.Partitions))
			for dt := range m.Partitions {
				dts = append(dts, dt)
			}
			return dts, nil
		}
		g.Log.Warn().Err(err).Msg("manifest discovery failed, listing silver store")
	}
	dts, err := g.Silver.List(partition.DatasetOrders)
	if err != nil {
		return nil, fmt.Errorf("list silver partitions: %w", err)
	}
	return dts, nil
}

func (g *Gold) refreshPartition(dt string, rowsRead *int64) PartitionResult {
	raw, err := g.Silver.Read(partition.DatasetOrders, dt)
	if err != nil {
		return PartitionResult{DT: dt, Err: fmt.Errorf("read silver dt=%s: %w", dt, err)}
	}
	atomic.AddInt64(rowsRead, int64(len(raw)))
	cleaned, err := decodeOrders(raw)
	if err != nil {
		return PartitionResult{DT: dt, Err: err}
	}
	rows, err := aggregate.Partition(dt, cleaned, g.Chunks)
	if err != nil {
		g.Log.Error().Str("dt", dt).Err(err).Msg("aggregation failed")
		return PartitionResult{DT: dt, Err: err}
	}
	enc, err := encodeMetrics(rows)
	if err != nil {
		return PartitionResult{DT: dt, Err: err}
	}
	t0 := time.Now()
	if err := g.Gold.Commit(partition.DatasetMetrics, dt, enc); err != nil {
		if g.Metrics != nil {
			g.Metrics.PartitionsFailed.WithLabelValues(partition.DatasetMetrics).Inc()
		}
		g.Log.Error().Str("dt", dt).Err(err).Msg("gold partition commit failed")
		return PartitionResult{DT: dt, Err: err}
	}
	if g.Metrics != nil {
		g.Metrics.PartitionsOK.WithLabelValues(partition.DatasetMetrics).Inc()
		g.Metrics.CommitLatencySec.Observe(time.Since(t0).Seconds())
	}
	g.Log.Info().Str("dt", dt).Int("groups", len(rows)).Msg("gold partition committed")
	return PartitionResult{DT: dt, Rows: len(rows)}
}
