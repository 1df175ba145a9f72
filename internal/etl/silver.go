package etl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/model"
	"orderlake/internal/normalize"
	"orderlake/internal/partition"
	"orderlake/internal/quarantine"
	"orderlake/internal/schema"
)

// RowSource supplies the raw order rows for one silver run.
type RowSource interface {
	ReadOrders() ([]model.RawOrder, error)
}

// Silver runs the bronze->silver transform: validate, normalize, derive
// flags, and commit one atomic partition per dt. Per-row failures are
// quarantined; only the quarantine-ratio gate or an unreadable source fails
// the whole run. Manifest and Metrics may be nil. Log should be
// zerolog.Nop() when logging is unwanted.
type Silver struct {
	Source             RowSource
	Normalizer         *normalize.Normalizer
	Store              partition.Store
	Sink               quarantine.Writer
	MaxQuarantineRatio float64
	Manifest           manifest.Publisher
	Metrics            *metrics.Registry
	Log                zerolog.Logger
}

func (s *Silver) Run(ctx context.Context) (RunResult, error) {
	res := RunResult{RunID: NewRunID()}
	raws, err := s.Source.ReadOrders()
	if err != nil {
		return res, fmt.Errorf("read bronze: %w", err)
	}
	res.RowsRead = len(raws)
	if s.Metrics != nil {
		s.Metrics.RowsRead.Add(float64(len(raws)))
		s.Metrics.LastRunRows.Set(float64(len(raws)))
	}

	byDT := make(map[string][]model.CleanedOrder)
	for _, raw := range raws {
		if verr := schema.Validate(raw); verr != nil {
			if qerr := s.quarantineRow(quarantine.StageSchema, verr, raw, &res); qerr != nil {
				return res, qerr
			}
			continue
		}
		cleaned, nerr := s.Normalizer.Normalize(raw)
		if nerr != nil {
			if qerr := s.quarantineRow(quarantine.StageCast, nerr, raw, &res); qerr != nil {
				return res, qerr
			}
			continue
		}
		byDT[cleaned.DT] = append(byDT[cleaned.DT], cleaned)
		res.RowsAccepted++
	}
	if s.Metrics != nil {
		s.Metrics.RowsAccepted.Add(float64(res.RowsAccepted))
		if res.RowsRead > 0 {
			s.Metrics.QuarantineRatio.Set(float64(res.RowsQuarantined) / float64(res.RowsRead))
		}
	}
	if res.RowsRead > 0 {
		ratio := float64(res.RowsQuarantined) / float64(res.RowsRead)
		if ratio > s.MaxQuarantineRatio {
			return res, &QuarantineRatioError{
				Quarantined: res.RowsQuarantined,
				Total:       res.RowsRead,
				Max:         s.MaxQuarantineRatio,
			}
		}
	}

	dts := make([]string, 0, len(byDT))
	for dt := range byDT {
		dts = append(dts, dt)
	}
	sort.Strings(dts)

	// Partitions are independent units of work: each goroutine consumes its
	// own immutable slice and commits its own partition. An abort between
	// partitions leaves already-committed dates intact.
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
			results[i] = s.commitPartition(dt, byDT[dt])
		}()
	}
	wg.Wait()
	res.Partitions = results

	if s.Manifest != nil {
		m := manifest.RunManifest{
			RunID:           res.RunID,
			Dataset:         partition.DatasetOrders,
			Partitions:      res.Committed(),
			RowsRead:        res.RowsRead,
			RowsQuarantined: res.RowsQuarantined,
		}
		if err := s.Manifest.PublishLatest(m); err != nil {
			return res, fmt.Errorf("publish manifest: %w", err)
		}
	}
	s.Log.Info().
		Str("run", res.RunID).
		Int("rows", res.RowsRead).
		Int("quarantined", res.RowsQuarantined).
		Int("partitions", len(res.Partitions)).
		Int("failed", len(res.Failed())).
		Msg("silver run finished")
	return res, nil
}

func (s *Silver) quarantineRow(stage quarantine.Stage, cause error, raw model.RawOrder, res *RunResult) error {
	res.RowsQuarantined++
	if s.Metrics != nil {
		s.Metrics.RowsQuarantined.WithLabelValues(string(stage)).Inc()
	}
	s.Log.Debug().
		Str("stage", string(stage)).
		Str("order", raw[model.FieldOrderID]).
		Str("reason", cause.Error()).
		Msg("row quarantined")
	if s.Sink == nil {
		return nil
	}
	rec := quarantine.Record{
		Stage:  stage,
		Reason: cause.Error(),
		Row:    raw,
		TS:     quarantine.NowUnix(),
	}
	if err := s.Sink.Append(rec); err != nil {
		return fmt.Errorf("quarantine sink: %w", err)
	}
	return nil
}

func (s *Silver) commitPartition(dt string, rows []model.CleanedOrder) PartitionResult {
	enc, err := encodeOrders(rows)
	if err != nil {
		return PartitionResult{DT: dt, Err: err}
	}
	t0 := time.Now()
	if err := s.Store.Commit(partition.DatasetOrders, dt, enc); err != nil {
		if s.Metrics != nil {
			s.Metrics.PartitionsFailed.WithLabelValues(partition.DatasetOrders).Inc()
		}
		s.Log.Error().Str("dt", dt).Err(err).Msg("silver partition commit failed")
		return PartitionResult{DT: dt, Err: err}
	}
	if s.Metrics != nil {
		s.Metrics.PartitionsOK.WithLabelValues(partition.DatasetOrders).Inc()
		s.Metrics.CommitLatencySec.Observe(time.Since(t0).Seconds())
	}
	s.Log.Info().Str("dt", dt).Int("rows", len(rows)).Msg("silver partition committed")
	return PartitionResult{DT: dt, Rows: len(rows)}
}
