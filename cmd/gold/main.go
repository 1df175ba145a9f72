package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"orderlake/internal/config"
	"orderlake/internal/etl"
	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/partition"
)

func main() {
	var (
		cfgPath         string
		dtList          string
		manifestSource  string // file|kafka
		httpAddr        string
		pollIntervalSec int
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "config file path")
	flag.StringVar(&dtList, "dt", "", "comma-separated dts to refresh; empty = discover from manifest")
	flag.StringVar(&manifestSource, "manifest-source", "file", "silver manifest source: file|kafka")
	flag.StringVar(&httpAddr, "http", ":8081", "http listen for /metrics and /healthz")
	flag.IntVar(&pollIntervalSec, "poll", 0, "poll interval seconds; 0 runs once")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "gold").Logger()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := run(cfg, dtList, manifestSource, httpAddr, pollIntervalSec, log); err != nil {
		log.Fatal().Err(err).Msg("gold run failed")
	}
}

func run(cfg config.Config, dtList, manifestSource, httpAddr string, pollIntervalSec int, log zerolog.Logger) error {
	var silverStore, goldStore partition.Store
	if cfg.Store.Backend == "pebble" {
		ps, err := partition.NewPebbleStore(cfg.Store.PebbleDir)
		if err != nil {
			return fmt.Errorf("init pebble: %w", err)
		}
		defer ps.Close()
		silverStore, goldStore = ps, ps
	} else {
		silverStore = partition.NewFSStore(cfg.Silver.Location)
		goldStore = partition.NewFSStore(cfg.Gold.Location)
	}

	maniFS := manifest.NewFilesystemManifest(cfg.ManifestDir)
	var discover manifest.Reader = maniFS
	if manifestSource == "kafka" && cfg.Kafka.Bootstrap != "" {
		discover = manifest.NewKafkaReader(strings.Split(cfg.Kafka.Bootstrap, ","), cfg.Kafka.ManifestTopic)
	}

	var dts []string
	if dtList != "" {
		for _, dt := range strings.Split(dtList, ",") {
			if dt = strings.TrimSpace(dt); dt != "" {
				dts = append(dts, dt)
			}
		}
	}

	mreg := metrics.NewRegistry()
	go func() {
		http.Handle("/metrics", mreg.Handler())
		http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
		})
		_ = http.ListenAndServe(httpAddr, nil)
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g := &etl.Gold{
		Silver:   silverStore,
		Gold:     goldStore,
		Chunks:   cfg.Aggregate.Chunks,
		Discover: discover,
		Manifest: maniFS,
		Metrics:  mreg,
		Log:      log,
	}

	runOnce := func() error {
		res, err := g.Run(ctx, dts)
		if err != nil {
			return err
		}
		for _, p := range res.Partitions {
			if p.Err != nil {
				log.Error().Str("dt", p.DT).Err(p.Err).Msg("partition failed")
			}
		}
		if failed := res.Failed(); len(failed) > 0 {
			return fmt.Errorf("%d of %d partitions failed", len(failed), len(res.Partitions))
		}
		return nil
	}

	if pollIntervalSec <= 0 {
		return runOnce()
	}
	ticker := time.NewTicker(time.Duration(pollIntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		if err := runOnce(); err != nil {
			log.Error().Err(err).Msg("refresh cycle failed")
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
