package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"orderlake/internal/bronze"
	"orderlake/internal/config"
	"orderlake/internal/etl"
	"orderlake/internal/manifest"
	"orderlake/internal/metrics"
	"orderlake/internal/normalize"
	"orderlake/internal/partition"
	"orderlake/internal/quarantine"
)

func main() {
	var (
		cfgPath        string
		quarantineSink string // file|kafka|both
		manifestSink   string // file|kafka|both
		httpAddr       string
	)
	flag.StringVar(&cfgPath, "config", "./config.yaml", "config file path")
	flag.StringVar(&quarantineSink, "quarantine-sink", "file", "quarantine sink: file|kafka|both")
	flag.StringVar(&manifestSink, "manifest-sink", "file", "manifest sink: file|kafka|both")
	flag.StringVar(&httpAddr, "http", ":8080", "http listen for /metrics and /healthz")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "silver").Logger()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	if err := run(cfg, quarantineSink, manifestSink, httpAddr, log); err != nil {
		log.Fatal().Err(err).Msg("silver run failed")
	}
}

func run(cfg config.Config, quarantineSink, manifestSink, httpAddr string, log zerolog.Logger) error {
	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	norm, err := normalize.New(cfg.TimestampFormats, loc)
	if err != nil {
		return err
	}

	var store partition.Store
	if cfg.Store.Backend == "pebble" {
		ps, err := partition.NewPebbleStore(cfg.Store.PebbleDir)
		if err != nil {
			return fmt.Errorf("init pebble: %w", err)
		}
		defer ps.Close()
		store = ps
	} else {
		store = partition.NewFSStore(cfg.Silver.Location)
	}

	var sink quarantine.Writer
	if quarantineSink == "file" || quarantineSink == "both" || quarantineSink == "" {
		fw, err := quarantine.NewFileWriter(cfg.Quarantine.Dir, "quarantine.jsonl")
		if err != nil {
			return fmt.Errorf("init quarantine file: %w", err)
		}
		sink = fw
	}
	if (quarantineSink == "kafka" || quarantineSink == "both") && cfg.Kafka.Bootstrap != "" {
		kw := quarantine.NewKafkaWriter(cfg.Kafka.Bootstrap, cfg.Kafka.QuarantineTopic)
		if sink == nil {
			sink = kw
		} else {
			sink = quarantine.NewMultiWriter(sink, kw)
		}
	}

	maniFS := manifest.NewFilesystemManifest(cfg.ManifestDir)
	var mani manifest.Publisher = maniFS
	if (manifestSink == "kafka" || manifestSink == "both") && cfg.Kafka.Bootstrap != "" {
		maniK := manifest.NewKafkaManifest(cfg.Kafka.Bootstrap, cfg.Kafka.ManifestTopic)
		if manifestSink == "kafka" {
			mani = maniK
		} else {
			mani = manifest.MultiPublisher(maniFS, maniK)
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

	s := &etl.Silver{
		Source:             bronze.NewReader(cfg.Bronze.Location),
		Normalizer:         norm,
		Store:              store,
		Sink:               sink,
		MaxQuarantineRatio: cfg.Quarantine.MaxRatio,
		Manifest:           mani,
		Metrics:            mreg,
		Log:                log,
	}
	res, err := s.Run(ctx)
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
