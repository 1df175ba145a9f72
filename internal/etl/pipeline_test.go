package etl

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orderlake/internal/bronze"
	"orderlake/internal/manifest"
	"orderlake/internal/model"
	"orderlake/internal/normalize"
	"orderlake/internal/partition"
)

var bronzeHeader = []string{
	"order_id", "restaurant_name", "city",
	"order_time", "delivery_time", "promised_delivery_minutes", "gmv_amount",
}

// Full bronze->silver->gold pass over CSV input, checking the worked
// examples end to end.
func TestPipeline_BronzeToGold(t *testing.T) {
	bronzeDir := t.TempDir()
	if err := bronze.WriteFile(filepath.Join(bronzeDir, "orders", "batch1.csv"), bronzeHeader, [][]string{
		{"o1", "Pizza Hub", "Pune", "2024-01-05 10:00:00", "2024-01-05 10:50:00", "40", "500"},
		{"o2", "Pizza Hub", "Pune", "2024-01-05 11:00:00", "", "40", "250"},
		{"o3", "Wok Star", "Pune", "2024-01-05 12:00:00", "2024-01-05 12:30:00", "45", "320"},
		{"o4", "", "Pune", "2024-01-05 12:00:00", "", "45", "100"}, // quarantined
	}); err != nil {
		t.Fatalf("write bronze: %v", err)
	}

	store := partition.NewFSStore(t.TempDir())
	pub := manifest.NewFilesystemManifest(t.TempDir())
	norm, err := normalize.New(normalize.DefaultTimestampFormats, time.UTC)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	silver := &Silver{
		Source:             bronze.NewReader(bronzeDir),
		Normalizer:         norm,
		Store:              store,
		Sink:               &memSink{},
		MaxQuarantineRatio: 0.5,
		Manifest:           pub,
		Log:                zerolog.Nop(),
	}
	sres, err := silver.Run(context.Background())
	if err != nil {
		t.Fatalf("silver run: %v", err)
	}
	if !sres.Succeeded() || sres.RowsAccepted != 3 || sres.RowsQuarantined != 1 {
		t.Fatalf("unexpected silver result: %+v", sres)
	}

	gold := &Gold{Silver: store, Gold: store, Chunks: 3, Discover: pub, Manifest: pub, Log: zerolog.Nop()}
	gres, err := gold.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("gold run: %v", err)
	}
	if !gres.Succeeded() {
		t.Fatalf("gold failed: %+v", gres.Failed())
	}

	ms := readMetrics(t, store, "2024-01-05")
	if len(ms) != 2 {
		t.Fatalf("want 2 groups, got %+v", ms)
	}
	// Sorted by name: Pizza Hub then Wok Star.
	hub := ms[0]
	if hub.Name != "Pizza Hub" || hub.OrdersDelivered != 1 || hub.GMV != 750 || hub.LateCount != 1 {
		t.Fatalf("pizza hub metric: %+v", hub)
	}
	if hub.LateRate == nil || *hub.LateRate != 1.0 {
		t.Fatalf("pizza hub late_rate: %+v", hub.LateRate)
	}
	if hub.AvgDeliveryMins == nil || *hub.AvgDeliveryMins != 50 {
		t.Fatalf("pizza hub avg: %+v", hub.AvgDeliveryMins)
	}
	wok := ms[1]
	if wok.Name != "Wok Star" || wok.OrdersDelivered != 1 || wok.LateCount != 0 {
		t.Fatalf("wok star metric: %+v", wok)
	}
	if wok.LateRate == nil || *wok.LateRate != 0 {
		t.Fatalf("wok star late_rate: %+v", wok.LateRate)
	}

	gm, err := pub.ReadLatest(partition.DatasetMetrics)
	if err != nil {
		t.Fatalf("gold manifest: %v", err)
	}
	if gm.Partitions["2024-01-05"] != 2 {
		t.Fatalf("gold manifest partitions: %+v", gm.Partitions)
	}
}

// The same flow over the Pebble backend: backends must be interchangeable.
func TestPipeline_PebbleBackend(t *testing.T) {
	store, err := partition.NewPebbleStore(t.TempDir())
	if err != nil {
		t.Fatalf("pebble: %v", err)
	}
	defer store.Close()

	norm, err := normalize.New(normalize.DefaultTimestampFormats, time.UTC)
	if err != nil {
		t.Fatalf("normalizer: %v", err)
	}
	silver := &Silver{
		Source: &sliceSource{rows: []model.RawOrder{
			rawOrder("o1", "2024-01-05", "50"),
			rawOrder("o2", "2024-01-05", "30"),
		}},
		Normalizer:         norm,
		Store:              store,
		MaxQuarantineRatio: 0.2,
		Log:                zerolog.Nop(),
	}
	if _, err := silver.Run(context.Background()); err != nil {
		t.Fatalf("silver run: %v", err)
	}
	gold := &Gold{Silver: store, Gold: store, Chunks: 2, Log: zerolog.Nop()}
	gres, err := gold.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("gold run: %v", err)
	}
	if !gres.Succeeded() {
		t.Fatalf("gold failed: %+v", gres.Failed())
	}
	ms := readMetrics(t, store, "2024-01-05")
	if len(ms) != 1 || ms[0].OrdersDelivered != 2 {
		t.Fatalf("unexpected metrics: %+v", ms)
	}
}
