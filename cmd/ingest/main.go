package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ck "github.com/confluentinc/confluent-kafka-go/v2/kafka"
	"github.com/rs/zerolog"

	"orderlake/internal/bronze"
	"orderlake/internal/model"
)

// ingest lands raw order events from a Kafka topic into the bronze tier as
// CSV batches. Offsets are committed only after a batch file is durably on
// disk, so a crash replays the batch instead of losing it; the silver run
// is idempotent over replayed rows.
func main() {
	var (
		bootstrap string
		groupID   string
		topicIn   string
		bronzeDir string
		batchSize int
		batches   int
	)
	flag.StringVar(&bootstrap, "bootstrap", "localhost:19092", "kafka bootstrap servers")
	flag.StringVar(&groupID, "group-id", "bronze-ingest", "consumer group id")
	flag.StringVar(&topicIn, "topic-in", "orders.raw", "input topic")
	flag.StringVar(&bronzeDir, "bronze", "./bronze", "bronze root directory")
	flag.IntVar(&batchSize, "batch-size", 500, "rows per bronze file")
	flag.IntVar(&batches, "batches", 0, "stop after N batches; 0 runs forever")
	flag.Parse()

	log := zerolog.New(os.Stderr).With().Timestamp().Str("component", "ingest").Logger()
	if err := run(bootstrap, groupID, topicIn, bronzeDir, batchSize, batches, log); err != nil {
		log.Fatal().Err(err).Msg("ingest failed")
	}
}

var header = []string{
	model.FieldOrderID,
	model.FieldRestaurantName,
	model.FieldCity,
	model.FieldOrderTime,
	model.FieldDeliveryTime,
	model.FieldPromisedMinutes,
	model.FieldGMVAmount,
}

func run(bootstrap, groupID, topicIn, bronzeDir string, batchSize, batches int, log zerolog.Logger) error {
	c, err := ck.NewConsumer(&ck.ConfigMap{
		"bootstrap.servers":  bootstrap,
		"group.id":           groupID,
		"enable.auto.commit": false,
		"isolation.level":    "read_committed",
		"auto.offset.reset":  "earliest",
	})
	if err != nil {
		return fmt.Errorf("consumer: %w", err)
	}
	defer c.Close()
	if err := c.SubscribeTopics([]string{topicIn}, nil); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	log.Info().Str("bootstrap", bootstrap).Str("topic", topicIn).Msg("ingest started")

	var batch [][]string
	done := 0
	for batches == 0 || done < batches {
		msg, err := c.ReadMessage(5 * time.Second)
		if err != nil {
			// No message within the timeout: flush what we have.
			if len(batch) > 0 {
				if err := flush(c, bronzeDir, batch, log); err != nil {
					return err
				}
				batch = nil
				done++
			}
			continue
		}
		var raw model.RawOrder
		if err := json.Unmarshal(msg.Value, &raw); err != nil {
			log.Warn().Str("key", string(msg.Key)).Msg("skipping undecodable event")
			continue
		}
		rec := make([]string, len(header))
		for i, f := range header {
			rec[i] = raw[f]
		}
		batch = append(batch, rec)
		if len(batch) >= batchSize {
			if err := flush(c, bronzeDir, batch, log); err != nil {
				return err
			}
			batch = nil
			done++
		}
	}
	return nil
}

func flush(c *ck.Consumer, bronzeDir string, batch [][]string, log zerolog.Logger) error {
	name := fmt.Sprintf("ingest-%d.csv", time.Now().UTC().UnixNano())
	path := filepath.Join(bronzeDir, "orders", time.Now().UTC().Format("2006-01-02"), name)
	if err := bronze.WriteFile(path, header, batch); err != nil {
		return fmt.Errorf("write bronze batch: %w", err)
	}
	// Commit only after the file exists: replay beats loss.
	if _, err := c.Commit(); err != nil {
		return fmt.Errorf("commit offsets: %w", err)
	}
	log.Info().Int("rows", len(batch)).Str("file", path).Msg("bronze batch landed")
	return nil
}
