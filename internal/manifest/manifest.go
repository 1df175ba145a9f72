package manifest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// RunManifest records the outcome of one run over one dataset: which dt
// partitions committed and how many rows were read and quarantined doing it.
// The gold run discovers refreshed silver partitions through it.
type RunManifest struct {
	RunID                string         `json:"runId"`
	Dataset              string         `json:"dataset"`
	Partitions           map[string]int `json:"partitions"` // dt -> committed row count
	RowsRead             int            `json:"rowsRead"`
	RowsQuarantined      int            `json:"rowsQuarantined"`
	CreatedAtEpochSecond int64          `json:"createdAt"`
}

type Publisher interface {
	PublishLatest(m RunManifest) error
}

// MultiPublisherImpl writes to multiple publishers sequentially.
type MultiPublisherImpl struct {
	pubs []Publisher
}

func MultiPublisher(pubs ...Publisher) Publisher {
	return &MultiPublisherImpl{pubs: pubs}
}

func (m *MultiPublisherImpl) PublishLatest(rm RunManifest) error {
	for _, p := range m.pubs {
		if err := p.PublishLatest(rm); err != nil {
			return err
		}
	}
	return nil
}

type Reader interface {
	ReadLatest(dataset string) (RunManifest, error)
}

type FilesystemManifest struct {
	baseDir string
}

func NewFilesystemManifest(baseDir string) *FilesystemManifest {
	return &FilesystemManifest{baseDir: baseDir}
}

func manifestFile(baseDir, dataset string) string {
	return filepath.Join(baseDir, dataset+".manifest.latest.json")
}

func (f *FilesystemManifest) PublishLatest(m RunManifest) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("mkdir: %w", err)
	}
	if m.CreatedAtEpochSecond == 0 {
		m.CreatedAtEpochSecond = time.Now().UTC().Unix()
	}
	out, err := os.Create(manifestFile(f.baseDir, m.Dataset))
	if err != nil {
		return fmt.Errorf("create: %w", err)
	}
	defer out.Close()
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	if err := enc.Encode(&m); err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	return nil
}

func (f *FilesystemManifest) ReadLatest(dataset string) (RunManifest, error) {
	data, err := os.ReadFile(manifestFile(f.baseDir, dataset))
	if err != nil {
		return RunManifest{}, fmt.Errorf("read manifest: %w", err)
	}
	var m RunManifest
	if err := json.Unmarshal(data, &m); err != nil {
		return RunManifest{}, fmt.Errorf("unmarshal manifest: %w", err)
	}
	return m, nil
}

// KafkaManifest publishes the latest run manifest as a compacted Kafka
// record keyed by dataset.
type KafkaManifest struct {
	writer kafkaMessageWriter
}

// kafkaMessageWriter abstracts kafka.Writer for testability.
type kafkaMessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// NewKafkaManifest creates a Kafka manifest publisher.
// bootstrap can be comma-separated brokers.
func NewKafkaManifest(bootstrap string, topic string) *KafkaManifest {
	addrs := strings.Split(bootstrap, ",")
	var brokers []string
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if a != "" {
			brokers = append(brokers, a)
		}
	}
	return &KafkaManifest{writer: &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		Async:        false,
	}}
}

func (k *KafkaManifest) PublishLatest(m RunManifest) error {
	if m.CreatedAtEpochSecond == 0 {
		m.CreatedAtEpochSecond = time.Now().UTC().Unix()
	}
	b, err := json.Marshal(&m)
	if err != nil {
		return fmt.Errorf("marshal: %w", err)
	}
	return k.writer.WriteMessages(context.Background(), kafka.Message{Key: []byte(m.Dataset), Value: b})
}

// NewKafkaManifestWith is only for tests to inject a fake writer.
func NewKafkaManifestWith(w kafkaMessageWriter) *KafkaManifest {
	return &KafkaManifest{writer: w}
}

// KafkaReader reads the latest manifest record for a dataset from a
// compacted Kafka topic by scanning partition 0 and keeping the last match.
type KafkaReader struct {
	brokers []string
	topic   string
	timeout time.Duration
}

func NewKafkaReader(brokers []string, topic string) *KafkaReader {
	return &KafkaReader{brokers: brokers, topic: topic, timeout: 10 * time.Second}
}

func (k *KafkaReader) ReadLatest(dataset string) (RunManifest, error) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:   k.brokers,
		Topic:     k.topic,
		Partition: 0,
		MinBytes:  1,
		MaxBytes:  10e6,
	})
	defer r.Close()

	ctx, cancel := context.WithTimeout(context.Background(), k.timeout)
	defer cancel()

	var last RunManifest
	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return RunManifest{}, fmt.Errorf("read kafka: %w", err)
		}
		if string(m.Key) != dataset {
			continue
		}
		var rm RunManifest
		if err := json.Unmarshal(m.Value, &rm); err != nil {
			return RunManifest{}, fmt.Errorf("unmarshal kafka manifest: %w", err)
		}
		last = rm
	}
	if last.RunID == "" {
		return RunManifest{}, fmt.Errorf("no manifest found for dataset %s", dataset)
	}
	return last, nil
}
