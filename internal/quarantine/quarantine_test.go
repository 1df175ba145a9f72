package quarantine

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/segmentio/kafka-go"

	"orderlake/internal/model"
)

func sampleRecord() Record {
	return Record{
		Stage:  StageSchema,
		Reason: "field gmv_amount missing_field",
		Row:    model.RawOrder{model.FieldOrderID: "o9", model.FieldCity: "Pune"},
		TS:     NowUnix(),
	}
}

func TestFileWriter_AppendsJSONL(t *testing.T) {
	dir := t.TempDir()
	w, err := NewFileWriter(dir, "quarantine.jsonl")
	if err != nil {
		t.Fatalf("new writer: %v", err)
	}
	if err := w.Append(sampleRecord()); err != nil {
		t.Fatalf("append: %v", err)
	}
	r2 := sampleRecord()
	r2.Stage = StageCast
	if err := w.Append(r2); err != nil {
		t.Fatalf("append: %v", err)
	}

	f, err := os.Open(filepath.Join(dir, "quarantine.jsonl"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer f.Close()
	var got []Record
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Fatalf("bad line: %v", err)
		}
		got = append(got, r)
	}
	if len(got) != 2 {
		t.Fatalf("want 2 records, got %d", len(got))
	}
	if got[0].Stage != StageSchema || got[1].Stage != StageCast {
		t.Fatalf("stages lost: %+v", got)
	}
	if got[0].Row[model.FieldOrderID] != "o9" {
		t.Fatalf("raw row lost: %+v", got[0].Row)
	}
}

// fakeKafkaWriter implements kafkaMessageWriter for tests.
type fakeKafkaWriter struct {
	msgs []kafka.Message
	fail bool
}

func (f *fakeKafkaWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.fail {
		return errors.New("fail")
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func TestKafkaWriter_KeyedByOrderID(t *testing.T) {
	fk := &fakeKafkaWriter{}
	kw := NewKafkaWriterWith(fk)
	if err := kw.Append(sampleRecord()); err != nil {
		t.Fatalf("append: %v", err)
	}
	if len(fk.msgs) != 1 {
		t.Fatalf("want 1 msg, got %d", len(fk.msgs))
	}
	if string(fk.msgs[0].Key) != "o9" {
		t.Fatalf("bad key: %s", string(fk.msgs[0].Key))
	}
}

func TestMultiWriter_StopsOnFirstError(t *testing.T) {
	fk := &fakeKafkaWriter{fail: true}
	ok := &fakeKafkaWriter{}
	mw := NewMultiWriter(NewKafkaWriterWith(fk), NewKafkaWriterWith(ok))
	if err := mw.Append(sampleRecord()); err == nil {
		t.Fatalf("expected error")
	}
	if len(ok.msgs) != 0 {
		t.Fatalf("second writer should not receive after failure")
	}
}
