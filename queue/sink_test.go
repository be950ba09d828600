package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/janelia-flyem/voltasks/tasks"

	"github.com/Shopify/sarama"
	"github.com/Shopify/sarama/mocks"
	"github.com/golang/snappy"
	"github.com/klauspost/compress/gzip"
	"gocloud.dev/blob/memblob"
)

func testBatch(n int) []tasks.Descriptor {
	batch := make([]tasks.Descriptor, n)
	for i := range batch {
		batch[i] = tasks.Descriptor{Stage: tasks.StagePickEdge, Command: fmt.Sprintf("pick_edge proc %d", i)}
	}
	return batch
}

func TestBlobSink(t *testing.T) {
	ctx := WithRunID(context.Background(), "run-1")
	for _, compression := range []string{CompressNone, CompressGzip, CompressSnappy} {
		bucket := memblob.OpenBucket(nil)
		sink, err := NewBlobSink(bucket, "/queue/", compression)
		if err != nil {
			t.Fatalf("unable to make sink: %v\n", err)
		}
		batch := testBatch(5)
		if err := sink.Put(ctx, batch); err != nil {
			t.Fatalf("put: %v\n", err)
		}
		// resubmitting the same batch overwrites the same object
		if err := sink.Put(ctx, batch); err != nil {
			t.Fatalf("put: %v\n", err)
		}
		key := sink.BatchKey(batch)
		if !strings.HasPrefix(key, "queue/pick_edge/") {
			t.Errorf("unexpected batch key %q\n", key)
		}
		var numObjects int
		iter := bucket.List(nil)
		for {
			obj, err := iter.Next(ctx)
			if err != nil {
				break
			}
			if obj.Key != key {
				t.Errorf("unexpected object %q\n", obj.Key)
			}
			numObjects++
		}
		if numObjects != 1 {
			t.Errorf("compression %q: expected 1 object, got %d\n", compression, numObjects)
		}
		attrs, err := bucket.Attributes(ctx, key)
		if err != nil {
			t.Fatalf("attributes: %v\n", err)
		}
		if attrs.Metadata["run-id"] != "run-1" {
			t.Errorf("expected run-id metadata, got %v\n", attrs.Metadata)
		}
		cmds, err := ReadBatch(ctx, bucket, key)
		if err != nil {
			t.Fatalf("compression %q: read batch: %v\n", compression, err)
		}
		if len(cmds) != 5 || cmds[0] != "pick_edge proc 0" || cmds[4] != "pick_edge proc 4" {
			t.Errorf("compression %q: bad commands %v\n", compression, cmds)
		}
		if sink.BatchKey(testBatch(4)) == key {
			t.Errorf("different batches should have different keys\n")
		}
		if err := sink.Close(); err != nil {
			t.Errorf("close: %v\n", err)
		}
	}
	if _, err := NewBlobSink(memblob.OpenBucket(nil), "q", "lz77"); err == nil {
		t.Errorf("expected error for unknown compression\n")
	}
}

func TestReadEmptyBatch(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	var gz bytes.Buffer
	zw := gzip.NewWriter(&gz)
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip: %v\n", err)
	}
	objects := map[string][]byte{
		"empty.txt":    nil,
		"empty.txt.gz": gz.Bytes(),
		"empty.txt.sz": snappy.Encode(nil, nil),
	}
	for key, data := range objects {
		if err := bucket.WriteAll(ctx, key, data, nil); err != nil {
			t.Fatalf("unable to write %s: %v\n", key, err)
		}
		cmds, err := ReadBatch(ctx, bucket, key)
		if err != nil {
			t.Fatalf("read %s: %v\n", key, err)
		}
		if len(cmds) != 0 {
			t.Errorf("expected no commands from %s, got %q\n", key, cmds)
		}
	}
}

func TestKafkaSink(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	batch := testBatch(3)
	for i := range batch {
		expected := batch[i]
		producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
			var msg map[string]string
			if err := json.Unmarshal(val, &msg); err != nil {
				return err
			}
			if msg["command"] != expected.Command || msg["stage"] != string(expected.Stage) {
				return fmt.Errorf("unexpected message %v", msg)
			}
			if msg["key"] != expected.Key() || msg["run_id"] != "run-2" {
				return fmt.Errorf("bad key or run id in %v", msg)
			}
			return nil
		})
	}
	sink := NewKafkaSinkFromProducer(producer, "tasks")
	if err := sink.Put(WithRunID(context.Background(), "run-2"), batch); err != nil {
		t.Fatalf("put: %v\n", err)
	}

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	if err := sink.Put(context.Background(), testBatch(1)); err == nil {
		t.Errorf("expected error from failed send\n")
	}
	if err := sink.Close(); err != nil {
		t.Errorf("close: %v\n", err)
	}

	if _, err := NewKafkaSink(KafkaConfig{Topic: "tasks"}); err == nil {
		t.Errorf("expected error without servers\n")
	}
}
