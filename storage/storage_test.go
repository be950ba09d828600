package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/janelia-flyem/voltasks/volume"

	"gocloud.dev/blob/memblob"
)

func TestParseRef(t *testing.T) {
	tests := []struct {
		ref      volume.StorageRef
		expected Ref
	}{
		{"gs://bucket/dataset/seg", Ref{"gs", "bucket", "dataset/seg"}},
		{"gs://bucket", Ref{"gs", "bucket", ""}},
		{"s3://bucket/proc/", Ref{"s3", "bucket", "proc"}},
		{"file:///tmp/voltasks", Ref{"file", "", "/tmp/voltasks"}},
		{"mem://scratch", Ref{"mem", "scratch", ""}},
	}
	for _, tc := range tests {
		r, err := ParseRef(tc.ref)
		if err != nil {
			t.Fatalf("unable to parse %q: %v\n", tc.ref, err)
		}
		if r != tc.expected {
			t.Errorf("parse %q: expected %+v, got %+v\n", tc.ref, tc.expected, r)
		}
	}
	for _, bad := range []volume.StorageRef{"bucket/key", "://bucket", "gs:///key", "file://"} {
		if _, err := ParseRef(bad); err == nil {
			t.Errorf("expected error parsing %q\n", bad)
		}
	}

	for _, ref := range []volume.StorageRef{"gs://bucket/proc/chunks", "gs://bucket", "file:///tmp/proc"} {
		r, _ := ParseRef(ref)
		if r.String() != string(ref) {
			t.Errorf("expected %s to round trip, got %s\n", ref, r)
		}
	}
}

func TestOpenBucketLocal(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "store")
	bucket, err := OpenBucket(ctx, volume.StorageRef("file://"+dir))
	if err != nil {
		t.Fatalf("unable to open file bucket: %v\n", err)
	}
	if err := bucket.WriteAll(ctx, "info", []byte("{}"), nil); err != nil {
		t.Fatalf("unable to write: %v\n", err)
	}
	bucket.Close()
	if _, err := os.Stat(filepath.Join(dir, "info")); err != nil {
		t.Errorf("expected object written to local directory: %v\n", err)
	}

	bucket, err = OpenBucket(ctx, "mem://scratch/prefix")
	if err != nil {
		t.Fatalf("unable to open mem bucket: %v\n", err)
	}
	defer bucket.Close()
	if err := bucket.WriteAll(ctx, "a", []byte("x"), nil); err != nil {
		t.Fatalf("unable to write: %v\n", err)
	}
	if data, err := bucket.ReadAll(ctx, "a"); err != nil || string(data) != "x" {
		t.Errorf("bad read back: %q, %v\n", data, err)
	}

	if _, err := OpenBucket(ctx, "ftp://host/path"); err == nil {
		t.Errorf("expected error for unsupported scheme\n")
	}
}

func TestTransferRoundTrip(t *testing.T) {
	ctx := context.Background()
	bucket := memblob.OpenBucket(nil)
	defer bucket.Close()

	src := filepath.Join(t.TempDir(), "seginfo")
	if err := os.MkdirAll(filepath.Join(src, "nested"), 0755); err != nil {
		t.Fatalf("unable to make dirs: %v\n", err)
	}
	files := map[string]string{"a.csv": "1,2,3\n", "b.csv": "4,5,6\n"}
	for name, contents := range files {
		if err := os.WriteFile(filepath.Join(src, name), []byte(contents), 0644); err != nil {
			t.Fatalf("unable to write %s: %v\n", name, err)
		}
	}

	keys, err := PushDir(ctx, bucket, src, "proc")
	if err != nil {
		t.Fatalf("push dir: %v\n", err)
	}
	sort.Strings(keys)
	if len(keys) != 2 || keys[0] != "proc/seginfo/a.csv" || keys[1] != "proc/seginfo/b.csv" {
		t.Fatalf("unexpected pushed keys: %v\n", keys)
	}

	dst := t.TempDir()
	fnames, err := PullDir(ctx, bucket, "proc/seginfo", dst)
	if err != nil {
		t.Fatalf("pull dir: %v\n", err)
	}
	if len(fnames) != 2 {
		t.Fatalf("expected 2 pulled files, got %v\n", fnames)
	}
	for name, contents := range files {
		data, err := os.ReadFile(filepath.Join(dst, "seginfo", name))
		if err != nil {
			t.Fatalf("missing pulled file %s: %v\n", name, err)
		}
		if string(data) != contents {
			t.Errorf("file %s: expected %q, got %q\n", name, contents, data)
		}
	}

	single, err := PullFile(ctx, bucket, "proc/seginfo/a.csv", dst)
	if err != nil {
		t.Fatalf("pull file: %v\n", err)
	}
	if filepath.Base(single) != "a.csv" {
		t.Errorf("expected pulled file named by key base, got %s\n", single)
	}
	if _, err := PullFile(ctx, bucket, "proc/missing", dst); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v\n", err)
	}
}
