package queue

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/golang/snappy"
	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/klauspost/compress/gzip"

	"gocloud.dev/blob"
)

// Compression names supported by BlobSink.
const (
	CompressNone   = ""
	CompressGzip   = "gzip"
	CompressSnappy = "snappy"
)

func compressionExt(compression string) (string, error) {
	switch compression {
	case CompressNone:
		return ".txt", nil
	case CompressGzip:
		return ".txt.gz", nil
	case CompressSnappy:
		return ".txt.sz", nil
	default:
		return "", fmt.Errorf("unknown compression %q", compression)
	}
}

// BlobSink writes each batch as one object holding newline-delimited
// commands.  Object names are derived from the batch contents, so putting the
// same batch twice overwrites rather than duplicates work.
type BlobSink struct {
	bucket      *blob.Bucket
	prefix      string
	compression string
	ext         string
}

// NewBlobSink returns a sink writing under prefix in the bucket.  The sink
// takes ownership of the bucket and closes it on Close.
func NewBlobSink(bucket *blob.Bucket, prefix, compression string) (*BlobSink, error) {
	ext, err := compressionExt(compression)
	if err != nil {
		return nil, err
	}
	return &BlobSink{
		bucket:      bucket,
		prefix:      strings.Trim(prefix, "/"),
		compression: compression,
		ext:         ext,
	}, nil
}

// BatchKey returns the object name used for a batch.
func (s *BlobSink) BatchKey(batch []tasks.Descriptor) string {
	h := xxhash.New()
	for _, d := range batch {
		h.WriteString(d.Command)
		h.Write([]byte{'\n'})
	}
	var stage string
	if len(batch) > 0 {
		stage = string(batch[0].Stage)
	}
	return path.Join(s.prefix, stage, fmt.Sprintf("%016x%s", h.Sum64(), s.ext))
}

func encodeBatch(batch []tasks.Descriptor, compression string) ([]byte, error) {
	var buf bytes.Buffer
	for _, d := range batch {
		buf.WriteString(d.Command)
		buf.WriteByte('\n')
	}
	switch compression {
	case CompressGzip:
		var zbuf bytes.Buffer
		zw := gzip.NewWriter(&zbuf)
		if _, err := zw.Write(buf.Bytes()); err != nil {
			return nil, err
		}
		if err := zw.Close(); err != nil {
			return nil, err
		}
		return zbuf.Bytes(), nil
	case CompressSnappy:
		return snappy.Encode(nil, buf.Bytes()), nil
	default:
		return buf.Bytes(), nil
	}
}

func (s *BlobSink) Put(ctx context.Context, batch []tasks.Descriptor) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := encodeBatch(batch, s.compression)
	if err != nil {
		return err
	}
	key := s.BatchKey(batch)
	opts := &blob.WriterOptions{ContentType: "text/plain"}
	if runID := RunID(ctx); runID != "" {
		opts.Metadata = map[string]string{"run-id": runID}
	}
	if err := s.bucket.WriteAll(ctx, key, data, opts); err != nil {
		return fmt.Errorf("unable to write batch of %d descriptors to %q: %w", len(batch), key, err)
	}
	return nil
}

func (s *BlobSink) Close() error {
	return s.bucket.Close()
}

// ReadBatch returns the commands stored in a batch object written by a
// BlobSink, decompressing according to the object's extension.
func ReadBatch(ctx context.Context, bucket *blob.Bucket, key string) ([]string, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, err
	}
	switch {
	case strings.HasSuffix(key, ".gz"):
		zr, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("can't uncompress gzip batch %q: %w", key, err)
		}
		data, err = io.ReadAll(zr)
		if err != nil {
			return nil, fmt.Errorf("can't read gzip batch %q: %w", key, err)
		}
		zr.Close()
	case strings.HasSuffix(key, ".sz"):
		data, err = snappy.Decode(nil, data)
		if err != nil {
			return nil, fmt.Errorf("can't uncompress snappy batch %q: %w", key, err)
		}
	}
	if len(data) == 0 {
		return []string{}, nil
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n"), nil
}
