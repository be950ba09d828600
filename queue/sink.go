package queue

import (
	"bufio"
	"context"
	"io"
	"sync"

	"github.com/janelia-flyem/voltasks/tasks"
)

// Sink receives batches of descriptors.  Implementations must allow concurrent
// calls to Put.
type Sink interface {
	// Put delivers a batch of descriptors, returning only after the batch is
	// durably handed off.
	Put(ctx context.Context, batch []tasks.Descriptor) error

	// Close flushes and releases any resources.
	Close() error
}

type runIDKey struct{}

// WithRunID returns a context carrying the identifier of a populate run.
func WithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunID returns the populate run identifier in the context, if any.
func RunID(ctx context.Context) string {
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// WriterSink writes one command per line to an io.Writer.  It is used for dry
// runs and for feeding shell-based queue clients.
type WriterSink struct {
	mu sync.Mutex
	w  *bufio.Writer
}

func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: bufio.NewWriter(w)}
}

func (s *WriterSink) Put(ctx context.Context, batch []tasks.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range batch {
		if _, err := s.w.WriteString(d.Command); err != nil {
			return err
		}
		if err := s.w.WriteByte('\n'); err != nil {
			return err
		}
	}
	return s.w.Flush()
}

func (s *WriterSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Flush()
}
