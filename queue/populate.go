package queue

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/dustin/go-humanize"
	"github.com/janelia-flyem/voltasks/tasks"
	"github.com/janelia-flyem/voltasks/volume"
	"github.com/twinj/uuid"

	"golang.org/x/sync/errgroup"
)

// DefaultBatchSize is the number of descriptors per sink call when none is given.
const DefaultBatchSize = 100

// Options controls how an iterator is spread over concurrent workers.
type Options struct {
	// Workers is the maximum number of slices populated at once.  Default 1.
	Workers int `toml:"workers" json:"workers"`

	// Slices is the number of contiguous level ranges the iterator is split
	// into.  Defaults to Workers.
	Slices int `toml:"slices" json:"slices"`

	// BatchSize is the maximum number of descriptors per Put.
	BatchSize int `toml:"batch_size" json:"batch_size"`

	// RunID labels every batch.  A random one is generated if empty.
	RunID string `toml:"run_id" json:"run_id"`
}

// Stats summarizes a populate run.
type Stats struct {
	RunID       string
	Slices      int
	Descriptors int64
	Batches     int64
}

func (s Stats) String() string {
	return fmt.Sprintf("run %s: %s descriptors in %s batches over %d slices",
		s.RunID, humanize.Comma(s.Descriptors), humanize.Comma(s.Batches), s.Slices)
}

// Populate partitions the iterator and delivers every descriptor to the sink
// exactly once in batches, running up to opts.Workers slices concurrently.
// The first sink error cancels the remaining slices and is returned.
func Populate(ctx context.Context, it tasks.Iterator, sink Sink, opts Options) (Stats, error) {
	if opts.Workers < 0 || opts.Slices < 0 || opts.BatchSize < 0 {
		return Stats{}, fmt.Errorf("bad populate options %+v", opts)
	}
	if opts.Workers == 0 {
		opts.Workers = 1
	}
	if opts.Slices == 0 {
		opts.Slices = opts.Workers
	}
	if opts.BatchSize == 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.RunID == "" {
		opts.RunID = uuid.NewV4().String()
	}
	stats := Stats{RunID: opts.RunID}

	parts, err := tasks.Partition(it, opts.Slices)
	if err != nil {
		return stats, err
	}
	stats.Slices = len(parts)

	timedLog := volume.NewTimeLog()
	volume.Infof("Populating %s tasks (%d levels) as run %s: %d slices, %d workers\n",
		it.Stage(), it.Len(), opts.RunID, len(parts), opts.Workers)

	var numDescs, numBatches atomic.Int64
	g, gctx := errgroup.WithContext(WithRunID(ctx, opts.RunID))
	g.SetLimit(opts.Workers)
	for _, part := range parts {
		g.Go(func() error {
			descs, batches, err := populateSlice(gctx, part, sink, opts.BatchSize)
			numDescs.Add(descs)
			numBatches.Add(batches)
			return err
		})
	}
	err = g.Wait()
	stats.Descriptors = numDescs.Load()
	stats.Batches = numBatches.Load()
	if err != nil {
		timedLog.Errorf("Aborted %s after %s descriptors: %v", it.Stage(), humanize.Comma(stats.Descriptors), err)
		return stats, err
	}
	timedLog.Infof("Populated %s %s", it.Stage(), stats)
	return stats, nil
}

func populateSlice(ctx context.Context, it tasks.Iterator, sink Sink, batchSize int) (descs, batches int64, err error) {
	start, end := it.Levels()
	batch := make([]tasks.Descriptor, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := sink.Put(ctx, batch); err != nil {
			return fmt.Errorf("levels [%d,%d): %w", start, end, err)
		}
		descs += int64(len(batch))
		batches++
		batch = make([]tasks.Descriptor, 0, batchSize)
		return nil
	}
	for d := range it.All() {
		if err = ctx.Err(); err != nil {
			return
		}
		batch = append(batch, d)
		if len(batch) == batchSize {
			if err = flush(); err != nil {
				return
			}
		}
	}
	if err = ctx.Err(); err != nil {
		return
	}
	err = flush()
	volume.Debugf("Slice [%d,%d) of %s: %d descriptors\n", start, end, it.Stage(), descs)
	return
}
