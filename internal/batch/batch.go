// Package batch streams many archive entries into a sink with a bounded
// worker pool.
package batch

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"math"
	"runtime"
	"slices"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/meigma/datfs/internal/archive"
	"github.com/meigma/datfs/internal/sizing"
)

const (
	// parallelMinAvgBytes is the minimum average entry size to use parallel processing.
	// Below this threshold, serial processing is more efficient due to reduced overhead.
	parallelMinAvgBytes = 64 << 10 // 64KB
)

// Entry is one archive entry queued for processing.
type Entry struct {
	archive.Entry

	// Archive is the archive the entry is read from.
	Archive *archive.Archive
}

// Committer receives the content of one entry. Commit is called after the
// whole entry was written; Discard is called instead on failure.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// Sink decides which entries to process and where their content goes.
// Implementations must be safe for concurrent use.
type Sink interface {
	ShouldProcess(entry *Entry) bool
	Writer(entry *Entry) (Committer, error)
}

// Processor reads entries and writes them to a sink.
type Processor struct {
	workers int // 0 = auto, <0 = serial, >0 = fixed count
}

// ProcessorOption configures a Processor.
type ProcessorOption func(*Processor)

// WithWorkers sets the number of workers for parallel processing.
// Values < 0 force serial processing. Zero uses automatic heuristics.
// Values > 0 force a specific worker count.
func WithWorkers(n int) ProcessorOption {
	return func(p *Processor) {
		p.workers = n
	}
}

// NewProcessor creates a new batch processor.
func NewProcessor(opts ...ProcessorOption) *Processor {
	p := &Processor{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process writes every entry accepted by sink.ShouldProcess to the sink and
// returns how many were written.
//
// Entries are read in data-offset order within each archive. Processing
// stops on the first error or when ctx is canceled.
func (p *Processor) Process(ctx context.Context, entries []*Entry, sink Sink) (int, error) {
	toProcess := make([]*Entry, 0, len(entries))
	for _, entry := range entries {
		if sink.ShouldProcess(entry) {
			toProcess = append(toProcess, entry)
		}
	}
	if len(toProcess) == 0 {
		return 0, nil
	}

	slices.SortStableFunc(toProcess, func(a, b *Entry) int {
		return cmp.Or(
			strings.Compare(a.Archive.Path(), b.Archive.Path()),
			cmp.Compare(a.Offset, b.Offset),
		)
	})

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.workerCount(toProcess))
	for _, entry := range toProcess {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			if err := processEntry(entry, sink); err != nil {
				return err
			}
			done.Add(1)
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	return int(done.Load()), err
}

// processEntry streams a single entry into the sink.
func processEntry(entry *Entry, sink Sink) error {
	s, err := entry.Archive.OpenStream(entry.Path, "rb")
	if err != nil {
		return fmt.Errorf("batch: %w", err)
	}
	defer s.Close()

	w, err := sink.Writer(entry)
	if err != nil {
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}

	n, err := io.Copy(w, s)
	if err == nil && n != entry.Size {
		err = fmt.Errorf("read %d of %d bytes: %w", n, entry.Size, io.ErrUnexpectedEOF)
	}
	if err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("batch: %s: %w", entry.Path, err)
	}

	if err := w.Commit(); err != nil {
		return fmt.Errorf("batch: %s: commit: %w", entry.Path, err)
	}
	return nil
}

// workerCount determines the number of workers to use for processing.
func (p *Processor) workerCount(entries []*Entry) int {
	if len(entries) < 2 {
		return 1
	}
	if p.workers < 0 {
		return 1
	}

	workers := p.workers
	if workers == 0 {
		workers = runtime.GOMAXPROCS(0)
		if workers < 2 {
			return 1
		}
		// Use size-based heuristic: only parallelize for larger entries
		var total int64
		for _, entry := range entries {
			next, ok := sizing.AddInt64(total, entry.Size)
			if !ok {
				total = math.MaxInt64
				break
			}
			total = next
		}
		if total/int64(len(entries)) < parallelMinAvgBytes {
			return 1
		}
	}

	if workers > len(entries) {
		workers = len(entries)
	}
	if workers < 2 {
		return 1
	}
	return workers
}
