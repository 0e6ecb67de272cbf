package datfs

import "sync"

// ProgressEvent reports read progress.
type ProgressEvent struct {
	// Path is the name of the file being read when the chunk completed.
	Path string

	// BytesRead is the total number of bytes read through the VFS so far.
	BytesRead int64
}

// ProgressFunc receives progress updates.
// Implementations must be safe for concurrent calls.
type ProgressFunc func(ProgressEvent)

// progress counts bytes read across every file of a VFS and calls fn once
// per completed chunk. Partial chunks carry over between reads.
type progress struct {
	fn    ProgressFunc
	chunk int64

	mu      sync.Mutex
	pending int64 // bytes read since the last callback
	total   int64
}

func newProgress(fn ProgressFunc, chunkSize int) *progress {
	if fn == nil || chunkSize <= 0 {
		return nil
	}
	return &progress{fn: fn, chunk: int64(chunkSize)}
}

// budget returns how many bytes may be read before the next callback is due.
func (p *progress) budget() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return int(p.chunk - p.pending)
}

func (p *progress) add(name string, n int) {
	if n <= 0 {
		return
	}
	p.mu.Lock()
	p.pending += int64(n)
	p.total += int64(n)
	fire := 0
	for p.pending >= p.chunk {
		p.pending -= p.chunk
		fire++
	}
	total := p.total
	p.mu.Unlock()

	for range fire {
		p.fn(ProgressEvent{Path: name, BytesRead: total})
	}
}
