package datfs

import (
	"bytes"
	"context"
	"fmt"
	"math"

	"github.com/opencontainers/go-digest"

	"github.com/meigma/datfs/cache"
	"github.com/meigma/datfs/internal/batch"
)

// Prefetch decompresses every compressed archive entry matching pattern
// into the cache so later ReadFile calls are served from it. It returns how
// many entries were stored and ErrNoCache when no cache is configured.
//
// Entries already cached and entries shadowed by an earlier archive are
// skipped. Cache write failures are not reported.
func (v *VFS) Prefetch(ctx context.Context, pattern string) (int, error) {
	if v.cache == nil {
		return 0, ErrNoCache
	}
	entries, err := v.archiveEntries(pattern)
	if err != nil {
		return 0, err
	}

	proc := batch.NewProcessor(batch.WithWorkers(v.prefetchWorkers))
	n, err := proc.Process(ctx, entries, &cacheSink{cache: v.cache})
	if err != nil {
		return n, fmt.Errorf("prefetch %s: %w", pattern, err)
	}
	v.log().Debug("prefetched entries", "pattern", pattern, "entries", n)
	return n, nil
}

// cacheSink implements batch.Sink for caching to a Cache.
type cacheSink struct {
	cache cache.Cache
}

// ShouldProcess returns false for stored entries and entries already cached.
func (s *cacheSink) ShouldProcess(entry *batch.Entry) bool {
	if !entry.Compressed {
		return false
	}
	f, cached := s.cache.Get(entryCacheKey(entry.Archive, entry.Path))
	if cached {
		_ = f.Close() //nolint:errcheck // read-only handle
	}
	return !cached
}

// Writer returns a Committer that buffers the entry and caches it on Commit.
func (s *cacheSink) Writer(entry *batch.Entry) (batch.Committer, error) {
	expectedSize := 0
	if entry.Size > 0 && entry.Size <= math.MaxInt {
		expectedSize = int(entry.Size)
	}
	c := &bufferCommitter{
		cache: s.cache,
		name:  entry.Path,
		key:   entryCacheKey(entry.Archive, entry.Path),
	}
	c.buf.Grow(expectedSize)
	return c, nil
}

// bufferCommitter buffers writes in memory and caches on Commit.
type bufferCommitter struct {
	cache cache.Cache
	name  string
	key   digest.Digest
	buf   bytes.Buffer
}

// Write implements io.Writer.
func (c *bufferCommitter) Write(p []byte) (int, error) {
	return c.buf.Write(p)
}

// Commit stores the buffered content in the cache.
func (c *bufferCommitter) Commit() error {
	// Cache errors are non-fatal for prefetch operations
	_ = c.cache.Put(c.key, newBytesFile(c.name, c.buf.Bytes())) //nolint:errcheck // caching is opportunistic
	return nil
}

// Discard clears the buffer.
func (c *bufferCommitter) Discard() error {
	c.buf.Reset()
	return nil
}
