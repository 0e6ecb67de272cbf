package datfs

import (
	"log/slog"

	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/cache"
)

// Option configures a VFS.
type Option func(*VFS)

// WithLogger sets the logger for mount and resolution diagnostics.
// Defaults to discarding all output.
func WithLogger(logger *slog.Logger) Option {
	return func(v *VFS) {
		v.logger = logger
	}
}

// WithFilesystem sets the host filesystem that archives, mount directories
// and fallback paths are resolved on. Defaults to the operating system's
// filesystem relative to the working directory.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(v *VFS) {
		v.fsys = fsys
	}
}

// WithCache enables caching of decompressed archive entries.
//
// When enabled, ReadFile serves compressed entries from the cache after the
// first read. Concurrent reads of the same entry are deduplicated.
func WithCache(c cache.Cache) Option {
	return func(v *VFS) {
		v.cache = c
	}
}

// WithReadProgress installs fn to be called each time another chunkSize
// bytes have been read through File.Read or File.ReadItems, across all
// files. A nil fn or a chunkSize <= 0 disables progress reporting.
func WithReadProgress(fn ProgressFunc, chunkSize int) Option {
	return func(v *VFS) {
		v.progress = newProgress(fn, chunkSize)
	}
}

// WithRefillBufferSize sets the buffer size used to feed compressed archive
// data to the inflater. Defaults to 1 KiB.
func WithRefillBufferSize(n int) Option {
	return func(v *VFS) {
		v.refillSize = n
	}
}

// WithPrefetchWorkers sets the number of workers Prefetch uses.
// Values < 0 force serial processing. Zero uses automatic heuristics.
func WithPrefetchWorkers(n int) Option {
	return func(v *VFS) {
		v.prefetchWorkers = n
	}
}
