package datfs

import (
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"golang.org/x/sync/singleflight"

	"github.com/meigma/datfs/cache"
	"github.com/meigma/datfs/internal/archive"
)

// VFS resolves paths against an ordered chain of mount points.
//
// All methods are safe for concurrent use. Files returned by Open are not.
type VFS struct {
	fsys       billy.Filesystem
	logger     *slog.Logger
	cache      cache.Cache        // nil = no caching
	readGroup  singleflight.Group // zero value is valid
	progress   *progress          // nil = no progress reporting
	refillSize int

	prefetchWorkers int  // 0 = auto, <0 = serial, >0 = fixed count
	resolveCwd      bool // relative host paths are made absolute

	mu     sync.Mutex
	mounts []*mount // chain head first
}

// New creates a VFS with an empty mount chain.
func New(opts ...Option) *VFS {
	v := &VFS{
		refillSize: archive.DefaultRefillBufferSize,
	}
	for _, opt := range opts {
		opt(v)
	}
	if v.fsys == nil {
		v.fsys = osfs.New("/")
		v.resolveCwd = true
	}
	return v
}

// Filesystem returns the host filesystem the VFS resolves paths on.
func (v *VFS) Filesystem() billy.Filesystem {
	return v.fsys
}

// hostPath maps a native host path onto v.fsys. The default filesystem is
// rooted at "/", so relative paths are resolved against the working
// directory.
func (v *VFS) hostPath(path string) string {
	if !v.resolveCwd {
		return path
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return abs
}

func (v *VFS) log() *slog.Logger {
	if v.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return v.logger
}
