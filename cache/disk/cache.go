// Package disk implements cache.Cache on a billy filesystem.
package disk

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/go-git/go-billy/v5"
	"github.com/go-git/go-billy/v5/osfs"
	"github.com/opencontainers/go-digest"
)

const (
	defaultShardPrefixLen = 2
	defaultDirPerm        = 0o700

	tempPrefix = "cache-"
)

// Cache implements cache.Cache using a directory tree.
// Files are stored under dir, optionally sharded by key prefix.
// The cache is safe for concurrent use.
type Cache struct {
	fsys           billy.Filesystem // host filesystem holding dir
	dir            string           // root directory for cached files
	shardPrefixLen int              // number of hex chars for subdirectory sharding
	dirPerm        os.FileMode      // permissions for created directories
	maxBytes       int64            // maximum cache size (0 = unlimited)
	bytes          atomic.Int64     // current total size of cached files
	pruneMu        sync.Mutex       // serializes prune operations
}

// Option configures a disk cache.
type Option func(*Cache)

// WithShardPrefixLen sets the number of hex characters used for sharding.
// Use 0 to disable sharding. Defaults to 2.
func WithShardPrefixLen(n int) Option {
	return func(c *Cache) {
		c.shardPrefixLen = n
	}
}

// WithDirPerm sets the directory permissions used for cache directories.
func WithDirPerm(mode os.FileMode) Option {
	return func(c *Cache) {
		c.dirPerm = mode
	}
}

// WithMaxBytes sets the maximum cache size in bytes.
// Values < 0 are invalid. Use 0 to disable the limit.
func WithMaxBytes(n int64) Option {
	return func(c *Cache) {
		c.maxBytes = n
	}
}

// WithFilesystem stores the cache on fsys instead of the host filesystem.
func WithFilesystem(fsys billy.Filesystem) Option {
	return func(c *Cache) {
		c.fsys = fsys
	}
}

// New creates a cache rooted at dir.
func New(dir string, opts ...Option) (*Cache, error) {
	if dir == "" {
		return nil, errors.New("cache dir is empty")
	}
	c := &Cache{
		dir:            dir,
		shardPrefixLen: defaultShardPrefixLen,
		dirPerm:        defaultDirPerm,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.fsys == nil {
		// The host filesystem is rooted at "/", so dir must be absolute.
		abs, err := filepath.Abs(dir)
		if err != nil {
			return nil, fmt.Errorf("resolve cache dir: %w", err)
		}
		c.fsys = osfs.New("/")
		c.dir = abs
	}
	if c.shardPrefixLen < 0 {
		return nil, errors.New("shard prefix length must be >= 0")
	}
	if c.maxBytes < 0 {
		return nil, errors.New("max bytes must be >= 0")
	}
	if err := c.fsys.MkdirAll(c.dir, c.dirPerm); err != nil {
		return nil, err
	}
	size, err := dirSize(c.fsys, c.dir)
	if err != nil {
		return nil, err
	}
	c.bytes.Store(size)
	return c, nil
}

// Get returns an fs.File for reading cached content.
// Returns nil, false if the content is not cached.
func (c *Cache) Get(key digest.Digest) (fs.File, bool) {
	path, err := c.path(key)
	if err != nil {
		return nil, false
	}
	f, err := c.fsys.Open(path)
	if err != nil {
		return nil, false
	}
	info, err := c.fsys.Stat(path)
	if err != nil {
		f.Close()
		return nil, false
	}
	return &cachedFile{File: f, info: info}, true
}

// Put stores content by reading from the provided fs.File.
// The cache reads the file to completion; caller still owns/closes the file.
func (c *Cache) Put(key digest.Digest, f fs.File) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	if _, statErr := c.fsys.Stat(path); statErr == nil {
		return nil
	}

	dir := c.shardDir(key)
	if mkdirErr := c.fsys.MkdirAll(dir, c.dirPerm); mkdirErr != nil {
		return mkdirErr
	}

	tmp, err := c.fsys.TempFile(dir, tempPrefix)
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	written, err := io.Copy(tmp, f)
	if err != nil {
		tmp.Close()
		_ = c.fsys.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = c.fsys.Remove(tmpPath)
		return err
	}

	if ok, err := c.ensureCapacity(written); err != nil {
		_ = c.fsys.Remove(tmpPath)
		return err
	} else if !ok {
		_ = c.fsys.Remove(tmpPath)
		return nil
	}

	if err := c.fsys.Rename(tmpPath, path); err != nil {
		_ = c.fsys.Remove(tmpPath)
		if _, statErr := c.fsys.Stat(path); statErr == nil {
			return nil
		}
		return err
	}
	c.bytes.Add(written)
	return nil
}

// Delete removes cached content for the given key.
func (c *Cache) Delete(key digest.Digest) error {
	path, err := c.path(key)
	if err != nil {
		return err
	}
	info, statErr := c.fsys.Stat(path)
	if statErr != nil {
		if errors.Is(statErr, os.ErrNotExist) {
			return nil
		}
		return statErr
	}
	if err := c.fsys.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	c.bytes.Add(-info.Size())
	return nil
}

// MaxBytes returns the configured cache size limit (0 = unlimited).
func (c *Cache) MaxBytes() int64 {
	return c.maxBytes
}

// SizeBytes returns the current cache size in bytes.
func (c *Cache) SizeBytes() int64 {
	return c.bytes.Load()
}

// Prune removes cached entries until the cache is at or below targetBytes.
func (c *Cache) Prune(targetBytes int64) (int64, error) {
	if targetBytes < 0 {
		targetBytes = 0
	}
	c.pruneMu.Lock()
	defer c.pruneMu.Unlock()

	freed, remaining, err := pruneDir(c.fsys, c.dir, targetBytes)
	if err != nil {
		return 0, err
	}
	c.bytes.Store(remaining)
	return freed, nil
}

func (c *Cache) path(key digest.Digest) (string, error) {
	if err := key.Validate(); err != nil {
		return "", fmt.Errorf("invalid cache key %q: %w", key, err)
	}
	return c.fsys.Join(c.shardDir(key), key.Encoded()), nil
}

func (c *Cache) shardDir(key digest.Digest) string {
	encoded := key.Encoded()
	base := c.fsys.Join(c.dir, key.Algorithm().String())
	if c.shardPrefixLen <= 0 {
		return base
	}
	prefixLen := min(c.shardPrefixLen, len(encoded))
	return c.fsys.Join(base, encoded[:prefixLen])
}

func (c *Cache) ensureCapacity(need int64) (bool, error) {
	if c.maxBytes <= 0 {
		return true, nil
	}
	if need > c.maxBytes {
		return false, nil
	}
	if c.SizeBytes()+need <= c.maxBytes {
		return true, nil
	}
	if _, err := c.Prune(c.maxBytes - need); err != nil {
		return false, err
	}
	return c.SizeBytes()+need <= c.maxBytes, nil
}

// cachedFile adapts a billy.File to fs.File.
type cachedFile struct {
	billy.File
	info os.FileInfo
}

func (f *cachedFile) Stat() (fs.FileInfo, error) {
	return f.info, nil
}
