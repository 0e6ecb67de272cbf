package datfs

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"

	"github.com/opencontainers/go-digest"
)

// FileSize returns the size of name as reported by File.Size.
func (v *VFS) FileSize(name string) (int64, error) {
	f, err := v.Open(name, "rb")
	if err != nil {
		return 0, err
	}
	defer f.Close()
	return f.Size()
}

// ReadFile returns the whole contents of name.
//
// With a cache configured, compressed archive entries are served from the
// cache after the first read and concurrent reads of the same entry are
// deduplicated.
func (v *VFS) ReadFile(name string) ([]byte, error) {
	f, err := v.Open(name, "rb")
	if err != nil {
		return nil, err
	}
	defer f.Close()

	key, size, ok := f.cacheKey()
	if v.cache == nil || !ok {
		return f.readAll()
	}

	if content, hit := v.readCached(key, size); hit {
		v.log().Debug("readfile cache hit", "path", name)
		return content, nil
	}
	v.log().Debug("readfile cache miss", "path", name)

	result, err, _ := v.readGroup.Do(key.String(), func() (any, error) {
		// Double-check cache
		if content, hit := v.readCached(key, size); hit {
			return content, nil
		}
		content, err := f.readAll()
		if err != nil {
			return nil, err
		}
		if putErr := v.cache.Put(key, newBytesFile(name, content)); putErr != nil {
			v.log().Warn("cache put failed", "path", name, "error", putErr)
		}
		return content, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]byte), nil //nolint:errcheck // type assertion always succeeds when err is nil
}

// readCached returns cached content for key. Entries whose length does not
// match the archive index are dropped.
func (v *VFS) readCached(key digest.Digest, size int64) ([]byte, bool) {
	cf, ok := v.cache.Get(key)
	if !ok {
		return nil, false
	}
	defer cf.Close()
	content, err := io.ReadAll(cf)
	if err != nil || int64(len(content)) != size {
		_ = v.cache.Delete(key) //nolint:errcheck // best-effort cache cleanup on size mismatch
		return nil, false
	}
	return content, true
}

// readAll reads the rest of f. Files with a known size are read in one
// request; gzip files are read until the end of the stream.
func (f *File) readAll() ([]byte, error) {
	if f.kind == BackendGzip {
		return io.ReadAll(f)
	}
	size, err := f.Size()
	if err != nil {
		return nil, err
	}
	content := make([]byte, size)
	n, err := io.ReadFull(f, content)
	if err != nil {
		return nil, f.pathError("read", fmt.Errorf("read %d of %d bytes: %w", n, size, err))
	}
	return content, nil
}

// bytesFile wraps a bytes.Reader to implement fs.File for cache Put.
type bytesFile struct {
	*bytes.Reader
	name string
	size int64
}

func newBytesFile(name string, content []byte) *bytesFile {
	return &bytesFile{Reader: bytes.NewReader(content), name: name, size: int64(len(content))}
}

func (f *bytesFile) Stat() (fs.FileInfo, error) {
	return &fileInfo{name: f.name, size: f.size}, nil
}

func (f *bytesFile) Close() error { return nil }
