// Package testutil provides archive builders and in-memory doubles for tests.
package testutil

import (
	"bytes"
	"io"
	"io/fs"
	"sync"
	"time"

	"github.com/opencontainers/go-digest"
)

// MockCache implements a basic concurrency-safe cache for tests.
type MockCache struct {
	mu   sync.RWMutex
	data map[digest.Digest][]byte
	gets int
	puts int
}

// NewMockCache constructs an empty in-memory cache.
func NewMockCache() *MockCache {
	return &MockCache{data: make(map[digest.Digest][]byte)}
}

// Get retrieves content by key.
func (c *MockCache) Get(key digest.Digest) (fs.File, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gets++
	data, ok := c.data[key]
	if !ok {
		return nil, false
	}
	return NewBytesFile(string(key), data), true
}

// Put stores content by key.
func (c *MockCache) Put(key digest.Digest, f fs.File) error {
	data, err := io.ReadAll(f)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.puts++
	c.data[key] = data
	return nil
}

// Delete removes content by key.
func (c *MockCache) Delete(key digest.Digest) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// MaxBytes reports no limit.
func (c *MockCache) MaxBytes() int64 { return 0 }

// SizeBytes returns the total stored size.
func (c *MockCache) SizeBytes() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var n int64
	for _, v := range c.data {
		n += int64(len(v))
	}
	return n
}

// Prune drops everything when targetBytes is below the stored size.
func (c *MockCache) Prune(targetBytes int64) (int64, error) {
	size := c.SizeBytes()
	if size <= targetBytes {
		return 0, nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.data)
	return size, nil
}

// Puts returns the number of Put calls.
func (c *MockCache) Puts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.puts
}

// Len returns the number of stored keys.
func (c *MockCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.data)
}

// BytesFile is an fs.File over an in-memory buffer.
type BytesFile struct {
	*bytes.Reader
	name string
	size int64
}

// NewBytesFile returns an fs.File serving data.
func NewBytesFile(name string, data []byte) *BytesFile {
	return &BytesFile{Reader: bytes.NewReader(data), name: name, size: int64(len(data))}
}

// Stat returns a minimal FileInfo.
func (f *BytesFile) Stat() (fs.FileInfo, error) {
	return bytesInfo{name: f.name, size: f.size}, nil
}

// Close is a no-op.
func (f *BytesFile) Close() error { return nil }

type bytesInfo struct {
	name string
	size int64
}

func (i bytesInfo) Name() string       { return i.name }
func (i bytesInfo) Size() int64        { return i.size }
func (i bytesInfo) Mode() fs.FileMode  { return 0o444 }
func (i bytesInfo) ModTime() time.Time { return time.Time{} }
func (i bytesInfo) IsDir() bool        { return false }
func (i bytesInfo) Sys() any           { return nil }
