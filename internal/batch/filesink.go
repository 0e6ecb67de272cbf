package batch

import (
	"errors"
	"fmt"
	"io/fs"

	securejoin "github.com/cyphar/filepath-securejoin"
	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/internal/pathutil"
)

const (
	dirPerm    = 0o755
	tempPrefix = ".datfs-"
)

// FileSink writes entries under a host directory with atomic writes.
//
// Files are written to a temporary file in the same directory,
// then renamed to the final path on Commit. This ensures that
// partially written files are never visible at the final path.
// Entry paths are resolved inside destDir; ".." elements and symlinks
// cannot escape it.
type FileSink struct {
	fsys      billy.Filesystem
	destDir   string
	overwrite bool
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// NewFileSink creates a FileSink that writes to destDir on fsys.
// Parent directories are created automatically as needed.
func NewFileSink(fsys billy.Filesystem, destDir string, opts ...FileSinkOption) *FileSink {
	s := &FileSink{
		fsys:    fsys,
		destDir: destDir,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the host path entry is written to.
func (s *FileSink) Path(entry *Entry) (string, error) {
	return securejoin.SecureJoinVFS(s.destDir, pathutil.Native(entry.Path), s.fsys)
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(entry *Entry) bool {
	if s.overwrite {
		return true
	}
	destPath, err := s.Path(entry)
	if err != nil {
		// Let Writer report the error.
		return true
	}
	_, err = s.fsys.Stat(destPath)
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer that writes to a temp file and renames on Commit.
func (s *FileSink) Writer(entry *Entry) (Committer, error) {
	destPath, err := s.Path(entry)
	if err != nil {
		return nil, fmt.Errorf("resolve path: %w", err)
	}

	// Create parent directories
	dir := s.fsys.Join(destPath, "..")
	if err := s.fsys.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create directory %s: %w", dir, err)
	}

	// Create temp file in same directory (for atomic rename)
	tempFile, err := s.fsys.TempFile(dir, tempPrefix)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}

	return &fileCommitter{
		fsys:     s.fsys,
		destPath: destPath,
		tempFile: tempFile,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	fsys     billy.Filesystem
	destPath string
	tempFile billy.File
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file and renames it to the final path.
func (c *fileCommitter) Commit() error {
	tempPath := c.tempFile.Name()

	if err := c.tempFile.Close(); err != nil {
		_ = c.fsys.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := c.fsys.Rename(tempPath, c.destPath); err != nil {
		_ = c.fsys.Remove(tempPath) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destPath, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	tempPath := c.tempFile.Name()
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.fsys.Remove(tempPath)
}
