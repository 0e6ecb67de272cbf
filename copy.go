package datfs

import (
	"fmt"
	"io"
	"io/fs"

	"github.com/klauspost/compress/gzip"

	"github.com/meigma/datfs/internal/pathutil"
)

// CopyOption configures CopyCompressed, CopyDecompressed and Extract.
type CopyOption func(*copyConfig)

type copyConfig struct {
	overwrite bool
	workers   int
}

func newCopyConfig(opts []CopyOption) copyConfig {
	cfg := copyConfig{overwrite: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

// CopyWithOverwrite controls whether an existing destination is replaced.
// By default, it is.
func CopyWithOverwrite(overwrite bool) CopyOption {
	return func(c *copyConfig) {
		c.overwrite = overwrite
	}
}

// CopyWithWorkers sets the number of workers Extract uses.
// Values < 0 force serial processing. Zero uses automatic heuristics.
// Values > 0 force a specific worker count.
func CopyWithWorkers(n int) CopyOption {
	return func(c *copyConfig) {
		c.workers = n
	}
}

// CopyDecompressed copies the host file src to dst, decompressing it if it
// is gzip-compressed. Both paths bypass the mount chain.
//
// The destination is written atomically using a temp file and rename.
func (v *VFS) CopyDecompressed(src, dst string, opts ...CopyOption) error {
	return v.copyHost("copy", src, dst, false, opts)
}

// CopyCompressed copies the host file src to dst, gzip-compressing it
// unless it already is. Both paths bypass the mount chain.
//
// The destination is written atomically using a temp file and rename.
func (v *VFS) CopyCompressed(src, dst string, opts ...CopyOption) error {
	return v.copyHost("copy", src, dst, true, opts)
}

func (v *VFS) copyHost(op, src, dst string, compress bool, opts []CopyOption) error {
	cfg := newCopyConfig(opts)

	dstPath := v.hostPath(pathutil.Native(dst))
	if !cfg.overwrite {
		if _, err := v.fsys.Stat(dstPath); err == nil {
			return &fs.PathError{Op: op, Path: dst, Err: fs.ErrExist}
		}
	}

	in, err := v.fsys.Open(v.hostPath(pathutil.Native(src)))
	if err != nil {
		return &fs.PathError{Op: op, Path: src, Err: unwrapPathError(err)}
	}
	defer in.Close()

	gz, err := sniffGzip(in)
	if err != nil {
		return &fs.PathError{Op: op, Path: src, Err: err}
	}

	var r io.Reader = in
	if gz && !compress {
		zr, err := gzip.NewReader(in)
		if err != nil {
			return &fs.PathError{Op: op, Path: src, Err: fmt.Errorf("%w: %w", ErrCodec, err)}
		}
		defer zr.Close()
		r = zr
	}

	err = v.writeAtomic(dstPath, func(w io.Writer) error {
		if compress && !gz {
			zw := gzip.NewWriter(w)
			if _, err := io.Copy(zw, r); err != nil {
				return err
			}
			return zw.Close()
		}
		_, err := io.Copy(w, r)
		return err
	})
	if err != nil {
		return &fs.PathError{Op: op, Path: dst, Err: err}
	}
	v.log().Debug("copied file", "src", src, "dst", dst, "compress", compress, "source_gzip", gz)
	return nil
}

// writeAtomic writes path through a temp file in the same directory.
func (v *VFS) writeAtomic(path string, write func(io.Writer) error) error {
	dir := v.fsys.Join(path, "..")
	if err := v.fsys.MkdirAll(dir, mountDirPerm); err != nil {
		return err
	}
	tmp, err := v.fsys.TempFile(dir, ".datfs-")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	if err := write(tmp); err != nil {
		tmp.Close()
		_ = v.fsys.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = v.fsys.Remove(tmpPath)
		return err
	}
	if err := v.fsys.Rename(tmpPath, path); err != nil {
		_ = v.fsys.Remove(tmpPath)
		return err
	}
	return nil
}
