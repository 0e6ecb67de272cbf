package datfs

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"

	"github.com/go-git/go-billy/v5"

	"github.com/meigma/datfs/internal/fmode"
	"github.com/meigma/datfs/internal/pathutil"
)

const filePerm = 0o644

// Open opens name with an fopen-style mode ("rb", "rt", "wb", "a+", ...).
//
// Absolute names (drive letter, or a leading '/', '\' or '.') are opened
// directly on the host. Relative names are tried against each mount point
// from the head of the chain: archives look the name up in their index and
// directories join it onto their path. The first success wins. If no mount
// point can open the name, it is opened relative to the working directory.
//
// Host files that start with the gzip magic bytes are decompressed
// transparently when opened for reading.
func (v *VFS) Open(name, mode string) (*File, error) {
	m, err := fmode.Parse(mode)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if name == "" {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}

	if pathutil.IsAbsolute(name) {
		return v.openHost(name, pathutil.Native(name), m)
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	for _, mp := range v.mounts {
		if mp.archive != nil {
			s, err := mp.archive.OpenStream(name, mode)
			if err == nil {
				v.log().Debug("open resolved", "path", name, "archive", mp.path)
				return newFile(v, name, m, BackendArchive, &entryBackend{s: s}), nil
			}
			if !errors.Is(err, fs.ErrNotExist) {
				v.log().Debug("archive open failed", "path", name, "archive", mp.path, "error", err)
			}
			continue
		}

		host := pathutil.Native(pathutil.Join(mp.path, name))
		f, err := v.openHost(name, host, m)
		if err == nil {
			v.log().Debug("open resolved", "path", name, "dir", mp.path)
			return f, nil
		}
	}

	return v.openHost(name, pathutil.Native(name), m)
}

// openHost opens host on the host filesystem and sniffs it for gzip.
func (v *VFS) openHost(name, host string, m fmode.Mode) (*File, error) {
	hf, err := v.fsys.OpenFile(v.hostPath(host), m.Flags(), filePerm)
	if err != nil {
		return nil, &fs.PathError{Op: "open", Path: name, Err: unwrapPathError(err)}
	}
	if !m.Readable() {
		return newFile(v, name, m, BackendPlain, newPlainBackend(hf, m)), nil
	}

	gz, err := sniffGzip(hf)
	if err != nil {
		hf.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	if !gz {
		return newFile(v, name, m, BackendPlain, newPlainBackend(hf, m)), nil
	}
	if !m.ReadOnly() {
		hf.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: fmt.Errorf("%w: gzip files are read-only", ErrUnsupported)}
	}

	b, err := newGzipBackend(hf, m)
	if err != nil {
		hf.Close()
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return newFile(v, name, m, BackendGzip, b), nil
}

// sniffGzip reports whether f starts with the gzip magic bytes and leaves
// the offset at the start of the file.
func sniffGzip(f billy.File) (bool, error) {
	var magic [2]byte
	n, err := io.ReadFull(f, magic[:])
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, err
	}
	return n == len(magic) && bytes.Equal(magic[:], gzipMagic), nil
}
