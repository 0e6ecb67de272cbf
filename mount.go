package datfs

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"strings"

	"github.com/meigma/datfs/internal/archive"
	"github.com/meigma/datfs/internal/pathutil"
)

const mountDirPerm = 0o755

// mount is one element of the mount chain. archive is nil for directory
// mounts.
type mount struct {
	path    string
	archive *archive.Archive
}

// MountInfo describes a mount point.
type MountInfo struct {
	// Path is the path the mount point was registered with.
	Path string

	// Archive reports whether the mount point is an archive rather than a
	// host directory.
	Archive bool

	// Entries is the number of archive entries; zero for directories.
	Entries int
}

// Mount adds path to the head of the mount chain.
//
// If path already names a mount point (ignoring ASCII case), that mount
// point is moved to the head instead. Otherwise path is opened as an
// archive; failing that it is used as a host directory, which is created
// if it does not exist. Nothing is registered when all three fail.
func (v *VFS) Mount(path string) error {
	if path == "" {
		return &fs.PathError{Op: "mount", Path: path, Err: fs.ErrInvalid}
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.mountLocked(path)
}

func (v *VFS) mountLocked(path string) error {
	for i, m := range v.mounts {
		if !pathutil.EqualFold(m.path, path) {
			continue
		}
		if i > 0 {
			v.mounts = slices.Delete(v.mounts, i, i+1)
			v.mounts = slices.Insert(v.mounts, 0, m)
			v.log().Debug("mount promoted", "path", m.path, "from", i)
		}
		return nil
	}

	native := v.hostPath(pathutil.Native(path))
	a, archiveErr := archive.Open(v.fsys, native,
		archive.WithLogger(v.logger),
		archive.WithRefillBufferSize(v.refillSize),
	)
	if archiveErr == nil {
		v.mounts = slices.Insert(v.mounts, 0, &mount{path: path, archive: a})
		v.log().Debug("mounted archive", "path", path, "entries", a.Len())
		return nil
	}

	info, statErr := v.fsys.Stat(native)
	switch {
	case statErr == nil && info.IsDir():
		v.log().Debug("mounted directory", "path", path)
	case statErr == nil:
		// An existing file that is not a valid archive.
		return &fs.PathError{Op: "mount", Path: path, Err: unwrapPathError(archiveErr)}
	default:
		if err := v.fsys.MkdirAll(native, mountDirPerm); err != nil {
			return &fs.PathError{Op: "mount", Path: path, Err: err}
		}
		v.log().Info("created mount directory", "path", path)
	}
	v.mounts = slices.Insert(v.mounts, 0, &mount{path: path})
	return nil
}

func unwrapPathError(err error) error {
	var pathErr *fs.PathError
	if errors.As(err, &pathErr) {
		return pathErr.Err
	}
	return err
}

// ReopenAll closes every mount point and then mounts each element of the
// ';'-separated list in order. Empty elements are skipped. It stops at the
// first element that cannot be mounted; elements mounted before it stay
// mounted.
func (v *VFS) ReopenAll(paths string) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	closeErr := v.closeAllLocked()
	for p := range strings.SplitSeq(paths, ";") {
		if p == "" {
			continue
		}
		if err := v.mountLocked(p); err != nil {
			return errors.Join(closeErr, fmt.Errorf("reopen %q: %w", paths, err))
		}
	}
	return closeErr
}

// Mounts returns the mount chain, head first.
func (v *VFS) Mounts() []MountInfo {
	v.mu.Lock()
	defer v.mu.Unlock()

	infos := make([]MountInfo, 0, len(v.mounts))
	for _, m := range v.mounts {
		info := MountInfo{Path: m.path}
		if m.archive != nil {
			info.Archive = true
			info.Entries = m.archive.Len()
		}
		infos = append(infos, info)
	}
	return infos
}

// Close unmounts everything, closing every archive and any entry streams
// still open on them. The VFS stays usable and can be mounted again.
func (v *VFS) Close() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.closeAllLocked()
}

func (v *VFS) closeAllLocked() error {
	var errs []error
	for _, m := range v.mounts {
		if m.archive == nil {
			continue
		}
		if err := m.archive.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", m.path, err))
		}
	}
	v.mounts = nil
	return errors.Join(errs...)
}

// snapshot returns a copy of the mount chain for callers that must not hold
// the lock while calling out.
func (v *VFS) snapshot() []*mount {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.mounts)
}
