package datfs

import (
	"errors"
	"io/fs"
	"slices"

	"github.com/meigma/datfs/internal/pathutil"
)

// EntryKind classifies a name reported by Enumerate.
type EntryKind uint8

const (
	// KindFile is a regular host file.
	KindFile EntryKind = iota
	// KindDirectory is a host directory.
	KindDirectory
	// KindArchive is an archive entry.
	KindArchive
)

func (k EntryKind) String() string {
	switch k {
	case KindFile:
		return "file"
	case KindDirectory:
		return "directory"
	case KindArchive:
		return "archive"
	default:
		return "unknown"
	}
}

// ListEntry is one name reported by Enumerate.
type ListEntry struct {
	// Name uses forward slashes. Host names carry the directory part of the
	// pattern; archive names are the stored entry paths.
	Name string
	Kind EntryKind
}

// Visitor receives matches during enumeration. Returning false stops the
// enumeration.
type Visitor func(ListEntry) bool

// Enumerate reports every name matching pattern, a glob whose final element
// may contain '*' and '?'. Matching ignores ASCII case.
//
// When the pattern is absolute only that host directory is listed.
// Otherwise each mount point is visited from the head of the chain
// (archives match the whole pattern against their entry paths,
// directories list the pattern's directory under their path), followed by
// the working directory. The same name can be reported more than once.
func (v *VFS) Enumerate(pattern string, visit Visitor) error {
	pattern = pathutil.ToSlash(pattern)
	dir, base := pathutil.Split(pattern)
	nameMatcher, err := pathutil.Compile(base)
	if err != nil {
		return &fs.PathError{Op: "enumerate", Path: pattern, Err: err}
	}

	if pathutil.IsAbsolute(pattern) {
		v.listHost(dir, dir, nameMatcher, visit)
		return nil
	}

	// Visitors may call back into the VFS, so the lock is not held while
	// enumerating.
	for _, mp := range v.snapshot() {
		if mp.archive != nil {
			for e := range mp.archive.Match(pattern) {
				if !visit(ListEntry{Name: pathutil.ToSlash(e.Path), Kind: KindArchive}) {
					return nil
				}
			}
			continue
		}
		if v.listHost(pathutil.Join(mp.path, dir), dir, nameMatcher, visit) {
			return nil
		}
	}

	v.listHost(dir, dir, nameMatcher, visit)
	return nil
}

// listHost reports the matching names in the host directory hostDir,
// prefixed with prefix, and returns true if the visitor stopped. A
// directory that cannot be read lists nothing.
func (v *VFS) listHost(hostDir, prefix string, m *pathutil.Matcher, visit Visitor) bool {
	if hostDir == "" {
		hostDir = "."
	}
	infos, err := v.fsys.ReadDir(v.hostPath(pathutil.Native(hostDir)))
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			v.log().Debug("list directory failed", "dir", hostDir, "error", err)
		}
		return false
	}
	for _, info := range infos {
		name := info.Name()
		if name == "." || name == ".." || !m.Match(name) {
			continue
		}
		kind := KindFile
		if info.IsDir() {
			kind = KindDirectory
		}
		if !visit(ListEntry{Name: prefix + name, Kind: kind}) {
			return true
		}
	}
	return false
}

// List returns the names of files and archive entries matching pattern,
// skipping directories. Names appear in enumeration order and may repeat.
func (v *VFS) List(pattern string) ([]string, error) {
	var names []string
	err := v.Enumerate(pattern, func(e ListEntry) bool {
		if e.Kind != KindDirectory {
			names = append(names, e.Name)
		}
		return true
	})
	if err != nil {
		return nil, err
	}
	return names, nil
}

// FileNameList returns the base names of files matching pattern, sorted
// case-insensitively with duplicates removed. When pattern starts with '*'
// only names without a directory part are kept, which drops archive entries
// in subdirectories that a leading '*' would otherwise match.
func (v *VFS) FileNameList(pattern string) ([]string, error) {
	names, err := v.List(pattern)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(names, pathutil.Compare)
	names = slices.CompactFunc(names, pathutil.EqualFold)

	wildcard := len(pattern) > 0 && pattern[0] == '*'
	out := make([]string, 0, len(names))
	for _, name := range names {
		dir, base := pathutil.Split(name)
		if wildcard && dir != "" {
			continue
		}
		out = append(out, base)
	}
	return out, nil
}
