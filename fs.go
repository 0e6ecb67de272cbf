package datfs

import "io/fs"

// Interface compliance.
var (
	_ fs.FS         = (*ioFS)(nil)
	_ fs.ReadFileFS = (*ioFS)(nil)
	_ fs.StatFS     = (*ioFS)(nil)
)

// FS returns an io/fs view of the VFS. Names must satisfy fs.ValidPath and
// are resolved through the mount chain in binary read mode.
func (v *VFS) FS() fs.FS {
	return &ioFS{v: v}
}

type ioFS struct {
	v *VFS
}

// Open implements fs.FS.
func (f *ioFS) Open(name string) (fs.File, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "open", Path: name, Err: fs.ErrInvalid}
	}
	file, err := f.v.Open(name, "rb")
	if err != nil {
		return nil, err
	}
	return file, nil
}

// ReadFile implements fs.ReadFileFS.
func (f *ioFS) ReadFile(name string) ([]byte, error) {
	if !fs.ValidPath(name) {
		return nil, &fs.PathError{Op: "readfile", Path: name, Err: fs.ErrInvalid}
	}
	return f.v.ReadFile(name)
}

// Stat implements fs.StatFS.
func (f *ioFS) Stat(name string) (fs.FileInfo, error) {
	file, err := f.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return file.Stat()
}
