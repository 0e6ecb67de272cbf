package datfs

import (
	"errors"

	"github.com/meigma/datfs/internal/archive"
	"github.com/meigma/datfs/internal/fmode"
)

// Sentinel errors.
var (
	// ErrFormat is returned when an archive's footer or entry table is malformed.
	ErrFormat = archive.ErrFormat

	// ErrCodec is returned when compressed data cannot be inflated.
	ErrCodec = archive.ErrCodec

	// ErrUnsupported is returned for operations a backend cannot perform,
	// such as writing to an archive entry.
	ErrUnsupported = errors.ErrUnsupported

	// ErrInvalidMode is returned for malformed mode strings.
	ErrInvalidMode = fmode.ErrInvalid

	// ErrNoCache is returned by Prefetch when the VFS has no cache.
	ErrNoCache = errors.New("datfs: no cache configured")
)
