package archive

import "log/slog"

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger for archive diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithRefillBufferSize sets the size of the buffer used to feed compressed
// input to the inflater and to buffer raw entry reads.
// Values below 16 are ignored. Defaults to DefaultRefillBufferSize.
func WithRefillBufferSize(n int) Option {
	return func(a *Archive) {
		if n >= minRefillBufferSize {
			a.refillSize = n
		}
	}
}
