// Package fmode parses fopen-style mode strings such as "rb", "rt" and "w+".
package fmode

import (
	"errors"
	"fmt"
	"os"
)

// ErrInvalid is returned for mode strings that fopen would reject.
var ErrInvalid = errors.New("invalid file mode")

// Mode is a parsed mode string.
type Mode struct {
	// Read, Write and Append record the leading 'r', 'w' or 'a'.
	Read   bool
	Write  bool
	Append bool

	// Update is set by '+'.
	Update bool

	// Text is set by 't' and enables "\r\n" collapsing on reads.
	Text bool

	raw string
}

// Parse parses s. The first character selects read, write or append; the
// remaining characters may be any of 'b', 't' and '+'.
func Parse(s string) (Mode, error) {
	if s == "" {
		return Mode{}, fmt.Errorf("%w: empty", ErrInvalid)
	}
	m := Mode{raw: s}
	switch s[0] {
	case 'r':
		m.Read = true
	case 'w':
		m.Write = true
	case 'a':
		m.Append = true
	default:
		return Mode{}, fmt.Errorf("%w: %q", ErrInvalid, s)
	}
	for _, c := range s[1:] {
		switch c {
		case '+':
			m.Update = true
		case 't':
			m.Text = true
		case 'b':
		default:
			return Mode{}, fmt.Errorf("%w: %q", ErrInvalid, s)
		}
	}
	return m, nil
}

// Readable reports whether the mode permits reads.
func (m Mode) Readable() bool {
	return m.Read || m.Update
}

// Writable reports whether the mode permits writes.
func (m Mode) Writable() bool {
	return m.Write || m.Append || m.Update
}

// ReadOnly reports whether the mode is a plain read mode ("r", "rb", "rt").
func (m Mode) ReadOnly() bool {
	return m.Read && !m.Update
}

// Flags returns the os.OpenFile flags equivalent to the mode.
func (m Mode) Flags() int {
	switch {
	case m.Read && m.Update:
		return os.O_RDWR
	case m.Read:
		return os.O_RDONLY
	case m.Write && m.Update:
		return os.O_RDWR | os.O_CREATE | os.O_TRUNC
	case m.Write:
		return os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	case m.Append && m.Update:
		return os.O_RDWR | os.O_CREATE | os.O_APPEND
	default:
		return os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
}

// String returns the mode string Parse was given.
func (m Mode) String() string {
	return m.raw
}
