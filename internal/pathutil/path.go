// Package pathutil provides path manipulation for the mixed-separator,
// case-insensitive paths used by mount points and archive indexes.
package pathutil

import (
	"path/filepath"
	"strings"

	"github.com/gobwas/glob"
)

// ToSlash converts backslash separators to forward slashes.
func ToSlash(path string) string {
	return strings.ReplaceAll(path, `\`, "/")
}

// Native converts a DOS-style path into a host path.
func Native(path string) string {
	return filepath.FromSlash(ToSlash(path))
}

// Key returns the comparison key for path: forward slashes and ASCII lower case.
func Key(path string) string {
	b := []byte(ToSlash(path))
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// EqualFold reports whether a and b name the same path, ignoring ASCII case
// and separator style.
func EqualFold(a, b string) bool {
	return Key(a) == Key(b)
}

// Compare orders paths case-insensitively.
func Compare(a, b string) int {
	return strings.Compare(Key(a), Key(b))
}

// Split splits path after its final separator. The returned dir keeps the
// trailing separator; dir is empty when path has no directory component.
func Split(path string) (dir, file string) {
	i := strings.LastIndexAny(path, `/\`)
	return path[:i+1], path[i+1:]
}

// IsAbsolute reports whether path bypasses the mount chain: it carries a
// drive letter, or its directory component begins with '/', '\' or '.'.
func IsAbsolute(path string) bool {
	if len(path) >= 2 && path[1] == ':' && isLetter(path[0]) {
		return true
	}
	dir, _ := Split(path)
	if dir == "" {
		return false
	}
	switch dir[0] {
	case '/', '\\', '.':
		return true
	}
	return false
}

func isLetter(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

// Join joins a mount directory and a relative name using forward slashes.
func Join(dir, name string) string {
	if dir == "" {
		return ToSlash(name)
	}
	return strings.TrimRight(ToSlash(dir), "/") + "/" + ToSlash(name)
}

// Base returns the last element of a path with either separator style.
// If path is empty or ".", it returns ".".
func Base(path string) string {
	if path == "" || path == "." {
		return "."
	}
	path = strings.TrimRight(path, `/\`)
	if i := strings.LastIndexAny(path, `/\`); i >= 0 {
		return path[i+1:]
	}
	return path
}

// Matcher matches names against a case-insensitive glob pattern.
// '*' and '?' match any character including separators.
type Matcher struct {
	pattern string
	g       glob.Glob
}

// Compile compiles pattern into a Matcher.
func Compile(pattern string) (*Matcher, error) {
	g, err := glob.Compile(Key(pattern))
	if err != nil {
		return nil, err
	}
	return &Matcher{pattern: pattern, g: g}, nil
}

// Match reports whether name matches the pattern.
func (m *Matcher) Match(name string) bool {
	return m.g.Match(Key(name))
}

// String returns the source pattern.
func (m *Matcher) String() string {
	return m.pattern
}

// Match is a convenience wrapper that compiles pattern and matches name.
// Invalid patterns match nothing.
func Match(pattern, name string) bool {
	m, err := Compile(pattern)
	if err != nil {
		return false
	}
	return m.Match(name)
}
