package archive

import (
	"iter"

	"github.com/meigma/datfs/internal/pathutil"
)

// Finder is a resumable cursor over entries matching a glob pattern.
// Entries are scanned in on-disk order.
type Finder struct {
	archive *Archive
	matcher *pathutil.Matcher
	next    int // index of the next entry to examine
	current *Entry
}

// FindFirst starts a search for entries whose paths match pattern,
// ignoring ASCII case and separator style. It returns false when nothing
// matches or the pattern is invalid.
func (a *Archive) FindFirst(pattern string) (*Finder, bool) {
	m, err := pathutil.Compile(pattern)
	if err != nil {
		a.log().Debug("invalid find pattern", "pattern", pattern, "error", err)
		return nil, false
	}
	f := &Finder{archive: a, matcher: m}
	if !f.Next() {
		return nil, false
	}
	return f, true
}

// Next advances to the following match.
func (f *Finder) Next() bool {
	entries := f.archive.entries
	for f.next < len(entries) {
		e := &entries[f.next]
		f.next++
		if f.matcher.Match(e.Path) {
			f.current = e
			return true
		}
	}
	f.current = nil
	return false
}

// Name returns the path of the current match as stored in the archive.
func (f *Finder) Name() string {
	if f.current == nil {
		return ""
	}
	return f.current.Path
}

// Entry returns the current match.
func (f *Finder) Entry() Entry {
	if f.current == nil {
		return Entry{}
	}
	return *f.current
}

// Pattern returns the pattern the search was started with.
func (f *Finder) Pattern() string {
	return f.matcher.String()
}

// Match returns an iterator over entries whose paths match pattern.
func (a *Archive) Match(pattern string) iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		f, ok := a.FindFirst(pattern)
		for ok {
			if !yield(f.Entry()) {
				return
			}
			ok = f.Next()
		}
	}
}
