package datfs

import (
	"context"
	"fmt"

	"github.com/meigma/datfs/internal/batch"
	"github.com/meigma/datfs/internal/pathutil"
)

// Extract writes every archive entry matching pattern below destDir on the
// host filesystem and returns how many files were written.
//
// Entries are taken from the archive mount points only, head first. When
// several archives hold the same path only the one that Open would serve is
// extracted. Files are written atomically; entry paths cannot escape
// destDir. Existing files are replaced unless CopyWithOverwrite(false) is
// given, in which case they are skipped.
func (v *VFS) Extract(ctx context.Context, pattern, destDir string, opts ...CopyOption) (int, error) {
	cfg := newCopyConfig(opts)
	entries, err := v.archiveEntries(pattern)
	if err != nil {
		return 0, err
	}

	sink := batch.NewFileSink(v.fsys, v.hostPath(pathutil.Native(destDir)), batch.WithOverwrite(cfg.overwrite))
	proc := batch.NewProcessor(batch.WithWorkers(cfg.workers))
	n, err := proc.Process(ctx, entries, sink)
	if err != nil {
		return n, fmt.Errorf("extract %s: %w", pattern, err)
	}
	v.log().Debug("extracted entries", "pattern", pattern, "dest", destDir, "files", n)
	return n, nil
}

// archiveEntries returns the archive entries matching pattern across the
// mount chain. Paths shadowed by an earlier archive are left out.
func (v *VFS) archiveEntries(pattern string) ([]*batch.Entry, error) {
	pattern = pathutil.ToSlash(pattern)
	if _, err := pathutil.Compile(pattern); err != nil {
		return nil, fmt.Errorf("match %s: %w", pattern, err)
	}

	seen := make(map[string]struct{})
	var entries []*batch.Entry
	for _, mp := range v.snapshot() {
		if mp.archive == nil {
			continue
		}
		for e := range mp.archive.Match(pattern) {
			key := pathutil.Key(e.Path)
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			entries = append(entries, &batch.Entry{Entry: e, Archive: mp.archive})
		}
	}
	return entries, nil
}
