// Package datfs provides a transparent virtual filesystem over packed game
// archives, host directories and gzip-compressed files.
//
// A [VFS] keeps an ordered chain of mount points. Each mount point is either
// an archive (see the archive layout in internal/archive) or a host
// directory. Relative paths resolve against the chain head first; the first
// mount point that can open the path wins, and the current working
// directory is the final fallback. Paths with a drive letter or a leading
// '/', '\' or '.' bypass the chain.
//
// Every open returns a [File]. A File reads archive entries (inflating
// compressed ones on the fly), plain host files and gzip files through the
// same API, including typed big-endian reads and writes and text-mode
// "\r\n" collapsing.
//
// # Quick Start
//
// Mount a patch directory over the game archives and read a message file:
//
//	v := datfs.New()
//	defer v.Close()
//	if err := v.ReopenAll("master.dat;critter.dat;data"); err != nil {
//	    return err
//	}
//	f, err := v.Open(`text\english\game\misc.msg`, "rt")
//	if err != nil {
//	    return err
//	}
//	defer f.Close()
//	line, err := f.ReadLine(256)
//
// ReopenAll mounts its paths in order, so the last one listed ends up at the
// head of the chain and is searched first.
//
// # Enumeration
//
// [VFS.Enumerate] walks every mount point and the working directory,
// reporting names that match a glob pattern. [VFS.FileNameList] builds a
// sorted, de-duplicated name list on top of it.
//
// # Caching
//
// Use [WithCache] to keep decompressed archive entries read through
// [VFS.ReadFile]:
//
//	c, err := disk.New("/var/cache/datfs")
//	if err != nil {
//	    return err
//	}
//	v := datfs.New(datfs.WithCache(c))
//
// [VFS.Prefetch] fills the cache ahead of time for every compressed entry
// matching a pattern.
//
// # Extraction
//
// [VFS.Extract] writes matching archive entries to a host directory with a
// bounded worker pool:
//
//	n, err := v.Extract(ctx, "art/critters/*.frm", "unpacked", datfs.CopyWithWorkers(4))
package datfs
