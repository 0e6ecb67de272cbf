// Package cache provides storage for decompressed archive entry content.
//
// This package is an optional enhancement to the datfs mount chain. When a
// cache is configured, whole-file reads of compressed archive entries are
// served from the cache after the first read, skipping inflation.
//
// Keys are digests derived from the archive identity and the entry path, so
// a rebuilt archive (different size or modification time) never serves
// stale content.
package cache
