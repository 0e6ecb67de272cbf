// Package archive reads packed game-data archives.
//
// An archive ends with an 8-byte footer holding two little-endian int32
// values: the size of the entry table and the size of the archive content
// (data section, entry table and footer). The entry table precedes the
// footer and starts with an int32 entry count. Each record is
//
//	int32  path length
//	bytes  path (backslash-separated, no terminator)
//	uint8  1 if the data is zlib-compressed
//	int32  uncompressed size
//	int32  stored size
//	int32  offset of the data, relative to the start of the data section
//
// The data section starts at file size minus content size, which lets an
// archive be appended to another file.
//
// Open parses the entry table once; OpenStream then reads individual
// entries through a Stream, inflating compressed entries incrementally.
package archive
