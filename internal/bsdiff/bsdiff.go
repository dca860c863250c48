// Package bsdiff implements the bsdiff-1 binary delta wire format
// (create and apply), adapted from the teacher's vendored
// github.com/inconshreveable/go-update/internal/binarydist package,
// itself a port of Colin Percival's bsdiff (http://www.daemonology.net/bsdiff/).
//
// Patch layout (§4.4 of the specification):
//
//	offset  size  meaning
//	0       8     magic "BSDIFF40"
//	8       8     length of compressed control block (signed, sign-magnitude LE)
//	16      8     length of compressed diff block
//	24      8     length of the new file, in bytes
//	32      X     bzip2(control block)
//	32+X    Y     bzip2(diff block)
//	32+X+Y  ...   bzip2(extra/copy block)
//
// The control block is a sequence of (add, copy, seek) triples, each
// three sign-magnitude little-endian int64s.
package bsdiff

var magic = [8]byte{'B', 'S', 'D', 'I', 'F', 'F', '4', '0'}

const headerLen = 32

type header struct {
	Magic   [8]byte
	CtrlLen int64
	DiffLen int64
	NewSize int64
}
