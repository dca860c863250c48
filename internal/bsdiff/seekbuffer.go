package bsdiff

import "errors"

// seekBuffer is an in-memory io.WriteSeeker, adapted from the
// teacher's internal/binarydist seek.go, used to build a patch in
// memory so Create can seek back to patch the header once the
// compressed block lengths are known.
type seekBuffer struct {
	buf []byte
	pos int
}

func (b *seekBuffer) Write(p []byte) (n int, err error) {
	n = copy(b.buf[b.pos:], p)
	if n == len(p) {
		b.pos += n
		return n, nil
	}
	b.buf = append(b.buf[:b.pos+n], p[n:]...)
	b.pos += len(p)
	return len(p), nil
}

func (b *seekBuffer) Seek(offset int64, whence int) (int64, error) {
	var abs int64
	switch whence {
	case 0:
		abs = offset
	case 1:
		abs = int64(b.pos) + offset
	case 2:
		abs = int64(len(b.buf)) + offset
	default:
		return 0, errors.New("bsdiff: invalid whence")
	}
	if abs < 0 {
		return 0, errors.New("bsdiff: negative position")
	}
	if abs >= 1<<31 {
		return 0, errors.New("bsdiff: position out of range")
	}
	b.pos = int(abs)
	return abs, nil
}
