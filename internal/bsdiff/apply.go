package bsdiff

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

var errBadMagic = errors.New("bsdiff: bad magic")

// Apply reconstructs new from old using patchBytes (§4.4 step
// "Apply"). No partial output is ever returned to the caller on
// failure: new is only written to once reconstruction has fully
// succeeded in memory.
func Apply(old []byte, patchBytes []byte, new io.Writer) error {
	buf, err := ApplyBytes(old, patchBytes)
	if err != nil {
		return err
	}
	_, err = new.Write(buf)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	return nil
}

// ApplyBytes is like Apply but returns the reconstructed bytes
// directly, which the package applier (C6) uses so it can hash the
// result before deciding whether to expose it to the filesystem.
func ApplyBytes(old []byte, patchBytes []byte) ([]byte, error) {
	if len(patchBytes) < headerLen {
		return nil, malformed("patch shorter than header")
	}

	hdr, err := readHeader(bytes.NewReader(patchBytes[:headerLen]))
	if err != nil {
		return nil, malformed("%v", err)
	}
	if hdr.CtrlLen < 0 || hdr.DiffLen < 0 || hdr.NewSize < 0 {
		return nil, malformed("negative block length in header")
	}

	ctrlStart := int64(headerLen)
	diffStart := ctrlStart + hdr.CtrlLen
	extraStart := diffStart + hdr.DiffLen
	if diffStart > int64(len(patchBytes)) || extraStart > int64(len(patchBytes)) {
		return nil, malformed("patch truncated before declared block boundaries")
	}

	ctrlR := newBzip2Reader(bytes.NewReader(patchBytes[ctrlStart:diffStart]))
	diffR := newBzip2Reader(bytes.NewReader(patchBytes[diffStart:extraStart]))
	extraR := newBzip2Reader(bytes.NewReader(patchBytes[extraStart:]))

	newBuf := make([]byte, hdr.NewSize)
	var oldpos, newpos int64

	for newpos < hdr.NewSize {
		add, err := readInt64(ctrlR)
		if err != nil {
			return nil, malformed("reading add length: %v", err)
		}
		copyLen, err := readInt64(ctrlR)
		if err != nil {
			return nil, malformed("reading copy length: %v", err)
		}
		seek, err := readInt64(ctrlR)
		if err != nil {
			return nil, malformed("reading seek offset: %v", err)
		}

		if add < 0 || copyLen < 0 {
			return nil, malformed("negative add/copy length")
		}
		if newpos+add > hdr.NewSize || newpos+add+copyLen > hdr.NewSize {
			return nil, malformed("add/copy length exceeds declared new size")
		}

		diffChunk := make([]byte, add)
		if _, err := io.ReadFull(diffR, diffChunk); err != nil {
			return nil, malformed("reading diff block: %v", err)
		}
		for i := int64(0); i < add; i++ {
			var oldByte byte
			if p := oldpos + i; p >= 0 && p < int64(len(old)) {
				oldByte = old[p]
			}
			newBuf[newpos+i] = oldByte + diffChunk[i]
		}
		newpos += add

		if copyLen > 0 {
			if _, err := io.ReadFull(extraR, newBuf[newpos:newpos+copyLen]); err != nil {
				return nil, malformed("reading extra block: %v", err)
			}
			newpos += copyLen
		}

		oldpos += add + seek
		if oldpos < 0 || oldpos > int64(len(old)) {
			return nil, malformed("seek moved old cursor out of range [0, %d]: %d", len(old), oldpos)
		}
	}

	// Drain each stream to its end so trailing data and each bzip2
	// stream's closing checksum are verified too.
	for _, r := range []io.Reader{ctrlR, diffR, extraR} {
		if n, err := io.Copy(io.Discard, r); err != nil || n != 0 {
			return nil, malformed("corrupt or trailing data after the last control triple")
		}
	}

	return newBuf, nil
}

func malformed(format string, args ...interface{}) error {
	return updateerr.New(updateerr.KindMalformedPatch, "", fmt.Errorf(format, args...))
}
