package bsdiff

import (
	"io"
	"io/ioutil"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// Create computes a bsdiff-1 patch transforming old into new and
// writes it to patch (§4.4 step "Create").
func Create(old, new io.Reader, patch io.Writer) error {
	obuf, err := ioutil.ReadAll(old)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	nbuf, err := ioutil.ReadAll(new)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	return CreateBytes(obuf, nbuf, patch)
}

// CreateBytes is like Create but takes old/new already in memory,
// which the package builder (C5) uses directly since it already holds
// both file's bytes for hashing.
func CreateBytes(obuf, nbuf []byte, patch io.Writer) error {
	sb := &seekBuffer{buf: make([]byte, 0, len(nbuf))}
	if err := diff(obuf, nbuf, sb); err != nil {
		return err
	}
	_, err := patch.Write(sb.buf)
	return err
}

// diff implements the bsdiff control loop: walk new left-to-right,
// using the suffix array over old to find the longest approximate
// match at each position, extend it forward/backward tolerating a
// bounded mismatch, resolve the overlap with the previous match, and
// emit an (add, copy, seek) triple.
func diff(obuf, nbuf []byte, patch io.WriteSeeker) error {
	I := qsufsort(obuf)
	db := make([]byte, len(nbuf))
	eb := make([]byte, len(nbuf))
	var dblen, eblen int

	hdr := header{Magic: magic, NewSize: int64(len(nbuf))}
	if err := writeHeader(patch, hdr); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}

	pfbz2, err := newBzip2Writer(patch)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}

	var scan, pos, length int
	var lastscan, lastpos, lastoffset int
	for scan < len(nbuf) {
		var oldscore int
		scan += length
		for scsc := scan; scan < len(nbuf); scan++ {
			pos, length = search(I, obuf, nbuf[scan:], 0, len(obuf))

			for ; scsc < scan+length; scsc++ {
				if scsc+lastoffset < len(obuf) && obuf[scsc+lastoffset] == nbuf[scsc] {
					oldscore++
				}
			}

			if (length == oldscore && length != 0) || length > oldscore+8 {
				break
			}

			if scan+lastoffset < len(obuf) && obuf[scan+lastoffset] == nbuf[scan] {
				oldscore--
			}
		}

		if length != oldscore || scan == len(nbuf) {
			var s, Sf, lenf int
			for i := 0; lastscan+i < scan && lastpos+i < len(obuf); {
				if obuf[lastpos+i] == nbuf[lastscan+i] {
					s++
				}
				i++
				if s*2-i > Sf*2-lenf {
					Sf = s
					lenf = i
				}
			}

			lenb := 0
			if scan < len(nbuf) {
				var s, Sb int
				for i := 1; scan >= lastscan+i && pos >= i; i++ {
					if obuf[pos-i] == nbuf[scan-i] {
						s++
					}
					if s*2-i > Sb*2-lenb {
						Sb = s
						lenb = i
					}
				}
			}

			if lastscan+lenf > scan-lenb {
				overlap := (lastscan + lenf) - (scan - lenb)
				var s, Ss, lens int
				for i := 0; i < overlap; i++ {
					if nbuf[lastscan+lenf-overlap+i] == obuf[lastpos+lenf-overlap+i] {
						s++
					}
					if nbuf[scan-lenb+i] == obuf[pos-lenb+i] {
						s--
					}
					if s > Ss {
						Ss = s
						lens = i + 1
					}
				}
				lenf += lens - overlap
				lenb -= lens
			}

			for i := 0; i < lenf; i++ {
				db[dblen+i] = nbuf[lastscan+i] - obuf[lastpos+i]
			}
			for i := 0; i < (scan-lenb)-(lastscan+lenf); i++ {
				eb[eblen+i] = nbuf[lastscan+lenf+i]
			}
			dblen += lenf
			eblen += (scan - lenb) - (lastscan + lenf)

			if err := writeInt64(pfbz2, int64(lenf)); err != nil {
				pfbz2.Close()
				return updateerr.New(updateerr.KindIO, "", err)
			}
			if err := writeInt64(pfbz2, int64((scan-lenb)-(lastscan+lenf))); err != nil {
				pfbz2.Close()
				return updateerr.New(updateerr.KindIO, "", err)
			}
			if err := writeInt64(pfbz2, int64((pos-lenb)-(lastpos+lenf))); err != nil {
				pfbz2.Close()
				return updateerr.New(updateerr.KindIO, "", err)
			}

			lastscan = scan - lenb
			lastpos = pos - lenb
			lastoffset = pos - scan
		}
	}
	if err := pfbz2.Close(); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}

	ctrlEnd, err := patch.Seek(0, io.SeekCurrent)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	hdr.CtrlLen = ctrlEnd - headerLen

	pfbz2, err = newBzip2Writer(patch)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	if n, err := pfbz2.Write(db[:dblen]); err != nil || n != dblen {
		pfbz2.Close()
		return updateerr.New(updateerr.KindIO, "", err)
	}
	if err := pfbz2.Close(); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}

	diffEnd, err := patch.Seek(0, io.SeekCurrent)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	hdr.DiffLen = diffEnd - ctrlEnd

	pfbz2, err = newBzip2Writer(patch)
	if err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	if n, err := pfbz2.Write(eb[:eblen]); err != nil || n != eblen {
		pfbz2.Close()
		return updateerr.New(updateerr.KindIO, "", err)
	}
	if err := pfbz2.Close(); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}

	if _, err := patch.Seek(0, io.SeekStart); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	if err := writeHeader(patch, hdr); err != nil {
		return updateerr.New(updateerr.KindIO, "", err)
	}
	return nil
}
