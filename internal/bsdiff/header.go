package bsdiff

import (
	"bytes"
	"io"
)

func writeHeader(w io.Writer, h header) error {
	var buf [headerLen]byte
	copy(buf[0:8], h.Magic[:])
	putInt64(buf[8:16], h.CtrlLen)
	putInt64(buf[16:24], h.DiffLen)
	putInt64(buf[24:32], h.NewSize)
	_, err := w.Write(buf[:])
	return err
}

func readHeader(r io.Reader) (header, error) {
	var buf [headerLen]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return header{}, err
	}
	var h header
	copy(h.Magic[:], buf[0:8])
	if !bytes.Equal(h.Magic[:], magic[:]) {
		return header{}, errBadMagic
	}
	h.CtrlLen = getInt64(buf[8:16])
	h.DiffLen = getInt64(buf[16:24])
	h.NewSize = getInt64(buf[24:32])
	return h, nil
}
