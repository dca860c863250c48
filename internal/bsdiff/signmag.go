package bsdiff

import (
	"encoding/binary"
	"io"
)

// putInt64 encodes x into b (len(b) >= 8) using the sign-magnitude
// little-endian convention described in §4.4: bit 63 carries the sign,
// the remaining 63 bits carry the magnitude.
func putInt64(b []byte, x int64) {
	var u uint64
	if x < 0 {
		u = uint64(-x) | (1 << 63)
	} else {
		u = uint64(x)
	}
	binary.LittleEndian.PutUint64(b, u)
}

// getInt64 decodes a sign-magnitude little-endian int64 from b.
func getInt64(b []byte) int64 {
	u := binary.LittleEndian.Uint64(b)
	mag := int64(u &^ (1 << 63))
	if u&(1<<63) != 0 {
		return -mag
	}
	return mag
}

func writeInt64(w io.Writer, x int64) error {
	var buf [8]byte
	putInt64(buf[:], x)
	_, err := w.Write(buf[:])
	return err
}

func readInt64(r io.Reader) (int64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return getInt64(buf[:]), nil
}
