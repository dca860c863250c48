// Package hasher provides streaming SHA-256 of files and byte buffers,
// rendered as lowercase hex the way the manifest and its integrity
// chain expect.
//
// The package blank-imports github.com/minio/sha256-simd, which swaps
// in an AVX2/SHA-NI accelerated SHA-256 implementation when the host
// supports it while keeping crypto/sha256's API — the same trick the
// teacher's own update command relies on around its checksum
// verification.
package hasher

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"strings"

	_ "github.com/minio/sha256-simd"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// Size is the length in bytes of a SHA-256 digest.
const Size = sha256.Size

// HexLen is the length of a lowercase-hex-encoded SHA-256 digest.
const HexLen = Size * 2

// Bytes returns the lowercase hex SHA-256 digest of b.
func Bytes(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Reader streams r through SHA-256 and returns the lowercase hex
// digest.
func Reader(r io.Reader) (string, error) {
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", updateerr.New(updateerr.KindIO, "", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// File returns the lowercase hex SHA-256 digest of the file at path.
func File(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", updateerr.New(updateerr.KindIO, path, err)
	}
	defer f.Close()

	digest, err := Reader(f)
	if err != nil {
		return "", updateerr.New(updateerr.KindIO, path, err)
	}
	return digest, nil
}

// Equal reports whether two hex-encoded digests denote the same hash,
// comparing case-insensitively while storage and emission remain
// lowercase.
func Equal(a, b string) bool {
	return strings.EqualFold(a, b)
}

// Valid reports whether s looks like a 64-character lowercase hex
// SHA-256 digest, per the manifest's hash field invariant.
func Valid(s string) bool {
	if len(s) != HexLen {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}
