// Package sigcrypto implements ECDSA-over-P-256 signing and
// verification of detached, base64-encoded signatures, matching the
// fixed-length r||s (IEEE P1363) encoding golang-jwt/jwt's
// SigningMethodES256 uses for its compact-form ES256 signatures — the
// teacher's go.mod carries golang-jwt/jwt/v4 for exactly this kind of
// fixed-width ECDSA signature, though its API is shaped around JWT
// tokens rather than raw byte signing, so the encoding is reproduced
// here directly against crypto/ecdsa.
package sigcrypto

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"math/big"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// curveByteLen is the fixed width, in bytes, of each of r and s when
// encoded for P-256.
const curveByteLen = 32

// SignatureLen is the length in bytes of a P1363-encoded P-256
// signature (two curveByteLen integers).
const SignatureLen = curveByteLen * 2

// PrivateKeyFromPEM parses a PEM-encoded EC private key, failing with
// KindUnsupportedKey if it isn't on P-256.
func PrivateKeyFromPEM(pemBytes []byte) (*ecdsa.PrivateKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", errors.New("no PEM block found"))
	}
	key, err := x509.ParseECPrivateKey(block.Bytes)
	if err != nil {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", err)
	}
	if key.Curve != elliptic.P256() {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", errors.New("private key is not on curve P-256"))
	}
	return key, nil
}

// PublicKeyFromPEM parses a PEM-encoded PKIX public key, failing with
// KindUnsupportedKey if it isn't an EC key on P-256.
func PublicKeyFromPEM(pemBytes []byte) (*ecdsa.PublicKey, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", errors.New("no PEM block found"))
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", errors.New("public key is not ECDSA"))
	}
	if ecPub.Curve != elliptic.P256() {
		return nil, updateerr.New(updateerr.KindUnsupportedKey, "", errors.New("public key is not on curve P-256"))
	}
	return ecPub, nil
}

// GenerateKey creates a new P-256 key pair.
func GenerateKey() (*ecdsa.PrivateKey, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, "", err)
	}
	return key, nil
}

// MarshalPrivateKeyPEM encodes priv as a PEM "EC PRIVATE KEY" block.
func MarshalPrivateKeyPEM(priv *ecdsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalECPrivateKey(priv)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, "", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der}), nil
}

// MarshalPublicKeyPEM encodes pub as a PEM "PUBLIC KEY" block.
func MarshalPublicKeyPEM(pub *ecdsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, "", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// Sign computes the SHA-256 digest of data and signs it with priv,
// returning a base64-standard-encoded, fixed-length r||s signature.
func Sign(priv *ecdsa.PrivateKey, data []byte) (string, error) {
	digest := sha256.Sum256(data)
	r, s, err := ecdsa.Sign(rand.Reader, priv, digest[:])
	if err != nil {
		return "", updateerr.New(updateerr.KindIO, "", err)
	}
	sig := make([]byte, SignatureLen)
	r.FillBytes(sig[:curveByteLen])
	s.FillBytes(sig[curveByteLen:])
	return base64.StdEncoding.EncodeToString(sig), nil
}

// Verify reports whether base64Sig is a valid P-256/SHA-256 signature
// of data under pub. It never returns an error for a malformed or
// mismatched signature — only false — per spec.
func Verify(pub *ecdsa.PublicKey, data []byte, base64Sig string) bool {
	raw, err := base64.StdEncoding.DecodeString(base64Sig)
	if err != nil {
		return false
	}
	digest := sha256.Sum256(data)

	r, s, ok := decodeSignature(raw)
	if !ok {
		return false
	}
	return ecdsa.Verify(pub, digest[:], r, s)
}

// decodeSignature accepts the normative fixed-length P1363 r||s
// encoding, and, as a compatibility shim, a legacy ASN.1 DER
// SEQUENCE{r, s} encoding identified by its leading 0x30 tag.
func decodeSignature(raw []byte) (r, s *big.Int, ok bool) {
	if len(raw) == SignatureLen {
		r = new(big.Int).SetBytes(raw[:curveByteLen])
		s = new(big.Int).SetBytes(raw[curveByteLen:])
		return r, s, true
	}
	if len(raw) > 0 && raw[0] == 0x30 {
		var der struct{ R, S *big.Int }
		if _, err := asn1.Unmarshal(raw, &der); err != nil {
			return nil, nil, false
		}
		return der.R, der.S, true
	}
	return nil, nil, false
}
