// Package updateerr defines the error taxonomy shared by every stage of
// the update protocol, from package construction through client apply.
package updateerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error so callers can react without string matching.
type Kind int

const (
	// KindIO covers underlying file or network failures.
	KindIO Kind = iota
	// KindMalformedManifest means the manifest JSON didn't parse or a
	// required field is missing or invalid.
	KindMalformedManifest
	// KindSignatureInvalid means the canonical bytes did not verify
	// against the embedded public key.
	KindSignatureInvalid
	// KindPackageCorrupt means a referenced package entry is missing or
	// its hash doesn't match the manifest's PackageFileHash.
	KindPackageCorrupt
	// KindSourceMismatch means an on-disk pre-image hash didn't match a
	// modified action's SourceHash.
	KindSourceMismatch
	// KindTargetMismatch means a reconstructed file's hash didn't match
	// TargetHash.
	KindTargetMismatch
	// KindMalformedPatch means a bsdiff header or stream is invalid.
	KindMalformedPatch
	// KindUnsupportedKey means a PEM parsed but its curve/algorithm
	// isn't P-256/SHA-256.
	KindUnsupportedKey
	// KindCancelled means the caller requested cancellation.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "Io"
	case KindMalformedManifest:
		return "MalformedManifest"
	case KindSignatureInvalid:
		return "SignatureInvalid"
	case KindPackageCorrupt:
		return "PackageCorrupt"
	case KindSourceMismatch:
		return "SourceMismatch"
	case KindTargetMismatch:
		return "TargetMismatch"
	case KindMalformedPatch:
		return "MalformedPatch"
	case KindUnsupportedKey:
		return "UnsupportedKey"
	case KindCancelled:
		return "Cancelled"
	default:
		return "Unknown"
	}
}

// Security reports whether this kind must be surfaced to the user as a
// security failure rather than a generic I/O error.
func (k Kind) Security() bool {
	switch k {
	case KindSignatureInvalid, KindPackageCorrupt, KindTargetMismatch, KindUnsupportedKey:
		return true
	default:
		return false
	}
}

// Error is the concrete error type returned by every package in this
// module. It carries a Kind, an optional offending path, and the chain
// of context messages accumulated as the error propagated up.
type Error struct {
	Kind  Kind
	Path  string
	Cause error
	trace []string
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Path, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
}

func (e *Error) Unwrap() error { return e.Cause }

// Trace returns the accumulated context messages, innermost first, for
// structured logging (see internal/logger).
func (e *Error) Trace() []string { return e.trace }

// WithContext returns a copy of e with msg appended to its trace.
func (e *Error) WithContext(msg string) *Error {
	cp := *e
	cp.trace = append(append([]string{}, e.trace...), msg)
	return &cp
}

// New builds an *Error of the given kind wrapping cause.
func New(kind Kind, path string, cause error) *Error {
	return &Error{Kind: kind, Path: path, Cause: cause}
}

// Is reports whether err (or any error it wraps) is an *Error of kind k.
func Is(err error, k Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == k
	}
	return false
}
