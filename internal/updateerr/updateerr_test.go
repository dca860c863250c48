package updateerr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestIs(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindSignatureInvalid, "pkg/update.pkg", cause)

	testCases := []struct {
		kind     Kind
		expected bool
	}{
		{KindSignatureInvalid, true},
		{KindIO, false},
		{KindPackageCorrupt, false},
	}

	for i, tc := range testCases {
		if got := Is(err, tc.kind); got != tc.expected {
			t.Fatalf("case %v: expected: %v, got: %v", i+1, tc.expected, got)
		}
	}
}

func TestIsUnwrapsThroughFmtErrorf(t *testing.T) {
	cause := errors.New("boom")
	err := New(KindPackageCorrupt, "", cause)
	wrapped := fmt.Errorf("while applying: %w", err)

	if !Is(wrapped, KindPackageCorrupt) {
		t.Fatalf("Is did not see through fmt.Errorf wrapping")
	}
}

func TestIsFalseForPlainError(t *testing.T) {
	if Is(errors.New("plain"), KindIO) {
		t.Fatalf("Is matched a plain error that carries no Kind")
	}
}

func TestErrorIncludesPath(t *testing.T) {
	err := New(KindSourceMismatch, "bin/app", errors.New("mismatch"))
	msg := err.Error()
	if msg == "" {
		t.Fatalf("Error() returned empty string")
	}
	if !strings.Contains(msg, "bin/app") {
		t.Fatalf("Error() does not mention the path: %q", msg)
	}
	// Path-bearing errors must surface the path for operators.
	if got, want := err.Path, "bin/app"; got != want {
		t.Fatalf("Path: expected: %v, got: %v", want, got)
	}
}

func TestWithContextAccumulatesTrace(t *testing.T) {
	err := New(KindIO, "", errors.New("disk full"))
	err = err.WithContext("staging file").WithContext("reconstruct")

	trace := err.Trace()
	if len(trace) != 2 {
		t.Fatalf("expected 2 trace entries, got %d: %v", len(trace), trace)
	}
	if trace[0] != "staging file" || trace[1] != "reconstruct" {
		t.Fatalf("unexpected trace order: %v", trace)
	}
}

func TestWithContextDoesNotMutateOriginal(t *testing.T) {
	base := New(KindIO, "", errors.New("disk full"))
	_ = base.WithContext("extra")

	if len(base.Trace()) != 0 {
		t.Fatalf("WithContext mutated the receiver's trace")
	}
}

func TestKindSecurity(t *testing.T) {
	testCases := []struct {
		kind     Kind
		expected bool
	}{
		{KindSignatureInvalid, true},
		{KindPackageCorrupt, true},
		{KindTargetMismatch, true},
		{KindUnsupportedKey, true},
		{KindIO, false},
		{KindCancelled, false},
		{KindMalformedManifest, false},
		{KindSourceMismatch, false},
		{KindMalformedPatch, false},
	}

	for i, tc := range testCases {
		if got := tc.kind.Security(); got != tc.expected {
			t.Fatalf("case %v: kind %v: expected: %v, got: %v", i+1, tc.kind, tc.expected, got)
		}
	}
}
