package hasher

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestBytes(t *testing.T) {
	testCases := [][]byte{
		[]byte(""),
		[]byte("abc"),
		[]byte("the quick brown fox jumps over the lazy dog"),
	}

	for i, tc := range testCases {
		got := Bytes(tc)
		if !Valid(got) {
			t.Fatalf("case %v: Bytes output %q did not pass Valid", i+1, got)
		}
		if got != Bytes(tc) {
			t.Fatalf("case %v: Bytes is not deterministic", i+1)
		}
	}

	if Bytes([]byte("a")) == Bytes([]byte("b")) {
		t.Fatalf("distinct inputs hashed to the same digest")
	}
}

func TestReaderMatchesBytes(t *testing.T) {
	data := []byte("the quick brown fox jumps over the lazy dog")
	want := Bytes(data)

	got, err := Reader(strings.NewReader(string(data)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected: %v, got: %v", want, got)
	}
}

func TestFileMatchesBytes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	data := []byte("deltapkg test fixture")
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := Bytes(data)
	got, err := File(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != want {
		t.Fatalf("expected: %v, got: %v", want, got)
	}
}

func TestFileMissing(t *testing.T) {
	if _, err := File(filepath.Join(t.TempDir(), "does-not-exist")); err == nil {
		t.Fatalf("expected error for a missing file, got nil")
	}
}

func TestEqual(t *testing.T) {
	testCases := []struct {
		a, b     string
		expected bool
	}{
		{"ab12", "AB12", true},
		{"ab12", "ab12", true},
		{"ab12", "ab13", false},
		{"ab12", "ab1", false},
	}

	for i, tc := range testCases {
		got := Equal(tc.a, tc.b)
		if got != tc.expected {
			t.Fatalf("case %v: expected: %v, got: %v", i+1, tc.expected, got)
		}
	}
}

func TestValid(t *testing.T) {
	testCases := []struct {
		digest   string
		expected bool
	}{
		{Bytes([]byte("ok")), true},
		{strings.ToUpper(Bytes([]byte("ok"))), false}, // Valid requires lowercase
		{"", false},
		{"not-hex-at-all-not-hex-at-all-not-hex-at-all-not-hex-at-all-xy", false},
		{"ab", false},
	}

	for i, tc := range testCases {
		got := Valid(tc.digest)
		if got != tc.expected {
			t.Fatalf("case %v: digest %q: expected: %v, got: %v", i+1, tc.digest, tc.expected, got)
		}
	}
}
