package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0644); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}

func TestWriteTarExtractTarRoundTrip(t *testing.T) {
	src := t.TempDir()
	files := map[string]string{
		"bin/app":      "binary contents",
		"lib/a.so":     "library a",
		"docs/readme":  "read me please",
		"a/b/c/deep.f": "deeply nested file",
	}
	writeTree(t, src, files)

	var buf bytes.Buffer
	if err := WriteTar(src, &buf); err != nil {
		t.Fatalf("WriteTar: unexpected error: %v", err)
	}

	dst := t.TempDir()
	if err := ExtractTar(context.Background(), &buf, dst, ExtractTarOptions{}); err != nil {
		t.Fatalf("ExtractTar: unexpected error: %v", err)
	}

	for rel, want := range files {
		got, err := os.ReadFile(filepath.Join(dst, filepath.FromSlash(rel)))
		if err != nil {
			t.Fatalf("reading extracted file %s: unexpected error: %v", rel, err)
		}
		if string(got) != want {
			t.Fatalf("file %s: expected %q, got %q", rel, want, got)
		}
	}
}

func TestWriteTarDeterministicOrder(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{
		"z.txt": "z",
		"a.txt": "a",
		"m.txt": "m",
	})

	var buf bytes.Buffer
	if err := WriteTar(src, &buf); err != nil {
		t.Fatalf("WriteTar: unexpected error: %v", err)
	}

	names := tarEntryNames(t, buf.Bytes())
	sorted := append([]string{}, names...)
	sort.Strings(sorted)
	for i := range names {
		if names[i] != sorted[i] {
			t.Fatalf("expected lexicographically sorted tar entries, got %v", names)
		}
	}
}

func tarEntryNames(t *testing.T, data []byte) []string {
	t.Helper()
	var names []string
	tr := tar.NewReader(bytes.NewReader(data))
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("unexpected error reading tar entries: %v", err)
		}
		names = append(names, hdr.Name)
	}
	return names
}

func TestDetectRecognizesMagicHeaders(t *testing.T) {
	testCases := []struct {
		name   string
		header []byte
		want   format
	}{
		{"gzip", []byte{0x1f, 0x8b, 8, 0, 0, 0}, formatGzip},
		{"zstd", []byte{0x28, 0xb5, 0x2f, 0xfd, 0, 0}, formatZstd},
		{"lz4", []byte{0x4, 0x22, 0x4d, 0x18, 0, 0}, formatLZ4},
		{"s2", []byte{0xff, 0x06, 0x00, 0x00, 0, 0}, formatS2},
		{"plain tar", []byte("not-a-known-magic!!"), formatUnknown},
	}

	for i, tc := range testCases {
		r := bufio.NewReader(bytes.NewReader(tc.header))
		if got := detect(r); got != tc.want {
			t.Fatalf("case %v (%s): expected %v, got %v", i+1, tc.name, tc.want, got)
		}
	}
}

func TestSafeRelPathRejectsTraversal(t *testing.T) {
	testCases := []struct {
		name  string
		valid bool
	}{
		{"bin/app", true},
		{"a/b/c.txt", true},
		{"..", false},
		{"../escape", false},
		{"a/../../escape", false},
		{"/etc/passwd", false},
		{"", false},
		{".", false},
	}

	for i, tc := range testCases {
		if got := safeRelPath(tc.name); got != tc.valid {
			t.Fatalf("case %v: path %q: expected %v, got %v", i+1, tc.name, tc.valid, got)
		}
	}
}

func TestExtractTarRejectsUnsafePath(t *testing.T) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	content := []byte("escape attempt")
	if err := tw.WriteHeader(&tar.Header{
		Name:     "../escape.txt",
		Typeflag: tar.TypeReg,
		Size:     int64(len(content)),
		Mode:     0644,
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := tw.Write(content); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := tw.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := ExtractTar(context.Background(), &buf, t.TempDir(), ExtractTarOptions{})
	if err == nil {
		t.Fatalf("expected ExtractTar to reject a path-traversal entry")
	}
}

func TestExtractTarHonorsCancellation(t *testing.T) {
	src := t.TempDir()
	writeTree(t, src, map[string]string{"a.txt": "a"})

	var buf bytes.Buffer
	if err := WriteTar(src, &buf); err != nil {
		t.Fatalf("WriteTar: unexpected error: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := ExtractTar(ctx, &buf, t.TempDir(), ExtractTarOptions{})
	if err == nil {
		t.Fatalf("expected error extracting with an already-cancelled context")
	}
}
