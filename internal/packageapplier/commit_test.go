package packageapplier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deltapkg/deltapkg/internal/manifest"
)

func TestCommitRenamesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	targetA := filepath.Join(dir, "a")
	targetB := filepath.Join(dir, "b")
	targetRemoved := filepath.Join(dir, "gone")

	if err := os.WriteFile(targetA, []byte("old a"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(targetRemoved, []byte("bye"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpA := targetA + ".tmp"
	if err := os.WriteFile(tmpA, []byte("new a"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	tmpB := targetB + ".tmp"
	if err := os.WriteFile(tmpB, []byte("new b"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	files := []staged{
		{path: "a", targetPath: targetA, tmpPath: tmpA},
		{path: "b", targetPath: targetB, tmpPath: tmpB},
	}

	if err := commit(files, []string{targetRemoved}); err != nil {
		t.Fatalf("commit: unexpected error: %v", err)
	}

	gotA, err := os.ReadFile(targetA)
	if err != nil || string(gotA) != "new a" {
		t.Fatalf("expected targetA to contain %q, got %q (err %v)", "new a", gotA, err)
	}
	gotB, err := os.ReadFile(targetB)
	if err != nil || string(gotB) != "new b" {
		t.Fatalf("expected targetB to contain %q, got %q (err %v)", "new b", gotB, err)
	}
	if _, err := os.Stat(targetRemoved); err == nil {
		t.Fatalf("expected removed target to be gone")
	}
	if _, err := os.Stat(targetA + ".old"); err == nil {
		t.Fatalf("expected backup file to be cleaned up after a successful commit")
	}
}

func TestCommitRollsBackOnMidCommitFailure(t *testing.T) {
	dir := t.TempDir()
	targetA := filepath.Join(dir, "a")
	targetB := filepath.Join(dir, "b")

	if err := os.WriteFile(targetA, []byte("old a"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := os.WriteFile(targetB, []byte("old b"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tmpA := targetA + ".tmp"
	if err := os.WriteFile(tmpA, []byte("new a"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// b's staged tmp file does not exist, so its rename must fail.
	files := []staged{
		{path: "a", targetPath: targetA, tmpPath: tmpA},
		{path: "b", targetPath: targetB, tmpPath: targetB + ".tmp-does-not-exist"},
	}

	err := commit(files, nil)
	if err == nil {
		t.Fatalf("expected commit to fail")
	}
	ce, ok := err.(*CommitError)
	if !ok {
		t.Fatalf("expected *CommitError, got %T: %v", err, err)
	}
	if ce.RollbackFailed != nil {
		t.Fatalf("expected rollback to succeed, got rollback failure: %v", ce.RollbackFailed)
	}

	gotA, err := os.ReadFile(targetA)
	if err != nil || string(gotA) != "old a" {
		t.Fatalf("expected targetA to be rolled back to %q, got %q (err %v)", "old a", gotA, err)
	}
	gotB, err := os.ReadFile(targetB)
	if err != nil || string(gotB) != "old b" {
		t.Fatalf("expected targetB to be untouched at %q, got %q (err %v)", "old b", gotB, err)
	}
}

func TestCommitRollsBackNewFileOnFailure(t *testing.T) {
	dir := t.TempDir()
	targetA := filepath.Join(dir, "new-file")
	tmpA := targetA + ".tmp"
	if err := os.WriteFile(tmpA, []byte("brand new"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	targetB := filepath.Join(dir, "b")

	files := []staged{
		{path: "a", targetPath: targetA, tmpPath: tmpA},
		{path: "b", targetPath: targetB, tmpPath: targetB + ".tmp-does-not-exist"},
	}

	err := commit(files, nil)
	if err == nil {
		t.Fatalf("expected commit to fail")
	}

	if _, err := os.Stat(targetA); err == nil {
		t.Fatalf("expected the newly-added file to be rolled back (removed) since it had no backup")
	}
}

func TestSortByManifestOrder(t *testing.T) {
	m := &manifest.Manifest{
		Files: []manifest.FileAction{
			{Path: "first"},
			{Path: "second"},
			{Path: "third"},
		},
	}
	files := []staged{
		{path: "third", targetPath: "/x/third"},
		{path: "first", targetPath: "/x/first"},
		{path: "second", targetPath: "/x/second"},
	}

	got := sortByManifestOrder(m, files)
	want := []string{"first", "second", "third"}
	for i, w := range want {
		if got[i].path != w {
			t.Fatalf("position %d: expected %q, got %q (full order: %v)", i, w, got[i].path, pathsOf(got))
		}
	}
}

func pathsOf(files []staged) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.path
	}
	return out
}
