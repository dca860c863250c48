package fsutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// StageFile writes data to a sibling temp file next to targetPath
// (targetPath + ".tmp"), creating parent directories as needed, and
// returns the temp path without touching targetPath itself — the
// staging half of §4.6 step 5.
func StageFile(targetPath string, data []byte, mode os.FileMode) (string, error) {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", updateerr.New(updateerr.KindIO, dir, err)
	}
	tmp := targetPath + ".tmp"
	if mode == 0 {
		mode = 0644
	}
	if err := os.WriteFile(tmp, data, mode); err != nil {
		return "", updateerr.New(updateerr.KindIO, tmp, err)
	}
	return tmp, nil
}

// CommitRename atomically renames tmpPath over targetPath (§4.6 step
// 6, same-volume rename). It creates no directories: StageFile has
// already created targetPath's parent when it wrote tmpPath beside it.
func CommitRename(tmpPath, targetPath string) error {
	if err := os.Rename(tmpPath, targetPath); err != nil {
		return updateerr.New(updateerr.KindIO, targetPath, err)
	}
	return nil
}

// DiscardStaged removes a staged temp file, used when an in-flight run
// is cancelled or fails before commit (§5 "Cancellation").
func DiscardStaged(tmpPath string) {
	_ = os.Remove(tmpPath)
}

// FileMode returns the mode bits of the file at path, or 0 if it
// doesn't exist — used to preserve permissions across a modified
// file's reconstruction (§9 open question on permission preservation).
func FileMode(path string) os.FileMode {
	fi, err := os.Stat(path)
	if err != nil {
		return 0
	}
	return fi.Mode().Perm()
}

// ErrNotRegular reports that a path exists but isn't a regular file,
// which the applier treats as an I/O error rather than attempting to
// hash/overwrite it.
func ErrNotRegular(path string) error {
	return updateerr.New(updateerr.KindIO, path, fmt.Errorf("not a regular file"))
}
