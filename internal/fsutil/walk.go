// Package fsutil provides the directory-walking, path-normalisation,
// and atomic-rename primitives shared by the package builder (C5) and
// package applier (C6), in the style of the teacher's own
// fs-utils.go/untar.go: explicit filepath.Walk, forward-slash
// normalisation, sorted output.
package fsutil

import (
	"io/fs"
	"path/filepath"
	"sort"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// ListFiles walks root and returns the forward-slash, root-relative
// paths of every regular file, sorted lexicographically — the same
// ordering §4.5 requires of the manifest's Files list.
func ListFiles(root string) ([]string, error) {
	var out []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, updateerr.New(updateerr.KindIO, root, err)
	}
	sort.Strings(out)
	return out, nil
}

// EscapePath implements §4.5's package-internal naming rule: replace
// path separators with "_" so an entry can live flat inside diffs/ or
// add/. The mapping is recorded by the manifest (PatchFile/AddFile),
// never recomputed client-side, so collisions here only affect where
// within the archive bytes are stored, not correctness of apply.
func EscapePath(relPath string) string {
	out := make([]byte, len(relPath))
	for i := 0; i < len(relPath); i++ {
		if relPath[i] == '/' {
			out[i] = '_'
		} else {
			out[i] = relPath[i]
		}
	}
	return string(out)
}
