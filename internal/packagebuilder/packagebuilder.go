// Package packagebuilder implements C5: it walks an old and a new
// directory tree, classifies every file as added/modified/removed,
// produces bsdiff patches for the modified set, and assembles the
// signed Package ZIP the applier (internal/packageapplier) consumes.
//
// Grounded on the teacher's own directory-walking idiom
// (filepath.Walk, forward-slash normalisation, lexicographic sort,
// seen elsewhere as fs-utils.go/untar.go), recomposed here around the
// manifest/bsdiff/archive packages rather than copied from a single
// teacher file — the teacher has no direct analogue of a package
// builder since it distributes full binaries, not deltas.
package packagebuilder

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/deltapkg/deltapkg/internal/archive"
	"github.com/deltapkg/deltapkg/internal/bsdiff"
	"github.com/deltapkg/deltapkg/internal/config"
	"github.com/deltapkg/deltapkg/internal/fsutil"
	"github.com/deltapkg/deltapkg/internal/hasher"
	"github.com/deltapkg/deltapkg/internal/manifest"
	"github.com/deltapkg/deltapkg/internal/sigcrypto"
	"github.com/deltapkg/deltapkg/internal/updateerr"

	"crypto/ecdsa"
)

// Options carries everything Build needs besides the output path.
type Options struct {
	OldDir        string
	NewDir        string
	VersionId     int64
	Version       string
	FromVersionId int64
	Release       config.Release
	PrivateKey    *ecdsa.PrivateKey
}

// Build runs the full §4.5 algorithm and writes the resulting Package
// ZIP to outputPath. It returns the signed manifest alongside, which
// the CLI's create-update-package command also writes out as a
// standalone meta.json for convenience.
func Build(opts Options, outputPath string) (*manifest.Manifest, error) {
	oldFiles, err := fsutil.ListFiles(opts.OldDir)
	if err != nil {
		return nil, err
	}
	newFiles, err := fsutil.ListFiles(opts.NewDir)
	if err != nil {
		return nil, err
	}

	union := mergeSorted(oldFiles, newFiles)

	zw, err := archive.CreateZip(outputPath)
	if err != nil {
		return nil, err
	}

	var files []manifest.FileAction
	for _, rel := range union {
		action, err := classify(opts.OldDir, opts.NewDir, rel, zw)
		if err != nil {
			zw.Close()
			return nil, err
		}
		if action != nil {
			files = append(files, *action)
		}
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	m := manifest.New(opts.VersionId, opts.Version, opts.FromVersionId)
	m.ReleaseName = opts.Release.ReleaseName
	m.Changes = opts.Release.Changes
	m.RestartRequired = opts.Release.RestartRequiredOrDefault()
	m.Critical = opts.Release.Critical
	m.Files = files

	if opts.Release.FallbackInstallerFile != "" {
		name, h, err := addAuxFile(zw, "fallback", opts.Release.FallbackInstallerFile)
		if err != nil {
			zw.Close()
			return nil, err
		}
		m.FallbackInstallerFile = name
		m.FallbackInstallerHash = h
		m.FallbackInstallerArguments = opts.Release.FallbackInstallerArguments
	}
	if opts.Release.FullPackageFile != "" {
		name, h, err := addAuxFile(zw, "full", opts.Release.FullPackageFile)
		if err != nil {
			zw.Close()
			return nil, err
		}
		m.FullPackageFile = name
		m.FullPackageHash = h
	}

	if err := manifest.Validate(m); err != nil {
		zw.Close()
		return nil, err
	}

	signed, err := signManifest(m, opts.PrivateKey)
	if err != nil {
		zw.Close()
		return nil, err
	}

	metaBytes, err := manifest.Encode(*signed)
	if err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.AddFile("meta.json", metaBytes); err != nil {
		zw.Close()
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}

	return signed, nil
}

// signManifest canonicalises m, signs the canonical bytes, and returns
// a copy of m with Signature populated.
func signManifest(m *manifest.Manifest, priv *ecdsa.PrivateKey) (*manifest.Manifest, error) {
	canon, err := manifest.Canonicalize(*m)
	if err != nil {
		return nil, err
	}
	sig, err := sigcrypto.Sign(priv, canon)
	if err != nil {
		return nil, err
	}
	out := *m
	out.Signature = sig
	return &out, nil
}

// classify inspects one root-relative path against both trees and
// returns the FileAction it implies, writing whatever package-internal
// entry that action requires. A nil result means the file is
// identical in both trees and is omitted from Files per §4.5 step 2.
func classify(oldDir, newDir, rel string, zw *archive.ZipWriter) (*manifest.FileAction, error) {
	oldPath := filepath.Join(oldDir, filepath.FromSlash(rel))
	newPath := filepath.Join(newDir, filepath.FromSlash(rel))

	_, oldErr := os.Stat(oldPath)
	_, newErr := os.Stat(newPath)
	oldExists := oldErr == nil
	newExists := newErr == nil

	switch {
	case oldExists && !newExists:
		return &manifest.FileAction{Path: rel, Action: manifest.ActionRemoved}, nil

	case !oldExists && newExists:
		newData, err := os.ReadFile(newPath)
		if err != nil {
			return nil, updateerr.New(updateerr.KindIO, newPath, err)
		}
		entry := "add/" + fsutil.EscapePath(rel)
		if err := zw.AddFile(entry, newData); err != nil {
			return nil, err
		}
		return &manifest.FileAction{
			Path:            rel,
			Action:          manifest.ActionAdded,
			AddFile:         entry,
			TargetHash:      hasher.Bytes(newData),
			PackageFileHash: hasher.Bytes(newData),
		}, nil

	default: // present in both
		oldData, err := os.ReadFile(oldPath)
		if err != nil {
			return nil, updateerr.New(updateerr.KindIO, oldPath, err)
		}
		newData, err := os.ReadFile(newPath)
		if err != nil {
			return nil, updateerr.New(updateerr.KindIO, newPath, err)
		}
		if hasher.Bytes(oldData) == hasher.Bytes(newData) {
			return nil, nil
		}

		pw := &byteSink{}
		if err := bsdiff.CreateBytes(oldData, newData, pw); err != nil {
			return nil, err
		}
		patch := pw.buf

		entry := "diffs/" + fsutil.EscapePath(rel) + ".patch"
		if err := zw.AddFile(entry, patch); err != nil {
			return nil, err
		}
		return &manifest.FileAction{
			Path:            rel,
			Action:          manifest.ActionModified,
			PatchFile:       entry,
			SourceHash:      hasher.Bytes(oldData),
			TargetHash:      hasher.Bytes(newData),
			PackageFileHash: hasher.Bytes(patch),
		}, nil
	}
}

// addAuxFile reads path (the fallback installer or full-install
// archive named by the release config) and stores it under dir/ in
// the package, returning its package-internal name and hash.
func addAuxFile(zw *archive.ZipWriter, dir, filePath string) (string, string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", "", updateerr.New(updateerr.KindIO, filePath, err)
	}
	name := dir + "/" + fsutil.EscapePath(filepath.Base(filePath))
	if err := zw.AddFile(name, data); err != nil {
		return "", "", err
	}
	return name, hasher.Bytes(data), nil
}

// mergeSorted returns the sorted union of two already-sorted string
// slices.
func mergeSorted(a, b []string) []string {
	set := make(map[string]struct{}, len(a)+len(b))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		set[s] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// byteSink is a minimal io.Writer accumulating written bytes, used so
// bsdiff.CreateBytes can write directly into memory without a
// temporary file.
type byteSink struct{ buf []byte }

func (s *byteSink) Write(p []byte) (int, error) {
	s.buf = append(s.buf, p...)
	return len(p), nil
}
