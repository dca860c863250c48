// Package packageapplier implements C6: the client-side integrity
// chain that turns a signed Package into writes on disk. Stage
// ordering follows §4.6 exactly — signature, then package-file
// hashes, then on-disk pre-images, then reconstruction into staging,
// then a single serial commit — so no byte reaches the target
// directory until every verification has passed.
//
// The staging/commit sequencing is grounded on the teacher's vendored
// github.com/inconshreveable/go-update Apply function: a sibling temp
// file per target, rename-over-target, and a backup-then-rollback
// scheme for a failed rename mid-commit.
package packageapplier

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"path/filepath"
	"sort"
	"sync"

	"github.com/deltapkg/deltapkg/internal/archive"
	"github.com/deltapkg/deltapkg/internal/bsdiff"
	"github.com/deltapkg/deltapkg/internal/fsutil"
	"github.com/deltapkg/deltapkg/internal/hasher"
	"github.com/deltapkg/deltapkg/internal/manifest"
	"github.com/deltapkg/deltapkg/internal/sigcrypto"
	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// maxParallelHashers bounds the pre-image hashing fan-out, mirroring
// the teacher's own asyncWriters channel in untar.go.
const maxParallelHashers = 16

// Options configures a single Apply run.
type Options struct {
	PackagePath string
	TargetDir   string
	PublicKey   *ecdsa.PublicKey
}

// staged records one reconstructed file waiting to be committed.
type staged struct {
	path       string // manifest-relative, forward-slash form
	targetPath string
	tmpPath    string
}

// Apply runs the full §4.6 pipeline and returns the verified manifest
// on success. Any failure before the commit stage leaves targetDir
// untouched.
func Apply(ctx context.Context, opts Options) (*manifest.Manifest, error) {
	zr, err := archive.OpenZip(opts.PackagePath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	m, err := loadManifest(zr)
	if err != nil {
		return nil, err
	}
	if err := manifest.Validate(m); err != nil {
		return nil, err
	}

	if err := verifySignature(m, opts.PublicKey); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if err := verifyPackageFileHashes(m, zr); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	if err := verifyPreimages(ctx, m, opts.TargetDir); err != nil {
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		return nil, err
	}

	stagedFiles, removedPaths, err := reconstruct(m, opts.TargetDir, zr)
	if err != nil {
		discardAll(stagedFiles)
		return nil, err
	}
	if err := checkCancelled(ctx); err != nil {
		discardAll(stagedFiles)
		return nil, err
	}

	if err := commit(sortByManifestOrder(m, stagedFiles), removedPaths); err != nil {
		return nil, err
	}

	return m, nil
}

// loadManifest reads and parses meta.json. Standard json.Unmarshal is
// used here (not manifest.Canonicalize, which only produces bytes):
// field order of the wire JSON doesn't matter for parsing, only for
// the signature computed over it afterward.
func loadManifest(zr *archive.ZipReader) (*manifest.Manifest, error) {
	raw, err := zr.ReadFile("meta.json")
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, updateerr.New(updateerr.KindMalformedManifest, "meta.json", err)
	}
	return &m, nil
}

// verifySignature implements §4.6 step 2.
func verifySignature(m *manifest.Manifest, pub *ecdsa.PublicKey) error {
	canon, err := manifest.Canonicalize(*m)
	if err != nil {
		return err
	}
	if !sigcrypto.Verify(pub, canon, m.Signature) {
		return updateerr.New(updateerr.KindSignatureInvalid, "", errSignature)
	}
	return nil
}

// verifyPackageFileHashes implements §4.6 step 3: every FileAction
// carrying a PackageFileHash must match the bytes of its referenced
// package entry.
func verifyPackageFileHashes(m *manifest.Manifest, zr *archive.ZipReader) error {
	for _, fa := range m.Files {
		entry := packageEntry(fa)
		if entry == "" || fa.PackageFileHash == "" {
			continue
		}
		data, err := zr.ReadFile(entry)
		if err != nil {
			return err
		}
		if !hasher.Equal(hasher.Bytes(data), fa.PackageFileHash) {
			return updateerr.New(updateerr.KindPackageCorrupt, entry, errPackageHash)
		}
	}
	if m.FullPackageFile != "" && !isRemoteURL(m.FullPackageFile) {
		data, err := zr.ReadFile(m.FullPackageFile)
		if err != nil {
			return err
		}
		if !hasher.Equal(hasher.Bytes(data), m.FullPackageHash) {
			return updateerr.New(updateerr.KindPackageCorrupt, m.FullPackageFile, errPackageHash)
		}
	}
	if m.FallbackInstallerFile != "" {
		data, err := zr.ReadFile(m.FallbackInstallerFile)
		if err != nil {
			return err
		}
		if !hasher.Equal(hasher.Bytes(data), m.FallbackInstallerHash) {
			return updateerr.New(updateerr.KindPackageCorrupt, m.FallbackInstallerFile, errPackageHash)
		}
	}
	return nil
}

// verifyPreimages implements §4.6 step 4, hashing every modified
// action's on-disk pre-image with a bounded worker pool: each hash is
// independent I/O, so fanning it out shortens the stage without
// changing what gets observed — no write happens in this stage either
// way.
func verifyPreimages(ctx context.Context, m *manifest.Manifest, targetDir string) error {
	type job struct {
		path       string
		sourceHash string
	}
	var jobs []job
	for _, fa := range m.Files {
		if fa.Action == manifest.ActionModified {
			jobs = append(jobs, job{path: fa.Path, sourceHash: fa.SourceHash})
		}
	}
	if len(jobs) == 0 {
		return nil
	}

	sem := make(chan struct{}, maxParallelHashers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		sem <- struct{}{}
		wg.Add(1)
		j := j
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			full := filepath.Join(targetDir, filepath.FromSlash(j.path))
			digest, err := hasher.File(full)
			mu.Lock()
			defer mu.Unlock()
			if firstErr != nil {
				return
			}
			if err != nil {
				firstErr = err
				return
			}
			if !hasher.Equal(digest, j.sourceHash) {
				firstErr = updateerr.New(updateerr.KindSourceMismatch, j.path, errSourceMismatch)
			}
		}()
	}
	wg.Wait()

	if ctx.Err() != nil {
		return updateerr.New(updateerr.KindCancelled, "", ctx.Err())
	}
	return firstErr
}

// reconstruct implements §4.6 step 5: every added/modified action is
// written to a sibling temp file next to its eventual target, hashed,
// and compared to TargetHash before it is allowed into the staged
// list that commit() will rename into place.
func reconstruct(m *manifest.Manifest, targetDir string, zr *archive.ZipReader) ([]staged, []string, error) {
	var out []staged
	var removed []string

	for _, fa := range m.Files {
		target := filepath.Join(targetDir, filepath.FromSlash(fa.Path))

		switch fa.Action {
		case manifest.ActionRemoved:
			removed = append(removed, target)
			continue

		case manifest.ActionAdded:
			data, err := zr.ReadFile(fa.AddFile)
			if err != nil {
				return out, nil, err
			}
			if !hasher.Equal(hasher.Bytes(data), fa.TargetHash) {
				return out, nil, updateerr.New(updateerr.KindTargetMismatch, fa.Path, errTargetMismatch)
			}
			tmp, err := fsutil.StageFile(target, data, 0644)
			if err != nil {
				return out, nil, err
			}
			out = append(out, staged{path: fa.Path, targetPath: target, tmpPath: tmp})

		case manifest.ActionModified:
			oldData, err := readFile(target)
			if err != nil {
				return out, nil, err
			}
			patch, err := zr.ReadFile(fa.PatchFile)
			if err != nil {
				return out, nil, err
			}
			newData, err := bsdiff.ApplyBytes(oldData, patch)
			if err != nil {
				return out, nil, err
			}
			if !hasher.Equal(hasher.Bytes(newData), fa.TargetHash) {
				return out, nil, updateerr.New(updateerr.KindTargetMismatch, fa.Path, errTargetMismatch)
			}
			mode := fsutil.FileMode(target)
			tmp, err := fsutil.StageFile(target, newData, mode)
			if err != nil {
				return out, nil, err
			}
			out = append(out, staged{path: fa.Path, targetPath: target, tmpPath: tmp})
		}
	}

	return out, removed, nil
}

// packageEntry returns the package-internal name a FileAction's
// PackageFileHash refers to, or "" for actions without one.
func packageEntry(fa manifest.FileAction) string {
	switch fa.Action {
	case manifest.ActionAdded:
		return fa.AddFile
	case manifest.ActionModified:
		return fa.PatchFile
	default:
		return ""
	}
}

func discardAll(files []staged) {
	for _, s := range files {
		fsutil.DiscardStaged(s.tmpPath)
	}
}

func checkCancelled(ctx context.Context) error {
	if ctx.Err() != nil {
		return updateerr.New(updateerr.KindCancelled, "", ctx.Err())
	}
	return nil
}

// sortByManifestOrder is used by commit() to satisfy §5's "renames
// happen in the manifest's Files order" ordering guarantee.
func sortByManifestOrder(m *manifest.Manifest, files []staged) []staged {
	order := make(map[string]int, len(m.Files))
	for i, fa := range m.Files {
		order[fa.Path] = i
	}
	out := append([]staged(nil), files...)
	sort.SliceStable(out, func(i, j int) bool {
		return order[out[i].path] < order[out[j].path]
	})
	return out
}
