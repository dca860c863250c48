package manifest

import (
	"fmt"
	"strings"

	"github.com/deltapkg/deltapkg/internal/hasher"
	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// Validate enforces the structural invariants of §3: VersionId >
// FromVersionId, unique paths, path safety, per-variant field
// presence, and hash format. It does not verify the signature (see
// internal/sigcrypto) or any on-disk/package-file hash (see
// internal/packageapplier) — those are separate stages of the chain
// described in §4.6.
func Validate(m *Manifest) error {
	if m.VersionId <= m.FromVersionId {
		return malformed("versionId %d must be greater than fromVersionId %d", m.VersionId, m.FromVersionId)
	}

	seen := make(map[string]struct{}, len(m.Files))
	for _, fa := range m.Files {
		if err := validatePath(fa.Path); err != nil {
			return err
		}
		if _, dup := seen[fa.Path]; dup {
			return malformed("duplicate path %q in files", fa.Path)
		}
		seen[fa.Path] = struct{}{}

		if err := validateAction(fa); err != nil {
			return err
		}
	}

	if (m.FullPackageFile != "") != (m.FullPackageHash != "") {
		return malformed("fullPackageFile and fullPackageHash must both be present or both absent")
	}
	if (m.FallbackInstallerFile != "") != (m.FallbackInstallerHash != "") {
		return malformed("fallbackInstallerFile and fallbackInstallerHash must both be present or both absent")
	}
	if m.FullPackageHash != "" && !hasher.Valid(m.FullPackageHash) {
		return malformed("fullPackageHash is not a 64-character lowercase hex digest")
	}
	if m.FallbackInstallerHash != "" && !hasher.Valid(m.FallbackInstallerHash) {
		return malformed("fallbackInstallerHash is not a 64-character lowercase hex digest")
	}

	return nil
}

// validatePath enforces §3's "forward-slash relative, no .. segments,
// no drive letters, no absolute roots" rule and testable property 7.
func validatePath(p string) error {
	if p == "" {
		return malformed("empty path")
	}
	if strings.Contains(p, "\\") {
		return malformed("path %q contains a backslash", p)
	}
	if strings.HasPrefix(p, "/") {
		return malformed("path %q is absolute", p)
	}
	if len(p) >= 2 && p[1] == ':' {
		return malformed("path %q has a drive letter", p)
	}
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return malformed("path %q contains a .. segment", p)
		}
	}
	return nil
}

func validateAction(fa FileAction) error {
	switch fa.Action {
	case ActionAdded:
		if fa.AddFile == "" {
			return malformed("added action %q missing addFile", fa.Path)
		}
		if !hasher.Valid(fa.TargetHash) {
			return malformed("added action %q has invalid targetHash", fa.Path)
		}
		if !hasher.Valid(fa.PackageFileHash) {
			return malformed("added action %q has invalid packageFileHash", fa.Path)
		}
		if fa.PatchFile != "" || fa.SourceHash != "" {
			return malformed("added action %q carries modified-only fields", fa.Path)
		}
	case ActionModified:
		if fa.PatchFile == "" {
			return malformed("modified action %q missing patchFile", fa.Path)
		}
		if !hasher.Valid(fa.SourceHash) {
			return malformed("modified action %q has invalid sourceHash", fa.Path)
		}
		if !hasher.Valid(fa.TargetHash) {
			return malformed("modified action %q has invalid targetHash", fa.Path)
		}
		if !hasher.Valid(fa.PackageFileHash) {
			return malformed("modified action %q has invalid packageFileHash", fa.Path)
		}
		if fa.AddFile != "" {
			return malformed("modified action %q carries added-only field addFile", fa.Path)
		}
	case ActionRemoved:
		if fa.AddFile != "" || fa.PatchFile != "" || fa.SourceHash != "" ||
			fa.TargetHash != "" || fa.PackageFileHash != "" {
			return malformed("removed action %q carries fields other than path", fa.Path)
		}
	default:
		return malformed("file %q has unknown action %q", fa.Path, fa.Action)
	}
	return nil
}

func malformed(format string, args ...interface{}) error {
	return updateerr.New(updateerr.KindMalformedManifest, "", fmt.Errorf(format, args...))
}
