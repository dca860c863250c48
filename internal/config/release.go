// Package config loads the optional release configuration consumed by
// the package builder (C5) — the [config.json] argument to the
// create-update-package CLI command (§6).
package config

import (
	"encoding/json"
	"os"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

// Release carries the informational and advisory fields of a Manifest
// that aren't derived from diffing old-dir against new-dir: release
// metadata, advisory flags, and the optional fallback/full-package
// recovery pointers (§3, §4.7).
type Release struct {
	ReleaseName     string   `json:"releaseName"`
	Changes         []string `json:"changes"`
	RestartRequired *bool    `json:"restartRequired"`
	Critical        bool     `json:"critical"`

	FallbackInstallerFile      string   `json:"fallbackInstallerFile"`
	FallbackInstallerArguments []string `json:"fallbackInstallerArguments"`

	FullPackageFile string `json:"fullPackageFile"`
}

// Default returns the zero-value Release with RestartRequired left
// unset (the builder defaults it to true per §3 when absent).
func Default() Release {
	return Release{}
}

// Load reads and parses a release config.json. An empty path is not
// an error — Load returns Default(). A path naming a file that cannot
// be read is a KindIO error.
func Load(path string) (Release, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return Release{}, updateerr.New(updateerr.KindIO, path, err)
	}
	var r Release
	if err := json.Unmarshal(data, &r); err != nil {
		return Release{}, updateerr.New(updateerr.KindMalformedManifest, path, err)
	}
	return r, nil
}

// RestartRequiredOrDefault returns the configured RestartRequired, or
// true (§3's default) when unset.
func (r Release) RestartRequiredOrDefault() bool {
	if r.RestartRequired == nil {
		return true
	}
	return *r.RestartRequired
}
