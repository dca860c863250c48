package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/deltapkg/deltapkg/internal/hasher"
	"github.com/deltapkg/deltapkg/internal/manifest"
	"github.com/deltapkg/deltapkg/internal/sigcrypto"
	"github.com/deltapkg/deltapkg/internal/updateerr"
)

func TestDecodeManifestParsesValidJSON(t *testing.T) {
	var m manifest.Manifest
	raw := []byte(`{"versionId":2,"version":"2.0.0","fromVersionId":1}`)
	if err := decodeManifest(raw, &m); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if m.VersionId != 2 || m.Version != "2.0.0" || m.FromVersionId != 1 {
		t.Fatalf("unexpected parsed manifest: %+v", m)
	}
}

func TestDecodeManifestRejectsMalformedJSON(t *testing.T) {
	var m manifest.Manifest
	err := decodeManifest([]byte("{not json"), &m)
	if err == nil {
		t.Fatalf("expected error for malformed JSON, got nil")
	}
	if !updateerr.Is(err, updateerr.KindMalformedManifest) {
		t.Fatalf("expected KindMalformedManifest, got %v", err)
	}
}

func TestSignManifestForPackageEmbedsHashAndVerifies(t *testing.T) {
	priv, err := sigcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: unexpected error: %v", err)
	}

	pkgPath := filepath.Join(t.TempDir(), "update.pkg")
	if err := os.WriteFile(pkgPath, []byte("a built update package"), 0644); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	wantHash, err := hasher.File(pkgPath)
	if err != nil {
		t.Fatalf("hasher.File: unexpected error: %v", err)
	}

	in := manifest.Manifest{VersionId: 2, Version: "2.0.0", FromVersionId: 1}
	out, err := signManifestForPackage(in, priv, pkgPath)
	if err != nil {
		t.Fatalf("signManifestForPackage: unexpected error: %v", err)
	}

	var signed manifest.Manifest
	if err := decodeManifest(out, &signed); err != nil {
		t.Fatalf("decodeManifest: unexpected error: %v", err)
	}
	if signed.FullPackageFile != "update.pkg" {
		t.Fatalf("expected FullPackageFile %q, got %q", "update.pkg", signed.FullPackageFile)
	}
	if signed.FullPackageHash != wantHash {
		t.Fatalf("expected FullPackageHash %q, got %q", wantHash, signed.FullPackageHash)
	}
	if signed.Signature == "" {
		t.Fatalf("expected a non-empty signature")
	}

	canon, err := manifest.Canonicalize(signed)
	if err != nil {
		t.Fatalf("Canonicalize: unexpected error: %v", err)
	}
	if !sigcrypto.Verify(&priv.PublicKey, canon, signed.Signature) {
		t.Fatalf("expected the embedded signature to verify against the canonical form")
	}
}

func TestSignManifestForPackageRejectsMissingPackage(t *testing.T) {
	priv, err := sigcrypto.GenerateKey()
	if err != nil {
		t.Fatalf("GenerateKey: unexpected error: %v", err)
	}
	_, err = signManifestForPackage(manifest.Manifest{VersionId: 2, FromVersionId: 1}, priv, filepath.Join(t.TempDir(), "missing.pkg"))
	if err == nil {
		t.Fatalf("expected an error for a nonexistent package file")
	}
}
