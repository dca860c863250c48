package main

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fatih/color"
	"github.com/minio/cli"
	"github.com/segmentio/go-prompt"

	"github.com/deltapkg/deltapkg/internal/archive"
	"github.com/deltapkg/deltapkg/internal/bsdiff"
	"github.com/deltapkg/deltapkg/internal/config"
	"github.com/deltapkg/deltapkg/internal/hasher"
	"github.com/deltapkg/deltapkg/internal/httpfetch"
	"github.com/deltapkg/deltapkg/internal/logger"
	"github.com/deltapkg/deltapkg/internal/manifest"
	"github.com/deltapkg/deltapkg/internal/packageapplier"
	"github.com/deltapkg/deltapkg/internal/packagebuilder"
	"github.com/deltapkg/deltapkg/internal/sigcrypto"
	"github.com/deltapkg/deltapkg/internal/updateerr"

	"encoding/json"
)

// decodeManifest parses raw meta.json bytes into m. Plain
// encoding/json is sufficient here — field order only matters for the
// canonical signing/verifying byte sequence, not for parsing.
func decodeManifest(raw []byte, m *manifest.Manifest) error {
	if err := json.Unmarshal(raw, m); err != nil {
		return updateerr.New(updateerr.KindMalformedManifest, "", err)
	}
	return nil
}

var greenSprintf = color.New(color.FgGreen, color.Bold).SprintfFunc()
var redSprintf = color.New(color.FgRed, color.Bold).SprintfFunc()

var commands = []cli.Command{
	generateKeysCmd,
	createUpdatePackageCmd,
	signCmd,
	hashCmd,
	createPatchCmd,
	applyPatchCmd,
	applyCmd,
	describeCmd,
}

func fatalIf(err error, msg string, args ...interface{}) {
	if err == nil {
		return
	}
	logger.ErrorIf(err, msg, args...)
	fmt.Fprintln(os.Stderr, redSprintf(msg, args...)+": "+err.Error())
	os.Exit(1)
}

// --- generate-keys ---------------------------------------------------

var generateKeysCmd = cli.Command{
	Name:   "generate-keys",
	Usage:  "generate an ECDSA P-256 key pair for signing update packages",
	Action: actionGenerateKeys,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "out-dir", Value: ".", Usage: "directory to write privateKey.pem/publicKey.pem into"},
	},
}

func actionGenerateKeys(c *cli.Context) {
	outDir := c.String("out-dir")

	priv, err := sigcrypto.GenerateKey()
	fatalIf(err, "Unable to generate key pair")

	privPEM, err := sigcrypto.MarshalPrivateKeyPEM(priv)
	fatalIf(err, "Unable to marshal private key")
	pubPEM, err := sigcrypto.MarshalPublicKeyPEM(&priv.PublicKey)
	fatalIf(err, "Unable to marshal public key")

	fatalIf(os.MkdirAll(outDir, 0755), "Unable to create %s", outDir)
	fatalIf(os.WriteFile(outDir+"/privateKey.pem", privPEM, 0600), "Unable to write privateKey.pem")
	fatalIf(os.WriteFile(outDir+"/publicKey.pem", pubPEM, 0644), "Unable to write publicKey.pem")

	fmt.Println(greenSprintf("Wrote %s/privateKey.pem and %s/publicKey.pem", outDir, outDir))
}

// --- create-update-package --------------------------------------------

var createUpdatePackageCmd = cli.Command{
	Name:      "create-update-package",
	Usage:     "diff two directory trees and build a signed update package",
	ArgsUsage: "OLD_DIR NEW_DIR OUTPUT_DIR PRIV_KEY [CONFIG_JSON]",
	Action:    actionCreateUpdatePackage,
	Flags: []cli.Flag{
		cli.Int64Flag{Name: "version-id", Usage: "new VersionId"},
		cli.StringFlag{Name: "version", Usage: "new Version string"},
		cli.Int64Flag{Name: "from-version-id", Usage: "FromVersionId this package transitions from"},
	},
}

func actionCreateUpdatePackage(c *cli.Context) {
	args := c.Args()
	if len(args) < 4 {
		cli.ShowCommandHelpAndExit(c, "create-update-package", 1)
	}
	oldDir, newDir, outputDir, privKeyPath := args[0], args[1], args[2], args[3]

	var configPath string
	if len(args) >= 5 {
		configPath = args[4]
	}
	release, err := config.Load(configPath)
	fatalIf(err, "Unable to load release config %s", configPath)

	privPEM, err := os.ReadFile(privKeyPath)
	fatalIf(err, "Unable to read private key %s", privKeyPath)
	priv, err := sigcrypto.PrivateKeyFromPEM(privPEM)
	fatalIf(err, "Unable to parse private key %s", privKeyPath)

	fatalIf(os.MkdirAll(outputDir, 0755), "Unable to create %s", outputDir)
	pkgPath := outputDir + "/update.pkg"

	m, err := packagebuilder.Build(packagebuilder.Options{
		OldDir:        oldDir,
		NewDir:        newDir,
		VersionId:     c.Int64("version-id"),
		Version:       c.String("version"),
		FromVersionId: c.Int64("from-version-id"),
		Release:       release,
		PrivateKey:    priv,
	}, pkgPath)
	fatalIf(err, "Unable to build update package")

	metaBytes, err := manifest.Encode(*m)
	fatalIf(err, "Unable to encode manifest")
	fatalIf(os.WriteFile(outputDir+"/meta.json", metaBytes, 0644), "Unable to write meta.json")

	fmt.Println(greenSprintf("Wrote %s and %s/meta.json", pkgPath, outputDir))
}

// --- sign --------------------------------------------------------------

var signCmd = cli.Command{
	Name:      "sign",
	Usage:     "hash a package file into a manifest and sign it in place",
	ArgsUsage: "INFO_JSON PRIV_KEY PACKAGE",
	Action:    actionSign,
}

// actionSign implements the standalone signing path for a manifest that
// already names every per-file action but was built (or hand-edited)
// without its builder ever running packagebuilder.Build: it attaches
// PACKAGE as the manifest's full-package recovery archive, hashing it
// with the same digest create-update-package embeds, signs the result,
// and rewrites INFO_JSON in place.
func actionSign(c *cli.Context) {
	args := c.Args()
	if len(args) != 3 {
		cli.ShowCommandHelpAndExit(c, "sign", 1)
	}
	manifestPath, privKeyPath, packagePath := args[0], args[1], args[2]

	raw, err := os.ReadFile(manifestPath)
	fatalIf(err, "Unable to read %s", manifestPath)
	var m manifest.Manifest
	fatalIf(decodeManifest(raw, &m), "Unable to parse %s", manifestPath)

	privPEM, err := os.ReadFile(privKeyPath)
	fatalIf(err, "Unable to read private key %s", privKeyPath)
	priv, err := sigcrypto.PrivateKeyFromPEM(privPEM)
	fatalIf(err, "Unable to parse private key %s", privKeyPath)

	out, err := signManifestForPackage(m, priv, packagePath)
	fatalIf(err, "Unable to sign %s", manifestPath)
	fatalIf(os.WriteFile(manifestPath, out, 0644), "Unable to write %s", manifestPath)

	fmt.Println(greenSprintf("Signed %s against %s", manifestPath, packagePath))
}

// signManifestForPackage hashes packagePath, attaches it to m as the
// full-package recovery archive, signs m's canonical form, and returns
// the encoded bytes. Split out from actionSign so it can be unit
// tested without going through fatalIf/os.Exit.
func signManifestForPackage(m manifest.Manifest, priv *ecdsa.PrivateKey, packagePath string) ([]byte, error) {
	digest, err := hasher.File(packagePath)
	if err != nil {
		return nil, err
	}
	m.FullPackageFile = filepath.Base(packagePath)
	m.FullPackageHash = digest

	canon, err := manifest.Canonicalize(m)
	if err != nil {
		return nil, err
	}
	sig, err := sigcrypto.Sign(priv, canon)
	if err != nil {
		return nil, err
	}
	m.Signature = sig

	return manifest.Encode(m)
}

// --- hash ----------------------------------------------------------------

var hashCmd = cli.Command{
	Name:      "hash",
	Usage:     "print the lowercase hex SHA-256 digest of a file",
	ArgsUsage: "FILE",
	Action:    actionHash,
}

func actionHash(c *cli.Context) {
	args := c.Args()
	if len(args) != 1 {
		cli.ShowCommandHelpAndExit(c, "hash", 1)
	}
	digest, err := hasher.File(args[0])
	fatalIf(err, "Unable to hash %s", args[0])
	fmt.Println(digest)
}

// --- create-patch / apply-patch -------------------------------------------

var createPatchCmd = cli.Command{
	Name:      "create-patch",
	Usage:     "create a bsdiff patch transforming OLD into NEW",
	ArgsUsage: "OLD NEW PATCH",
	Action:    actionCreatePatch,
}

func actionCreatePatch(c *cli.Context) {
	args := c.Args()
	if len(args) != 3 {
		cli.ShowCommandHelpAndExit(c, "create-patch", 1)
	}
	oldData, err := os.ReadFile(args[0])
	fatalIf(err, "Unable to read %s", args[0])
	newData, err := os.ReadFile(args[1])
	fatalIf(err, "Unable to read %s", args[1])

	out, err := os.Create(args[2])
	fatalIf(err, "Unable to create %s", args[2])
	defer out.Close()

	fatalIf(bsdiff.CreateBytes(oldData, newData, out), "Unable to create patch")
	fmt.Println(greenSprintf("Wrote %s", args[2]))
}

var applyPatchCmd = cli.Command{
	Name:      "apply-patch",
	Usage:     "reconstruct NEW from OLD and a bsdiff PATCH",
	ArgsUsage: "OLD PATCH NEW",
	Action:    actionApplyPatch,
}

func actionApplyPatch(c *cli.Context) {
	args := c.Args()
	if len(args) != 3 {
		cli.ShowCommandHelpAndExit(c, "apply-patch", 1)
	}
	oldData, err := os.ReadFile(args[0])
	fatalIf(err, "Unable to read %s", args[0])
	patch, err := os.ReadFile(args[1])
	fatalIf(err, "Unable to read %s", args[1])

	newData, err := bsdiff.ApplyBytes(oldData, patch)
	fatalIf(err, "Unable to apply patch")
	fatalIf(os.WriteFile(args[2], newData, 0644), "Unable to write %s", args[2])
	fmt.Println(greenSprintf("Wrote %s", args[2]))
}

// --- apply ---------------------------------------------------------------

var applyCmd = cli.Command{
	Name:      "apply",
	Usage:     "verify and apply a signed update package to a target directory",
	ArgsUsage: "PACKAGE TARGET_DIR",
	Action:    actionApply,
	Flags: []cli.Flag{
		cli.StringFlag{Name: "pubkey", Usage: "path to the embedded public key PEM"},
		cli.BoolFlag{Name: "confirm", Usage: "auto-confirm the fallback full-package replacement, if offered"},
		cli.DurationFlag{Name: "timeout", Value: 5 * time.Minute, Usage: "overall cancellation timeout"},
	},
}

func actionApply(c *cli.Context) {
	args := c.Args()
	if len(args) != 2 {
		cli.ShowCommandHelpAndExit(c, "apply", 1)
	}
	pkgPath, targetDir := args[0], args[1]

	pubPath := c.String("pubkey")
	if pubPath == "" {
		fatalIf(fmt.Errorf("--pubkey is required"), "Invalid arguments")
	}
	pubPEM, err := os.ReadFile(pubPath)
	fatalIf(err, "Unable to read public key %s", pubPath)
	pub, err := sigcrypto.PublicKeyFromPEM(pubPEM)
	fatalIf(err, "Unable to parse public key %s", pubPath)

	ctx, cancel := context.WithTimeout(context.Background(), c.Duration("timeout"))
	defer cancel()

	m, err := packageapplier.Apply(ctx, packageapplier.Options{
		PackagePath: pkgPath,
		TargetDir:   targetDir,
		PublicKey:   pub,
	})
	if err != nil && updateerr.Is(err, updateerr.KindSourceMismatch) {
		fmt.Println(redSprintf("Source file drift detected; delta apply aborted."))
		m2, fbErr := attemptFallback(ctx, pkgPath, targetDir, c.Bool("confirm"))
		fatalIf(fbErr, "Fallback replacement failed")
		m = m2
		err = nil
	}
	fatalIf(err, "Unable to apply %s", pkgPath)

	fmt.Println(greenSprintf("Applied update to version %s (VersionId %s)", m.Version, strconv.FormatInt(m.VersionId, 10)))
	if m.RestartRequired {
		fmt.Println(greenSprintf("A restart is required to finish applying this update."))
	}
}

// fallbackFetchTimeout bounds a single HTTP full-package download when
// FullPackageFile names a remote URL rather than a local ZIP entry.
const fallbackFetchTimeout = 5 * time.Minute

// attemptFallback re-opens pkgPath's manifest from the signature-verified
// path that already failed, and — only if it carries a full package —
// prompts for confirmation before replacing targetDir wholesale.
func attemptFallback(ctx context.Context, pkgPath, targetDir string, autoConfirm bool) (*manifest.Manifest, error) {
	zr, err := archive.OpenZip(pkgPath)
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	raw, err := zr.ReadFile("meta.json")
	if err != nil {
		return nil, err
	}
	var m manifest.Manifest
	if err := decodeManifest(raw, &m); err != nil {
		return nil, err
	}

	confirm := packageapplier.ConfirmFunc(func(p packageapplier.FallbackPrompt) bool {
		if autoConfirm {
			return true
		}
		return prompt.Confirm(greenSprintf("Replace %s with full package for version %s?", targetDir, p.Manifest.Version))
	})

	ua := httpfetch.UserAgent("updatectl", Version, "fallback")
	return packageapplier.ApplyFallback(ctx, packageapplier.FallbackOptions{
		PackagePath: pkgPath,
		TargetDir:   targetDir,
		Manifest:    &m,
		Confirm:     confirm,
		Reason:      "source file drift",
		Fetcher:     httpfetch.New(ua, fallbackFetchTimeout),
	})
}

// --- describe --------------------------------------------------------------

var describeCmd = cli.Command{
	Name:      "describe",
	Usage:     "print a package's manifest metadata without applying it",
	ArgsUsage: "PACKAGE",
	Action:    actionDescribe,
}

func actionDescribe(c *cli.Context) {
	args := c.Args()
	if len(args) != 1 {
		cli.ShowCommandHelpAndExit(c, "describe", 1)
	}
	zr, err := archive.OpenZip(args[0])
	fatalIf(err, "Unable to open %s", args[0])
	defer zr.Close()

	raw, err := zr.ReadFile("meta.json")
	fatalIf(err, "Unable to read meta.json")
	var m manifest.Manifest
	fatalIf(decodeManifest(raw, &m), "Unable to parse meta.json")

	fmt.Printf("Version:          %s (VersionId %d, from %d)\n", m.Version, m.VersionId, m.FromVersionId)
	fmt.Printf("ReleaseName:      %s\n", m.ReleaseName)
	fmt.Printf("RestartRequired:  %v\n", m.RestartRequired)
	fmt.Printf("Critical:         %v\n", m.Critical)
	fmt.Printf("Files:            %d\n", len(m.Files))
	for _, ch := range m.Changes {
		fmt.Printf("  - %s\n", ch)
	}
}
