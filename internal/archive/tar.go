// Package archive provides the TAR and ZIP adapters C5/C6 build on
// (§4.1/§2 C7): a deterministic TAR writer/reader for the optional
// full-install recovery archive (§4.7), and a ZIP writer/reader for
// the Package format itself (§3 "Package"). Both are interface-only
// collaborators; the safety envelope lives in internal/packagebuilder
// and internal/packageapplier.
package archive

import (
	"archive/tar"
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	gzip "github.com/klauspost/pgzip"
	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

//go:generate stringer -type=format -trimprefix=format
type format int

const (
	formatUnknown format = iota
	formatGzip
	formatZstd
	formatLZ4
	formatS2
)

var magicHeaders = []struct {
	header []byte
	f      format
}{
	{[]byte{0x1f, 0x8b, 8}, formatGzip},
	{[]byte{0x28, 0xb5, 0x2f, 0xfd}, formatZstd},
	{[]byte{0x2a, 0x4d, 0x18}, formatZstd},
	{[]byte{0x4, 0x22, 0x4d, 0x18}, formatLZ4},
	{[]byte{0xff, 0x06, 0x00, 0x00}, formatS2},
}

// detect sniffs r's leading bytes for a known compression magic, the
// same four-byte table the teacher's untar.go uses, narrowed to the
// codecs a full-install archive might reasonably ship in (bzip2 is
// deliberately excluded here: it is reserved for bsdiff patch streams
// within the Package format, not for full-archive compression).
func detect(r *bufio.Reader) format {
	z, err := r.Peek(4)
	if err != nil {
		return formatUnknown
	}
	for _, f := range magicHeaders {
		if bytes.Equal(f.header, z[:len(f.header)]) {
			return f.f
		}
	}
	return formatUnknown
}

// WriteTar walks root deterministically (lexicographic path order, the
// same ordering rule §4.5 requires of the manifest's Files list) and
// writes a TAR stream to w. It does not compress; wrap w in a codec's
// writer first if compression is desired.
func WriteTar(root string, w io.Writer) error {
	var paths []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		paths = append(paths, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return updateerr.New(updateerr.KindIO, root, err)
	}
	sort.Strings(paths)

	tw := tar.NewWriter(w)
	for _, rel := range paths {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := addTarFile(tw, full, rel); err != nil {
			return updateerr.New(updateerr.KindIO, full, err)
		}
	}
	return tw.Close()
}

func addTarFile(tw *tar.Writer, fullPath, entryName string) error {
	fi, err := os.Lstat(fullPath)
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(fi, "")
	if err != nil {
		return err
	}
	hdr.Name = entryName
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	f, err := os.Open(fullPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.Copy(tw, f)
	return err
}

// ExtractTarOptions controls ExtractTar, mirroring the teacher's
// untarOptions.
type ExtractTarOptions struct {
	IgnoreDirs bool
}

// ExtractTar reads a (optionally gzip/zstd/lz4/s2-compressed) TAR
// stream from r and writes each entry under destDir, adapted from the
// teacher's untar() function: same magic sniffing, same bounded
// concurrent-write fan-out, same context-cancellation-aware copy loop.
// Path traversal outside destDir is rejected, matching the path-safety
// invariant §3 already requires of manifest entries.
func ExtractTar(ctx context.Context, r io.Reader, destDir string, o ExtractTarOptions) error {
	bf := bufio.NewReader(r)
	switch f := detect(bf); f {
	case formatGzip:
		gz, err := gzip.NewReader(bf)
		if err != nil {
			return updateerr.New(updateerr.KindIO, "", err)
		}
		defer gz.Close()
		r = gz
	case formatZstd:
		dec, err := zstd.NewReader(bf, zstd.WithDecoderMaxWindow(64<<20))
		if err != nil {
			return updateerr.New(updateerr.KindIO, "", err)
		}
		defer dec.Close()
		r = dec
	case formatLZ4:
		r = lz4.NewReader(bf)
	case formatS2:
		r = s2.NewReader(bf)
	default:
		r = bf
	}

	tr := tar.NewReader(r)
	asyncWriters := make(chan struct{}, 16)
	var wg sync.WaitGroup
	var asyncErrMu sync.Mutex
	var asyncErr error

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return updateerr.New(updateerr.KindCancelled, "", ctx.Err())
		default:
		}

		asyncErrMu.Lock()
		err := asyncErr
		asyncErrMu.Unlock()
		if err != nil {
			wg.Wait()
			return err
		}

		hdr, err := tr.Next()
		if err == io.EOF {
			wg.Wait()
			asyncErrMu.Lock()
			defer asyncErrMu.Unlock()
			return asyncErr
		}
		if err != nil {
			wg.Wait()
			return updateerr.New(updateerr.KindIO, "", fmt.Errorf("tar file error: %w", err))
		}
		if hdr == nil {
			continue
		}
		if hdr.Typeflag == tar.TypeDir {
			if !o.IgnoreDirs {
				if path.Clean(filepath.ToSlash(hdr.Name)) != "." && !safeRelPath(hdr.Name) {
					return updateerr.New(updateerr.KindMalformedManifest, hdr.Name, fmt.Errorf("unsafe path in archive"))
				}
				if err := os.MkdirAll(filepath.Join(destDir, filepath.FromSlash(hdr.Name)), 0755); err != nil {
					return updateerr.New(updateerr.KindIO, hdr.Name, err)
				}
			}
			continue
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		if !safeRelPath(hdr.Name) {
			return updateerr.New(updateerr.KindMalformedManifest, hdr.Name, fmt.Errorf("unsafe path in archive"))
		}

		data := make([]byte, hdr.Size)
		if _, err := io.ReadFull(tr, data); err != nil {
			return updateerr.New(updateerr.KindIO, hdr.Name, err)
		}

		asyncWriters <- struct{}{}
		wg.Add(1)
		name, mode := hdr.Name, fs.FileMode(hdr.Mode)
		go func() {
			defer wg.Done()
			defer func() { <-asyncWriters }()
			if err := writeExtractedFile(destDir, name, data, mode); err != nil {
				asyncErrMu.Lock()
				if asyncErr == nil {
					asyncErr = err
				}
				asyncErrMu.Unlock()
			}
		}()
	}
}

func writeExtractedFile(destDir, name string, data []byte, mode fs.FileMode) error {
	full := filepath.Join(destDir, filepath.FromSlash(name))
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		return err
	}
	if mode == 0 {
		mode = 0644
	}
	return os.WriteFile(full, data, mode)
}

func safeRelPath(name string) bool {
	clean := path.Clean(filepath.ToSlash(name))
	if clean == "." || clean == "" {
		return false
	}
	if path.IsAbs(clean) {
		return false
	}
	if clean == ".." || len(clean) >= 3 && clean[:3] == "../" {
		return false
	}
	return true
}
