package packageapplier

import (
	"errors"
	"os"

	"github.com/deltapkg/deltapkg/internal/updateerr"
)

var (
	errSignature      = errors.New("signature does not verify against embedded public key")
	errPackageHash    = errors.New("package entry hash does not match manifest")
	errSourceMismatch = errors.New("on-disk file does not match recorded source hash")
	errTargetMismatch = errors.New("reconstructed file does not match recorded target hash")
)

// readFile reads the on-disk pre-image for a modified action. A
// missing file is reported as KindSourceMismatch, not KindIO: from the
// integrity chain's point of view, an absent file is just another form
// of "doesn't match SourceHash".
func readFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, updateerr.New(updateerr.KindSourceMismatch, path, errSourceMismatch)
		}
		return nil, updateerr.New(updateerr.KindIO, path, err)
	}
	return data, nil
}
