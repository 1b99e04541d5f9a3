package namespace

import (
	"path/filepath"
	"strings"

	"github.com/prn-tf/workroom/internal/domain"
)

// validatePathElement rejects any string that cannot be a single path
// element: empty, dot names, or anything containing a separator. This is the
// first line of the root-confinement contract; resolveUnder is the second.
func validatePathElement(name string) error {
	if name == "" || name == "." || name == ".." {
		return domain.ErrInvalidFileName
	}
	if strings.ContainsAny(name, `/\`) {
		return domain.ErrInvalidFileName
	}
	if strings.ContainsRune(name, 0) {
		return domain.ErrInvalidFileName
	}
	return nil
}

// resolveUnder joins elems beneath root and verifies the cleaned result is
// still confined to root. Every element is validated individually first; the
// prefix check guards the joined path as a whole.
func resolveUnder(root string, elems ...string) (string, error) {
	for _, e := range elems {
		if err := validatePathElement(e); err != nil {
			return "", err
		}
	}

	joined := filepath.Join(append([]string{root}, elems...)...)
	cleanRoot := filepath.Clean(root)
	if joined != cleanRoot && !strings.HasPrefix(joined, cleanRoot+string(filepath.Separator)) {
		return "", domain.ErrInvalidFileName
	}
	return joined, nil
}
