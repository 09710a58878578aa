//go:build windows

package ops

import (
	"os"

	"github.com/pensum-app/pensum/internal/errors"
)

// openNoFollow opens a file read-only. Windows has no O_NOFOLLOW;
// ValidateImportPath has already rejected symlinks.
func openNoFollow(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.NewInternal(err)
	}
	return f, nil
}
