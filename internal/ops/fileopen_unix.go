//go:build !windows

package ops

import (
	stderrors "errors"
	"os"
	"syscall"

	"github.com/pensum-app/pensum/internal/errors"
)

// openNoFollow opens a file read-only with O_NOFOLLOW so the final path
// component cannot be a symlink swapped in after ValidateImportPath.
func openNoFollow(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		}
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, errors.NewNotFound("file", path)
		}
		return nil, errors.NewInternal(err)
	}
	return os.NewFile(uintptr(fd), path), nil
}
