package permissions

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

const (
	// DirMode is the only mode accepted for config directories.
	DirMode os.FileMode = 0o700
	// FileMode is the only mode accepted for config and results files.
	FileMode os.FileMode = 0o600
)

var (
	ErrNotOwned  = errors.New("not owned by the current user")
	ErrBadMode   = errors.New("group and others must have no access")
	ErrForbidden = errors.New("permission denied")
)

// Check verifies that path is owned by the current user and that group and
// others have no access to it. Directories must be 0700 and files 0600.
func Check(path string) error {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		if errors.Is(err, unix.EACCES) {
			return fmt.Errorf("%s: %w", path, ErrForbidden)
		}
		return &fs.PathError{Op: "stat", Path: path, Err: err}
	}

	uid := uint32(os.Getuid())
	if st.Uid != uid {
		return fmt.Errorf("%s %w (uid %d)", path, ErrNotOwned, uid)
	}

	mode := os.FileMode(st.Mode & 0o777)
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		if mode != DirMode {
			return fmt.Errorf("user should have full access to %s but %w (mode %#o)", path, ErrBadMode, mode)
		}
	case unix.S_IFREG:
		if mode != FileMode {
			return fmt.Errorf("user should have read/write access to %s but %w (mode %#o)", path, ErrBadMode, mode)
		}
	}

	return nil
}

// IsPermissionError reports whether err comes from Check or from the OS
// refusing access.
func IsPermissionError(err error) bool {
	return errors.Is(err, ErrNotOwned) ||
		errors.Is(err, ErrBadMode) ||
		errors.Is(err, ErrForbidden) ||
		errors.Is(err, fs.ErrPermission)
}
