//go:build windows

package realfs

import (
	"errors"
	"strings"

	"golang.org/x/sys/windows"

	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// native turns /C/dir into C:\dir and /UNC/srv/share/dir into
// \\srv\share\dir, qualifying long results.
func (h *hostFiler) native(name string) string {
	if h.root != "" {
		return winpath.Long(h.rooted(name))
	}
	parts := strings.Split(strings.Trim(name, "/"), "/")
	var p string
	switch {
	case len(parts) >= 3 && parts[0] == "UNC":
		p = `\\` + strings.Join(parts[1:], `\`)
	case len(parts) >= 1 && len(parts[0]) == 1:
		p = parts[0] + `:\` + strings.Join(parts[1:], `\`)
	default:
		p = `\` + strings.Join(parts, `\`)
	}
	return winpath.Long(p)
}

func hostAttributes(h *hostFiler) attributer {
	return h
}

func (h *hostFiler) Attributes(name string) (win32.FileAttributes, error) {
	p, err := windows.UTF16PtrFromString(h.native(name))
	if err != nil {
		return win32.INVALID_FILE_ATTRIBUTES, win32.ERROR_INVALID_NAME
	}
	v, err := windows.GetFileAttributes(p)
	if err != nil {
		return win32.INVALID_FILE_ATTRIBUTES, errnoOf(err)
	}
	return win32.FileAttributes(v), nil
}

func (h *hostFiler) SetAttributes(name string, attrs win32.FileAttributes) error {
	p, err := windows.UTF16PtrFromString(h.native(name))
	if err != nil {
		return win32.ERROR_INVALID_NAME
	}
	if err := windows.SetFileAttributes(p, uint32(attrs&^win32.FILE_ATTRIBUTE_DIRECTORY)); err != nil {
		return errnoOf(err)
	}
	return nil
}

func errnoOf(err error) win32.Errno {
	var e windows.Errno
	if errors.As(err, &e) {
		return win32.Errno(e)
	}
	return win32.FromError(err)
}
