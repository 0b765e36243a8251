//go:build !windows

package registry

import "github.com/absfs/mfr/win32"

// NewOS returns the host registry backend, which only exists on Windows
func NewOS() (Backend, error) {
	return nil, win32.ERROR_CALL_NOT_IMPLEMENTED
}
