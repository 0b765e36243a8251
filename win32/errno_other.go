//go:build !windows

package win32

import "syscall"

func fromSyscall(e syscall.Errno) (Errno, bool) {
	switch e {
	case syscall.ENOTEMPTY:
		return ERROR_DIR_NOT_EMPTY, true
	case syscall.ENOTDIR:
		return ERROR_PATH_NOT_FOUND, true
	case syscall.EISDIR:
		return ERROR_ACCESS_DENIED, true
	case syscall.ENAMETOOLONG:
		return ERROR_FILENAME_EXCED_RANGE, true
	case syscall.EXDEV:
		return ERROR_NOT_SAME_DEVICE, true
	case syscall.ENOENT:
		return ERROR_FILE_NOT_FOUND, true
	case syscall.EEXIST:
		return ERROR_ALREADY_EXISTS, true
	case syscall.EACCES, syscall.EPERM, syscall.EROFS:
		return ERROR_ACCESS_DENIED, true
	}
	return 0, false
}
