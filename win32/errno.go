// Package win32 holds the Win32 vocabulary shared by the redirection core and
// the real-call backends: error codes, file attributes, access masks, creation
// dispositions and enumeration records.
//
// Values mirror the numeric constants of the Windows SDK so that a backend
// running on Windows can pass them straight through to the platform.
package win32

import (
	"errors"
	"io/fs"
	"strconv"
	"syscall"
)

// Errno is a Win32 error code. It is the error type returned by every
// backend call and by every synthesized shim result.
type Errno uint32

// Win32 error codes used by the shim and its backends.
const (
	ERROR_SUCCESS              Errno = 0
	ERROR_INVALID_FUNCTION     Errno = 1
	ERROR_FILE_NOT_FOUND       Errno = 2
	ERROR_PATH_NOT_FOUND       Errno = 3
	ERROR_ACCESS_DENIED        Errno = 5
	ERROR_INVALID_HANDLE       Errno = 6
	ERROR_NOT_SAME_DEVICE      Errno = 17
	ERROR_NO_MORE_FILES        Errno = 18
	ERROR_GEN_FAILURE          Errno = 31
	ERROR_SHARING_VIOLATION    Errno = 32
	ERROR_NOT_SUPPORTED        Errno = 50
	ERROR_FILE_EXISTS          Errno = 80
	ERROR_INVALID_PARAMETER    Errno = 87
	ERROR_CALL_NOT_IMPLEMENTED Errno = 120
	ERROR_INVALID_NAME         Errno = 123
	ERROR_DIR_NOT_EMPTY        Errno = 145
	ERROR_ALREADY_EXISTS       Errno = 183
	ERROR_FILENAME_EXCED_RANGE Errno = 206
	ERROR_NO_MORE_ITEMS        Errno = 259
	ERROR_DIRECTORY            Errno = 267
	ERROR_KEY_DELETED          Errno = 1018
)

var errnoText = map[Errno]string{
	ERROR_SUCCESS:              "the operation completed successfully",
	ERROR_INVALID_FUNCTION:     "incorrect function",
	ERROR_FILE_NOT_FOUND:       "the system cannot find the file specified",
	ERROR_PATH_NOT_FOUND:       "the system cannot find the path specified",
	ERROR_ACCESS_DENIED:        "access is denied",
	ERROR_INVALID_HANDLE:       "the handle is invalid",
	ERROR_NOT_SAME_DEVICE:      "the system cannot move the file to a different disk drive",
	ERROR_NO_MORE_FILES:        "there are no more files",
	ERROR_GEN_FAILURE:          "a device attached to the system is not functioning",
	ERROR_SHARING_VIOLATION:    "the process cannot access the file because it is being used by another process",
	ERROR_NOT_SUPPORTED:        "the request is not supported",
	ERROR_FILE_EXISTS:          "the file exists",
	ERROR_INVALID_PARAMETER:    "the parameter is incorrect",
	ERROR_CALL_NOT_IMPLEMENTED: "this function is not supported on this system",
	ERROR_INVALID_NAME:         "the filename, directory name, or volume label syntax is incorrect",
	ERROR_DIR_NOT_EMPTY:        "the directory is not empty",
	ERROR_ALREADY_EXISTS:       "cannot create a file when that file already exists",
	ERROR_FILENAME_EXCED_RANGE: "the filename or extension is too long",
	ERROR_NO_MORE_ITEMS:        "no more data is available",
	ERROR_DIRECTORY:            "the directory name is invalid",
	ERROR_KEY_DELETED:          "illegal operation attempted on a registry key that has been marked for deletion",
}

// Error implements the error interface
func (e Errno) Error() string {
	if s, ok := errnoText[e]; ok {
		return s
	}
	return "win32 error " + strconv.FormatUint(uint64(e), 10)
}

// Is maps Win32 codes onto the io/fs sentinel errors the same way
// syscall.Errno does on Windows.
func (e Errno) Is(target error) bool {
	switch target {
	case fs.ErrNotExist:
		return e == ERROR_FILE_NOT_FOUND || e == ERROR_PATH_NOT_FOUND
	case fs.ErrExist:
		return e == ERROR_ALREADY_EXISTS || e == ERROR_FILE_EXISTS || e == ERROR_DIR_NOT_EMPTY
	case fs.ErrPermission:
		return e == ERROR_ACCESS_DENIED
	case errors.ErrUnsupported:
		return e == ERROR_NOT_SUPPORTED || e == ERROR_CALL_NOT_IMPLEMENTED
	}
	return false
}

// NotFound reports whether e is one of the two not-found codes
func (e Errno) NotFound() bool {
	return e == ERROR_FILE_NOT_FOUND || e == ERROR_PATH_NOT_FOUND
}

// FromError converts an arbitrary error into the closest Win32 code.
// A nil error yields ERROR_SUCCESS.
func FromError(err error) Errno {
	if err == nil {
		return ERROR_SUCCESS
	}
	var errno Errno
	if errors.As(err, &errno) {
		return errno
	}
	var sys syscall.Errno
	if errors.As(err, &sys) {
		if e, ok := fromSyscall(sys); ok {
			return e
		}
	}
	switch {
	case errors.Is(err, fs.ErrNotExist):
		return ERROR_FILE_NOT_FOUND
	case errors.Is(err, fs.ErrExist):
		return ERROR_ALREADY_EXISTS
	case errors.Is(err, fs.ErrPermission):
		return ERROR_ACCESS_DENIED
	case errors.Is(err, fs.ErrInvalid):
		return ERROR_INVALID_PARAMETER
	case errors.Is(err, errors.ErrUnsupported):
		return ERROR_NOT_SUPPORTED
	}
	return ERROR_GEN_FAILURE
}
