// Package realfs provides the real-call side of the shim: the unshimmed file
// system primitives the redirection core calls once it has decided which path
// to use.
//
// Backend mirrors the Win32 calls the core wraps. Every method returns a
// win32.Errno on failure so the core can propagate or override codes exactly
// as the platform would. Two implementations are provided: Abs, which maps the
// Windows namespace onto any absfs.FileSystem, and NewOS, which serves the host
// disk through the same code.
package realfs

import (
	"context"
	"io"

	"github.com/absfs/mfr/win32"
)

// File is an open file handle returned by CreateFile.
type File interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer

	// Name returns the path the handle was opened with
	Name() string
}

// FindHandle is an open directory enumeration.
type FindHandle interface {
	// Next returns the next entry or ERROR_NO_MORE_FILES.
	Next(ctx context.Context) (win32.FindData, error)
	Close() error
}

// Backend is the set of real file system calls the core needs.
type Backend interface {
	GetFileAttributes(ctx context.Context, name string) (win32.FileAttributes, error)
	SetFileAttributes(ctx context.Context, name string, attrs win32.FileAttributes) error

	CreateFile(ctx context.Context, name string, access win32.Access, disposition win32.CreationDisposition, attrs win32.FileAttributes) (File, error)
	CreateDirectory(ctx context.Context, name string) error
	RemoveDirectory(ctx context.Context, name string) error
	DeleteFile(ctx context.Context, name string) error

	CopyFile(ctx context.Context, src, dst string, failIfExists bool) error
	MoveFile(ctx context.Context, src, dst string, flags win32.MoveFlags) error

	// FindFirstFile opens an enumeration of pattern, a directory followed by
	// a final element that may contain * and ? wildcards. It fails with
	// ERROR_FILE_NOT_FOUND when nothing matches.
	FindFirstFile(ctx context.Context, pattern string) (FindHandle, win32.FindData, error)

	// GetPrivateProfileString returns def together with ERROR_FILE_NOT_FOUND
	// when the file, section or key is missing.
	GetPrivateProfileString(ctx context.Context, section, key, def, file string) (string, error)
	WritePrivateProfileString(ctx context.Context, section, key, value, file string) error
}
