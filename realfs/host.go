package realfs

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/absfs/absfs"
	"github.com/natefinch/atomic"
)

// NewOS returns a backend over the host disk. With an empty root on Windows,
// paths go to the real volumes; otherwise the Windows namespace is laid out
// below root the same way Abs lays it out in memory (root/C/..., root/UNC/...).
func NewOS(root string, opts ...Option) *Abs {
	h := &hostFiler{root: root}
	a := NewAbs(absfs.ExtendFiler(h), opts...)
	a.writer = h
	a.attrs = hostAttributes(h)
	return a
}

// hostFiler is an absfs.Filer over the os package
type hostFiler struct {
	root string
}

// rooted maps an absfs path below the configured root
func (h *hostFiler) rooted(name string) string {
	return filepath.Join(h.root, filepath.FromSlash(strings.TrimPrefix(name, "/")))
}

func (h *hostFiler) OpenFile(name string, flag int, perm os.FileMode) (absfs.File, error) {
	f, err := os.OpenFile(h.native(name), flag, perm)
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (h *hostFiler) Mkdir(name string, perm os.FileMode) error {
	return os.Mkdir(h.native(name), perm)
}

func (h *hostFiler) Remove(name string) error {
	return os.Remove(h.native(name))
}

func (h *hostFiler) Rename(oldpath, newpath string) error {
	return os.Rename(h.native(oldpath), h.native(newpath))
}

func (h *hostFiler) Stat(name string) (os.FileInfo, error) {
	return os.Stat(h.native(name))
}

func (h *hostFiler) Chmod(name string, mode os.FileMode) error {
	return os.Chmod(h.native(name), mode)
}

func (h *hostFiler) Chtimes(name string, atime time.Time, mtime time.Time) error {
	return os.Chtimes(h.native(name), atime, mtime)
}

func (h *hostFiler) Chown(name string, uid, gid int) error {
	return os.Chown(h.native(name), uid, gid)
}

// WriteFileAtomic replaces name through a temporary file and rename, so a
// concurrent reader sees either the old or the new content.
func (h *hostFiler) WriteFileAtomic(name string, r io.Reader) error {
	return atomic.WriteFile(h.native(name), r)
}
