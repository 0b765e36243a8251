package mfr

import (
	"context"
	"errors"

	"github.com/absfs/mfr/internal/reentry"
	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/win32"
)

// GetFileAttributes returns the attributes of the winning candidate. An
// unmaterialized package or native file is reported read-only.
func (s *Shim) GetFileAttributes(ctx context.Context, name string) (win32.FileAttributes, error) {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.GetFileAttributes(ctx, name)
	}
	c := s.begin(ctx, OpGetAttributes, name)
	d := s.safeDecide(ctx, c, OpGetAttributes, name)
	if d == nil {
		return s.fs.GetFileAttributes(ctx, name)
	}
	if d.Outcome == Fail {
		return win32.INVALID_FILE_ATTRIBUTES, d.Err
	}

	var attrs win32.FileAttributes
	err := s.retry(c, func(q func(string) string) (err error) {
		attrs, err = s.fs.GetFileAttributes(ctx, q(d.Target))
		return err
	})
	if err != nil {
		return win32.INVALID_FILE_ATTRIBUTES, err
	}
	if d.ShouldReadOnly && !attrs.IsDir() {
		attrs = (attrs | win32.FILE_ATTRIBUTE_READONLY) &^ win32.FILE_ATTRIBUTE_NORMAL
	}
	return attrs, nil
}

// SetFileAttributes materializes the file first when it only exists in
// the package or native area
func (s *Shim) SetFileAttributes(ctx context.Context, name string, attrs win32.FileAttributes) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.SetFileAttributes(ctx, name, attrs)
	}
	c := s.begin(ctx, OpSetAttributes, name)
	d := s.safeDecide(ctx, c, OpSetAttributes, name)
	if d == nil {
		return s.fs.SetFileAttributes(ctx, name, attrs)
	}
	if d.Outcome == Fail {
		return d.Err
	}
	return s.retry(c, func(q func(string) string) error {
		return s.fs.SetFileAttributes(ctx, q(d.Target), attrs)
	})
}

// createOp picks the decision kind for a CreateFile request
func createOp(access win32.Access, disposition win32.CreationDisposition) Op {
	if access.Writes() || disposition.Modifies() {
		return OpOpenWrite
	}
	return OpOpenRead
}

// CreateFile opens or creates a file. Write access and any disposition
// other than OPEN_EXISTING copy the file into the redirection area first;
// new files are created there.
func (s *Shim) CreateFile(ctx context.Context, name string, access win32.Access, disposition win32.CreationDisposition, attrs win32.FileAttributes) (realfs.File, error) {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.CreateFile(ctx, name, access, disposition, attrs)
	}
	op := createOp(access, disposition)
	c := s.begin(ctx, op, name)
	d := s.safeDecide(ctx, c, op, name)
	if d == nil {
		return s.fs.CreateFile(ctx, name, access, disposition, attrs)
	}
	if d.Outcome == Fail {
		return nil, d.Err
	}

	var f realfs.File
	err := s.retry(c, func(q func(string) string) (err error) {
		f, err = s.fs.CreateFile(ctx, q(d.Target), access, disposition, attrs)
		return err
	})
	return f, err
}

// CreateDirectory creates the directory in the redirection area. A
// directory that already exists in any area counts as created unless
// strict mode is on.
func (s *Shim) CreateDirectory(ctx context.Context, name string) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.CreateDirectory(ctx, name)
	}
	c := s.begin(ctx, OpCreateDirectory, name)
	d := s.safeDecide(ctx, c, OpCreateDirectory, name)
	if d == nil {
		return s.fs.CreateDirectory(ctx, name)
	}
	switch d.Outcome {
	case Fail:
		return d.Err
	case FakeSuccess:
		return nil
	}
	return s.retry(c, func(q func(string) string) error {
		return s.fs.CreateDirectory(ctx, q(d.Target))
	})
}

// RemoveDirectory removes the redirected copy of a directory. A directory
// that only exists in the package or native area is reported removed
// without being touched.
func (s *Shim) RemoveDirectory(ctx context.Context, name string) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.RemoveDirectory(ctx, name)
	}
	return s.remove(ctx, OpRemoveDirectory, name, s.fs.RemoveDirectory)
}

// DeleteFile deletes the redirected copy of a file, faking the deletion
// of package and native files
func (s *Shim) DeleteFile(ctx context.Context, name string) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.DeleteFile(ctx, name)
	}
	return s.remove(ctx, OpDeleteFile, name, s.fs.DeleteFile)
}

func (s *Shim) remove(ctx context.Context, op Op, name string, real func(context.Context, string) error) error {
	c := s.begin(ctx, op, name)
	d := s.safeDecide(ctx, c, op, name)
	if d == nil {
		return real(ctx, name)
	}
	switch d.Outcome {
	case Fail:
		return d.Err
	case FakeSuccess:
		c.log.Debug("fake delete", "target", d.Target)
		return nil
	}
	return s.retry(c, func(q func(string) string) error {
		return real(ctx, q(d.Target))
	})
}

// paths decides the source and destination of a copy or move
func (s *Shim) paths(ctx context.Context, c *call, srcOp, dstOp Op, src, dst string) (sd, dd *Decision) {
	sd = s.safeDecide(ctx, c, srcOp, src)
	if sd == nil {
		return nil, nil
	}
	dd = s.safeDecide(ctx, c, dstOp, dst)
	if dd == nil {
		return nil, nil
	}
	return sd, dd
}

// CopyFile reads the source from wherever it exists without copying it
// and writes the destination into the redirection area
func (s *Shim) CopyFile(ctx context.Context, src, dst string, failIfExists bool) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.CopyFile(ctx, src, dst, failIfExists)
	}
	c := s.begin(ctx, OpCopySource, src)
	sd, dd := s.paths(ctx, c, OpCopySource, OpCopyDest, src, dst)
	if sd == nil {
		return s.fs.CopyFile(ctx, src, dst, failIfExists)
	}
	if sd.Outcome == Fail {
		return sd.Err
	}
	return s.retry(c, func(q func(string) string) error {
		return s.fs.CopyFile(ctx, q(sd.Target), q(dd.Target), failIfExists)
	})
}

// MoveFile moves the source from wherever it exists to the redirected
// destination. A package or native source cannot be removed: when the real
// move is denied the file is copied and the removal is faked.
func (s *Shim) MoveFile(ctx context.Context, src, dst string, flags win32.MoveFlags) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.MoveFile(ctx, src, dst, flags)
	}
	c := s.begin(ctx, OpMoveSource, src)
	sd, dd := s.paths(ctx, c, OpMoveSource, OpMoveDest, src, dst)
	if sd == nil {
		return s.fs.MoveFile(ctx, src, dst, flags)
	}
	if sd.Outcome == Fail {
		return sd.Err
	}
	err := s.retry(c, func(q func(string) string) error {
		return s.fs.MoveFile(ctx, q(sd.Target), q(dd.Target), flags)
	})
	if err == nil || !errors.Is(err, win32.ERROR_ACCESS_DENIED) {
		return err
	}
	if sd.Outcome != Proceed || sd.Winner == Redirected || sd.Winner == NoTier || sd.WinnerAttrs.IsDir() {
		return err
	}

	failIfExists := flags&win32.MOVEFILE_REPLACE_EXISTING == 0
	cerr := s.retry(c, func(q func(string) string) error {
		return s.fs.CopyFile(ctx, q(sd.Target), q(dd.Target), failIfExists)
	})
	if cerr != nil {
		c.log.Debug("move by copy failed", "src", sd.Target, "dst", dd.Target, "error", cerr)
		if errors.Is(cerr, win32.ERROR_FILE_EXISTS) {
			return win32.ERROR_ALREADY_EXISTS
		}
		return err
	}
	c.log.Debug("moved by copy, source removal faked", "src", sd.Target, "dst", dd.Target)
	return nil
}

var (
	_ realfs.Backend    = (*Shim)(nil)
	_ realfs.FindHandle = (*Find)(nil)
)
