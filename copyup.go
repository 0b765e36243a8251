package mfr

import (
	"context"
	"errors"
	"fmt"

	"github.com/absfs/mfr/internal/reentry"
	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// Materialize copies src into dst unless dst already exists. Missing
// ancestors of dst are created first. A directory is copied as a single
// empty node. It reports whether dst exists afterwards.
func (s *Shim) Materialize(ctx context.Context, src, dst string) bool {
	ctx, _ = reentry.Enter(ctx)
	sp, err := winpath.Normalize(src, s.cfg.WorkingDir)
	if err != nil {
		return false
	}
	dp, err := winpath.Normalize(dst, s.cfg.WorkingDir)
	if err != nil {
		return false
	}
	pr := newProbe(s.fs)
	if pr.exists(ctx, dp.Full) {
		return true
	}
	attrs, ok := pr.stat(ctx, sp.Full)
	if !ok {
		return false
	}
	if err := s.copyUp(ctx, pr, sp.Full, attrs, dp.Full, rebaseDirs{}, false, nil); err != nil {
		s.log.Debug("materialize failed", "src", sp.Full, "dst", dp.Full, "error", err)
		return false
	}
	return true
}

// rebaseDirs maps a directory below the destination base to the matching
// directory below the source base
type rebaseDirs struct {
	from, to string
}

// basesOf pairs the base of the winning candidate with the redirected base
func basesOf(from, to Candidate) rebaseDirs {
	return rebaseDirs{from: from.Base, to: to.Base}
}

// source returns the directory dir's attributes are copied from, or "".
// Without bases the ancestor of src at the same depth serves when the two
// share a name.
func (r rebaseDirs) source(dir, sameDepth string) string {
	if r.from == "" || r.to == "" {
		if sameDepth != "" && winpath.EqualFold(winpath.Base(dir), winpath.Base(sameDepth)) {
			return sameDepth
		}
		return ""
	}
	p, _ := winpath.Rebase(dir, r.to, r.from)
	return p
}

// copyUp copies src, whose attributes are attrs, to dst in the
// redirection area
func (s *Shim) copyUp(ctx context.Context, pr *probe, src string, attrs win32.FileAttributes, dst string, rb rebaseDirs, dry bool, created *[]string) error {
	// Check if already materialized
	if pr.exists(ctx, dst) {
		return nil
	}

	if err := s.copyUpParents(ctx, pr, src, dst, rb, dry, created); err != nil {
		return err
	}

	if attrs.IsDir() {
		return s.makeDir(ctx, pr, dst, src, dry, created)
	}
	return s.copyUpFile(ctx, pr, src, attrs, dst, dry)
}

// copyUpFile copies content and attributes. Losing a race to another
// materializer of the same file counts as success.
func (s *Shim) copyUpFile(ctx context.Context, pr *probe, src string, attrs win32.FileAttributes, dst string, dry bool) error {
	if !dry {
		err := s.fs.CopyFile(ctx, winpath.Long(src), winpath.Long(dst), true)
		if errors.Is(err, win32.ERROR_FILE_EXISTS) || errors.Is(err, win32.ERROR_ALREADY_EXISTS) {
			// the winner's copy may differ from ours
			pr.invalidate(dst)
			return nil
		}
		if err != nil {
			return fmt.Errorf("copy %s to %s: %w", src, dst, err)
		}
	}
	pr.put(dst, attrs|win32.FILE_ATTRIBUTE_ARCHIVE)
	return nil
}

// copyUpParents creates the missing ancestors of dst top-down, each with
// the attributes of its source directory under rb
func (s *Shim) copyUpParents(ctx context.Context, pr *probe, src, dst string, rb rebaseDirs, dry bool, created *[]string) error {
	var dirs, sources []string
	dir, from := winpath.Dir(dst), winpath.Dir(src)
	for !pr.exists(ctx, dir) {
		if winpath.IsRoot(dir) {
			return fmt.Errorf("%s: %w", dir, win32.ERROR_PATH_NOT_FOUND)
		}
		dirs = append(dirs, dir)
		sources = append(sources, rb.source(dir, from))
		dir = winpath.Dir(dir)
		if from != "" && !winpath.IsRoot(from) {
			from = winpath.Dir(from)
		} else {
			from = ""
		}
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.makeDir(ctx, pr, dirs[i], sources[i], dry, created); err != nil {
			return err
		}
	}
	return nil
}

// mkdirAll creates dir and its missing ancestors without copying any
// attributes
func (s *Shim) mkdirAll(ctx context.Context, pr *probe, dir string, dry bool, created *[]string) error {
	var dirs []string
	for !pr.exists(ctx, dir) {
		if winpath.IsRoot(dir) {
			return fmt.Errorf("%s: %w", dir, win32.ERROR_PATH_NOT_FOUND)
		}
		dirs = append(dirs, dir)
		dir = winpath.Dir(dir)
	}
	for i := len(dirs) - 1; i >= 0; i-- {
		if err := s.makeDir(ctx, pr, dirs[i], "", dry, created); err != nil {
			return err
		}
	}
	return nil
}

// makeDir creates one directory node, copying the settable attributes of
// from when it is set
func (s *Shim) makeDir(ctx context.Context, pr *probe, dir, from string, dry bool, created *[]string) error {
	attrs := win32.FILE_ATTRIBUTE_DIRECTORY
	if from != "" {
		if a, ok := pr.stat(ctx, from); ok {
			attrs |= a.Settable() &^ win32.FILE_ATTRIBUTE_NORMAL
		}
	}
	if !dry {
		err := s.fs.CreateDirectory(ctx, winpath.Long(dir))
		if err != nil && !errors.Is(err, win32.ERROR_ALREADY_EXISTS) {
			return fmt.Errorf("create %s: %w", dir, err)
		}
		if set := attrs &^ win32.FILE_ATTRIBUTE_DIRECTORY; set != 0 {
			// attributes are best effort
			_ = s.fs.SetFileAttributes(ctx, winpath.Long(dir), set)
		}
	}
	pr.put(dir, attrs)
	if created != nil {
		*created = append(*created, dir)
	}
	return nil
}
