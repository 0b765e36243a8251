package mfr

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/absfs/mfr/internal/reentry"
	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// findTier is one underlying enumeration. A nil handle is exhausted.
type findTier struct {
	tier    Tier
	dir     string
	h       realfs.FindHandle
	first   win32.FindData
	pending bool
}

// Find merges the enumerations of the redirected, package and native
// candidate directories into one stream. Tiers are drained in priority
// order. A file name is yielded once, from the highest tier that has it;
// directories are yielded from every tier that has them so their contents
// can be merged one level down.
type Find struct {
	requested string
	tiers     []findTier
	cur       int
	seen      map[string]bool
	last      win32.FindData
	log       *slog.Logger
	closed    bool
}

// Requested returns the pattern the enumeration was opened with
func (f *Find) Requested() string {
	return f.requested
}

// Last returns the most recently yielded entry
func (f *Find) Last() win32.FindData {
	return f.last
}

// Next returns the next entry or ERROR_NO_MORE_FILES
func (f *Find) Next(ctx context.Context) (win32.FindData, error) {
	if f.closed {
		return win32.FindData{}, win32.ERROR_INVALID_HANDLE
	}
	for f.cur < len(f.tiers) {
		t := &f.tiers[f.cur]
		var fd win32.FindData
		if t.pending {
			fd, t.pending = t.first, false
		} else {
			var err error
			fd, err = t.h.Next(ctx)
			if err != nil {
				if !errors.Is(err, win32.ERROR_NO_MORE_FILES) {
					f.log.Debug("enumeration tier failed", "tier", t.tier, "dir", t.dir, "error", err)
				}
				t.h.Close()
				t.h = nil
				f.cur++
				continue
			}
		}

		key := winpath.FoldKey(fd.FileName)
		if fd.IsDir() {
			if f.seen[key] && (fd.FileName == "." || fd.FileName == "..") {
				continue
			}
		} else if f.seen[key] {
			continue
		}
		f.seen[key] = true
		f.last = fd
		return fd, nil
	}
	return win32.FindData{}, win32.ERROR_NO_MORE_FILES
}

// Close closes every tier that is still open
func (f *Find) Close() error {
	if f.closed {
		return win32.ERROR_INVALID_HANDLE
	}
	f.closed = true
	var first error
	for i := range f.tiers {
		if h := f.tiers[i].h; h != nil {
			if err := h.Close(); err != nil && first == nil {
				first = err
			}
			f.tiers[i].h = nil
		}
	}
	return first
}

// splitPattern separates the directory of a search pattern from its final
// element
func splitPattern(raw string) (dir, spec string) {
	s := strings.ReplaceAll(raw, "/", `\`)
	i := strings.LastIndexByte(s, '\\')
	if i < 0 {
		return "", s
	}
	dir, spec = s[:i], s[i+1:]
	if dir == "" || strings.HasSuffix(dir, ":") || strings.HasSuffix(dir, `\`) {
		dir = s[:i+1]
	}
	return dir, spec
}

// FindFirstFile opens a merged enumeration of pattern and returns its
// first entry
func (s *Shim) FindFirstFile(ctx context.Context, pattern string) (realfs.FindHandle, win32.FindData, error) {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.FindFirstFile(ctx, pattern)
	}
	c := s.begin(ctx, OpFind, pattern)

	dir, spec := splitPattern(pattern)
	if dir == "" {
		// a bare pattern names the working directory
		dir = s.cfg.WorkingDir
	}
	if dir == "" || spec == "" {
		return s.fs.FindFirstFile(ctx, pattern)
	}
	d := s.safeDecide(ctx, c, OpFind, dir)
	if d == nil {
		return s.fs.FindFirstFile(ctx, pattern)
	}
	switch d.Outcome {
	case Passthrough:
		return s.fs.FindFirstFile(ctx, pattern)
	case Fail:
		c.log.Debug("find failed", "error", d.Err)
		return nil, win32.FindData{}, d.Err
	}

	f := &Find{requested: pattern, seen: make(map[string]bool), log: c.log}
	for _, cand := range d.Dirs {
		var (
			h     realfs.FindHandle
			first win32.FindData
		)
		err := s.retry(c, func(q func(string) string) (err error) {
			h, first, err = s.fs.FindFirstFile(ctx, q(winpath.Join(cand.Path, spec)))
			return err
		})
		if err != nil {
			if !errors.Is(err, win32.ERROR_FILE_NOT_FOUND) && !errors.Is(err, win32.ERROR_NO_MORE_FILES) {
				c.log.Debug("skipping enumeration tier", "tier", cand.Tier, "dir", cand.Path, "error", err)
			}
			continue
		}
		f.tiers = append(f.tiers, findTier{tier: cand.Tier, dir: cand.Path, h: h, first: first, pending: true})
	}

	fd, err := f.Next(ctx)
	if err != nil {
		f.Close()
		return nil, win32.FindData{}, win32.ERROR_FILE_NOT_FOUND
	}
	c.log.Debug("find", "tiers", len(f.tiers), "first", fd.FileName)
	return f, fd, nil
}
