package realfs

import (
	"context"
	"os"
	"path"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// FindFirstFile lists the directory part of pattern and returns the entries
// whose names match its final element. The dot entries are not reported.
func (a *Abs) FindFirstFile(ctx context.Context, pattern string) (FindHandle, win32.FindData, error) {
	p, err := winpath.Normalize(pattern, "")
	if err != nil || p.IsDevice() {
		return nil, win32.FindData{}, win32.ERROR_INVALID_NAME
	}
	base := winpath.Base(p.Full)
	if base == "" {
		return nil, win32.FindData{}, win32.ERROR_FILE_NOT_FOUND
	}
	dir, err := a.locate(winpath.Dir(p.Full))
	if err != nil {
		return nil, win32.FindData{}, err
	}
	if !dir.isDir() {
		return nil, win32.FindData{}, win32.ERROR_PATH_NOT_FOUND
	}
	if !winpath.HasWildcard(p.Full) {
		phys, info, ok := a.lookup(dir.phys, base)
		if !ok {
			return nil, win32.FindData{}, win32.ERROR_FILE_NOT_FOUND
		}
		return &listFind{}, a.findData(phys, info), nil
	}

	entries, err := a.readDir(dir.phys)
	if err != nil {
		return nil, win32.FindData{}, win32.FromError(err)
	}
	var found []win32.FindData
	for _, info := range entries {
		if !Match(base, info.Name()) {
			continue
		}
		found = append(found, a.findData(path.Join(dir.phys, info.Name()), info))
	}
	if len(found) == 0 {
		return nil, win32.FindData{}, win32.ERROR_FILE_NOT_FOUND
	}
	h := &listFind{entries: found[1:]}
	return h, found[0], nil
}

func (a *Abs) findData(phys string, info os.FileInfo) win32.FindData {
	d := win32.FindData{
		FileName:      path.Base(phys),
		Attributes:    a.attributesOf(phys, info),
		LastWriteTime: info.ModTime(),
	}
	if !info.IsDir() {
		d.Size = info.Size()
	}
	return d
}

// listFind replays a snapshot taken when the enumeration was opened
type listFind struct {
	entries []win32.FindData
	closed  bool
}

func (h *listFind) Next(ctx context.Context) (win32.FindData, error) {
	if h.closed {
		return win32.FindData{}, win32.ERROR_INVALID_HANDLE
	}
	if len(h.entries) == 0 {
		return win32.FindData{}, win32.ERROR_NO_MORE_FILES
	}
	d := h.entries[0]
	h.entries = h.entries[1:]
	return d, nil
}

func (h *listFind) Close() error {
	if h.closed {
		return win32.ERROR_INVALID_HANDLE
	}
	h.closed = true
	h.entries = nil
	return nil
}

// Match reports whether name matches a FindFirstFile pattern. Matching is
// case-insensitive; * matches any run of characters and ? any single one.
// A trailing ".*" also matches names without an extension, so "*.*" matches
// everything.
func Match(pattern, name string) bool {
	if pattern == "*" || pattern == "*.*" {
		return true
	}
	if match(pattern, name) {
		return true
	}
	if strings.HasSuffix(pattern, ".*") && !strings.Contains(name, ".") {
		return match(pattern[:len(pattern)-2], name)
	}
	return false
}

func match(pattern, name string) bool {
	for len(pattern) > 0 {
		pc, pn := utf8.DecodeRuneInString(pattern)
		switch pc {
		case '*':
			pattern = pattern[pn:]
			if pattern == "" {
				return true
			}
			for i := 0; i <= len(name); {
				if match(pattern, name[i:]) {
					return true
				}
				if i == len(name) {
					break
				}
				_, n := utf8.DecodeRuneInString(name[i:])
				i += n
			}
			return false
		case '?':
			if name == "" {
				return false
			}
			_, nn := utf8.DecodeRuneInString(name)
			pattern, name = pattern[pn:], name[nn:]
		default:
			if name == "" {
				return false
			}
			nc, nn := utf8.DecodeRuneInString(name)
			if pc != nc && unicode.ToUpper(pc) != unicode.ToUpper(nc) {
				return false
			}
			pattern, name = pattern[pn:], name[nn:]
		}
	}
	return name == ""
}
