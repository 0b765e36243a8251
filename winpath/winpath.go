// Package winpath normalizes Windows path strings without touching the disk.
//
// A Path keeps the caller's original string next to a canonical Full form:
// backslash separated, duplicate separators collapsed, dot segments resolved,
// no trailing separator except at a volume root, and with any \\?\ or \\.\
// prefix stripped when a drive letter or UNC share follows it. Case is
// preserved; comparisons are made case-insensitively with HasPrefixFold and
// EqualFold.
package winpath

import (
	"errors"
	"strings"
)

// Separator is the canonical path separator
const Separator = '\\'

// MaxPath is the classic MAX_PATH limit. Paths at or beyond it need the
// extended-length prefix to reach the file system.
const MaxPath = 260

const (
	longPrefix    = `\\?\`
	longUNCPrefix = `\\?\UNC\`
	devicePrefix  = `\\.\`
	ntPrefix      = `\??\`
)

var (
	// ErrEmpty is returned for an empty path
	ErrEmpty = errors.New("winpath: empty path")

	// ErrRelative is returned when a relative path has no usable working directory
	ErrRelative = errors.New("winpath: relative path without working directory")

	// ErrInvalid is returned for paths that cannot be parsed
	ErrInvalid = errors.New("winpath: invalid path")
)

// Kind tags the syntactic form of a path.
type Kind int

const (
	Unknown Kind = iota
	DriveAbsolute
	DriveRelative
	Rooted
	Relative
	UNCAbsolute
	LocalDevice
	RootLocalDevice
)

var kindNames = [...]string{
	Unknown:         "unknown",
	DriveAbsolute:   "drive-absolute",
	DriveRelative:   "drive-relative",
	Rooted:          "rooted",
	Relative:        "relative",
	UNCAbsolute:     "unc-absolute",
	LocalDevice:     "local-device",
	RootLocalDevice: "root-local-device",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

// Path is a normalized path.
type Path struct {
	// Original is the string the caller supplied
	Original string
	// Full is the canonical absolute form
	Full string
	// Kind is the form of Full. Relative inputs resolve to DriveAbsolute or
	// UNCAbsolute.
	Kind Kind
	// Drive is the offset of the drive letter in Full, or -1
	Drive int
	// Prefixed is set when Original carried a \\?\, \\.\ or \??\ prefix
	Prefixed bool
}

// IsLong reports whether Full is too long for a non-prefixed call
func (p Path) IsLong() bool {
	return len(p.Full) >= MaxPath
}

// IsDevice reports whether the path names a device namespace object
// rather than a drive or UNC file.
func (p Path) IsDevice() bool {
	return p.Kind == LocalDevice || p.Kind == RootLocalDevice
}

func (p Path) String() string {
	return p.Full
}

// Normalize canonicalizes raw. Relative, drive-relative and rooted inputs are
// resolved against cwd, which must itself be absolute; pass "" to reject
// them with ErrRelative. Normalize is idempotent on Full.
func Normalize(raw, cwd string) (Path, error) {
	if raw == "" {
		return Path{}, ErrEmpty
	}
	p := Path{Original: raw, Drive: -1}
	s := strings.ReplaceAll(raw, "/", `\`)

	if pre, rest, ok := splitDevicePrefix(s); ok {
		p.Prefixed = true
		switch {
		case hasPrefixFoldRaw(rest, `UNC\`):
			s = `\\` + rest[4:]
		case isDriveAbs(rest):
			s = rest
		case isDriveOnly(rest):
			s = rest + `\`
		default:
			p.Kind = RootLocalDevice
			if pre == devicePrefix {
				p.Kind = LocalDevice
			}
			body := collapse(rest)
			if body == "" {
				return Path{}, ErrInvalid
			}
			p.Full = pre + body
			return p, nil
		}
	}

	kind := KindOf(s)
	switch kind {
	case DriveRelative, Rooted, Relative:
		if cwd == "" {
			return Path{}, ErrRelative
		}
		base, err := Normalize(cwd, "")
		if err != nil || (base.Kind != DriveAbsolute && base.Kind != UNCAbsolute) {
			return Path{}, ErrRelative
		}
		s = resolve(s, kind, base.Full)
		kind = KindOf(s)
	case Unknown:
		return Path{}, ErrInvalid
	}

	vol, n := volume(s)
	if vol == "" {
		return Path{}, ErrInvalid
	}
	p.Kind = kind
	p.Full = clean(vol, s[n:], kind == DriveAbsolute)
	if kind == DriveAbsolute {
		p.Drive = 0
	}
	return p, nil
}

// KindOf reports the syntactic form of s without normalizing it.
func KindOf(s string) Kind {
	s = strings.ReplaceAll(s, "/", `\`)
	switch {
	case s == "":
		return Unknown
	case strings.HasPrefix(s, longPrefix), strings.HasPrefix(s, ntPrefix):
		return RootLocalDevice
	case strings.HasPrefix(s, devicePrefix):
		return LocalDevice
	case strings.HasPrefix(s, `\\`):
		return UNCAbsolute
	case isDriveAbs(s):
		return DriveAbsolute
	case isDriveOnly(s) || (len(s) > 2 && isLetter(s[0]) && s[1] == ':'):
		return DriveRelative
	case s[0] == Separator:
		return Rooted
	}
	return Relative
}

func splitDevicePrefix(s string) (prefix, rest string, ok bool) {
	for _, pre := range [...]string{longPrefix, devicePrefix, ntPrefix} {
		if strings.HasPrefix(s, pre) {
			return pre, s[len(pre):], true
		}
	}
	return "", s, false
}

func resolve(s string, kind Kind, cwd string) string {
	switch kind {
	case Relative:
		return Join(cwd, s)
	case Rooted:
		vol, _ := volume(cwd)
		return vol + s
	}
	// drive-relative: C:foo is relative to the working directory only when
	// the working directory is on drive C
	rest := s[2:]
	if isDriveAbs(cwd) && upper(cwd[0]) == upper(s[0]) {
		if rest == "" {
			return cwd
		}
		return Join(cwd, rest)
	}
	return s[:2] + `\` + rest
}

// volume returns the drive (C:) or UNC share (\\server\share) heading s,
// and the number of bytes of s it spans. Runs of separators inside a UNC
// head are collapsed in vol.
func volume(s string) (vol string, n int) {
	if len(s) >= 2 && isLetter(s[0]) && s[1] == ':' {
		return s[:2], 2
	}
	if !strings.HasPrefix(s, `\\`) {
		return "", 0
	}
	i := 2
	var parts []string
	for len(parts) < 2 {
		for i < len(s) && s[i] == Separator {
			i++
		}
		start := i
		for i < len(s) && s[i] != Separator {
			i++
		}
		if i == start {
			break
		}
		parts = append(parts, s[start:i])
	}
	if len(parts) == 0 {
		return "", 0
	}
	return `\\` + strings.Join(parts, `\`), i
}

// clean resolves dot segments below vol and rejoins the remainder.
// Drive roots keep their trailing separator.
func clean(vol, rest string, drive bool) string {
	var out []string
	for _, seg := range strings.Split(rest, `\`) {
		switch seg {
		case "", ".":
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, seg)
		}
	}
	if len(out) == 0 {
		if drive {
			return vol + `\`
		}
		return vol
	}
	return vol + `\` + strings.Join(out, `\`)
}

// collapse removes duplicate and trailing separators
func collapse(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSep := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == Separator {
			if prevSep {
				continue
			}
			prevSep = true
		} else {
			prevSep = false
		}
		b.WriteByte(c)
	}
	return strings.TrimRight(b.String(), `\`)
}

func isLetter(c byte) bool {
	return 'a' <= c && c <= 'z' || 'A' <= c && c <= 'Z'
}

func upper(c byte) byte {
	if 'a' <= c && c <= 'z' {
		return c - ('a' - 'A')
	}
	return c
}

func isDriveAbs(s string) bool {
	return len(s) >= 3 && isLetter(s[0]) && s[1] == ':' && s[2] == Separator
}

func isDriveOnly(s string) bool {
	return len(s) == 2 && isLetter(s[0]) && s[1] == ':'
}

func hasPrefixFoldRaw(s, prefix string) bool {
	return len(s) >= len(prefix) && strings.EqualFold(s[:len(prefix)], prefix)
}
