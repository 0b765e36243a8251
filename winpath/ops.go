package winpath

import (
	"strings"
	"unicode/utf8"
)

// EqualFold compares two canonical paths case-insensitively
func EqualFold(a, b string) bool {
	return strings.EqualFold(a, b)
}

// FoldKey returns a key under which case variants of s collide.
func FoldKey(s string) string {
	return strings.ToUpper(s)
}

// HasPrefixFold reports whether prefix names p or an ancestor of p,
// comparing case-insensitively and only on component boundaries:
// C:\Program Files is not a prefix of C:\Program Files (x86).
func HasPrefixFold(p, prefix string) bool {
	if prefix == "" || len(p) < len(prefix) {
		return false
	}
	if !strings.EqualFold(p[:len(prefix)], prefix) {
		return false
	}
	if len(p) == len(prefix) || prefix[len(prefix)-1] == Separator {
		return true
	}
	return p[len(prefix)] == Separator
}

// Rebase replaces the leading from of p with to. The substitution is
// anchored at len(from); p must satisfy HasPrefixFold(p, from).
func Rebase(p, from, to string) (string, bool) {
	if !HasPrefixFold(p, from) {
		return "", false
	}
	rest := strings.TrimLeft(p[len(from):], `\`)
	if rest == "" {
		return to, true
	}
	return Join(to, rest), true
}

// Join appends elem to dir with exactly one separator between them
func Join(dir, elem string) string {
	if dir == "" {
		return elem
	}
	elem = strings.TrimLeft(elem, `\`)
	if elem == "" {
		return dir
	}
	if dir[len(dir)-1] == Separator {
		return dir + elem
	}
	return dir + `\` + elem
}

// Volume returns the drive or UNC share of a canonical path
func Volume(p string) string {
	v, _ := volume(p)
	return v
}

// IsRoot reports whether p is a volume root (C:\ or \\server\share)
func IsRoot(p string) bool {
	v, n := volume(p)
	if v == "" {
		return false
	}
	return strings.TrimRight(p[n:], `\`) == ""
}

// Dir returns the parent of a canonical path. The parent of a root is the
// root itself.
func Dir(p string) string {
	if IsRoot(p) {
		return p
	}
	vol, _ := volume(p)
	i := strings.LastIndexByte(p, Separator)
	if i < len(vol) {
		return p
	}
	dir := p[:i]
	if len(dir) == len(vol) && len(vol) == 2 {
		return dir + `\`
	}
	return dir
}

// Base returns the last element of a canonical path, or "" for a root
func Base(p string) string {
	if IsRoot(p) {
		return ""
	}
	i := strings.LastIndexByte(p, Separator)
	return p[i+1:]
}

// Long returns p in the form the file system accepts: unchanged when it is
// short or already prefixed, otherwise qualified with \\?\ or \\?\UNC\.
func Long(p string) string {
	if len(p) < MaxPath {
		return p
	}
	return Qualify(p)
}

// Qualify prefixes an absolute drive or UNC path with the extended-length
// prefix regardless of its length. Other paths are returned unchanged.
func Qualify(p string) string {
	switch KindOf(p) {
	case DriveAbsolute:
		return longPrefix + p
	case UNCAbsolute:
		return longUNCPrefix + p[2:]
	}
	return p
}

// HasWildcard reports whether the final element of p contains * or ?
func HasWildcard(p string) bool {
	return strings.ContainsAny(Base(p), "*?")
}

// IsProtocol reports whether s starts with a URI scheme such as file: or
// ms-appdata:. Single letter schemes are drive letters and do not count.
func IsProtocol(s string) bool {
	i := strings.IndexByte(s, ':')
	if i < 2 {
		return false
	}
	if !isLetter(s[0]) {
		return false
	}
	for j := 1; j < i; j++ {
		c := s[j]
		if !isLetter(c) && !('0' <= c && c <= '9') && c != '+' && c != '-' && c != '.' {
			return false
		}
	}
	return true
}

// HasStreamSyntax reports whether s uses the name::$TYPE alternate data
// stream form.
func HasStreamSyntax(s string) bool {
	return strings.Contains(s, "::")
}

// HasEscapes reports whether s contains a %XX URL escape
func HasEscapes(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == '%' && isHex(s[i+1]) && isHex(s[i+2]) {
			return true
		}
	}
	return false
}

// ValidUTF8 reports whether s can be carried through the wide API family
func ValidUTF8(s string) bool {
	return utf8.ValidString(s)
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}
