// Package remediation rewrites registry requests before they reach the real
// registry. Rules select keys by hive and a case-insensitive regular
// expression over the key path, and either narrow the requested access,
// pretend deletes succeeded, hide keys and values, or block versioned keys.
package remediation

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/mod/semver"

	"github.com/absfs/mfr/registry"
	"github.com/absfs/mfr/win32"
)

// Kind selects what a rule does to a matching key
type Kind string

const (
	ModifyKeyAccess Kind = "ModifyKeyAccess"
	FakeDelete      Kind = "FakeDelete"
	DeletionMarker  Kind = "DeletionMarker"
	Blocker         Kind = "Blocker"
)

// Access rewrites understood by ModifyKeyAccess rules
const (
	Full2RW         = "FULL2RW"
	Full2R          = "FULL2R"
	Full2MaxAllowed = "FULL2MAXALLOWED"
	RW2R            = "RW2R"
	RW2MaxAllowed   = "RW2MAXALLOWED"
)

var (
	ErrUnknownKind   = errors.New("unknown remediation kind")
	ErrUnknownAccess = errors.New("unknown access rewrite")
	ErrUnknownHive   = errors.New("unknown hive")
	ErrNoPatterns    = errors.New("rule has no patterns")
	ErrBadVersion    = errors.New("invalid version")
)

// Rule is one remediation entry as it appears in configuration.
//
// Patterns match the key path below the hive. For Blocker rules they match
// the parent of the versioned key and the key's own name is read as a
// version: keys above Above or below Below are blocked.
type Rule struct {
	Kind     Kind     `json:"type"`
	Hive     string   `json:"hive"`
	Patterns []string `json:"patterns"`
	Access   string   `json:"access,omitempty"`
	Values   []string `json:"values,omitempty"`
	Above    string   `json:"above,omitempty"`
	Below    string   `json:"below,omitempty"`
}

type compiled struct {
	kind     Kind
	hive     registry.Hive
	patterns []*regexp.Regexp
	values   []*regexp.Regexp
	access   string
	above    *Version
	below    *Version
}

// Engine evaluates a fixed rule table. It is safe for concurrent use.
type Engine struct {
	rules []compiled
}

// New compiles rules. Patterns are anchored at both ends.
func New(rules []Rule) (*Engine, error) {
	e := &Engine{}
	for i, r := range rules {
		c, err := compile(r)
		if err != nil {
			return nil, fmt.Errorf("remediation rule %d: %w", i, err)
		}
		e.rules = append(e.rules, c)
	}
	return e, nil
}

func compile(r Rule) (compiled, error) {
	c := compiled{kind: r.Kind, access: strings.ToUpper(r.Access)}
	switch r.Kind {
	case ModifyKeyAccess:
		switch c.access {
		case Full2RW, Full2R, Full2MaxAllowed, RW2R, RW2MaxAllowed:
		default:
			return c, fmt.Errorf("%w: %q", ErrUnknownAccess, r.Access)
		}
	case FakeDelete, DeletionMarker:
	case Blocker:
		var err error
		if c.above, err = optionalVersion(r.Above); err != nil {
			return c, err
		}
		if c.below, err = optionalVersion(r.Below); err != nil {
			return c, err
		}
	default:
		return c, fmt.Errorf("%w: %q", ErrUnknownKind, r.Kind)
	}

	h, ok := registry.ParseHive(r.Hive)
	if !ok {
		return c, fmt.Errorf("%w: %q", ErrUnknownHive, r.Hive)
	}
	c.hive = h

	if len(r.Patterns) == 0 {
		return c, ErrNoPatterns
	}
	var err error
	if c.patterns, err = compileAll(r.Patterns); err != nil {
		return c, err
	}
	if c.values, err = compileAll(r.Values); err != nil {
		return c, err
	}
	return c, nil
}

func compileAll(patterns []string) ([]*regexp.Regexp, error) {
	var out []*regexp.Regexp
	for _, p := range patterns {
		re, err := regexp.Compile(`(?i)^(?:` + p + `)$`)
		if err != nil {
			return nil, fmt.Errorf("pattern %q: %w", p, err)
		}
		out = append(out, re)
	}
	return out, nil
}

func optionalVersion(s string) (*Version, error) {
	if s == "" {
		return nil, nil
	}
	v, err := ParseVersion(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func anyMatch(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func (c *compiled) matches(hive registry.Hive, path string) bool {
	return c.hive == hive && anyMatch(c.patterns, registry.CleanPath(path))
}

// AdjustAccess returns the access mask to request instead of access for the
// key. The first matching ModifyKeyAccess rule wins.
func (e *Engine) AdjustAccess(hive registry.Hive, path string, access win32.RegAccess) win32.RegAccess {
	if e == nil {
		return access
	}
	for i := range e.rules {
		c := &e.rules[i]
		if c.kind != ModifyKeyAccess || !c.matches(hive, path) {
			continue
		}
		return rewrite(c.access, access)
	}
	return access
}

func rewrite(how string, access win32.RegAccess) win32.RegAccess {
	full := access&win32.KEY_ALL_ACCESS == win32.KEY_ALL_ACCESS
	keep := access & (win32.KEY_WOW64_32KEY | win32.KEY_WOW64_64KEY)
	switch how {
	case Full2RW:
		if full {
			return win32.KEY_READ | win32.KEY_WRITE | keep
		}
	case Full2R:
		if full {
			return win32.KEY_READ | keep
		}
	case Full2MaxAllowed:
		if full {
			return win32.KEY_MAXIMUM_ALLOWED | keep
		}
	case RW2R:
		if access.Writes() {
			return win32.KEY_READ | keep
		}
	case RW2MaxAllowed:
		if access.Writes() {
			return win32.KEY_MAXIMUM_ALLOWED | keep
		}
	}
	return access
}

// FakeDeleteKey reports whether deleting the key should succeed without
// touching the registry. Rules listing value patterns only cover values.
func (e *Engine) FakeDeleteKey(hive registry.Hive, path string) bool {
	return e.any(FakeDelete, hive, path, nil)
}

// FakeDeleteValue reports whether deleting the named value should succeed
// without touching the registry. A FakeDelete rule with no value patterns
// covers every value of its keys.
func (e *Engine) FakeDeleteValue(hive registry.Hive, path, name string) bool {
	return e.any(FakeDelete, hive, path, &name)
}

// HiddenKey reports whether a deletion marker hides the key
func (e *Engine) HiddenKey(hive registry.Hive, path string) bool {
	return e.any(DeletionMarker, hive, path, nil)
}

// HiddenValue reports whether a deletion marker hides the named value.
// Hiding a key hides all of its values.
func (e *Engine) HiddenValue(hive registry.Hive, path, name string) bool {
	return e.any(DeletionMarker, hive, path, &name)
}

func (e *Engine) any(kind Kind, hive registry.Hive, path string, value *string) bool {
	if e == nil {
		return false
	}
	for i := range e.rules {
		c := &e.rules[i]
		if c.kind != kind || !c.matches(hive, path) {
			continue
		}
		if len(c.values) == 0 || (value != nil && anyMatch(c.values, *value)) {
			return true
		}
	}
	return false
}

// Blocked reports whether a Blocker rule denies the key. The last path
// element is the version; keys whose name does not parse are never blocked.
func (e *Engine) Blocked(hive registry.Hive, path string) bool {
	if e == nil {
		return false
	}
	path = registry.CleanPath(path)
	i := strings.LastIndexByte(path, '\\')
	if i < 0 {
		return false
	}
	parent, name := path[:i], path[i+1:]
	for j := range e.rules {
		c := &e.rules[j]
		if c.kind != Blocker || !c.matches(hive, parent) {
			continue
		}
		v, err := ParseVersion(name)
		if err != nil {
			continue
		}
		if c.above != nil && v.Compare(*c.above) > 0 {
			return true
		}
		if c.below != nil && v.Compare(*c.below) < 0 {
			return true
		}
	}
	return false
}

// Version is a dotted version with an optional update number, as in the
// Java runtime's 1.8.0_301.
type Version struct {
	base   string
	update int
}

// ParseVersion accepts 1, 1.8, 1.8.0, 1.8.0_301 and a leading v
func ParseVersion(s string) (Version, error) {
	base, upd, hasUpdate := strings.Cut(strings.TrimPrefix(s, "v"), "_")
	v := Version{base: semver.Canonical("v" + base)}
	if v.base == "" || strings.ContainsAny(base, "-+") {
		return Version{}, fmt.Errorf("%w: %q", ErrBadVersion, s)
	}
	if hasUpdate {
		n, err := strconv.Atoi(upd)
		if err != nil || n < 0 {
			return Version{}, fmt.Errorf("%w: %q", ErrBadVersion, s)
		}
		v.update = n
	}
	return v, nil
}

// Compare returns -1, 0 or +1
func (v Version) Compare(w Version) int {
	if c := semver.Compare(v.base, w.base); c != 0 {
		return c
	}
	switch {
	case v.update < w.update:
		return -1
	case v.update > w.update:
		return 1
	}
	return 0
}

func (v Version) String() string {
	s := strings.TrimPrefix(v.base, "v")
	if v.update > 0 {
		s += "_" + strconv.Itoa(v.update)
	}
	return s
}
