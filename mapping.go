package mfr

import (
	"github.com/absfs/mfr/winpath"
)

// FolderMapping ties a native folder to its package VFS folder and to the
// folder in the redirection area that receives copies of both.
type FolderMapping struct {
	// Name is the VFS folder name, e.g. SystemX64. Informational.
	Name string `json:"name,omitempty"`

	NativeBase     string `json:"native"`
	PackageBase    string `json:"package"`
	RedirectedBase string `json:"redirected"`

	// Local marks a local redirect: the redirected base is the per-user
	// location the platform itself already sends the native folder to.
	// Local mappings are tried before traditional ones.
	Local bool `json:"local,omitempty"`

	// RuntimeMapsNativeToVFS is set when the platform already merges the
	// package folder into the native one, so a native winner is used in
	// place without being copied.
	RuntimeMapsNativeToVFS bool `json:"runtimeMapsNativeToVFS,omitempty"`
}

// Tier is one of the three storage areas a request can resolve to
type Tier int

const (
	NoTier Tier = iota
	Redirected
	Package
	Native
)

var tierNames = [...]string{
	NoTier:     "none",
	Redirected: "redirected",
	Package:    "package",
	Native:     "native",
}

func (t Tier) String() string {
	if t < 0 || int(t) >= len(tierNames) {
		return "none"
	}
	return tierNames[t]
}

// Candidate is one storage area's equivalent of a requested path
type Candidate struct {
	Tier Tier
	// Base is the mapping base the path was rebased onto
	Base string
	Path string
}

// Resolution is the outcome of matching a classified path to a mapping.
type Resolution struct {
	Mapping FolderMapping
	// Valid is false when no mapping applies. The path is then not
	// redirected.
	Valid bool
	// Synthetic marks the package root to writable package root mapping
	// used for PVAD paths. It has no native side.
	Synthetic bool
	// Self is the tier the requested path itself belongs to
	Self Tier

	Redirected Candidate
	Package    Candidate
	Native     Candidate
}

// Candidate returns the candidate for tier t; its Path is empty when the
// mapping has no such side.
func (r *Resolution) Candidate(t Tier) Candidate {
	switch t {
	case Redirected:
		return r.Redirected
	case Package:
		return r.Package
	case Native:
		return r.Native
	}
	return Candidate{}
}

// ResolveMapping finds the mapping for a classified path and derives the
// three candidate paths by substituting the matched base. Local mappings
// are tried before traditional ones and the longest matching base wins
// within each group.
func (s *Shim) ResolveMapping(p winpath.Path, area PathArea) Resolution {
	full := p.Full
	switch area {
	case NativeArea:
		if m, ok := s.match(full, func(f *FolderMapping) string { return f.NativeBase }); ok {
			return s.resolved(m, full, Native, m.NativeBase)
		}

	case PackageVfsArea:
		if m, ok := s.match(full, func(f *FolderMapping) string { return f.PackageBase }); ok {
			return s.resolved(m, full, Package, m.PackageBase)
		}

	case PackagePvadArea:
		return s.pvad(full, Package, s.cfg.PackageRoot)

	case RedirectionAreaWritablePackageRoot:
		if m, ok := s.match(full, func(f *FolderMapping) string {
			if f.Local {
				return ""
			}
			return f.RedirectedBase
		}); ok {
			return s.resolved(m, full, Redirected, m.RedirectedBase)
		}
		return s.pvad(full, Redirected, s.cfg.WritableRoot)

	case RedirectionAreaOther:
		if m, ok := s.match(full, func(f *FolderMapping) string {
			if !f.Local {
				return ""
			}
			return f.RedirectedBase
		}); ok {
			return s.resolved(m, full, Redirected, m.RedirectedBase)
		}
	}
	return Resolution{}
}

// match returns the mapping whose base (as picked by base) is the longest
// prefix of full, preferring local mappings
func (s *Shim) match(full string, base func(*FolderMapping) string) (FolderMapping, bool) {
	for _, local := range []bool{true, false} {
		best := -1
		for i := range s.cfg.Folders {
			f := &s.cfg.Folders[i]
			if f.Local != local {
				continue
			}
			b := base(f)
			if b == "" || !winpath.HasPrefixFold(full, b) {
				continue
			}
			if best < 0 || len(b) > len(base(&s.cfg.Folders[best])) {
				best = i
			}
		}
		if best >= 0 {
			return s.cfg.Folders[best], true
		}
	}
	return FolderMapping{}, false
}

func (s *Shim) resolved(m FolderMapping, full string, self Tier, from string) Resolution {
	r := Resolution{Mapping: m, Valid: true, Self: self}
	r.Redirected = rebase(Redirected, full, from, m.RedirectedBase)
	r.Package = rebase(Package, full, from, m.PackageBase)
	r.Native = rebase(Native, full, from, m.NativeBase)
	return r
}

// pvad resolves a path against the package root to writable package root
// mapping
func (s *Shim) pvad(full string, self Tier, from string) Resolution {
	m := FolderMapping{PackageBase: s.cfg.PackageRoot, RedirectedBase: s.cfg.WritableRoot}
	return Resolution{
		Mapping:    m,
		Valid:      true,
		Synthetic:  true,
		Self:       self,
		Redirected: rebase(Redirected, full, from, m.RedirectedBase),
		Package:    rebase(Package, full, from, m.PackageBase),
		Native:     Candidate{Tier: Native},
	}
}

func rebase(t Tier, full, from, to string) Candidate {
	c := Candidate{Tier: t, Base: to}
	if to == "" {
		return c
	}
	if p, ok := winpath.Rebase(full, from, to); ok {
		c.Path = p
	}
	return c
}
