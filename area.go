package mfr

import (
	"github.com/absfs/mfr/winpath"
)

// PathArea is where a path conceptually lives
type PathArea int

const (
	Unknown PathArea = iota
	NativeArea
	PackagePvadArea
	PackageVfsArea
	RedirectionAreaWritablePackageRoot
	RedirectionAreaOther
	OtherDriveArea
	UncPath
	ProtocolPath
	Unsupported
)

var areaNames = [...]string{
	Unknown:                            "unknown",
	NativeArea:                         "native",
	PackagePvadArea:                    "package-pvad",
	PackageVfsArea:                     "package-vfs",
	RedirectionAreaWritablePackageRoot: "redirection-writable-package-root",
	RedirectionAreaOther:               "redirection-other",
	OtherDriveArea:                     "other-drive",
	UncPath:                            "unc",
	ProtocolPath:                       "protocol",
	Unsupported:                        "unsupported",
}

func (a PathArea) String() string {
	if a < 0 || int(a) >= len(areaNames) {
		return "unknown"
	}
	return areaNames[a]
}

// Redirectable reports whether paths in the area can have candidates in
// more than one storage area
func (a PathArea) Redirectable() bool {
	switch a {
	case NativeArea, PackagePvadArea, PackageVfsArea,
		RedirectionAreaWritablePackageRoot, RedirectionAreaOther:
		return true
	}
	return false
}

// Classify normalizes raw against the configured working directory and
// tags it with exactly one area. It does no I/O. When normalization fails
// the returned Path only carries Original.
func (s *Shim) Classify(raw string) (winpath.Path, PathArea) {
	if raw == "" {
		return winpath.Path{Drive: -1}, Unknown
	}
	if winpath.IsProtocol(raw) {
		return winpath.Path{Original: raw, Drive: -1}, ProtocolPath
	}
	if winpath.HasStreamSyntax(raw) || winpath.HasEscapes(raw) || !winpath.ValidUTF8(raw) {
		return winpath.Path{Original: raw, Drive: -1}, Unsupported
	}
	p, err := winpath.Normalize(raw, s.cfg.WorkingDir)
	if err != nil {
		return winpath.Path{Original: raw, Drive: -1}, Unknown
	}
	if p.IsDevice() {
		return p, Unsupported
	}
	return p, s.area(p.Full)
}

// area assigns a canonical absolute path to an area. The package root is
// compared first, then the writable package root, then the folder bases.
func (s *Shim) area(full string) PathArea {
	cfg := &s.cfg
	if winpath.HasPrefixFold(full, cfg.PackageRoot) {
		for i := range cfg.Folders {
			if winpath.HasPrefixFold(full, cfg.Folders[i].PackageBase) {
				return PackageVfsArea
			}
		}
		return PackagePvadArea
	}

	if winpath.EqualFold(full, cfg.WritableRoot) {
		// the root itself never maps back into the package
		return RedirectionAreaOther
	}
	if winpath.HasPrefixFold(full, cfg.WritableRoot) {
		return RedirectionAreaWritablePackageRoot
	}

	for i := range cfg.Folders {
		f := &cfg.Folders[i]
		if f.Local && winpath.HasPrefixFold(full, f.RedirectedBase) {
			return RedirectionAreaOther
		}
	}

	for i := range cfg.Folders {
		if winpath.HasPrefixFold(full, cfg.Folders[i].NativeBase) {
			return NativeArea
		}
	}
	if cfg.SystemDrive != "" && winpath.HasPrefixFold(full, cfg.SystemDrive) {
		return NativeArea
	}

	if winpath.KindOf(full) == winpath.UNCAbsolute {
		return UncPath
	}
	return OtherDriveArea
}
