// Package mfr redirects Win32-style file system and registry calls made by
// a packaged application among three storage areas: the read-only package
// image, a per-user writable redirection area, and the native file system.
package mfr

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/registry"
	"github.com/absfs/mfr/remediation"
	"github.com/absfs/mfr/winpath"
)

var (
	// ErrNoPackageRoot is returned when the configuration has no package root
	ErrNoPackageRoot = errors.New("no package root configured")
	// ErrNoWritableRoot is returned when the configuration has no writable package root
	ErrNoWritableRoot = errors.New("no writable package root configured")
	// ErrNotAbsolute is returned for a configured path that is not drive or UNC absolute
	ErrNotAbsolute = errors.New("configured path is not absolute")
	// ErrOverlappingRoots is returned when the package and writable roots nest
	ErrOverlappingRoots = errors.New("package root and writable package root overlap")
	// ErrNoBackend is returned by New without a file system backend
	ErrNoBackend = errors.New("no file system backend")
)

// Config is the read-only redirection configuration. It is fixed once New
// returns.
type Config struct {
	// PackageRoot is the install location of the package image
	PackageRoot string `json:"packageRoot"`
	// WritableRoot is the per-user writable mirror of PackageRoot
	WritableRoot string `json:"writableRoot"`
	// SystemDrive holds native paths that match no folder mapping, e.g. C:
	SystemDrive string `json:"systemDrive,omitempty"`
	// WorkingDir resolves relative paths; without it they are not redirected
	WorkingDir string          `json:"workingDir,omitempty"`
	Folders    []FolderMapping `json:"folders,omitempty"`
}

// Validate checks that every configured path is absolute and that the two
// roots are distinct
func (c Config) Validate() error {
	_, err := c.normalized()
	return err
}

// normalized returns c with every path in canonical form
func (c Config) normalized() (Config, error) {
	if c.PackageRoot == "" {
		return c, ErrNoPackageRoot
	}
	if c.WritableRoot == "" {
		return c, ErrNoWritableRoot
	}
	var err error
	if c.PackageRoot, err = absolute("packageRoot", c.PackageRoot); err != nil {
		return c, err
	}
	if c.WritableRoot, err = absolute("writableRoot", c.WritableRoot); err != nil {
		return c, err
	}
	if winpath.HasPrefixFold(c.PackageRoot, c.WritableRoot) || winpath.HasPrefixFold(c.WritableRoot, c.PackageRoot) {
		return c, ErrOverlappingRoots
	}
	if c.SystemDrive != "" {
		d := strings.TrimRight(c.SystemDrive, `\/`)
		if c.SystemDrive, err = absolute("systemDrive", d+`\`); err != nil {
			return c, err
		}
	}
	if c.WorkingDir != "" {
		if c.WorkingDir, err = absolute("workingDir", c.WorkingDir); err != nil {
			return c, err
		}
	}

	folders := make([]FolderMapping, len(c.Folders))
	for i, f := range c.Folders {
		name := f.Name
		if name == "" {
			name = fmt.Sprintf("folders[%d]", i)
		}
		if f.NativeBase, err = absolute(name+".native", f.NativeBase); err != nil {
			return c, err
		}
		if f.PackageBase, err = absolute(name+".package", f.PackageBase); err != nil {
			return c, err
		}
		if f.RedirectedBase, err = absolute(name+".redirected", f.RedirectedBase); err != nil {
			return c, err
		}
		folders[i] = f
	}
	c.Folders = folders
	return c, nil
}

func absolute(field, p string) (string, error) {
	n, err := winpath.Normalize(p, "")
	if errors.Is(err, winpath.ErrRelative) {
		return "", fmt.Errorf("%s %q: %w", field, p, ErrNotAbsolute)
	}
	if err != nil {
		return "", fmt.Errorf("%s %q: %w", field, p, err)
	}
	if n.Kind != winpath.DriveAbsolute && n.Kind != winpath.UNCAbsolute {
		return "", fmt.Errorf("%s %q: %w", field, p, ErrNotAbsolute)
	}
	return n.Full, nil
}

// Shim is the redirection layer. Its methods mirror the real calls of
// realfs.Backend and registry.Backend, so a Shim can stand wherever a
// backend is expected.
type Shim struct {
	cfg Config
	fs  realfs.Backend
	reg registry.Backend
	rem *remediation.Engine
	log *slog.Logger

	strictCreateDirectory bool

	// fault, when set, runs inside every redirection decision
	fault func(op Op)
}

// Option is a functional option for configuring a Shim
type Option func(*Shim)

// WithLogger sets the logger. The default discards everything.
func WithLogger(l *slog.Logger) Option {
	return func(s *Shim) {
		s.log = l
	}
}

// WithStrictCreateDirectory makes CreateDirectory fail with
// ERROR_ALREADY_EXISTS when the directory already exists in any area.
// By default such calls succeed.
func WithStrictCreateDirectory(strict bool) Option {
	return func(s *Shim) {
		s.strictCreateDirectory = strict
	}
}

// WithRegistry sets the registry the registry calls go through to
func WithRegistry(r registry.Backend) Option {
	return func(s *Shim) {
		s.reg = r
	}
}

// WithRemediation sets the rules consulted by the registry calls
func WithRemediation(e *remediation.Engine) Option {
	return func(s *Shim) {
		s.rem = e
	}
}

// New creates a Shim over the real file system backend fs
func New(cfg Config, fs realfs.Backend, opts ...Option) (*Shim, error) {
	if fs == nil {
		return nil, ErrNoBackend
	}
	n, err := cfg.normalized()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	s := &Shim{
		cfg: n,
		fs:  fs,
		log: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Config returns the normalized configuration
func (s *Shim) Config() Config {
	c := s.cfg
	c.Folders = append([]FolderMapping(nil), s.cfg.Folders...)
	return c
}

// Backend returns the real file system backend
func (s *Shim) Backend() realfs.Backend {
	return s.fs
}
