// Package config reads the redirection configuration of one package from a
// JSON-with-comments file.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/tailscale/hujson"

	"github.com/absfs/mfr"
	"github.com/absfs/mfr/remediation"
	"github.com/absfs/mfr/winpath"
)

var (
	ErrConfigRead    = errors.New("cannot read config file")
	ErrConfigInvalid = errors.New("invalid config")
	// ErrNoWritableRoot is returned when neither writableRoot nor
	// localCache is set
	ErrNoWritableRoot = errors.New("writableRoot or localCache is required")
)

// writableSuffix is where the platform keeps the writable package root
// below the package's LocalCache folder
const writableSuffix = `Local\Microsoft\WritablePackageRoot`

// File is the configuration file as written by hand.
type File struct {
	PackageRoot string `json:"packageRoot"`
	// WritableRoot defaults to <localCache>\Local\Microsoft\WritablePackageRoot
	WritableRoot string `json:"writableRoot,omitempty"`
	// LocalCache is the package's per-user LocalCache folder. It receives
	// the AppData and Local AppData redirects.
	LocalCache  string `json:"localCache,omitempty"`
	SystemDrive string `json:"systemDrive,omitempty"`
	UserProfile string `json:"userProfile,omitempty"`
	WorkingDir  string `json:"workingDir,omitempty"`

	// DefaultFolders adds the standard VFS folder table; it is on unless
	// set to false.
	DefaultFolders *bool `json:"defaultFolders,omitempty"`
	// Folders are added after the defaults. A folder with the name of a
	// default one replaces it.
	Folders []mfr.FolderMapping `json:"folders,omitempty"`

	StrictCreateDirectory bool               `json:"strictCreateDirectory,omitempty"`
	Remediation           []remediation.Rule `json:"remediation,omitempty"`
}

// Load reads and parses the file at path
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrConfigRead, path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes JSONC data
func Parse(data []byte) (*File, error) {
	// Standardize JSONC to JSON
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid JSONC: %w", ErrConfigInvalid, err)
	}

	var f File
	if err := json.Unmarshal(standardized, &f); err != nil {
		return nil, fmt.Errorf("%w: invalid JSON: %w", ErrConfigInvalid, err)
	}
	if f.PackageRoot == "" {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, mfr.ErrNoPackageRoot)
	}
	if f.WritableRoot == "" && f.LocalCache == "" {
		return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, ErrNoWritableRoot)
	}
	return &f, nil
}

// Config expands the file into a shim configuration
func (f *File) Config() (mfr.Config, error) {
	drive := f.SystemDrive
	if drive == "" {
		drive = "C:"
	}
	writable := f.WritableRoot
	if writable == "" {
		writable = winpath.Join(f.LocalCache, writableSuffix)
	}

	cfg := mfr.Config{
		PackageRoot:  f.PackageRoot,
		WritableRoot: writable,
		SystemDrive:  drive,
		WorkingDir:   f.WorkingDir,
	}
	if f.DefaultFolders == nil || *f.DefaultFolders {
		cfg.Folders = DefaultFolders(drive, f.UserProfile, f.PackageRoot, writable, f.LocalCache)
	}
	for _, m := range f.Folders {
		replaced := false
		for i := range cfg.Folders {
			if m.Name != "" && strings.EqualFold(cfg.Folders[i].Name, m.Name) {
				cfg.Folders[i] = m
				replaced = true
				break
			}
		}
		if !replaced {
			cfg.Folders = append(cfg.Folders, m)
		}
	}

	if err := cfg.Validate(); err != nil {
		return mfr.Config{}, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
	}
	return cfg, nil
}

// Options returns the shim options the file sets
func (f *File) Options() ([]mfr.Option, error) {
	opts := []mfr.Option{mfr.WithStrictCreateDirectory(f.StrictCreateDirectory)}
	if len(f.Remediation) > 0 {
		eng, err := remediation.New(f.Remediation)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfigInvalid, err)
		}
		opts = append(opts, mfr.WithRemediation(eng))
	}
	return opts, nil
}

// vfsFolder is one row of the standard VFS folder table
type vfsFolder struct {
	name   string
	native string // relative to the system drive
}

var vfsFolders = []vfsFolder{
	{"SystemX86", `Windows\SysWOW64`},
	{"SystemX64", `Windows\System32`},
	{"ProgramFilesX86", `Program Files (x86)`},
	{"ProgramFilesX64", `Program Files`},
	{"ProgramFilesCommonX86", `Program Files (x86)\Common Files`},
	{"ProgramFilesCommonX64", `Program Files\Common Files`},
	{"Fonts", `Windows\Fonts`},
	{"Windows", `Windows`},
	{"Common AppData", `ProgramData`},
}

// DefaultFolders returns the standard VFS folder mappings. The per-user
// AppData folders are only mapped when both userProfile and localCache are
// known; they redirect into localCache the way the platform does.
func DefaultFolders(systemDrive, userProfile, packageRoot, writableRoot, localCache string) []mfr.FolderMapping {
	drive := strings.TrimRight(systemDrive, `\/`) + `\`
	vfs := winpath.Join(packageRoot, "VFS")
	redirected := winpath.Join(writableRoot, "VFS")

	var out []mfr.FolderMapping
	for _, f := range vfsFolders {
		out = append(out, mfr.FolderMapping{
			Name:           f.name,
			NativeBase:     winpath.Join(drive, f.native),
			PackageBase:    winpath.Join(vfs, f.name),
			RedirectedBase: winpath.Join(redirected, f.name),
		})
	}
	if userProfile == "" || localCache == "" {
		return out
	}
	for _, f := range []struct{ name, native, cache string }{
		{"Local AppData", `AppData\Local`, "Local"},
		{"AppData", `AppData\Roaming`, "Roaming"},
	} {
		out = append(out, mfr.FolderMapping{
			Name:                   f.name,
			NativeBase:             winpath.Join(userProfile, f.native),
			PackageBase:            winpath.Join(vfs, f.name),
			RedirectedBase:         winpath.Join(localCache, f.cache),
			Local:                  true,
			RuntimeMapsNativeToVFS: true,
		})
	}
	return out
}
