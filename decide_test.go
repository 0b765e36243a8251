package mfr

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/absfs/mfr/win32"
)

func TestPlanPassthrough(t *testing.T) {
	s, _ := newTestShim(t)
	ctx := context.Background()

	for _, raw := range []string{`D:\Data\x.txt`, `\\server\share\x.txt`, `http://example.com/x`, `C:\Temp\x.txt`} {
		d, err := s.Plan(ctx, OpOpenRead, raw)
		if err != nil {
			t.Fatalf("Plan(%q): %v", raw, err)
		}
		if d.Outcome != Passthrough || d.Target != raw || d.ShouldRedirect {
			t.Errorf("Plan(%q) = %v target %q", raw, d.Outcome, d.Target)
		}
	}

	if _, err := s.Plan(ctx, Op(99), `C:\x`); err == nil {
		t.Error("Plan accepted an unknown operation")
	}
}

// For every combination of existing candidates the winner is the first
// existing one in priority order, and planning twice gives the same answer.
func TestPriorityDeterminism(t *testing.T) {
	ctx := context.Background()
	const rel = `App\data.bin`
	bases := map[Tier]string{
		Redirected: writable + `\VFS\Common AppData\`,
		Package:    pkgRoot + `\VFS\Common AppData\`,
		Native:     `C:\ProgramData\`,
	}
	requests := map[string]string{
		"native":     `C:\ProgramData\` + rel,
		"package":    pkgRoot + `\VFS\Common AppData\` + rel,
		"redirected": writable + `\VFS\Common AppData\` + rel,
	}

	for mask := 0; mask < 8; mask++ {
		for name, raw := range requests {
			t.Run(fmt.Sprintf("%s/%03b", name, mask), func(t *testing.T) {
				s, a := newTestShim(t)
				mkdir(t, a, `C:\ProgramData\App`)
				want := NoTier
				for i, tier := range []Tier{Redirected, Package, Native} {
					if mask&(1<<i) == 0 {
						continue
					}
					writeFile(t, a, bases[tier]+rel, tier.String())
					if want == NoTier {
						want = tier
					}
				}

				d1, _ := s.Plan(ctx, OpOpenRead, raw)
				d2, _ := s.Plan(ctx, OpOpenRead, raw)
				if d1.Winner != want {
					t.Errorf("winner = %v, want %v", d1.Winner, want)
				}
				if d1.Winner != d2.Winner || d1.Target != d2.Target || d1.Outcome != d2.Outcome {
					t.Errorf("plans differ: %v %q / %v %q", d1.Winner, d1.Target, d2.Winner, d2.Target)
				}
				if want == NoTier {
					if d1.Outcome != Fail || !errors.Is(d1.Err, win32.ERROR_FILE_NOT_FOUND) {
						t.Errorf("missing everywhere: %v %v", d1.Outcome, d1.Err)
					}
					return
				}
				if got := readFile(t, a, d1.Target); got != want.String() {
					t.Errorf("target %q holds %q, want %q", d1.Target, got, want)
				}
			})
		}
	}
}

// The package root and local redirection folders walk their own candidate
// orders: the package root has no native tier.
func TestPriorityOtherAreas(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name   string
		area   PathArea
		raw    string
		parent string
		bases  map[Tier]string
	}{
		{
			name:   "package root",
			area:   PackagePvadArea,
			raw:    pkgRoot + `\data\x.bin`,
			parent: pkgRoot + `\data`,
			bases: map[Tier]string{
				Redirected: writable + `\data\x.bin`,
				Package:    pkgRoot + `\data\x.bin`,
			},
		},
		{
			name:   "local redirection",
			area:   RedirectionAreaOther,
			raw:    localCache + `\Local\App\x.bin`,
			parent: `C:\Users\me\AppData\Local\App`,
			bases: map[Tier]string{
				Redirected: localCache + `\Local\App\x.bin`,
				Package:    pkgRoot + `\VFS\Local AppData\App\x.bin`,
				Native:     `C:\Users\me\AppData\Local\App\x.bin`,
			},
		},
	}

	for _, tt := range tests {
		order := Priority(tt.area)
		if len(order) != len(tt.bases) {
			t.Fatalf("%s: priority %v, want %d tiers", tt.name, order, len(tt.bases))
		}
		for mask := 0; mask < 1<<len(order); mask++ {
			t.Run(fmt.Sprintf("%s/%03b", tt.name, mask), func(t *testing.T) {
				s, a := newTestShim(t)
				mkdir(t, a, tt.parent)
				want := NoTier
				for i, tier := range order {
					if mask&(1<<i) == 0 {
						continue
					}
					writeFile(t, a, tt.bases[tier], tier.String())
					if want == NoTier {
						want = tier
					}
				}

				d, err := s.Plan(ctx, OpOpenRead, tt.raw)
				if err != nil {
					t.Fatal(err)
				}
				if d.Area != tt.area {
					t.Fatalf("area = %v, want %v", d.Area, tt.area)
				}
				if tt.area == PackagePvadArea && d.Resolution.Native.Path != "" {
					t.Errorf("package root request has a native candidate %q", d.Resolution.Native.Path)
				}
				if d.Winner != want {
					t.Errorf("winner = %v, want %v", d.Winner, want)
				}
				if want == NoTier {
					if d.Outcome != Fail || !errors.Is(d.Err, win32.ERROR_FILE_NOT_FOUND) {
						t.Errorf("missing everywhere: %v %v", d.Outcome, d.Err)
					}
					return
				}
				if got := readFile(t, a, d.Target); got != want.String() {
					t.Errorf("target %q holds %q, want %q", d.Target, got, want)
				}
			})
		}
	}
}

// Every candidate is looked up at most once per decision.
func TestProbeMemoized(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	writeFile(t, a, `C:\ProgramData\App\native.txt`, "n")

	d, err := s.Plan(ctx, OpOpenWrite, `C:\ProgramData\App\native.txt`)
	if err != nil {
		t.Fatal(err)
	}
	cb := newCountingBackend(a)
	s.fs = cb
	d2, _ := s.Plan(ctx, OpOpenWrite, `C:\ProgramData\App\native.txt`)
	if d2.Probes.Lookups != cb.calls["GetFileAttributes"] {
		t.Errorf("Lookups = %d, backend saw %d", d2.Probes.Lookups, cb.calls["GetFileAttributes"])
	}
	seen := make(map[string]bool)
	for _, name := range cb.names["GetFileAttributes"] {
		if seen[name] {
			t.Errorf("%q looked up twice", name)
		}
		seen[name] = true
	}
	if d.Probes != d2.Probes {
		t.Errorf("probe stats differ: %+v / %+v", d.Probes, d2.Probes)
	}
}

// Reference scenario: a directory created below a native folder lands in
// the redirection area, with the native parent mirrored there first.
func TestCreateDirectoryRedirected(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	mkdir(t, a, `C:\ProgramData\App`)

	if err := s.CreateDirectory(ctx, `C:\ProgramData\App\NewFolder`); err != nil {
		t.Fatalf("CreateDirectory: %v", err)
	}
	red := writable + `\VFS\Common AppData\App\NewFolder`
	attrs, err := a.GetFileAttributes(ctx, red)
	if err != nil || !attrs.IsDir() {
		t.Errorf("redirected directory: %v %v", attrs, err)
	}
	if exists(a, `C:\ProgramData\App\NewFolder`) {
		t.Error("native directory was created")
	}

	// the new directory is now visible at the requested path
	attrs, err = s.GetFileAttributes(ctx, `C:\ProgramData\App\NewFolder`)
	if err != nil || !attrs.IsDir() {
		t.Errorf("GetFileAttributes through shim: %v %v", attrs, err)
	}
}

func TestCreateDirectoryMissingParent(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()

	err := s.CreateDirectory(ctx, `C:\ProgramData\Nowhere\NewFolder`)
	if !errors.Is(err, win32.ERROR_PATH_NOT_FOUND) {
		t.Errorf("CreateDirectory error = %v, want %v", err, win32.ERROR_PATH_NOT_FOUND)
	}
	if exists(a, writable+`\VFS\Common AppData\Nowhere`) {
		t.Error("missing ancestor was invented")
	}
}

func TestCreateDirectoryExisting(t *testing.T) {
	ctx := context.Background()
	const dir = `C:\ProgramData\App`

	s, a := newTestShim(t)
	mkdir(t, a, pkgRoot+`\VFS\Common AppData\App`)
	if err := s.CreateDirectory(ctx, dir); err != nil {
		t.Errorf("CreateDirectory over package directory: %v", err)
	}
	if !exists(a, writable+`\VFS\Common AppData\App`) {
		t.Error("package directory was not materialized")
	}

	strict, a := newTestShim(t, WithStrictCreateDirectory(true))
	mkdir(t, a, dir)
	if err := strict.CreateDirectory(ctx, dir); !errors.Is(err, win32.ERROR_ALREADY_EXISTS) {
		t.Errorf("strict CreateDirectory error = %v, want %v", err, win32.ERROR_ALREADY_EXISTS)
	}

	// a directory only the package has exists just the same
	strict, a = newTestShim(t, WithStrictCreateDirectory(true))
	mkdir(t, a, pkgRoot+`\VFS\Common AppData\App`)
	if err := strict.CreateDirectory(ctx, dir); !errors.Is(err, win32.ERROR_ALREADY_EXISTS) {
		t.Errorf("strict CreateDirectory over package directory error = %v, want %v", err, win32.ERROR_ALREADY_EXISTS)
	}
	if exists(a, dir) {
		t.Error("native directory was created")
	}

	s, a = newTestShim(t)
	writeFile(t, a, dir, "file")
	if err := s.CreateDirectory(ctx, dir); !errors.Is(err, win32.ERROR_ALREADY_EXISTS) {
		t.Errorf("CreateDirectory over file error = %v, want %v", err, win32.ERROR_ALREADY_EXISTS)
	}
}

// Reference scenario: a package-only file is reported read-only until it
// has been copied.
func TestAttributesReadOnly(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	writeFile(t, a, pkgRoot+`\VFS\SystemX64\contoso.dll`, "dll")
	mkdir(t, a, pkgRoot+`\VFS\SystemX64\contoso`)

	attrs, err := s.GetFileAttributes(ctx, `C:\Windows\System32\contoso.dll`)
	if err != nil {
		t.Fatalf("GetFileAttributes: %v", err)
	}
	if !attrs.Has(win32.FILE_ATTRIBUTE_READONLY) || attrs.Has(win32.FILE_ATTRIBUTE_NORMAL) {
		t.Errorf("package file attributes = %v, want read-only", attrs)
	}

	attrs, err = s.GetFileAttributes(ctx, `C:\Windows\System32\contoso`)
	if err != nil || attrs.Has(win32.FILE_ATTRIBUTE_READONLY) {
		t.Errorf("package directory attributes = %v, %v", attrs, err)
	}

	// writing copies the file; the copy is writable
	f, err := s.CreateFile(ctx, `C:\Windows\System32\contoso.dll`, win32.GENERIC_WRITE, win32.OPEN_EXISTING, 0)
	if err != nil {
		t.Fatalf("CreateFile for write: %v", err)
	}
	f.Close()
	attrs, err = s.GetFileAttributes(ctx, `C:\Windows\System32\contoso.dll`)
	if err != nil || attrs.Has(win32.FILE_ATTRIBUTE_READONLY) {
		t.Errorf("materialized file attributes = %v, %v", attrs, err)
	}
}

// Reference scenario: removing a directory that only the package has
// succeeds without touching it.
func TestRemoveDirectoryFaked(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	pkgDir := pkgRoot + `\VFS\Common AppData\App\Cache`
	mkdir(t, a, pkgDir)

	if err := s.RemoveDirectory(ctx, `C:\ProgramData\App\Cache`); err != nil {
		t.Fatalf("RemoveDirectory: %v", err)
	}
	if !exists(a, pkgDir) {
		t.Error("package directory was removed")
	}

	writeFile(t, a, pkgRoot+`\VFS\Common AppData\App\file.txt`, "x")
	if err := s.RemoveDirectory(ctx, `C:\ProgramData\App\file.txt`); !errors.Is(err, win32.ERROR_DIRECTORY) {
		t.Errorf("RemoveDirectory on file error = %v, want %v", err, win32.ERROR_DIRECTORY)
	}
}

// Deleting a package or native file reports success and leaves every
// candidate untouched.
func TestDeleteFileFaked(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	pkgFile := pkgRoot + `\VFS\SystemX64\contoso.dll`
	nativeFile := `C:\Windows\System32\kernel.dll`
	writeFile(t, a, pkgFile, "pkg")
	writeFile(t, a, nativeFile, "native")

	for _, name := range []string{`C:\Windows\System32\contoso.dll`, nativeFile} {
		if err := s.DeleteFile(ctx, name); err != nil {
			t.Errorf("DeleteFile(%q): %v", name, err)
		}
	}
	if !exists(a, pkgFile) || !exists(a, nativeFile) {
		t.Error("a base file was deleted")
	}
	if exists(a, writable+`\VFS\SystemX64\contoso.dll`) {
		t.Error("delete materialized the file")
	}

	// a redirected copy is really deleted
	red := writable + `\VFS\SystemX64\own.dll`
	writeFile(t, a, red, "own")
	if err := s.DeleteFile(ctx, `C:\Windows\System32\own.dll`); err != nil {
		t.Fatalf("DeleteFile redirected: %v", err)
	}
	if exists(a, red) {
		t.Error("redirected file survived")
	}

	err := s.DeleteFile(ctx, `C:\Windows\System32\missing.dll`)
	if !errors.Is(err, win32.ERROR_FILE_NOT_FOUND) {
		t.Errorf("DeleteFile missing error = %v", err)
	}
}

func TestOpenWriteNewFile(t *testing.T) {
	ctx := context.Background()

	t.Run("package parent", func(t *testing.T) {
		s, a := newTestShim(t)
		mkdir(t, a, pkgRoot+`\VFS\Common AppData\App`)
		f, err := s.CreateFile(ctx, `C:\ProgramData\App\new.log`, win32.GENERIC_WRITE, win32.CREATE_NEW, 0)
		if err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
		f.Close()
		if !exists(a, writable+`\VFS\Common AppData\App\new.log`) {
			t.Error("file not created in the redirection area")
		}
	})

	t.Run("native parent only", func(t *testing.T) {
		s, a := newTestShim(t)
		mkdir(t, a, `C:\ProgramData\Shared`)
		d, err := s.Plan(ctx, OpOpenWrite, `C:\ProgramData\Shared\new.log`)
		if err != nil {
			t.Fatal(err)
		}
		if d.Target != `C:\ProgramData\Shared\new.log` || d.ShouldRedirect {
			t.Errorf("target = %q, want the native path", d.Target)
		}
	})

	t.Run("pvad", func(t *testing.T) {
		s, a := newTestShim(t)
		mkdir(t, a, pkgRoot+`\logs`)
		f, err := s.CreateFile(ctx, pkgRoot+`\logs\run.log`, win32.GENERIC_WRITE, win32.CREATE_ALWAYS, 0)
		if err != nil {
			t.Fatalf("CreateFile: %v", err)
		}
		f.Close()
		if !exists(a, writable+`\logs\run.log`) || exists(a, pkgRoot+`\logs\run.log`) {
			t.Error("pvad file not redirected")
		}
	})
}

func TestOpenWriteCopiesFile(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	pkgFile := pkgRoot + `\VFS\Common AppData\App\settings.json`
	writeFile(t, a, pkgFile, `{"theme":"dark"}`)

	f, err := s.CreateFile(ctx, `C:\ProgramData\App\settings.json`, win32.GENERIC_READ|win32.GENERIC_WRITE, win32.OPEN_EXISTING, 0)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	if _, err := f.Write([]byte(`{"theme":"lite"}`)); err != nil {
		t.Fatalf("Write: %v", err)
	}
	f.Close()

	if got := readFile(t, a, writable+`\VFS\Common AppData\App\settings.json`); got != `{"theme":"lite"}` {
		t.Errorf("redirected copy = %q", got)
	}
	if got := readFile(t, a, pkgFile); got != `{"theme":"dark"}` {
		t.Errorf("package file changed to %q", got)
	}
	if got := readFile(t, s, `C:\ProgramData\App\settings.json`); got != `{"theme":"lite"}` {
		t.Errorf("read through shim = %q", got)
	}
}

// A native file below a folder the platform already merges is used in
// place.
func TestRuntimeMappedNative(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	writeFile(t, a, `C:\Users\me\AppData\Local\Vendor\app.db`, "db")

	d, err := s.Plan(ctx, OpOpenWrite, `C:\Users\me\AppData\Local\Vendor\app.db`)
	if err != nil {
		t.Fatal(err)
	}
	if d.Winner != Native || d.Materialized || d.Target != `C:\Users\me\AppData\Local\Vendor\app.db` {
		t.Errorf("decision = %v %v %q", d.Winner, d.Materialized, d.Target)
	}
}

func TestPlanDoesNotMutate(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	writeFile(t, a, pkgRoot+`\VFS\Common AppData\App\deep\settings.json`, "{}")

	d, err := s.Plan(ctx, OpOpenWrite, `C:\ProgramData\App\deep\settings.json`)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Materialized || d.Target != writable+`\VFS\Common AppData\App\deep\settings.json` {
		t.Errorf("plan = %v %q", d.Materialized, d.Target)
	}
	if len(d.Created) == 0 {
		t.Error("plan lists no directories to create")
	}
	for _, dir := range d.Created {
		if exists(a, dir) {
			t.Errorf("plan created %q", dir)
		}
	}
	if exists(a, d.Target) {
		t.Error("plan copied the file")
	}
}

func TestDecisionFields(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	writeFile(t, a, pkgRoot+`\VFS\SystemX64\contoso.dll`, "dll")

	d, err := s.Plan(ctx, OpOpenRead, `C:\Windows\System32\contoso.dll`)
	if err != nil {
		t.Fatal(err)
	}
	type view struct {
		Area                                     PathArea
		Outcome                                  Outcome
		Winner                                   Tier
		Redirected, VFS, Requested, Devirtualized Presence
		ShouldRedirect, ShouldReadOnly           bool
		Target, VirtualPath                      string
	}
	got := view{
		d.Area, d.Outcome, d.Winner,
		d.RedirectedExists, d.VFSExists, d.RequestedExists, d.DevirtualizedExists,
		d.ShouldRedirect, d.ShouldReadOnly,
		d.Target, d.VirtualPath,
	}
	want := view{
		NativeArea, Proceed, Package,
		Absent, Present, Unprobed, Unprobed,
		true, true,
		pkgRoot + `\VFS\SystemX64\contoso.dll`, pkgRoot + `\VFS\SystemX64\contoso.dll`,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("decision mismatch (-want +got):\n%s", diff)
	}
}
