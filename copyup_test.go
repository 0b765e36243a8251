package mfr

import (
	"context"
	"testing"

	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

func TestMaterialize(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	src := pkgRoot + `\VFS\Common AppData\App\sub\data.bin`
	dst := writable + `\VFS\Common AppData\App\sub\data.bin`
	writeFile(t, a, src, "payload")

	if !s.Materialize(ctx, src, dst) {
		t.Fatal("Materialize failed")
	}
	if got := readFile(t, a, dst); got != "payload" {
		t.Errorf("copy = %q", got)
	}
	if got := readFile(t, a, src); got != "payload" {
		t.Errorf("source = %q", got)
	}
}

// A second materialization of the same path only looks at the destination.
func TestMaterializeIdempotent(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	src := pkgRoot + `\VFS\SystemX64\contoso.dll`
	dst := writable + `\VFS\SystemX64\contoso.dll`
	writeFile(t, a, src, "dll")

	cb := newCountingBackend(a)
	s.fs = cb
	if !s.Materialize(ctx, src, dst) {
		t.Fatal("first Materialize failed")
	}
	if cb.calls["CopyFile"] != 1 {
		t.Errorf("first call copied %d times", cb.calls["CopyFile"])
	}

	cb.reset()
	if !s.Materialize(ctx, src, dst) {
		t.Fatal("second Materialize failed")
	}
	if cb.total() != 1 || cb.calls["GetFileAttributes"] != 1 {
		t.Errorf("second call made %v", cb.calls)
	}
}

func TestMaterializeMissingSource(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	dst := writable + `\VFS\SystemX64\missing.dll`

	if s.Materialize(ctx, pkgRoot+`\VFS\SystemX64\missing.dll`, dst) {
		t.Error("Materialize reported success for a missing source")
	}
	if exists(a, winpath.Dir(dst)) {
		t.Error("parents created for a missing source")
	}
}

func TestMaterializeDirectory(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	src := pkgRoot + `\VFS\Common AppData\App\Plugins`
	dst := writable + `\VFS\Common AppData\App\Plugins`
	writeFile(t, a, src+`\plugin.dll`, "p")

	if !s.Materialize(ctx, src, dst) {
		t.Fatal("Materialize failed")
	}
	attrs, err := a.GetFileAttributes(ctx, dst)
	if err != nil || !attrs.IsDir() {
		t.Fatalf("destination = %v, %v", attrs, err)
	}
	if exists(a, dst+`\plugin.dll`) {
		t.Error("directory contents were copied")
	}
}

// Created parents take their attributes from the source ancestor at the
// same depth when the names match.
func TestMaterializeParentAttributes(t *testing.T) {
	ctx := context.Background()
	a := realfs.NewAbs(mustNewMemFS())
	mkdir(t, a, `C:\Users\me\AppData\Local`)
	writeFile(t, a, pkgRoot+`\VFS\Common AppData\App\Hidden\f.txt`, "x")
	if err := a.SetFileAttributes(ctx, pkgRoot+`\VFS\Common AppData\App\Hidden`, win32.FILE_ATTRIBUTE_HIDDEN); err != nil {
		t.Fatalf("SetFileAttributes: %v", err)
	}
	s, err := New(testConfig(), a)
	if err != nil {
		t.Fatal(err)
	}

	if !s.Materialize(ctx, pkgRoot+`\VFS\Common AppData\App\Hidden\f.txt`, writable+`\VFS\Common AppData\App\Hidden\f.txt`) {
		t.Fatal("Materialize failed")
	}
	attrs, err := a.GetFileAttributes(ctx, writable+`\VFS\Common AppData\App\Hidden`)
	if err != nil || !attrs.Has(win32.FILE_ATTRIBUTE_HIDDEN) {
		t.Errorf("mirrored parent attributes = %v, %v", attrs, err)
	}
	attrs, err = a.GetFileAttributes(ctx, writable+`\VFS\Common AppData\App`)
	if err != nil || attrs.Has(win32.FILE_ATTRIBUTE_HIDDEN) {
		t.Errorf("plain parent attributes = %v, %v", attrs, err)
	}
}

// Copying a native file up mirrors each native ancestor onto the
// redirected directory it maps to, across the differently named bases.
func TestCopyUpParentAttributesAcrossMapping(t *testing.T) {
	ctx := context.Background()
	s, a := newTestShim(t)
	writeFile(t, a, `C:\ProgramData\App\log.txt`, "native")
	if err := a.SetFileAttributes(ctx, `C:\ProgramData`, win32.FILE_ATTRIBUTE_HIDDEN); err != nil {
		t.Fatalf("SetFileAttributes: %v", err)
	}

	f, err := s.CreateFile(ctx, `C:\ProgramData\App\log.txt`, win32.GENERIC_WRITE, win32.OPEN_EXISTING, 0)
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}
	f.Close()

	if got := readFile(t, a, writable+`\VFS\Common AppData\App\log.txt`); got != "native" {
		t.Errorf("copied content = %q", got)
	}
	attrs, err := a.GetFileAttributes(ctx, writable+`\VFS\Common AppData`)
	if err != nil || !attrs.Has(win32.FILE_ATTRIBUTE_HIDDEN) {
		t.Errorf("mapped base attributes = %v, %v", attrs, err)
	}
	attrs, err = a.GetFileAttributes(ctx, writable+`\VFS\Common AppData\App`)
	if err != nil || attrs.Has(win32.FILE_ATTRIBUTE_HIDDEN) {
		t.Errorf("plain parent attributes = %v, %v", attrs, err)
	}
	attrs, err = a.GetFileAttributes(ctx, writable+`\VFS`)
	if err != nil || attrs.Has(win32.FILE_ATTRIBUTE_HIDDEN) {
		t.Errorf("directory above the base = %v, %v", attrs, err)
	}
}

// racingBackend hides a path from the first lookup, as if another process
// created it right after
type racingBackend struct {
	realfs.Backend
	hide string
}

func (r *racingBackend) GetFileAttributes(ctx context.Context, name string) (win32.FileAttributes, error) {
	if r.hide != "" && winpath.EqualFold(name, r.hide) {
		r.hide = ""
		return win32.INVALID_FILE_ATTRIBUTES, win32.ERROR_FILE_NOT_FOUND
	}
	return r.Backend.GetFileAttributes(ctx, name)
}

func TestMaterializeLostRace(t *testing.T) {
	s, a := newTestShim(t)
	ctx := context.Background()
	src := pkgRoot + `\VFS\SystemX64\contoso.dll`
	dst := writable + `\VFS\SystemX64\contoso.dll`
	writeFile(t, a, src, "ours")
	writeFile(t, a, dst, "theirs")

	s.fs = &racingBackend{Backend: a, hide: dst}
	if !s.Materialize(ctx, src, dst) {
		t.Fatal("Materialize failed after losing the race")
	}
	if got := readFile(t, a, dst); got != "theirs" {
		t.Errorf("existing copy overwritten with %q", got)
	}
}
