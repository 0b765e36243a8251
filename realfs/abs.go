package realfs

import (
	"context"
	"io"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/absfs/absfs"

	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// DefaultCopyBufferSize is the buffer size used by CopyFile
const DefaultCopyBufferSize = 32 * 1024

// Abs serves Windows paths from an absfs.FileSystem.
//
// Drive paths map to /<letter>/..., UNC paths to /UNC/<server>/<share>/....
// Components are matched case-insensitively and stored with the case they
// were created with. Attributes other than the read-only and directory bits
// are kept in memory unless the underlying file system can store them.
type Abs struct {
	fs       absfs.FileSystem
	readOnly []string
	bufSize  int

	attrs  attributer
	writer atomicWriter

	mu    sync.Mutex
	extra map[string]win32.FileAttributes
}

// attributer is implemented by file systems that store Win32 attributes
type attributer interface {
	Attributes(name string) (win32.FileAttributes, error)
	SetAttributes(name string, attrs win32.FileAttributes) error
}

// atomicWriter is implemented by file systems that can replace a file in
// one step
type atomicWriter interface {
	WriteFileAtomic(name string, r io.Reader) error
}

// Option configures an Abs backend
type Option func(*Abs)

// WithReadOnlyRoot makes every mutation at or below prefix fail with
// ERROR_ACCESS_DENIED, the way an installed package image behaves.
func WithReadOnlyRoot(prefix string) Option {
	return func(a *Abs) {
		p, err := winpath.Normalize(prefix, "")
		if err != nil {
			return
		}
		a.readOnly = append(a.readOnly, p.Full)
	}
}

// WithCopyBufferSize sets the CopyFile buffer size
func WithCopyBufferSize(size int) Option {
	return func(a *Abs) {
		if size > 0 {
			a.bufSize = size
		}
	}
}

// NewAbs creates a backend over fsys
func NewAbs(fsys absfs.FileSystem, opts ...Option) *Abs {
	a := &Abs{
		fs:      fsys,
		bufSize: DefaultCopyBufferSize,
		extra:   make(map[string]win32.FileAttributes),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// FileSystem returns the underlying file system
func (a *Abs) FileSystem() absfs.FileSystem {
	return a.fs
}

// PhysicalPath returns the absfs path a canonical Windows path maps to,
// without resolving case.
func PhysicalPath(name string) (string, error) {
	p, err := winpath.Normalize(name, "")
	if err != nil || p.IsDevice() {
		return "", win32.ERROR_INVALID_NAME
	}
	return "/" + strings.Join(components(p), "/"), nil
}

// location is a Windows path resolved against the file system
type location struct {
	win    winpath.Path
	phys   string
	info   os.FileInfo
	parent bool
}

func (l location) exists() bool { return l.info != nil }

func (l location) isDir() bool { return l.info != nil && l.info.IsDir() }

// missing is the code for a path that does not exist
func (l location) missing() error {
	if l.parent {
		return win32.ERROR_FILE_NOT_FOUND
	}
	return win32.ERROR_PATH_NOT_FOUND
}

// components splits a canonical path into physical path elements.
// The first one (drive) or three (UNC, server, share) elements name the
// volume.
func components(p winpath.Path) []string {
	vol := winpath.Volume(p.Full)
	var comps []string
	if p.Kind == winpath.UNCAbsolute {
		comps = append(comps, "UNC")
		comps = append(comps, strings.Split(strings.TrimPrefix(vol, `\\`), `\`)...)
	} else {
		comps = append(comps, strings.ToUpper(vol[:1]))
	}
	rest := strings.Trim(p.Full[len(vol):], `\`)
	if rest != "" {
		comps = append(comps, strings.Split(rest, `\`)...)
	}
	return comps
}

func volumeDepth(p winpath.Path) int {
	if p.Kind == winpath.UNCAbsolute {
		return 3
	}
	return 1
}

// locate resolves name component by component
func (a *Abs) locate(name string) (location, error) {
	p, err := winpath.Normalize(name, "")
	if err != nil || p.IsDevice() {
		return location{}, win32.ERROR_INVALID_NAME
	}
	comps := components(p)
	loc := location{win: p}

	exact := "/" + strings.Join(comps, "/")
	if info, err := a.fs.Stat(exact); err == nil {
		loc.phys, loc.info, loc.parent = exact, info, true
		return loc, nil
	}

	cur := "/"
	vol := volumeDepth(p)
	for i, c := range comps {
		last := i == len(comps)-1
		next, info, found := a.lookup(cur, c)
		if !found {
			loc.phys = path.Join(cur, path.Join(comps[i:]...))
			loc.parent = last && i >= vol
			return loc, nil
		}
		if !last && !info.IsDir() {
			loc.phys = path.Join(next, path.Join(comps[i+1:]...))
			return loc, nil
		}
		cur = next
		if last {
			loc.phys, loc.info, loc.parent = cur, info, true
		}
	}
	return loc, nil
}

// lookup finds name in dir, preferring an exact match over a case variant
func (a *Abs) lookup(dir, name string) (string, os.FileInfo, bool) {
	entries, err := a.readDir(dir)
	if err != nil {
		return "", nil, false
	}
	var fold os.FileInfo
	for _, e := range entries {
		if e.Name() == name {
			return a.entry(dir, e.Name())
		}
		if fold == nil && strings.EqualFold(e.Name(), name) {
			fold = e
		}
	}
	if fold == nil {
		return "", nil, false
	}
	return a.entry(dir, fold.Name())
}

// readDir lists dir sorted by name
func (a *Abs) readDir(dir string) ([]os.FileInfo, error) {
	f, err := a.fs.Open(dir)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	infos, err := f.Readdir(-1)
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name() < infos[j].Name() })
	return infos, nil
}

func (a *Abs) readFile(name string) ([]byte, error) {
	f, err := a.fs.Open(name)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}

func (a *Abs) entry(dir, name string) (string, os.FileInfo, bool) {
	p := path.Join(dir, name)
	info, err := a.fs.Stat(p)
	if err != nil {
		return "", nil, false
	}
	return p, info, true
}

func (a *Abs) readOnlyAt(p winpath.Path) bool {
	for _, prefix := range a.readOnly {
		if winpath.HasPrefixFold(p.Full, prefix) {
			return true
		}
	}
	return false
}

func extraKey(phys string) string {
	return winpath.FoldKey(phys)
}

func (a *Abs) attributesOf(phys string, info os.FileInfo) win32.FileAttributes {
	if a.attrs != nil {
		if v, err := a.attrs.Attributes(phys); err == nil {
			return v
		}
	}
	var v win32.FileAttributes
	if info.IsDir() {
		v |= win32.FILE_ATTRIBUTE_DIRECTORY
	} else if info.Mode().Perm()&0200 == 0 {
		v |= win32.FILE_ATTRIBUTE_READONLY
	}
	a.mu.Lock()
	v |= a.extra[extraKey(phys)]
	a.mu.Unlock()
	if v == 0 {
		v = win32.FILE_ATTRIBUTE_NORMAL
	}
	return v
}

func (a *Abs) setAttributesOf(phys string, info os.FileInfo, attrs win32.FileAttributes) error {
	attrs = attrs.Settable()
	if a.attrs != nil {
		if info.IsDir() {
			attrs |= win32.FILE_ATTRIBUTE_DIRECTORY
		}
		return a.attrs.SetAttributes(phys, attrs)
	}
	if attrs&win32.FILE_ATTRIBUTE_READONLY == 0 && info.Mode().Perm()&0200 == 0 {
		if err := a.fs.Chmod(phys, info.Mode().Perm()|0200); err != nil {
			return win32.FromError(err)
		}
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if stored := attrs &^ win32.FILE_ATTRIBUTE_NORMAL; stored != 0 {
		a.extra[extraKey(phys)] = stored
	} else {
		delete(a.extra, extraKey(phys))
	}
	return nil
}

// forget drops stored attributes for phys and everything below it
func (a *Abs) forget(phys string) {
	key := extraKey(phys)
	a.mu.Lock()
	defer a.mu.Unlock()
	for k := range a.extra {
		if k == key || strings.HasPrefix(k, key+"/") {
			delete(a.extra, k)
		}
	}
}

// carry moves stored attributes from one physical path to another
func (a *Abs) carry(from, to string) {
	fk, tk := extraKey(from), extraKey(to)
	a.mu.Lock()
	defer a.mu.Unlock()
	moved := make(map[string]win32.FileAttributes)
	for k, v := range a.extra {
		switch {
		case k == fk:
			moved[tk] = v
		case strings.HasPrefix(k, fk+"/"):
			moved[tk+k[len(fk):]] = v
		default:
			continue
		}
		delete(a.extra, k)
	}
	for k, v := range moved {
		a.extra[k] = v
	}
}

// GetFileAttributes returns the attributes of name
func (a *Abs) GetFileAttributes(ctx context.Context, name string) (win32.FileAttributes, error) {
	l, err := a.locate(name)
	if err != nil {
		return win32.INVALID_FILE_ATTRIBUTES, err
	}
	if !l.exists() {
		return win32.INVALID_FILE_ATTRIBUTES, l.missing()
	}
	return a.attributesOf(l.phys, l.info), nil
}

// SetFileAttributes replaces the settable attributes of name
func (a *Abs) SetFileAttributes(ctx context.Context, name string, attrs win32.FileAttributes) error {
	l, err := a.locate(name)
	if err != nil {
		return err
	}
	if !l.exists() {
		return l.missing()
	}
	if a.readOnlyAt(l.win) {
		return win32.ERROR_ACCESS_DENIED
	}
	return a.setAttributesOf(l.phys, l.info, attrs)
}

// CreateFile opens or creates a file following the Win32 disposition rules
func (a *Abs) CreateFile(ctx context.Context, name string, access win32.Access, disposition win32.CreationDisposition, attrs win32.FileAttributes) (File, error) {
	if !disposition.Valid() {
		return nil, win32.ERROR_INVALID_PARAMETER
	}
	l, err := a.locate(name)
	if err != nil {
		return nil, err
	}
	if !l.parent {
		return nil, win32.ERROR_PATH_NOT_FOUND
	}
	exists := l.exists()
	if l.isDir() {
		return nil, win32.ERROR_ACCESS_DENIED
	}

	switch disposition {
	case win32.CREATE_NEW:
		if exists {
			return nil, win32.ERROR_FILE_EXISTS
		}
	case win32.OPEN_EXISTING, win32.TRUNCATE_EXISTING:
		if !exists {
			return nil, win32.ERROR_FILE_NOT_FOUND
		}
	}

	truncate := disposition == win32.CREATE_ALWAYS || disposition == win32.TRUNCATE_EXISTING
	writes := access.Writes() || truncate || !exists
	if writes && a.readOnlyAt(l.win) {
		return nil, win32.ERROR_ACCESS_DENIED
	}
	if exists && (access.Writes() || truncate) && a.attributesOf(l.phys, l.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
		return nil, win32.ERROR_ACCESS_DENIED
	}

	flag := os.O_RDONLY
	if access.Writes() || truncate {
		flag = os.O_RDWR
	}
	if !exists {
		flag = os.O_RDWR | os.O_CREATE
	}
	if truncate {
		flag |= os.O_TRUNC
	}

	f, err := a.fs.OpenFile(l.phys, flag, 0666)
	if err != nil {
		return nil, win32.FromError(err)
	}
	if !exists {
		a.mu.Lock()
		a.extra[extraKey(l.phys)] = (attrs.Settable() | win32.FILE_ATTRIBUTE_ARCHIVE) &^ win32.FILE_ATTRIBUTE_NORMAL
		a.mu.Unlock()
	}
	return &absFile{File: f, name: l.win.Full}, nil
}

type absFile struct {
	absfs.File
	name string
}

func (f *absFile) Name() string { return f.name }

// CreateDirectory creates a single directory
func (a *Abs) CreateDirectory(ctx context.Context, name string) error {
	l, err := a.locate(name)
	if err != nil {
		return err
	}
	if l.exists() {
		return win32.ERROR_ALREADY_EXISTS
	}
	if !l.parent {
		return win32.ERROR_PATH_NOT_FOUND
	}
	if a.readOnlyAt(l.win) {
		return win32.ERROR_ACCESS_DENIED
	}
	if err := a.fs.Mkdir(l.phys, 0777); err != nil {
		return win32.FromError(err)
	}
	return nil
}

// RemoveDirectory removes an empty directory
func (a *Abs) RemoveDirectory(ctx context.Context, name string) error {
	l, err := a.locate(name)
	if err != nil {
		return err
	}
	if !l.exists() {
		return l.missing()
	}
	if !l.isDir() {
		return win32.ERROR_DIRECTORY
	}
	if a.readOnlyAt(l.win) || a.attributesOf(l.phys, l.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
		return win32.ERROR_ACCESS_DENIED
	}
	entries, err := a.readDir(l.phys)
	if err != nil {
		return win32.FromError(err)
	}
	if len(entries) > 0 {
		return win32.ERROR_DIR_NOT_EMPTY
	}
	if err := a.fs.Remove(l.phys); err != nil {
		return win32.FromError(err)
	}
	a.forget(l.phys)
	return nil
}

// DeleteFile removes a file
func (a *Abs) DeleteFile(ctx context.Context, name string) error {
	l, err := a.locate(name)
	if err != nil {
		return err
	}
	if !l.exists() {
		return l.missing()
	}
	if l.isDir() || a.readOnlyAt(l.win) || a.attributesOf(l.phys, l.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
		return win32.ERROR_ACCESS_DENIED
	}
	if err := a.fs.Remove(l.phys); err != nil {
		return win32.FromError(err)
	}
	a.forget(l.phys)
	return nil
}

// CopyFile copies content and attributes of src to dst
func (a *Abs) CopyFile(ctx context.Context, src, dst string, failIfExists bool) error {
	s, err := a.locate(src)
	if err != nil {
		return err
	}
	if !s.exists() {
		return s.missing()
	}
	if s.isDir() {
		return win32.ERROR_ACCESS_DENIED
	}
	d, err := a.locate(dst)
	if err != nil {
		return err
	}
	if !d.parent {
		return win32.ERROR_PATH_NOT_FOUND
	}
	if d.exists() {
		if failIfExists {
			return win32.ERROR_FILE_EXISTS
		}
		if d.isDir() || a.attributesOf(d.phys, d.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
			return win32.ERROR_ACCESS_DENIED
		}
	}
	if a.readOnlyAt(d.win) {
		return win32.ERROR_ACCESS_DENIED
	}
	return a.copyContent(s, d.phys)
}

func (a *Abs) copyContent(s location, dst string) error {
	srcFile, err := a.fs.Open(s.phys)
	if err != nil {
		return win32.FromError(err)
	}
	defer srcFile.Close()

	if a.writer != nil {
		if err := a.writer.WriteFileAtomic(dst, srcFile); err != nil {
			return win32.FromError(err)
		}
	} else {
		dstFile, err := a.fs.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
		if err != nil {
			return win32.FromError(err)
		}
		buf := make([]byte, a.bufSize)
		if _, err := io.CopyBuffer(dstFile, srcFile, buf); err != nil {
			dstFile.Close()
			return win32.FromError(err)
		}
		if err := dstFile.Close(); err != nil {
			return win32.FromError(err)
		}
	}

	info, err := a.fs.Stat(dst)
	if err != nil {
		return win32.FromError(err)
	}
	attrs := a.attributesOf(s.phys, s.info) | win32.FILE_ATTRIBUTE_ARCHIVE
	if err := a.setAttributesOf(dst, info, attrs); err != nil {
		return err
	}
	// timestamps are best effort
	_ = a.fs.Chtimes(dst, time.Now(), s.info.ModTime())
	return nil
}

// MoveFile renames src to dst. Moves between volumes need
// MOVEFILE_COPY_ALLOWED and are limited to files.
func (a *Abs) MoveFile(ctx context.Context, src, dst string, flags win32.MoveFlags) error {
	s, err := a.locate(src)
	if err != nil {
		return err
	}
	if !s.exists() {
		return s.missing()
	}
	d, err := a.locate(dst)
	if err != nil {
		return err
	}
	if !d.parent {
		return win32.ERROR_PATH_NOT_FOUND
	}
	if a.readOnlyAt(s.win) || a.readOnlyAt(d.win) {
		return win32.ERROR_ACCESS_DENIED
	}

	same := d.exists() && strings.EqualFold(s.phys, d.phys)
	target := d.phys
	if same {
		// case-only rename
		target = path.Join(path.Dir(s.phys), winpath.Base(d.win.Full))
	} else if d.exists() {
		if flags&win32.MOVEFILE_REPLACE_EXISTING == 0 || d.isDir() || s.isDir() {
			return win32.ERROR_ALREADY_EXISTS
		}
		if a.attributesOf(d.phys, d.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
			return win32.ERROR_ACCESS_DENIED
		}
		if err := a.fs.Remove(d.phys); err != nil {
			return win32.FromError(err)
		}
		a.forget(d.phys)
	}

	if !strings.EqualFold(winpath.Volume(s.win.Full), winpath.Volume(d.win.Full)) {
		if s.isDir() || flags&win32.MOVEFILE_COPY_ALLOWED == 0 {
			return win32.ERROR_NOT_SAME_DEVICE
		}
		if err := a.copyContent(s, target); err != nil {
			return err
		}
		if err := a.fs.Remove(s.phys); err != nil {
			return win32.FromError(err)
		}
		a.forget(s.phys)
		return nil
	}

	if err := a.fs.Rename(s.phys, target); err != nil {
		return win32.FromError(err)
	}
	a.carry(s.phys, target)
	return nil
}
