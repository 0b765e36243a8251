package mfr

import (
	"context"

	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// Presence is the lazily probed existence of one candidate
type Presence int

const (
	Unprobed Presence = iota
	Present
	Absent
)

func (p Presence) String() string {
	switch p {
	case Present:
		return "present"
	case Absent:
		return "absent"
	}
	return "unprobed"
}

func presence(ok bool) Presence {
	if ok {
		return Present
	}
	return Absent
}

// probeEntry is one memoized attribute lookup
type probeEntry struct {
	attrs  win32.FileAttributes
	exists bool
}

// probe memoizes existence and attribute checks for the duration of one
// call, so no candidate is queried twice within a decision.
type probe struct {
	fs      realfs.Backend
	entries map[string]probeEntry
	stats   ProbeStats
}

// ProbeStats counts the attribute lookups made for one call
type ProbeStats struct {
	// Lookups went to the backend
	Lookups int
	// Hits were answered from memory
	Hits int
}

func newProbe(fs realfs.Backend) *probe {
	return &probe{fs: fs, entries: make(map[string]probeEntry)}
}

// stat returns the attributes of path and whether it exists
func (p *probe) stat(ctx context.Context, path string) (win32.FileAttributes, bool) {
	key := winpath.FoldKey(path)
	if e, ok := p.entries[key]; ok {
		p.stats.Hits++
		return e.attrs, e.exists
	}
	p.stats.Lookups++
	attrs, err := p.fs.GetFileAttributes(ctx, winpath.Long(path))
	e := probeEntry{attrs: attrs, exists: err == nil}
	if !e.exists {
		e.attrs = win32.INVALID_FILE_ATTRIBUTES
	}
	p.entries[key] = e
	return e.attrs, e.exists
}

func (p *probe) exists(ctx context.Context, path string) bool {
	_, ok := p.stat(ctx, path)
	return ok
}

func (p *probe) isDir(ctx context.Context, path string) bool {
	attrs, ok := p.stat(ctx, path)
	return ok && attrs.IsDir()
}

// put records the state of a path the call itself just created
func (p *probe) put(path string, attrs win32.FileAttributes) {
	p.entries[winpath.FoldKey(path)] = probeEntry{attrs: attrs, exists: true}
}

// invalidate drops what is known about path
func (p *probe) invalidate(path string) {
	delete(p.entries, winpath.FoldKey(path))
}
