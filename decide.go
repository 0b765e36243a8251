package mfr

import (
	"context"
	"fmt"
	"strings"

	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// Outcome tells an entry point what to do with a decision
type Outcome int

const (
	// Passthrough calls the real function with the caller's path
	Passthrough Outcome = iota
	// Proceed calls the real function with Target
	Proceed
	// FakeSuccess reports success without a real call
	FakeSuccess
	// Fail reports Err without a real call
	Fail
)

var outcomeNames = [...]string{
	Passthrough: "passthrough",
	Proceed:     "proceed",
	FakeSuccess: "fake-success",
	Fail:        "fail",
}

func (o Outcome) String() string {
	if o < 0 || int(o) >= len(outcomeNames) {
		return "unknown"
	}
	return outcomeNames[o]
}

// Decision is the redirection decision for one path of one call
type Decision struct {
	Op         Op
	Policy     Policy
	Path       winpath.Path
	Area       PathArea
	Resolution Resolution

	Outcome Outcome
	// Err is the synthesized error of a Fail outcome
	Err error

	// ShouldRedirect is set when Target differs from the requested path
	ShouldRedirect bool
	// Target is the path to hand to the real call
	Target string
	// VirtualPath is the package (VFS) equivalent of the request
	VirtualPath string
	// ShouldReadOnly is set when an unmaterialized package or native file
	// is exposed; callers report it read-only
	ShouldReadOnly bool

	Winner      Tier
	WinnerAttrs win32.FileAttributes

	// Materialized is set when the winner was copied into the redirection
	// area (in a plan: would be copied)
	Materialized bool
	// MaterializeFailed is set when that copy failed and Target fell back
	// to the winner itself
	MaterializeFailed bool
	// Created lists redirected directories made for this decision
	Created []string
	// ParentErr is why the redirected parents could not all be created
	ParentErr error

	// Dirs holds every existing candidate directory, for OpFind
	Dirs []Candidate

	RequestedExists     Presence
	VFSExists           Presence
	RedirectedExists    Presence
	DevirtualizedExists Presence
	ParentExists        Presence

	Probes ProbeStats
}

func (d *Decision) record(t Tier, ok bool) {
	p := presence(ok)
	switch t {
	case Redirected:
		d.RedirectedExists = p
	case Package:
		d.VFSExists = p
	case Native:
		d.DevirtualizedExists = p
	}
	if t == d.Resolution.Self {
		d.RequestedExists = p
	}
}

func (d *Decision) use(path string) {
	d.Outcome = Proceed
	d.Target = path
	d.ShouldRedirect = !winpath.EqualFold(path, d.Path.Full)
}

func (d *Decision) fail(err win32.Errno) {
	d.Outcome = Fail
	d.Err = err
}

// passthroughTarget is the path a non-redirected call uses: the caller's
// own string unless it needs the long path prefix
func passthroughTarget(raw string, p winpath.Path) string {
	if p.Full != "" && p.IsLong() && !p.Prefixed {
		return winpath.Long(p.Full)
	}
	return raw
}

// Plan runs the decision for op on path without creating, copying or
// changing anything
func (s *Shim) Plan(ctx context.Context, op Op, path string) (*Decision, error) {
	if _, ok := policies[op]; !ok {
		return nil, fmt.Errorf("plan: unknown operation %d", int(op))
	}
	return s.decide(ctx, op, path, true), nil
}

// decide is the decision engine. With dry set every mutation is only
// recorded in the decision.
func (s *Shim) decide(ctx context.Context, op Op, raw string, dry bool) *Decision {
	pol := policies[op]
	pr := newProbe(s.fs)
	d := &Decision{Op: op, Policy: pol}
	defer func() { d.Probes = pr.stats }()

	if s.fault != nil {
		s.fault(op)
	}

	d.Path, d.Area = s.Classify(raw)
	d.Target = passthroughTarget(raw, d.Path)
	if !d.Area.Redirectable() {
		return d
	}
	d.Resolution = s.ResolveMapping(d.Path, d.Area)
	if !d.Resolution.Valid {
		return d
	}
	d.VirtualPath = d.Resolution.Package.Path

	switch {
	case pol.Intent&CheckFilePresence == 0:
		s.redirect(ctx, d, pr, dry)
	case pol.AllTiers:
		s.collect(ctx, d, pr)
	default:
		s.walk(ctx, d, pr, dry)
	}
	return d
}

// walk visits candidates in priority order and settles on the first that
// exists
func (s *Shim) walk(ctx context.Context, d *Decision, pr *probe, dry bool) {
	for _, t := range priority[d.Area] {
		c := d.Resolution.Candidate(t)
		if c.Path == "" {
			continue
		}
		attrs, ok := pr.stat(ctx, c.Path)
		d.record(t, ok)
		if ok {
			s.found(ctx, d, pr, t, attrs, dry)
			return
		}
	}
	s.missing(ctx, d, pr, dry)
}

func (s *Shim) found(ctx context.Context, d *Decision, pr *probe, t Tier, attrs win32.FileAttributes, dry bool) {
	d.Winner, d.WinnerAttrs = t, attrs
	c := d.Resolution.Candidate(t)

	switch d.Op {
	case OpCreateDirectory:
		if !attrs.IsDir() {
			d.fail(win32.ERROR_ALREADY_EXISTS)
			return
		}
		red := d.Resolution.Redirected.Path
		if t != Redirected {
			// later creations beneath it land in the redirection area
			if err := s.copyUp(ctx, pr, c.Path, attrs, red, basesOf(c, d.Resolution.Redirected), dry, &d.Created); err != nil {
				d.ParentErr = err
			}
		}
		d.Target = red
		if s.strictCreateDirectory {
			d.fail(win32.ERROR_ALREADY_EXISTS)
			return
		}
		d.Outcome = FakeSuccess
		return
	case OpDeleteFile:
		if attrs.IsDir() {
			d.fail(win32.ERROR_ACCESS_DENIED)
			return
		}
	case OpRemoveDirectory:
		if !attrs.IsDir() {
			d.fail(win32.ERROR_DIRECTORY)
			return
		}
	}

	if t == Redirected {
		d.use(c.Path)
		return
	}
	if d.Policy.Base == FakeBase {
		d.Outcome = FakeSuccess
		d.Target = c.Path
		return
	}
	if t == Native && d.Resolution.Mapping.RuntimeMapsNativeToVFS {
		d.use(c.Path)
		return
	}
	if d.Policy.Intent&copyTrigger != 0 {
		red := d.Resolution.Redirected.Path
		if err := s.copyUp(ctx, pr, c.Path, attrs, red, basesOf(c, d.Resolution.Redirected), dry, &d.Created); err != nil {
			d.MaterializeFailed = true
			d.ParentErr = err
			d.use(c.Path)
			return
		}
		d.Materialized = true
		d.use(red)
		return
	}
	d.use(c.Path)
	d.ShouldReadOnly = d.Policy.ReadOnly && !attrs.IsDir()
}

func (s *Shim) missing(ctx context.Context, d *Decision, pr *probe, dry bool) {
	if d.Policy.Missing == MissingNotFound {
		if s.parentExists(ctx, d, pr, priority[d.Area]...) {
			d.fail(win32.ERROR_FILE_NOT_FOUND)
		} else {
			d.fail(win32.ERROR_PATH_NOT_FOUND)
		}
		return
	}
	if d.Policy.Intent&OkIfParentInPackage != 0 && d.Resolution.Self == Native {
		if !s.parentExists(ctx, d, pr, Redirected, Package) {
			d.use(d.Resolution.Native.Path)
			return
		}
	}
	s.redirect(ctx, d, pr, dry)
}

// parentExists reports whether the parent of any of the given tiers'
// candidates is an existing directory
func (s *Shim) parentExists(ctx context.Context, d *Decision, pr *probe, tiers ...Tier) bool {
	for _, t := range tiers {
		c := d.Resolution.Candidate(t)
		if c.Path == "" || winpath.IsRoot(c.Path) {
			continue
		}
		if pr.isDir(ctx, winpath.Dir(c.Path)) {
			d.ParentExists = Present
			return true
		}
	}
	if d.ParentExists == Unprobed {
		d.ParentExists = Absent
	}
	return false
}

// redirect targets the redirected candidate, creating its parents first
// when the intent asks for it
func (s *Shim) redirect(ctx context.Context, d *Decision, pr *probe, dry bool) {
	d.use(d.Resolution.Redirected.Path)
	if d.Policy.Intent&EnsureDirectoryStructure != 0 {
		d.ParentErr = s.ensureParents(ctx, d, pr, dry)
	}
}

// ensureParents creates the missing ancestors of the redirected candidate.
// The redirected base and anything above it are created unconditionally;
// below it an ancestor is only created when the package or native side has
// it, and its attributes are copied from there.
func (s *Shim) ensureParents(ctx context.Context, d *Decision, pr *probe, dry bool) error {
	r := d.Resolution.Redirected
	rel := strings.Trim(r.Path[len(r.Base):], `\`)
	if rel == "" {
		return s.mkdirAll(ctx, pr, winpath.Dir(r.Base), dry, &d.Created)
	}
	if err := s.mkdirAll(ctx, pr, r.Base, dry, &d.Created); err != nil {
		return err
	}
	parts := strings.Split(rel, `\`)
	for k := 1; k < len(parts); k++ {
		sub := strings.Join(parts[:k], `\`)
		dir := winpath.Join(r.Base, sub)
		if pr.exists(ctx, dir) {
			continue
		}
		src := ""
		for _, t := range []Tier{Package, Native} {
			c := d.Resolution.Candidate(t)
			if c.Base == "" {
				continue
			}
			if p := winpath.Join(c.Base, sub); pr.isDir(ctx, p) {
				src = p
				break
			}
		}
		if src == "" {
			return fmt.Errorf("%s: %w", dir, win32.ERROR_PATH_NOT_FOUND)
		}
		if err := s.makeDir(ctx, pr, dir, src, dry, &d.Created); err != nil {
			return err
		}
	}
	return nil
}

// collect gathers every existing candidate directory for an enumeration
func (s *Shim) collect(ctx context.Context, d *Decision, pr *probe) {
	for _, t := range priority[d.Area] {
		c := d.Resolution.Candidate(t)
		if c.Path == "" {
			continue
		}
		attrs, ok := pr.stat(ctx, c.Path)
		d.record(t, ok)
		if !ok || !attrs.IsDir() {
			continue
		}
		if d.Winner == NoTier {
			d.Winner, d.WinnerAttrs = t, attrs
		}
		d.Dirs = append(d.Dirs, c)
	}
	if len(d.Dirs) == 0 {
		d.fail(win32.ERROR_PATH_NOT_FOUND)
		return
	}
	d.use(d.Dirs[0].Path)
}
