package mfr

import (
	"fmt"
	"strings"
)

// Op is the kind of real call a decision is made for
type Op int

const (
	OpOpenRead Op = iota + 1
	OpOpenWrite
	OpCreateDirectory
	OpRemoveDirectory
	OpDeleteFile
	OpCopySource
	OpCopyDest
	OpMoveSource
	OpMoveDest
	OpGetAttributes
	OpSetAttributes
	OpFind
	OpProfileRead
	OpProfileWrite
)

var opNames = map[Op]string{
	OpOpenRead:        "open-read",
	OpOpenWrite:       "open-write",
	OpCreateDirectory: "create-directory",
	OpRemoveDirectory: "remove-directory",
	OpDeleteFile:      "delete-file",
	OpCopySource:      "copy-source",
	OpCopyDest:        "copy-dest",
	OpMoveSource:      "move-source",
	OpMoveDest:        "move-dest",
	OpGetAttributes:   "get-attributes",
	OpSetAttributes:   "set-attributes",
	OpFind:            "find",
	OpProfileRead:     "profile-read",
	OpProfileWrite:    "profile-write",
}

func (op Op) String() string {
	if s, ok := opNames[op]; ok {
		return s
	}
	return fmt.Sprintf("op(%d)", int(op))
}

// ParseOp accepts the names printed by Op.String
func ParseOp(s string) (Op, error) {
	for op, name := range opNames {
		if strings.EqualFold(s, name) {
			return op, nil
		}
	}
	return 0, fmt.Errorf("unknown operation %q", s)
}

// Ops lists every operation kind in declaration order
func Ops() []Op {
	ops := make([]Op, 0, len(opNames))
	for op := OpOpenRead; op <= OpProfileWrite; op++ {
		ops = append(ops, op)
	}
	return ops
}

// Intent flags shape how a decision treats candidates
type Intent uint8

const (
	// EnsureDirectoryStructure creates the missing parents of a redirected
	// target, copying each from the area it exists in
	EnsureDirectoryStructure Intent = 1 << iota
	// CheckFilePresence probes candidates in priority order; without it
	// the redirected candidate is the target
	CheckFilePresence
	copyTrigger
	// OkIfParentInPackage lets a native path that exists nowhere be created
	// in the redirection area when its parent exists in the package or
	// redirection area
	OkIfParentInPackage
)

// CopyOnRead materializes a winner that is not already redirected
const CopyOnRead = EnsureDirectoryStructure | copyTrigger

func (i Intent) String() string {
	var parts []string
	if i&copyTrigger != 0 {
		parts = append(parts, "copy-on-read")
	} else if i&EnsureDirectoryStructure != 0 {
		parts = append(parts, "ensure-directory-structure")
	}
	if i&CheckFilePresence != 0 {
		parts = append(parts, "check-file-presence")
	}
	if i&OkIfParentInPackage != 0 {
		parts = append(parts, "ok-if-parent-in-package")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// OnBase is what happens when the winner is the package or native
// candidate rather than the redirected one
type OnBase int

const (
	// UseBase operates on the base candidate, or on its redirected copy
	// when the intent copies
	UseBase OnBase = iota
	// FakeBase reports success without a real call
	FakeBase
	// ExistsBase treats the candidate as proof that the target exists
	ExistsBase
)

// OnMissing is what happens when no candidate exists
type OnMissing int

const (
	// MissingNotFound fails with the file or path not found code
	MissingNotFound OnMissing = iota
	// MissingCreate targets the redirected candidate
	MissingCreate
)

// Policy is one row of the operation table
type Policy struct {
	Intent  Intent
	Base    OnBase
	Missing OnMissing
	// ReadOnly marks an exposed base file read-only
	ReadOnly bool
	// AllTiers collects every existing candidate instead of stopping at
	// the first
	AllTiers bool
}

var policies = map[Op]Policy{
	OpOpenRead:        {Intent: CheckFilePresence, ReadOnly: true},
	OpOpenWrite:       {Intent: CheckFilePresence | CopyOnRead | OkIfParentInPackage, Missing: MissingCreate},
	OpCreateDirectory: {Intent: CheckFilePresence | EnsureDirectoryStructure, Base: ExistsBase, Missing: MissingCreate},
	OpRemoveDirectory: {Intent: CheckFilePresence, Base: FakeBase},
	OpDeleteFile:      {Intent: CheckFilePresence, Base: FakeBase},
	OpCopySource:      {Intent: CheckFilePresence},
	OpCopyDest:        {Intent: EnsureDirectoryStructure, Missing: MissingCreate},
	OpMoveSource:      {Intent: CheckFilePresence},
	OpMoveDest:        {Intent: EnsureDirectoryStructure, Missing: MissingCreate},
	OpGetAttributes:   {Intent: CheckFilePresence, ReadOnly: true},
	OpSetAttributes:   {Intent: CheckFilePresence | CopyOnRead},
	OpFind:            {Intent: CheckFilePresence, AllTiers: true},
	OpProfileRead:     {Intent: CheckFilePresence},
	OpProfileWrite:    {Intent: CheckFilePresence | CopyOnRead | OkIfParentInPackage, Missing: MissingCreate},
}

// PolicyFor returns the table row for op
func PolicyFor(op Op) (Policy, bool) {
	p, ok := policies[op]
	return p, ok
}

// priority lists candidate tiers per area, most mutable first
var priority = map[PathArea][]Tier{
	NativeArea:                         {Redirected, Package, Native},
	PackageVfsArea:                     {Redirected, Package, Native},
	PackagePvadArea:                    {Redirected, Package},
	RedirectionAreaWritablePackageRoot: {Redirected, Package, Native},
	RedirectionAreaOther:               {Redirected, Package, Native},
}

// Priority returns the candidate order for a redirectable area
func Priority(area PathArea) []Tier {
	return append([]Tier(nil), priority[area]...)
}
