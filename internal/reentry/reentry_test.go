package reentry

import (
	"context"
	"testing"
)

func TestEnter(t *testing.T) {
	ctx := context.Background()
	if Depth(ctx) != 0 {
		t.Fatal("background context should not be nested")
	}

	outer, nested := Enter(ctx)
	if nested {
		t.Error("first Enter reported nested")
	}
	if Depth(outer) != 1 {
		t.Errorf("Depth = %d, want 1", Depth(outer))
	}

	inner, nested := Enter(outer)
	if !nested {
		t.Error("second Enter did not report nested")
	}
	if Depth(inner) != 2 {
		t.Errorf("Depth = %d, want 2", Depth(inner))
	}

	// leaving the inner scope restores the outer depth
	if Depth(outer) != 1 {
		t.Errorf("outer Depth changed to %d", Depth(outer))
	}
}

func TestEnterNilContext(t *testing.T) {
	ctx, nested := Enter(nil)
	if nested || Depth(ctx) != 1 {
		t.Errorf("Enter(nil) = depth %d nested %v", Depth(ctx), nested)
	}
	if Depth(nil) != 0 {
		t.Error("Depth(nil) != 0")
	}
}
