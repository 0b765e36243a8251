// Package reentry tracks how deeply a call chain has entered the shim.
//
// The depth travels in the context handed to every backend call, so a
// backend that is itself routed back through the shim arrives with a
// non-zero depth and is passed straight to the real implementation.
package reentry

import "context"

// DepthContextKey carries the current entry depth.
var DepthContextKey = &contextKey{"depth"}

// Depth returns the entry depth recorded in ctx. A nil context has depth 0.
func Depth(ctx context.Context) int {
	if ctx == nil {
		return 0
	}
	d, _ := ctx.Value(DepthContextKey).(int)
	return d
}

// Enter returns a context one level deeper than ctx and whether the caller
// was already inside the shim. The returned context is released by simply
// dropping it.
func Enter(ctx context.Context) (context.Context, bool) {
	if ctx == nil {
		ctx = context.Background()
	}
	d := Depth(ctx)
	return context.WithValue(ctx, DepthContextKey, d+1), d > 0
}

// contextKey is a value for use with context.WithValue. It's used as
// a pointer so it fits in an interface{} without allocation.
type contextKey struct {
	name string
}

func (k *contextKey) String() string { return "reentry context value " + k.name }
