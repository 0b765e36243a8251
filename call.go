package mfr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/absfs/mfr/win32"
	"github.com/absfs/mfr/winpath"
)

// call carries the per-call logger. Debug logging adds a fresh correlation
// id so the lines of one call can be grouped.
type call struct {
	op  Op
	log *slog.Logger
}

func (s *Shim) begin(ctx context.Context, op Op, name string) *call {
	l := s.log.With("op", op.String())
	if s.log.Enabled(ctx, slog.LevelDebug) {
		l = l.With("call", uuid.NewString())
		l.Debug("enter", "path", name)
	}
	return &call{op: op, log: l}
}

// safeDecide runs the decision engine for a real call. A panic anywhere in
// classification, decision or materialization yields nil, and the caller
// then makes the real call with its original arguments.
func (s *Shim) safeDecide(ctx context.Context, c *call, op Op, name string) (d *Decision) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("redirection failed, calling through", "path", name, "panic", fmt.Sprint(r))
			d = nil
		}
	}()
	d = s.decide(ctx, op, name, false)
	if d.ParentErr != nil {
		c.log.Debug("redirected parents incomplete", "target", d.Target, "error", d.ParentErr)
	}
	if d.Outcome != Passthrough {
		c.log.Debug("decided",
			"area", d.Area.String(),
			"outcome", d.Outcome.String(),
			"winner", d.Winner.String(),
			"target", d.Target,
			"materialized", d.Materialized,
			"lookups", d.Probes.Lookups)
	}
	return d
}

// retry makes a real call through f with long-path canonicalization and,
// when it is denied access, once more with the \\?\ form of every path.
// If the retry fails too the first error is returned.
func (s *Shim) retry(c *call, f func(q func(string) string) error) error {
	err := f(winpath.Long)
	if !errors.Is(err, win32.ERROR_ACCESS_DENIED) {
		return err
	}
	if f(winpath.Qualify) == nil {
		c.log.Debug("long path retry succeeded")
		return nil
	}
	return err
}
