package mfr

import (
	"context"

	"github.com/absfs/mfr/internal/reentry"
)

// GetPrivateProfileString reads an INI value from the winning copy of
// file without materializing it
func (s *Shim) GetPrivateProfileString(ctx context.Context, section, key, def, file string) (string, error) {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.GetPrivateProfileString(ctx, section, key, def, file)
	}
	c := s.begin(ctx, OpProfileRead, file)
	d := s.safeDecide(ctx, c, OpProfileRead, file)
	if d == nil {
		return s.fs.GetPrivateProfileString(ctx, section, key, def, file)
	}
	if d.Outcome == Fail {
		return def, d.Err
	}
	var v string
	err := s.retry(c, func(q func(string) string) (err error) {
		v, err = s.fs.GetPrivateProfileString(ctx, section, key, def, q(d.Target))
		return err
	})
	return v, err
}

// WritePrivateProfileString copies file into the redirection area before
// writing the value there
func (s *Shim) WritePrivateProfileString(ctx context.Context, section, key, value, file string) error {
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return s.fs.WritePrivateProfileString(ctx, section, key, value, file)
	}
	c := s.begin(ctx, OpProfileWrite, file)
	d := s.safeDecide(ctx, c, OpProfileWrite, file)
	if d == nil {
		return s.fs.WritePrivateProfileString(ctx, section, key, value, file)
	}
	if d.Outcome == Fail {
		return d.Err
	}
	return s.retry(c, func(q func(string) string) error {
		return s.fs.WritePrivateProfileString(ctx, section, key, value, q(d.Target))
	})
}
