package mfr

import (
	"context"

	"github.com/absfs/mfr/internal/reentry"
	"github.com/absfs/mfr/registry"
	"github.com/absfs/mfr/win32"
)

// registryBackend returns the registry calls go through to
func (s *Shim) registryBackend() (registry.Backend, error) {
	if s.reg == nil {
		return nil, win32.ERROR_CALL_NOT_IMPLEMENTED
	}
	return s.reg, nil
}

// visible reports whether remediation lets the caller see the key
func (s *Shim) visible(hive registry.Hive, path string) bool {
	return !s.rem.HiddenKey(hive, path) && !s.rem.Blocked(hive, path)
}

// OpenKey opens a key with the access mask remediation allows. Hidden and
// blocked keys do not exist.
func (s *Shim) OpenKey(ctx context.Context, hive registry.Hive, path string, access win32.RegAccess) (registry.Key, error) {
	reg, err := s.registryBackend()
	if err != nil {
		return registry.Key{}, err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return reg.OpenKey(ctx, hive, path, access)
	}
	path = registry.CleanPath(path)
	if !s.visible(hive, path) {
		s.log.Debug("registry key hidden", "op", "open-key", "key", hive.String()+`\`+path)
		return registry.Key{}, win32.ERROR_FILE_NOT_FOUND
	}
	return reg.OpenKey(ctx, hive, path, s.rem.AdjustAccess(hive, path, access))
}

// CreateKey opens or creates a key with the access mask remediation
// allows. Hidden and blocked keys cannot be created.
func (s *Shim) CreateKey(ctx context.Context, hive registry.Hive, path string, access win32.RegAccess) (registry.Key, bool, error) {
	reg, err := s.registryBackend()
	if err != nil {
		return registry.Key{}, false, err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return reg.CreateKey(ctx, hive, path, access)
	}
	path = registry.CleanPath(path)
	if !s.visible(hive, path) {
		s.log.Debug("registry key hidden", "op", "create-key", "key", hive.String()+`\`+path)
		return registry.Key{}, false, win32.ERROR_ACCESS_DENIED
	}
	return reg.CreateKey(ctx, hive, path, s.rem.AdjustAccess(hive, path, access))
}

// DeleteKey deletes a key unless remediation fakes the deletion. A key
// hidden by a deletion marker is already gone.
func (s *Shim) DeleteKey(ctx context.Context, hive registry.Hive, path string) error {
	reg, err := s.registryBackend()
	if err != nil {
		return err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return reg.DeleteKey(ctx, hive, path)
	}
	path = registry.CleanPath(path)
	if s.rem.FakeDeleteKey(hive, path) {
		s.log.Debug("fake delete", "op", "delete-key", "key", hive.String()+`\`+path)
		return nil
	}
	if !s.visible(hive, path) {
		return win32.ERROR_FILE_NOT_FOUND
	}
	return reg.DeleteKey(ctx, hive, path)
}

// EnumKey returns the index'th subkey that remediation leaves visible
func (s *Shim) EnumKey(ctx context.Context, k registry.Key, index int) (string, error) {
	reg, err := s.registryBackend()
	if err != nil {
		return "", err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested || s.rem == nil {
		return reg.EnumKey(ctx, k, index)
	}
	if index < 0 {
		return "", win32.ERROR_NO_MORE_ITEMS
	}
	for i, n := 0, 0; ; i++ {
		name, err := reg.EnumKey(ctx, k, i)
		if err != nil {
			return "", err
		}
		if !s.visible(k.Hive, k.Sub(name)) {
			continue
		}
		if n == index {
			return name, nil
		}
		n++
	}
}

// EnumValue returns the index'th value that remediation leaves visible
func (s *Shim) EnumValue(ctx context.Context, k registry.Key, index int) (registry.Value, error) {
	reg, err := s.registryBackend()
	if err != nil {
		return registry.Value{}, err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested || s.rem == nil {
		return reg.EnumValue(ctx, k, index)
	}
	if index < 0 {
		return registry.Value{}, win32.ERROR_NO_MORE_ITEMS
	}
	for i, n := 0, 0; ; i++ {
		v, err := reg.EnumValue(ctx, k, i)
		if err != nil {
			return registry.Value{}, err
		}
		if s.rem.HiddenValue(k.Hive, k.Path, v.Name) {
			continue
		}
		if n == index {
			return v, nil
		}
		n++
	}
}

// QueryValue reads a value; values behind a deletion marker do not exist
func (s *Shim) QueryValue(ctx context.Context, k registry.Key, name string) (registry.Value, error) {
	reg, err := s.registryBackend()
	if err != nil {
		return registry.Value{}, err
	}
	ctx, nested := reentry.Enter(ctx)
	if !nested && s.rem.HiddenValue(k.Hive, k.Path, name) {
		return registry.Value{}, win32.ERROR_FILE_NOT_FOUND
	}
	return reg.QueryValue(ctx, k, name)
}

// SetValue writes a value
func (s *Shim) SetValue(ctx context.Context, k registry.Key, v registry.Value) error {
	reg, err := s.registryBackend()
	if err != nil {
		return err
	}
	ctx, _ = reentry.Enter(ctx)
	return reg.SetValue(ctx, k, v)
}

// DeleteValue deletes a value unless remediation fakes the deletion. A
// value hidden by a deletion marker is already gone.
func (s *Shim) DeleteValue(ctx context.Context, k registry.Key, name string) error {
	reg, err := s.registryBackend()
	if err != nil {
		return err
	}
	ctx, nested := reentry.Enter(ctx)
	if nested {
		return reg.DeleteValue(ctx, k, name)
	}
	if s.rem.FakeDeleteValue(k.Hive, k.Path, name) {
		return nil
	}
	if s.rem.HiddenValue(k.Hive, k.Path, name) {
		return win32.ERROR_FILE_NOT_FOUND
	}
	return reg.DeleteValue(ctx, k, name)
}

var _ registry.Backend = (*Shim)(nil)
