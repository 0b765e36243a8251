package realfs

import (
	"bytes"
	"context"
	"os"
	"strings"

	"gopkg.in/ini.v1"

	"github.com/absfs/mfr/win32"
)

var profileLoadOptions = ini.LoadOptions{
	IgnoreInlineComment:     true,
	SkipUnrecognizableLines: true,
	AllowBooleanKeys:        true,
}

// GetPrivateProfileString reads key from section of an INI file. Section and
// key names match case-insensitively.
func (a *Abs) GetPrivateProfileString(ctx context.Context, section, key, def, file string) (string, error) {
	l, err := a.locate(file)
	if err != nil {
		return def, err
	}
	if !l.exists() {
		return def, l.missing()
	}
	if l.isDir() {
		return def, win32.ERROR_ACCESS_DENIED
	}
	data, err := a.readFile(l.phys)
	if err != nil {
		return def, win32.FromError(err)
	}
	f, err := ini.LoadSources(profileLoadOptions, data)
	if err != nil {
		return def, win32.ERROR_INVALID_PARAMETER
	}
	sec := findSection(f, section)
	if sec == nil {
		return def, win32.ERROR_FILE_NOT_FOUND
	}
	k := findKey(sec, key)
	if k == nil {
		return def, win32.ERROR_FILE_NOT_FOUND
	}
	return k.String(), nil
}

// WritePrivateProfileString sets key in section of an INI file, creating
// the file and section as needed.
func (a *Abs) WritePrivateProfileString(ctx context.Context, section, key, value, file string) error {
	l, err := a.locate(file)
	if err != nil {
		return err
	}
	if !l.parent {
		return win32.ERROR_PATH_NOT_FOUND
	}
	if a.readOnlyAt(l.win) || l.isDir() {
		return win32.ERROR_ACCESS_DENIED
	}

	f := ini.Empty(profileLoadOptions)
	if l.exists() {
		if a.attributesOf(l.phys, l.info).Has(win32.FILE_ATTRIBUTE_READONLY) {
			return win32.ERROR_ACCESS_DENIED
		}
		data, err := a.readFile(l.phys)
		if err != nil {
			return win32.FromError(err)
		}
		if f, err = ini.LoadSources(profileLoadOptions, data); err != nil {
			return win32.ERROR_INVALID_PARAMETER
		}
	}

	sec := findSection(f, section)
	if sec == nil {
		if sec, err = f.NewSection(section); err != nil {
			return win32.ERROR_INVALID_PARAMETER
		}
	}
	if k := findKey(sec, key); k != nil {
		k.SetValue(value)
	} else if _, err := sec.NewKey(key, value); err != nil {
		return win32.ERROR_INVALID_PARAMETER
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return win32.FromError(err)
	}
	out, err := a.fs.OpenFile(l.phys, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0666)
	if err != nil {
		return win32.FromError(err)
	}
	if _, err := out.Write(buf.Bytes()); err != nil {
		out.Close()
		return win32.FromError(err)
	}
	if err := out.Close(); err != nil {
		return win32.FromError(err)
	}
	if !l.exists() {
		a.mu.Lock()
		a.extra[extraKey(l.phys)] = win32.FILE_ATTRIBUTE_ARCHIVE
		a.mu.Unlock()
	}
	return nil
}

func findSection(f *ini.File, name string) *ini.Section {
	for _, s := range f.Sections() {
		if strings.EqualFold(s.Name(), name) {
			return s
		}
	}
	return nil
}

func findKey(s *ini.Section, name string) *ini.Key {
	for _, k := range s.Keys() {
		if strings.EqualFold(k.Name(), name) {
			return k
		}
	}
	return nil
}
