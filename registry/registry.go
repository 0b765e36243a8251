// Package registry defines the real registry calls the shim wraps and an
// in-memory registry that implements them.
package registry

import (
	"context"
	"encoding/binary"
	"strings"
	"unicode/utf16"

	"github.com/absfs/mfr/win32"
)

// Hive is a predefined root key
type Hive int

const (
	ClassesRoot Hive = iota
	CurrentUser
	LocalMachine
	Users
	CurrentConfig
)

var hiveNames = [...]string{
	ClassesRoot:   "HKCR",
	CurrentUser:   "HKCU",
	LocalMachine:  "HKLM",
	Users:         "HKU",
	CurrentConfig: "HKCC",
}

var hiveAliases = map[string]Hive{
	"HKCR":                ClassesRoot,
	"HKEY_CLASSES_ROOT":   ClassesRoot,
	"HKCU":                CurrentUser,
	"HKEY_CURRENT_USER":   CurrentUser,
	"HKLM":                LocalMachine,
	"HKEY_LOCAL_MACHINE":  LocalMachine,
	"HKU":                 Users,
	"HKEY_USERS":          Users,
	"HKCC":                CurrentConfig,
	"HKEY_CURRENT_CONFIG": CurrentConfig,
}

func (h Hive) String() string {
	if h < 0 || int(h) >= len(hiveNames) {
		return "HK?"
	}
	return hiveNames[h]
}

// ParseHive accepts both the short (HKLM) and long (HKEY_LOCAL_MACHINE) names
func ParseHive(s string) (Hive, bool) {
	h, ok := hiveAliases[strings.ToUpper(s)]
	return h, ok
}

// Key identifies an opened key and the access it was opened with
type Key struct {
	Hive   Hive
	Path   string
	Access win32.RegAccess
}

// Full returns the key as HIVE\path
func (k Key) Full() string {
	if k.Path == "" {
		return k.Hive.String()
	}
	return k.Hive.String() + `\` + k.Path
}

// Sub returns the path of the child key name
func (k Key) Sub(name string) string {
	return JoinPath(k.Path, name)
}

// CleanPath trims separators and collapses duplicates in a key path
func CleanPath(p string) string {
	parts := strings.FieldsFunc(p, func(r rune) bool { return r == '\\' })
	return strings.Join(parts, `\`)
}

// JoinPath joins key path elements
func JoinPath(elem ...string) string {
	return CleanPath(strings.Join(elem, `\`))
}

// Value is a named registry value holding raw data
type Value struct {
	Name string
	Type win32.ValueType
	Data []byte
}

// StringValue encodes s as a REG_SZ value
func StringValue(name, s string) Value {
	return Value{Name: name, Type: win32.REG_SZ, Data: encodeUTF16(s)}
}

// DWordValue encodes v as a REG_DWORD value
func DWordValue(name string, v uint32) Value {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, v)
	return Value{Name: name, Type: win32.REG_DWORD, Data: data}
}

// Text decodes string-typed data
func (v Value) Text() (string, bool) {
	switch v.Type {
	case win32.REG_SZ, win32.REG_EXPAND_SZ:
		return decodeUTF16(v.Data), true
	}
	return "", false
}

// Strings decodes REG_MULTI_SZ data
func (v Value) Strings() ([]string, bool) {
	if v.Type != win32.REG_MULTI_SZ {
		return nil, false
	}
	s := strings.TrimRight(decodeUTF16Raw(v.Data), "\x00")
	if s == "" {
		return nil, true
	}
	return strings.Split(s, "\x00"), true
}

// Uint64 decodes REG_DWORD and REG_QWORD data
func (v Value) Uint64() (uint64, bool) {
	switch {
	case v.Type == win32.REG_DWORD && len(v.Data) >= 4:
		return uint64(binary.LittleEndian.Uint32(v.Data)), true
	case v.Type == win32.REG_QWORD && len(v.Data) >= 8:
		return binary.LittleEndian.Uint64(v.Data), true
	}
	return 0, false
}

func encodeUTF16(s string) []byte {
	u := utf16.Encode([]rune(s + "\x00"))
	b := make([]byte, 2*len(u))
	for i, c := range u {
		binary.LittleEndian.PutUint16(b[2*i:], c)
	}
	return b
}

func decodeUTF16Raw(b []byte) string {
	u := make([]uint16, len(b)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(b[2*i:])
	}
	return string(utf16.Decode(u))
}

func decodeUTF16(b []byte) string {
	s := decodeUTF16Raw(b)
	if i := strings.IndexByte(s, 0); i >= 0 {
		s = s[:i]
	}
	return s
}

// Backend is the set of real registry calls the shim needs. Keys are
// addressed by hive and path; no handle stays open between calls.
type Backend interface {
	OpenKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (Key, error)
	// CreateKey opens path, creating it and any missing ancestors.
	// created reports whether the key was new.
	CreateKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (k Key, created bool, err error)
	// DeleteKey removes a key that has no subkeys.
	DeleteKey(ctx context.Context, hive Hive, path string) error

	// EnumKey returns the name of the index'th subkey or ERROR_NO_MORE_ITEMS.
	EnumKey(ctx context.Context, k Key, index int) (string, error)
	// EnumValue returns the index'th value or ERROR_NO_MORE_ITEMS.
	EnumValue(ctx context.Context, k Key, index int) (Value, error)
	QueryValue(ctx context.Context, k Key, name string) (Value, error)
	SetValue(ctx context.Context, k Key, v Value) error
	DeleteValue(ctx context.Context, k Key, name string) error
}
