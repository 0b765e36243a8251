//go:build windows

package registry

import (
	"context"
	"encoding/binary"
	"errors"
	"syscall"

	winreg "golang.org/x/sys/windows/registry"

	"github.com/absfs/mfr/win32"
)

// OS is the host registry. Every call opens the key it needs and closes it
// before returning.
type OS struct{}

// NewOS returns the host registry backend
func NewOS() (Backend, error) {
	return OS{}, nil
}

var predefined = map[Hive]winreg.Key{
	ClassesRoot:   winreg.CLASSES_ROOT,
	CurrentUser:   winreg.CURRENT_USER,
	LocalMachine:  winreg.LOCAL_MACHINE,
	Users:         winreg.USERS,
	CurrentConfig: winreg.CURRENT_CONFIG,
}

func regErr(err error) error {
	if err == nil {
		return nil
	}
	var e syscall.Errno
	if errors.As(err, &e) {
		return win32.Errno(e)
	}
	return win32.FromError(err)
}

func (OS) open(k Key) (winreg.Key, error) {
	root, ok := predefined[k.Hive]
	if !ok {
		return 0, win32.ERROR_INVALID_HANDLE
	}
	h, err := winreg.OpenKey(root, k.Path, uint32(k.Access))
	return h, regErr(err)
}

func (o OS) OpenKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (Key, error) {
	k := Key{Hive: hive, Path: CleanPath(path), Access: access}
	h, err := o.open(k)
	if err != nil {
		return Key{}, err
	}
	h.Close()
	return k, nil
}

func (OS) CreateKey(ctx context.Context, hive Hive, path string, access win32.RegAccess) (Key, bool, error) {
	root, ok := predefined[hive]
	if !ok {
		return Key{}, false, win32.ERROR_INVALID_HANDLE
	}
	path = CleanPath(path)
	h, existing, err := winreg.CreateKey(root, path, uint32(access))
	if err != nil {
		return Key{}, false, regErr(err)
	}
	h.Close()
	return Key{Hive: hive, Path: path, Access: access}, !existing, nil
}

func (OS) DeleteKey(ctx context.Context, hive Hive, path string) error {
	root, ok := predefined[hive]
	if !ok {
		return win32.ERROR_INVALID_HANDLE
	}
	return regErr(winreg.DeleteKey(root, CleanPath(path)))
}

func (o OS) EnumKey(ctx context.Context, k Key, index int) (string, error) {
	h, err := o.open(k)
	if err != nil {
		return "", err
	}
	defer h.Close()
	names, err := h.ReadSubKeyNames(-1)
	if err != nil {
		return "", regErr(err)
	}
	if index < 0 || index >= len(names) {
		return "", win32.ERROR_NO_MORE_ITEMS
	}
	return names[index], nil
}

func (o OS) EnumValue(ctx context.Context, k Key, index int) (Value, error) {
	h, err := o.open(k)
	if err != nil {
		return Value{}, err
	}
	defer h.Close()
	names, err := h.ReadValueNames(-1)
	if err != nil {
		return Value{}, regErr(err)
	}
	if index < 0 || index >= len(names) {
		return Value{}, win32.ERROR_NO_MORE_ITEMS
	}
	return readValue(h, names[index])
}

func (o OS) QueryValue(ctx context.Context, k Key, name string) (Value, error) {
	h, err := o.open(k)
	if err != nil {
		return Value{}, err
	}
	defer h.Close()
	return readValue(h, name)
}

func readValue(h winreg.Key, name string) (Value, error) {
	n, typ, err := h.GetValue(name, nil)
	if err != nil {
		return Value{}, regErr(err)
	}
	buf := make([]byte, n)
	n, typ, err = h.GetValue(name, buf)
	if err != nil {
		return Value{}, regErr(err)
	}
	return Value{Name: name, Type: win32.ValueType(typ), Data: buf[:n]}, nil
}

func (o OS) SetValue(ctx context.Context, k Key, v Value) error {
	h, err := o.open(k)
	if err != nil {
		return err
	}
	defer h.Close()
	switch v.Type {
	case win32.REG_SZ:
		s, _ := v.Text()
		err = h.SetStringValue(v.Name, s)
	case win32.REG_EXPAND_SZ:
		s, _ := v.Text()
		err = h.SetExpandStringValue(v.Name, s)
	case win32.REG_MULTI_SZ:
		ss, _ := v.Strings()
		err = h.SetStringsValue(v.Name, ss)
	case win32.REG_DWORD:
		if len(v.Data) < 4 {
			return win32.ERROR_INVALID_PARAMETER
		}
		err = h.SetDWordValue(v.Name, binary.LittleEndian.Uint32(v.Data))
	case win32.REG_QWORD:
		if len(v.Data) < 8 {
			return win32.ERROR_INVALID_PARAMETER
		}
		err = h.SetQWordValue(v.Name, binary.LittleEndian.Uint64(v.Data))
	default:
		err = h.SetBinaryValue(v.Name, v.Data)
	}
	return regErr(err)
}

func (o OS) DeleteValue(ctx context.Context, k Key, name string) error {
	h, err := o.open(k)
	if err != nil {
		return err
	}
	defer h.Close()
	return regErr(h.DeleteValue(name))
}
