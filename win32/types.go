package win32

import (
	"strings"
	"time"
)

// FileAttributes is a FILE_ATTRIBUTE_* bit set
type FileAttributes uint32

const (
	FILE_ATTRIBUTE_READONLY      FileAttributes = 0x00000001
	FILE_ATTRIBUTE_HIDDEN        FileAttributes = 0x00000002
	FILE_ATTRIBUTE_SYSTEM        FileAttributes = 0x00000004
	FILE_ATTRIBUTE_DIRECTORY     FileAttributes = 0x00000010
	FILE_ATTRIBUTE_ARCHIVE       FileAttributes = 0x00000020
	FILE_ATTRIBUTE_NORMAL        FileAttributes = 0x00000080
	FILE_ATTRIBUTE_TEMPORARY     FileAttributes = 0x00000100
	FILE_ATTRIBUTE_REPARSE_POINT FileAttributes = 0x00000400
	FILE_ATTRIBUTE_NOT_INDEXED   FileAttributes = 0x00002000

	// INVALID_FILE_ATTRIBUTES is what GetFileAttributes reports on failure
	INVALID_FILE_ATTRIBUTES FileAttributes = 0xFFFFFFFF
)

// settableAttributes are the bits SetFileAttributes may change
const settableAttributes = FILE_ATTRIBUTE_READONLY | FILE_ATTRIBUTE_HIDDEN |
	FILE_ATTRIBUTE_SYSTEM | FILE_ATTRIBUTE_ARCHIVE | FILE_ATTRIBUTE_NORMAL |
	FILE_ATTRIBUTE_TEMPORARY | FILE_ATTRIBUTE_NOT_INDEXED

// Has reports whether all bits of flag are set
func (a FileAttributes) Has(flag FileAttributes) bool {
	return a&flag == flag
}

// IsDir reports whether the directory bit is set
func (a FileAttributes) IsDir() bool {
	return a != INVALID_FILE_ATTRIBUTES && a&FILE_ATTRIBUTE_DIRECTORY != 0
}

// Settable masks a to the bits SetFileAttributes honours. FILE_ATTRIBUTE_NORMAL
// is dropped when any other bit is present.
func (a FileAttributes) Settable() FileAttributes {
	a &= settableAttributes
	if a != FILE_ATTRIBUTE_NORMAL {
		a &^= FILE_ATTRIBUTE_NORMAL
	}
	return a
}

var attributeLetters = []struct {
	flag   FileAttributes
	letter string
}{
	{FILE_ATTRIBUTE_DIRECTORY, "D"},
	{FILE_ATTRIBUTE_READONLY, "R"},
	{FILE_ATTRIBUTE_HIDDEN, "H"},
	{FILE_ATTRIBUTE_SYSTEM, "S"},
	{FILE_ATTRIBUTE_ARCHIVE, "A"},
	{FILE_ATTRIBUTE_TEMPORARY, "T"},
	{FILE_ATTRIBUTE_NOT_INDEXED, "I"},
	{FILE_ATTRIBUTE_REPARSE_POINT, "L"},
}

// String renders the attributes the way attrib.exe does
func (a FileAttributes) String() string {
	if a == INVALID_FILE_ATTRIBUTES {
		return "INVALID"
	}
	var b strings.Builder
	for _, l := range attributeLetters {
		if a&l.flag != 0 {
			b.WriteString(l.letter)
		}
	}
	if b.Len() == 0 {
		return "N"
	}
	return b.String()
}

// Access is a file access mask as passed to CreateFile
type Access uint32

const (
	FILE_READ_DATA        Access = 0x00000001
	FILE_WRITE_DATA       Access = 0x00000002
	FILE_APPEND_DATA      Access = 0x00000004
	FILE_READ_EA          Access = 0x00000008
	FILE_WRITE_EA         Access = 0x00000010
	FILE_EXECUTE          Access = 0x00000020
	FILE_READ_ATTRIBUTES  Access = 0x00000080
	FILE_WRITE_ATTRIBUTES Access = 0x00000100
	DELETE                Access = 0x00010000
	WRITE_DAC             Access = 0x00040000
	WRITE_OWNER           Access = 0x00080000
	MAXIMUM_ALLOWED       Access = 0x02000000
	GENERIC_ALL           Access = 0x10000000
	GENERIC_EXECUTE       Access = 0x20000000
	GENERIC_WRITE         Access = 0x40000000
	GENERIC_READ          Access = 0x80000000
)

const writeAccess = FILE_WRITE_DATA | FILE_APPEND_DATA | FILE_WRITE_EA |
	FILE_WRITE_ATTRIBUTES | DELETE | WRITE_DAC | WRITE_OWNER |
	MAXIMUM_ALLOWED | GENERIC_ALL | GENERIC_WRITE

// Writes reports whether the mask requests any kind of modification
func (a Access) Writes() bool {
	return a&writeAccess != 0
}

// CreationDisposition is the dwCreationDisposition argument of CreateFile
type CreationDisposition uint32

const (
	CREATE_NEW        CreationDisposition = 1
	CREATE_ALWAYS     CreationDisposition = 2
	OPEN_EXISTING     CreationDisposition = 3
	OPEN_ALWAYS       CreationDisposition = 4
	TRUNCATE_EXISTING CreationDisposition = 5
)

// MayCreate reports whether the disposition can bring a new file into existence
func (d CreationDisposition) MayCreate() bool {
	return d == CREATE_NEW || d == CREATE_ALWAYS || d == OPEN_ALWAYS
}

// Modifies reports whether the disposition changes the file even when the
// access mask is read-only
func (d CreationDisposition) Modifies() bool {
	return d != OPEN_EXISTING
}

// Valid reports whether d is one of the five documented dispositions
func (d CreationDisposition) Valid() bool {
	return d >= CREATE_NEW && d <= TRUNCATE_EXISTING
}

// MoveFlags is the dwFlags argument of MoveFileEx
type MoveFlags uint32

const (
	MOVEFILE_REPLACE_EXISTING MoveFlags = 0x00000001
	MOVEFILE_COPY_ALLOWED     MoveFlags = 0x00000002
	MOVEFILE_WRITE_THROUGH    MoveFlags = 0x00000008
)

// FindData is the portion of WIN32_FIND_DATA the shim deals in
type FindData struct {
	FileName      string
	Attributes    FileAttributes
	Size          int64
	LastWriteTime time.Time
}

// IsDir reports whether the entry is a directory
func (d FindData) IsDir() bool {
	return d.Attributes.IsDir()
}

// RegAccess is a REGSAM access mask
type RegAccess uint32

const (
	KEY_QUERY_VALUE        RegAccess = 0x0001
	KEY_SET_VALUE          RegAccess = 0x0002
	KEY_CREATE_SUB_KEY     RegAccess = 0x0004
	KEY_ENUMERATE_SUB_KEYS RegAccess = 0x0008
	KEY_NOTIFY             RegAccess = 0x0010
	KEY_CREATE_LINK        RegAccess = 0x0020
	KEY_WOW64_64KEY        RegAccess = 0x0100
	KEY_WOW64_32KEY        RegAccess = 0x0200
	KEY_DELETE             RegAccess = 0x00010000
	KEY_READ_CONTROL       RegAccess = 0x00020000
	KEY_WRITE_DAC          RegAccess = 0x00040000
	KEY_WRITE_OWNER        RegAccess = 0x00080000
	KEY_MAXIMUM_ALLOWED    RegAccess = 0x02000000

	KEY_READ       RegAccess = 0x00020019
	KEY_WRITE      RegAccess = 0x00020006
	KEY_EXECUTE    RegAccess = 0x00020019
	KEY_ALL_ACCESS RegAccess = 0x000F003F
)

// RegWriteMask holds every bit that lets a key handle modify the hive
const RegWriteMask = KEY_SET_VALUE | KEY_CREATE_SUB_KEY | KEY_CREATE_LINK |
	KEY_DELETE | KEY_WRITE_DAC | KEY_WRITE_OWNER

// Writes reports whether the mask grants any modifying right
func (a RegAccess) Writes() bool {
	return a&RegWriteMask != 0 || a&KEY_MAXIMUM_ALLOWED != 0
}

// ValueType is a REG_* value type
type ValueType uint32

const (
	REG_NONE      ValueType = 0
	REG_SZ        ValueType = 1
	REG_EXPAND_SZ ValueType = 2
	REG_BINARY    ValueType = 3
	REG_DWORD     ValueType = 4
	REG_MULTI_SZ  ValueType = 7
	REG_QWORD     ValueType = 11
)
