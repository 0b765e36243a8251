package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/absfs/mfr"
	"github.com/absfs/mfr/realfs"
)

const sample = `{
	// install location, read-only
	"packageRoot": "C:\\Program Files\\WindowsApps\\Contoso.App_1.0.0.0_x64__8wekyb3d8bbwe",
	"localCache": "C:\\Users\\me\\AppData\\Local\\Packages\\Contoso.App_8wekyb3d8bbwe\\LocalCache",
	"userProfile": "C:\\Users\\me",
	"folders": [
		{
			"name": "Fonts",
			"native": "C:\\Windows\\Fonts",
			"package": "C:\\Program Files\\WindowsApps\\Contoso.App_1.0.0.0_x64__8wekyb3d8bbwe\\VFS\\Fonts",
			"redirected": "C:\\Users\\me\\AppData\\Local\\Packages\\Contoso.App_8wekyb3d8bbwe\\LocalCache\\Fonts",
			"runtimeMapsNativeToVFS": true,
		},
	],
	"strictCreateDirectory": true,
	"remediation": [
		{"type": "ModifyKeyAccess", "hive": "HKLM", "patterns": ["Software\\\\Contoso\\\\.*"], "access": "FULL2R"},
		{"type": "DeletionMarker", "hive": "HKCU", "patterns": ["Software\\\\Contoso\\\\Telemetry"]},
	],
}
`

const (
	pkgRoot    = `C:\Program Files\WindowsApps\Contoso.App_1.0.0.0_x64__8wekyb3d8bbwe`
	localCache = `C:\Users\me\AppData\Local\Packages\Contoso.App_8wekyb3d8bbwe\LocalCache`
)

func folder(cfg mfr.Config, name string) (mfr.FolderMapping, bool) {
	for _, f := range cfg.Folders {
		if f.Name == name {
			return f, true
		}
	}
	return mfr.FolderMapping{}, false
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	assert.Equal(t, pkgRoot, f.PackageRoot)
	assert.True(t, f.StrictCreateDirectory)
	assert.Len(t, f.Remediation, 2)

	cfg, err := f.Config()
	require.NoError(t, err)
	assert.Equal(t, localCache+`\Local\Microsoft\WritablePackageRoot`, cfg.WritableRoot)
	assert.Equal(t, "C:", cfg.SystemDrive)

	sys, ok := folder(cfg, "SystemX64")
	require.True(t, ok)
	assert.Equal(t, `C:\Windows\System32`, sys.NativeBase)
	assert.Equal(t, pkgRoot+`\VFS\SystemX64`, sys.PackageBase)
	assert.Equal(t, cfg.WritableRoot+`\VFS\SystemX64`, sys.RedirectedBase)
	assert.False(t, sys.Local)

	local, ok := folder(cfg, "Local AppData")
	require.True(t, ok)
	assert.Equal(t, `C:\Users\me\AppData\Local`, local.NativeBase)
	assert.Equal(t, localCache+`\Local`, local.RedirectedBase)
	assert.True(t, local.Local)
	assert.True(t, local.RuntimeMapsNativeToVFS)

	// the explicit Fonts folder replaces the default one in place
	fonts, ok := folder(cfg, "Fonts")
	require.True(t, ok)
	assert.Equal(t, localCache+`\Fonts`, fonts.RedirectedBase)
	assert.True(t, fonts.RuntimeMapsNativeToVFS)
	assert.Len(t, cfg.Folders, len(vfsFolders)+2)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		want error
	}{
		{"jsonc", `{"packageRoot": `, ErrConfigInvalid},
		{"type", `{"packageRoot": 7}`, ErrConfigInvalid},
		{"package root", `{"writableRoot": "C:\\W"}`, mfr.ErrNoPackageRoot},
		{"writable root", `{"packageRoot": "C:\\P"}`, ErrNoWritableRoot},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.data))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestConfigValidation(t *testing.T) {
	f, err := Parse([]byte(`{"packageRoot": "C:\\P", "writableRoot": "C:\\P\\W", "defaultFolders": false}`))
	require.NoError(t, err)
	_, err = f.Config()
	require.ErrorIs(t, err, ErrConfigInvalid)
	require.ErrorIs(t, err, mfr.ErrOverlappingRoots)
}

func TestNoDefaultFolders(t *testing.T) {
	f, err := Parse([]byte(`{
		"packageRoot": "C:\\P",
		"writableRoot": "C:\\W",
		"systemDrive": "D:",
		"defaultFolders": false,
		"folders": [{"native": "D:\\Tools", "package": "C:\\P\\VFS\\Tools", "redirected": "C:\\W\\VFS\\Tools"}]
	}`))
	require.NoError(t, err)
	cfg, err := f.Config()
	require.NoError(t, err)
	require.Len(t, cfg.Folders, 1)
	assert.Equal(t, `D:\Tools`, cfg.Folders[0].NativeBase)
	assert.Equal(t, "D:", cfg.SystemDrive)
}

func TestDefaultFoldersWithoutProfile(t *testing.T) {
	folders := DefaultFolders(`E:\`, "", `E:\P`, `E:\W`, "")
	require.Len(t, folders, len(vfsFolders))
	for _, f := range folders {
		assert.False(t, f.Local, f.Name)
	}
	assert.Equal(t, `E:\Program Files (x86)\Common Files`, folders[4].NativeBase)
	assert.Equal(t, `E:\P\VFS\ProgramFilesCommonX86`, folders[4].PackageBase)
}

func TestOptions(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)
	opts, err := f.Options()
	require.NoError(t, err)
	assert.Len(t, opts, 2)

	cfg, err := f.Config()
	require.NoError(t, err)
	_, err = mfr.New(cfg, realfs.NewAbs(nil), opts...)
	require.NoError(t, err)

	f.Remediation[0].Access = "EVERYTHING"
	_, err = f.Options()
	require.ErrorIs(t, err, ErrConfigInvalid)
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mfr.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, pkgRoot, f.PackageRoot)

	_, err = Load(filepath.Join(dir, "missing.jsonc"))
	require.ErrorIs(t, err, ErrConfigRead)
	require.ErrorIs(t, err, os.ErrNotExist)
}
