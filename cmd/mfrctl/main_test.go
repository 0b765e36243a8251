package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	pkgRoot    = `C:\Program Files\WindowsApps\Contoso.App_1.0.0.0_x64__8wekyb3d8bbwe`
	localCache = `C:\Users\me\AppData\Local\Packages\Contoso.App_8wekyb3d8bbwe\LocalCache`
	writable   = localCache + `\Local\Microsoft\WritablePackageRoot`
)

func runArgs(t *testing.T, stdin string, args ...string) (code int, stdout, stderr string) {
	t.Helper()
	var out, errOut strings.Builder
	code = run(args, strings.NewReader(stdin), &out, &errOut)
	return code, out.String(), errOut.String()
}

var memFlags = []string{"--mem", "--package-root", pkgRoot, "--local-cache", localCache}

func TestOps(t *testing.T) {
	code, out, _ := runArgs(t, "", "ops")
	require.Equal(t, 0, code)
	assert.Contains(t, out, "open-read")
	assert.Contains(t, out, "profile-write")
}

func TestUsage(t *testing.T) {
	code, _, errOut := runArgs(t, "")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "Usage:")

	code, _, errOut = runArgs(t, "", "bogus")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "bogus"`)

	code, _, errOut = runArgs(t, "", "--mem", "classify", `C:\x`)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "--package-root")

	code, _, _ = runArgs(t, "", append(memFlags, "plan", "open-read")...)
	assert.Equal(t, 2, code)

	code, _, errOut = runArgs(t, "", append(memFlags, "plan", "launch", `C:\x`)...)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown operation "launch"`)
}

func TestClassify(t *testing.T) {
	code, out, errOut := runArgs(t, "", append(memFlags, "classify", `C:/ProgramData//App/x.txt`, `D:\data`)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, `C:\ProgramData\App\x.txt`)
	assert.Contains(t, out, "area      native")
	assert.Contains(t, out, "mapping   Common AppData")
	assert.Contains(t, out, writable+`\VFS\Common AppData\App\x.txt`)
	assert.Contains(t, out, pkgRoot+`\VFS\Common AppData\App\x.txt`)
	assert.Contains(t, out, "area      other-drive")
}

func TestPlan(t *testing.T) {
	code, out, errOut := runArgs(t, "", append(memFlags, "plan", "create-directory", `C:\ProgramData\App`)...)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "op         create-directory")
	assert.Contains(t, out, "outcome    proceed")
	assert.Contains(t, out, "target     "+writable+`\VFS\Common AppData\App`)
	assert.Contains(t, out, "probes")
}

func TestShellScript(t *testing.T) {
	vfs := pkgRoot + `\VFS\Common AppData`
	script := strings.Join([]string{
		`# seed the package image`,
		`raw mkdir "` + pkgRoot + `\VFS"`,
		`raw mkdir "` + vfs + `"`,
		`raw mkdir "` + vfs + `\App"`,
		`raw write "` + vfs + `\App\settings.ini" from the package`,
		`cat C:\ProgramData\App\settings.ini`,
		`write C:\ProgramData\App\new.txt hello`,
		`raw ls "` + writable + `\VFS\Common AppData\App\*"`,
		`ls C:\ProgramData\App\*`,
		`rm C:\ProgramData\App\new.txt`,
		`attr C:\ProgramData\App\new.txt`,
		`frobnicate`,
		`exit`,
		`cat C:\ProgramData\App\settings.ini`,
	}, "\n")

	code, out, errOut := runArgs(t, script, append(memFlags, "shell")...)
	require.Equal(t, 0, code, errOut)

	lines := strings.Split(out, "\n")
	require.NotEmpty(t, lines)
	assert.Equal(t, "from the package", lines[0])
	assert.Equal(t, 1, strings.Count(out, "from the package"), "commands after exit ran")

	assert.Contains(t, out, "new.txt")
	assert.Contains(t, out, "settings.ini")
	assert.Contains(t, out, "error: the system cannot find the file specified")
	assert.Contains(t, out, `error: usage: unknown command "frobnicate"`)
}

func TestConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mfr.jsonc")
	require.NoError(t, os.WriteFile(path, []byte(`{
		// minimal
		"packageRoot": "`+strings.ReplaceAll(pkgRoot, `\`, `\\`)+`",
		"localCache": "`+strings.ReplaceAll(localCache, `\`, `\\`)+`",
		"defaultFolders": false,
	}`), 0o644))

	code, out, errOut := runArgs(t, "", "--mem", "-c", path, "classify", `C:\ProgramData\x`)
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "area      native")
	assert.NotContains(t, out, "mapping")

	code, _, errOut = runArgs(t, "", "--mem", "-c", filepath.Join(t.TempDir(), "none.jsonc"), "classify", `C:\x`)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "cannot read config file")
}

func TestFields(t *testing.T) {
	tests := []struct {
		in   string
		want []string
	}{
		{"", nil},
		{"  ls   a  ", []string{"ls", "a"}},
		{`cat "C:\Program Files\x.txt"`, []string{"cat", `C:\Program Files\x.txt`}},
		{`write a "" b`, []string{"write", "a", "", "b"}},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, fields(tt.in), tt.in)
	}
}

func TestParseAttributes(t *testing.T) {
	a, err := parseAttributes("rh")
	require.NoError(t, err)
	assert.Equal(t, "RH", a.String())

	a, err = parseAttributes("N")
	require.NoError(t, err)
	assert.Equal(t, "N", a.String())

	_, err = parseAttributes("X")
	assert.ErrorIs(t, err, errUsage)
}
