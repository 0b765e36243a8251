package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"

	"github.com/absfs/mfr"
	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/win32"
)

const shellHelp = `Commands:
  classify <path>            show the area and candidates of a path
  plan <op> <path>           show the decision for a call without side effects
  attr <path>                GetFileAttributes
  setattr <path> <RHSA>      SetFileAttributes with attrib.exe letters
  ls <pattern>               FindFirstFile / FindNextFile
  cat <path>                 open for read and print
  write <path> <text>...     open for write and replace the contents
  mkdir <path>               CreateDirectory
  rmdir <path>               RemoveDirectory
  rm <path>                  DeleteFile
  cp [-n] <src> <dst>        CopyFile, -n fails if dst exists
  mv [-f] <src> <dst>        MoveFile, -f replaces dst
  ini <file> <section> <key> [value]
                             read or write a profile string
  raw <command>              run a file command on the backend, bypassing the shim
  help                       show this help
  exit / quit / q            exit
`

// shell runs file commands through the shim
type shell struct {
	s       *mfr.Shim
	backend realfs.Backend
	out     io.Writer
}

func newShell(s *mfr.Shim, backend realfs.Backend, out io.Writer) *shell {
	return &shell{s: s, backend: backend, out: out}
}

var shellCommands = []string{
	"classify", "plan", "attr", "setattr", "ls", "cat", "write", "mkdir",
	"rmdir", "rm", "cp", "mv", "ini", "raw", "help", "exit", "quit",
}

func historyFile() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".mfrctl_history")
}

// run reads commands until EOF. A terminal on stdin gets line editing.
func (sh *shell) run(ctx context.Context, in io.Reader) error {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return sh.interactive(ctx)
	}
	sc := bufio.NewScanner(in)
	for sc.Scan() {
		if sh.exec(ctx, sc.Text()) {
			return nil
		}
	}
	return sc.Err()
}

func (sh *shell) interactive(ctx context.Context) error {
	line := liner.NewLiner()
	defer line.Close()
	line.SetCtrlCAborts(true)
	line.SetCompleter(func(prefix string) []string {
		var c []string
		for _, name := range shellCommands {
			if strings.HasPrefix(name, strings.ToLower(prefix)) {
				c = append(c, name)
			}
		}
		return c
	})
	if f, err := os.Open(historyFile()); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	defer func() {
		if path := historyFile(); path != "" {
			if f, err := os.Create(path); err == nil {
				line.WriteHistory(f)
				f.Close()
			}
		}
	}()

	fmt.Fprintln(sh.out, "Type 'help' for available commands.")
	for {
		text, err := line.Prompt("mfr> ")
		if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading input: %w", err)
		}
		if strings.TrimSpace(text) != "" {
			line.AppendHistory(text)
		}
		if sh.exec(ctx, text) {
			return nil
		}
	}
}

// exec runs one command line and reports whether the shell should exit.
// Errors are printed, not returned.
func (sh *shell) exec(ctx context.Context, text string) bool {
	args := fields(text)
	if len(args) == 0 || strings.HasPrefix(args[0], "#") {
		return false
	}
	var err error
	switch cmd := strings.ToLower(args[0]); cmd {
	case "exit", "quit", "q":
		return true
	case "help", "?":
		fmt.Fprint(sh.out, shellHelp)
	case "classify":
		err = cmdClassify(sh.out, sh.s, args[1:])
	case "plan":
		err = cmdPlan(ctx, sh.out, sh.s, args[1:])
	case "raw":
		if len(args) < 2 {
			err = fmt.Errorf("%w: raw <command>", errUsage)
			break
		}
		err = sh.file(ctx, sh.backend, strings.ToLower(args[1]), args[2:])
	default:
		err = sh.file(ctx, sh.s, cmd, args[1:])
	}
	if err != nil {
		fmt.Fprintf(sh.out, "error: %v\n", err)
	}
	return false
}

// file runs a file command against fs, which is either the shim or the
// backend below it
func (sh *shell) file(ctx context.Context, fs realfs.Backend, cmd string, args []string) error {
	need := func(n int, usage string) error {
		if len(args) < n {
			return fmt.Errorf("%w: %s", errUsage, usage)
		}
		return nil
	}

	switch cmd {
	case "attr":
		if err := need(1, "attr <path>"); err != nil {
			return err
		}
		attrs, err := fs.GetFileAttributes(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, attrs)

	case "setattr":
		if err := need(2, "setattr <path> <RHSA>"); err != nil {
			return err
		}
		attrs, err := parseAttributes(args[1])
		if err != nil {
			return err
		}
		return fs.SetFileAttributes(ctx, args[0], attrs)

	case "ls":
		if err := need(1, "ls <pattern>"); err != nil {
			return err
		}
		return sh.list(ctx, fs, args[0])

	case "cat":
		if err := need(1, "cat <path>"); err != nil {
			return err
		}
		f, err := fs.CreateFile(ctx, args[0], win32.GENERIC_READ, win32.OPEN_EXISTING, 0)
		if err != nil {
			return err
		}
		defer f.Close()
		if _, err := io.Copy(sh.out, f); err != nil {
			return err
		}
		fmt.Fprintln(sh.out)

	case "write":
		if err := need(1, "write <path> <text>..."); err != nil {
			return err
		}
		f, err := fs.CreateFile(ctx, args[0], win32.GENERIC_WRITE, win32.CREATE_ALWAYS, win32.FILE_ATTRIBUTE_NORMAL)
		if err != nil {
			return err
		}
		if _, err := io.WriteString(f, strings.Join(args[1:], " ")); err != nil {
			f.Close()
			return err
		}
		return f.Close()

	case "mkdir":
		if err := need(1, "mkdir <path>"); err != nil {
			return err
		}
		return fs.CreateDirectory(ctx, args[0])

	case "rmdir":
		if err := need(1, "rmdir <path>"); err != nil {
			return err
		}
		return fs.RemoveDirectory(ctx, args[0])

	case "rm":
		if err := need(1, "rm <path>"); err != nil {
			return err
		}
		return fs.DeleteFile(ctx, args[0])

	case "cp":
		failIfExists := len(args) > 0 && args[0] == "-n"
		if failIfExists {
			args = args[1:]
		}
		if err := need(2, "cp [-n] <src> <dst>"); err != nil {
			return err
		}
		return fs.CopyFile(ctx, args[0], args[1], failIfExists)

	case "mv":
		flags := win32.MOVEFILE_COPY_ALLOWED
		if len(args) > 0 && args[0] == "-f" {
			flags |= win32.MOVEFILE_REPLACE_EXISTING
			args = args[1:]
		}
		if err := need(2, "mv [-f] <src> <dst>"); err != nil {
			return err
		}
		return fs.MoveFile(ctx, args[0], args[1], flags)

	case "ini":
		if err := need(3, "ini <file> <section> <key> [value]"); err != nil {
			return err
		}
		if len(args) > 3 {
			return fs.WritePrivateProfileString(ctx, args[1], args[2], strings.Join(args[3:], " "), args[0])
		}
		v, err := fs.GetPrivateProfileString(ctx, args[1], args[2], "", args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(sh.out, v)

	default:
		return fmt.Errorf("%w: unknown command %q (type 'help' for commands)", errUsage, cmd)
	}
	return nil
}

func (sh *shell) list(ctx context.Context, fs realfs.Backend, pattern string) error {
	h, fd, err := fs.FindFirstFile(ctx, pattern)
	if err != nil {
		return err
	}
	defer h.Close()
	for {
		kind := "     "
		if fd.IsDir() {
			kind = "<DIR>"
		}
		fmt.Fprintf(sh.out, "%s %-6s %10d  %s\n", kind, fd.Attributes, fd.Size, fd.FileName)

		fd, err = h.Next(ctx)
		if errors.Is(err, win32.ERROR_NO_MORE_FILES) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

// parseAttributes accepts the R, H, S and A letters of attrib.exe; N clears
// everything
func parseAttributes(s string) (win32.FileAttributes, error) {
	var attrs win32.FileAttributes
	for _, c := range strings.ToUpper(s) {
		switch c {
		case 'R':
			attrs |= win32.FILE_ATTRIBUTE_READONLY
		case 'H':
			attrs |= win32.FILE_ATTRIBUTE_HIDDEN
		case 'S':
			attrs |= win32.FILE_ATTRIBUTE_SYSTEM
		case 'A':
			attrs |= win32.FILE_ATTRIBUTE_ARCHIVE
		case 'N':
		default:
			return 0, fmt.Errorf("%w: unknown attribute %q", errUsage, c)
		}
	}
	if attrs == 0 {
		attrs = win32.FILE_ATTRIBUTE_NORMAL
	}
	return attrs, nil
}

// fields splits a command line on spaces; double quotes group words so
// paths like "C:\Program Files" survive
func fields(s string) []string {
	var out []string
	var b strings.Builder
	quoted, inWord := false, false
	for _, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
			inWord = true
		case (r == ' ' || r == '\t') && !quoted:
			if inWord {
				out = append(out, b.String())
				b.Reset()
				inWord = false
			}
		default:
			b.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		out = append(out, b.String())
	}
	return out
}
