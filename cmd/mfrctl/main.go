// mfrctl inspects and exercises the redirection shim of one package.
//
// Usage:
//
//	mfrctl [global flags] classify <path>...
//	mfrctl [global flags] plan <op> <path>
//	mfrctl [global flags] ops
//	mfrctl [global flags] shell
//
// Global flags:
//
//	-c, --config        JSONC configuration file
//	    --package-root  package root when no config file is given
//	    --local-cache   package LocalCache folder when no config file is given
//	    --mem           serve the Windows namespace from memory
//	    --root          host directory the Windows namespace is laid out below
//	-v, --verbose       log every redirected call to stderr
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/absfs/memfs"
	flag "github.com/spf13/pflag"

	"github.com/absfs/mfr"
	"github.com/absfs/mfr/config"
	"github.com/absfs/mfr/realfs"
	"github.com/absfs/mfr/registry"
)

var errUsage = errors.New("usage")

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// globals are the flags shared by every command
type globals struct {
	config      string
	packageRoot string
	localCache  string
	mem         bool
	root        string
	verbose     bool
}

func run(args []string, in io.Reader, out, errOut io.Writer) int {
	var g globals
	flags := flag.NewFlagSet("mfrctl", flag.ContinueOnError)
	flags.SetOutput(errOut)
	flags.SetInterspersed(false)
	flags.StringVarP(&g.config, "config", "c", "", "JSONC configuration file")
	flags.StringVar(&g.packageRoot, "package-root", "", "package root when no config file is given")
	flags.StringVar(&g.localCache, "local-cache", "", "package LocalCache folder when no config file is given")
	flags.BoolVar(&g.mem, "mem", false, "serve the Windows namespace from memory")
	flags.StringVar(&g.root, "root", "", "host directory the Windows namespace is laid out below")
	flags.BoolVarP(&g.verbose, "verbose", "v", false, "log every redirected call to stderr")
	flags.Usage = func() { printUsage(errOut, flags) }

	if err := flags.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if flags.NArg() == 0 {
		printUsage(errOut, flags)
		return 2
	}

	ctx := context.Background()
	cmd, rest := flags.Arg(0), flags.Args()[1:]
	var err error
	switch cmd {
	case "ops":
		err = cmdOps(out)
	case "classify", "plan", "shell":
		var s *mfr.Shim
		var backend realfs.Backend
		s, backend, err = g.open(errOut)
		if err != nil {
			break
		}
		switch cmd {
		case "classify":
			err = cmdClassify(out, s, rest)
		case "plan":
			err = cmdPlan(ctx, out, s, rest)
		default:
			err = newShell(s, backend, out).run(ctx, in)
		}
	default:
		fmt.Fprintf(errOut, "mfrctl: unknown command %q\n", cmd)
		printUsage(errOut, flags)
		return 2
	}

	if errors.Is(err, errUsage) {
		fmt.Fprintf(errOut, "mfrctl: %v\n", err)
		return 2
	}
	if err != nil {
		fmt.Fprintf(errOut, "mfrctl: %v\n", err)
		return 1
	}
	return 0
}

func printUsage(w io.Writer, flags *flag.FlagSet) {
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  mfrctl [flags] classify <path>...   show the area and mapping of paths")
	fmt.Fprintln(w, "  mfrctl [flags] plan <op> <path>     show the decision for one call without side effects")
	fmt.Fprintln(w, "  mfrctl [flags] ops                  list operation names")
	fmt.Fprintln(w, "  mfrctl [flags] shell                run calls through the shim interactively")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprint(w, flags.FlagUsages())
}

// load returns the configuration file named by the flags, or one built from
// --package-root and --local-cache
func (g *globals) load() (*config.File, error) {
	if g.config != "" {
		return config.Load(g.config)
	}
	if g.packageRoot == "" || g.localCache == "" {
		return nil, fmt.Errorf("%w: --config or both --package-root and --local-cache are required", errUsage)
	}
	return &config.File{PackageRoot: g.packageRoot, LocalCache: g.localCache}, nil
}

// open builds the shim and the backend below it
func (g *globals) open(errOut io.Writer) (*mfr.Shim, realfs.Backend, error) {
	f, err := g.load()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := f.Config()
	if err != nil {
		return nil, nil, err
	}
	opts, err := f.Options()
	if err != nil {
		return nil, nil, err
	}
	if g.verbose {
		h := slog.NewTextHandler(errOut, &slog.HandlerOptions{Level: slog.LevelDebug})
		opts = append(opts, mfr.WithLogger(slog.New(h)))
	}

	var backend *realfs.Abs
	switch {
	case g.mem:
		fsys, err := memfs.NewFS()
		if err != nil {
			return nil, nil, err
		}
		backend = realfs.NewAbs(fsys)
		opts = append(opts, mfr.WithRegistry(registry.NewMemory()))
	default:
		backend = realfs.NewOS(g.root)
		if reg, err := registry.NewOS(); err == nil {
			opts = append(opts, mfr.WithRegistry(reg))
		}
	}

	s, err := mfr.New(cfg, backend, opts...)
	if err != nil {
		return nil, nil, err
	}
	if g.mem {
		if err := layout(backend, s.Config()); err != nil {
			return nil, nil, err
		}
	}
	return s, backend, nil
}

// layout creates the system drive and both package roots in an empty
// in-memory namespace
func layout(a *realfs.Abs, cfg mfr.Config) error {
	for _, dir := range []string{cfg.SystemDrive, cfg.PackageRoot, cfg.WritableRoot} {
		if dir == "" {
			continue
		}
		phys, err := realfs.PhysicalPath(dir)
		if err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
		if err := a.FileSystem().MkdirAll(phys, 0o777); err != nil {
			return fmt.Errorf("%s: %w", dir, err)
		}
	}
	return nil
}

func cmdOps(out io.Writer) error {
	for _, op := range mfr.Ops() {
		pol, _ := mfr.PolicyFor(op)
		fmt.Fprintf(out, "%-18s %s\n", op, pol.Intent)
	}
	return nil
}

func cmdClassify(out io.Writer, s *mfr.Shim, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: classify <path>...", errUsage)
	}
	for _, arg := range args {
		p, area := s.Classify(arg)
		fmt.Fprintf(out, "%s\n  area      %s\n", p.Full, area)
		res := s.ResolveMapping(p, area)
		if !res.Valid {
			continue
		}
		if res.Mapping.Name != "" {
			fmt.Fprintf(out, "  mapping   %s\n", res.Mapping.Name)
		}
		for _, t := range mfr.Priority(area) {
			if c := res.Candidate(t); c.Path != "" {
				fmt.Fprintf(out, "  %-9s %s\n", t, c.Path)
			}
		}
	}
	return nil
}

func cmdPlan(ctx context.Context, out io.Writer, s *mfr.Shim, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("%w: plan <op> <path>", errUsage)
	}
	op, err := mfr.ParseOp(args[0])
	if err != nil {
		return fmt.Errorf("%w: %w", errUsage, err)
	}
	d, err := s.Plan(ctx, op, args[1])
	if err != nil {
		return err
	}
	printDecision(out, d)
	return nil
}

func printDecision(out io.Writer, d *mfr.Decision) {
	row := func(k string, v any) { fmt.Fprintf(out, "%-10s %v\n", k, v) }
	row("op", d.Op)
	row("path", d.Path.Full)
	row("area", d.Area)
	row("outcome", d.Outcome)
	if d.Err != nil {
		row("error", d.Err)
	}
	if d.Target != "" {
		row("target", d.Target)
	}
	if d.Winner != mfr.NoTier {
		row("winner", fmt.Sprintf("%s (%s)", d.Winner, d.WinnerAttrs))
	}
	if d.ShouldReadOnly {
		row("read-only", true)
	}
	if len(d.Created) > 0 {
		row("creates", strings.Join(d.Created, ", "))
	}
	for _, c := range d.Dirs {
		row("dir", fmt.Sprintf("%s %s", c.Tier, c.Path))
	}
	row("probes", fmt.Sprintf("%d lookups, %d hits", d.Probes.Lookups, d.Probes.Hits))
}
