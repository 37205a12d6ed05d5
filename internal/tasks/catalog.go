// Package tasks implements the vinematch target catalog: named recipes with
// dependencies, executed through a goyek flow.
package tasks

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/goyek/goyek/v2"
	"github.com/goyek/goyek/v2/middleware"
	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/config"
)

// DefaultTarget runs when no target is named.
const DefaultTarget = "help"

// PingMessage is printed by the ping target.
const PingMessage = "VineMatch is installed and ready."

// Target describes one entry of the catalog.
type Target struct {
	Name  string
	Usage string
	Deps  []string
}

// targets is ordered as printed by help; dependencies precede dependents.
var targets = []Target{
	{Name: "help", Usage: "Show this help"},
	{Name: "install", Usage: "Install the package (editable)"},
	{Name: "install-dev", Usage: "Install the package with dev extras"},
	{Name: "browsers", Usage: "Install browser binaries for automation"},
	{Name: "precommit", Usage: "Install git pre-commit hooks"},
	{Name: "setup", Usage: "Runtime deps + browsers", Deps: []string{"install", "browsers"}},
	{Name: "setup-dev", Usage: "Runtime+dev deps + browsers + git hooks", Deps: []string{"install-dev", "browsers", "precommit"}},
	{Name: "lint", Usage: "Run the linter"},
	{Name: "format", Usage: "Format the code"},
	{Name: "typecheck", Usage: "Run the type checker"},
	{Name: "test", Usage: "Run the test suite"},
	{Name: "notebooks", Usage: "Launch the notebook server"},
	{Name: "app", Usage: "Launch the UI application"},
	{Name: "scrape-links", Usage: "Collect review links (STYLES=... YEARS=... PAGES=... HEADLESS=1 OUT=...)"},
	{Name: "scrape-details", Usage: "Scrape review details (LINKS=path HEADLESS=1 CHECKPOINT=100 OUT=...)"},
	{Name: "clean", Usage: "Remove caches and build artifacts"},
	{Name: "ping", Usage: "Check that vinematch is installed"},
}

// Targets returns the catalog in help order.
func Targets() []Target {
	out := make([]Target, len(targets))
	copy(out, targets)
	return out
}

// Lookup returns the target named name.
func Lookup(name string) (Target, bool) {
	for _, t := range targets {
		if t.Name == name {
			return t, true
		}
	}
	return Target{}, false
}

// Catalog executes targets against a command configuration.
type Catalog struct {
	cfg     config.TasksConfig
	runner  CommandRunner
	out     io.Writer
	logger  *zap.Logger
	verbose bool
}

// Option configures a Catalog.
type Option func(*Catalog)

// WithRunner replaces the process runner.
func WithRunner(r CommandRunner) Option { return func(c *Catalog) { c.runner = r } }

// WithOutput redirects help text and status lines.
func WithOutput(w io.Writer) Option { return func(c *Catalog) { c.out = w } }

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option { return func(c *Catalog) { c.logger = l } }

// WithVerbose reports the status of every task as it runs.
func WithVerbose(v bool) Option { return func(c *Catalog) { c.verbose = v } }

// New returns a Catalog for cfg.
func New(cfg config.TasksConfig, opts ...Option) *Catalog {
	c := &Catalog{
		cfg:    cfg,
		out:    os.Stdout,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.runner == nil {
		c.runner = ExecRunner{Dir: cfg.WorkDir, Stdout: c.out}
	}
	return c
}

// runState keeps the first failure of one Run.
type runState struct {
	mu  sync.Mutex
	err error
}

func (s *runState) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *runState) first() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Run executes names in order, each after its dependencies. A target runs at
// most once per call and the first failure stops the chain. An empty names
// runs DefaultTarget. Unknown names fail with exit code 2 before anything
// runs.
func (c *Catalog) Run(ctx context.Context, names []string, vars Vars) error {
	if len(names) == 0 {
		names = []string{DefaultTarget}
	}
	for _, name := range names {
		if _, ok := Lookup(name); !ok {
			return &ExitError{Code: ExitUsage, Err: fmt.Errorf("unknown target %q (see vinematch help)", name)}
		}
	}

	state := &runState{}
	flow := c.flow(state, vars)
	err := flow.Execute(ctx, names)
	if first := state.first(); first != nil {
		return first
	}
	if err != nil {
		return fmt.Errorf("run %s: %w", strings.Join(names, " "), err)
	}
	return nil
}

func (c *Catalog) flow(state *runState, vars Vars) *goyek.Flow {
	flow := &goyek.Flow{}
	flow.SetOutput(c.out)
	flow.SetLogger(goyek.FmtLogger{})
	if c.verbose {
		flow.Use(middleware.ReportStatus)
	}

	defined := make(map[string]*goyek.DefinedTask, len(targets))
	for _, t := range targets {
		deps := make(goyek.Deps, 0, len(t.Deps))
		for _, dep := range t.Deps {
			deps = append(deps, defined[dep])
		}
		task := goyek.Task{
			Name:  t.Name,
			Usage: t.Usage,
			Deps:  deps,
		}
		if action := c.action(t.Name, vars); action != nil {
			task.Action = wrap(state, t.Name, c.logger, action)
		}
		defined[t.Name] = flow.Define(task)
	}
	return flow
}

// action returns the body of a target, or nil for pure aggregates.
func (c *Catalog) action(name string, vars Vars) func(context.Context) error {
	switch name {
	case "help":
		return func(context.Context) error { return c.help() }
	case "ping":
		return func(context.Context) error {
			_, err := fmt.Fprintln(c.out, PingMessage)
			return err
		}
	case "setup", "setup-dev":
		return nil
	case "scrape-links":
		return func(ctx context.Context) error {
			return c.runner.Run(ctx, c.scraperArgv(vars.LinksArgs()))
		}
	case "scrape-details":
		return func(ctx context.Context) error {
			args, err := vars.DetailsArgs()
			if err != nil {
				return &ExitError{Code: ExitFailure, Err: err}
			}
			return c.runner.Run(ctx, c.scraperArgv(args))
		}
	case "clean":
		return func(context.Context) error { return c.clean() }
	default:
		return func(ctx context.Context) error {
			argv := c.cfg.Commands[name]
			if len(argv) == 0 {
				return fmt.Errorf("no command configured for target %q", name)
			}
			return c.runner.Run(ctx, argv)
		}
	}
}

func wrap(state *runState, name string, logger *zap.Logger, fn func(context.Context) error) func(*goyek.A) {
	return func(a *goyek.A) {
		logger.Debug("target started", zap.String("target", name))
		if err := fn(a.Context()); err != nil {
			logger.Debug("target failed", zap.String("target", name), zap.Error(err))
			state.fail(err)
			a.FailNow()
		}
	}
}

func (c *Catalog) scraperArgv(args []string) []string {
	argv := make([]string, 0, len(c.cfg.ScraperCommand)+len(args))
	argv = append(argv, c.cfg.ScraperCommand...)
	return append(argv, args...)
}

func (c *Catalog) clean() error {
	fmt.Fprintln(c.out, FormatCommand(append([]string{"rm", "-rf"}, c.cfg.CleanPaths...)))
	if c.cfg.CleanPycache {
		fmt.Fprintln(c.out, `find . -name __pycache__ -type d -exec rm -rf {} +`)
	}
	removed, err := Clean(c.cfg.WorkDir, c.cfg.CleanPaths, c.cfg.CleanPycache)
	for _, path := range removed {
		c.logger.Debug("removed", zap.String("path", path))
	}
	return err
}

func (c *Catalog) help() error {
	var b strings.Builder
	b.WriteString("Usage: vinematch [target...] [NAME=value...]\n\nTargets:\n")
	width := 0
	for _, t := range targets {
		width = max(width, len(t.Name))
	}
	for _, t := range targets {
		fmt.Fprintf(&b, "  %-*s  %s\n", width, t.Name, t.Usage)
	}
	b.WriteString("\nVariables: PAGES STYLES YEARS HEADLESS CHECKPOINT LINKS OUT\n")
	_, err := io.WriteString(c.out, b.String())
	return err
}
