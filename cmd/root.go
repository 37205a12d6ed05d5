// Package cmd defines the cobra command trees of the vinematch and wescrape
// executables.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/config"
	"github.com/vinematch/vinematch/internal/logging"
	"github.com/vinematch/vinematch/internal/tasks"
)

// newRunner builds the process runner for task targets. It's a variable so
// tests can record commands instead of executing them.
var newRunner = func(cfg config.TasksConfig, stdout, stderr io.Writer) tasks.CommandRunner {
	return tasks.ExecRunner{Dir: cfg.WorkDir, Stdout: stdout, Stderr: stderr}
}

// varFlags maps task-variable flags to their config keys.
var varFlags = []struct {
	flag  string
	key   string
	usage string
}{
	{"pages", "vars.pages", "listing pages per style/year (PAGES)"},
	{"styles", "vars.styles", "space-separated wine styles (STYLES)"},
	{"years", "vars.years", "space-separated publication years (YEARS)"},
	{"checkpoint", "vars.checkpoint", "details checkpoint interval (CHECKPOINT)"},
	{"links", "vars.links", "links CSV for scrape-details (LINKS)"},
	{"out", "vars.out", "scraper output path (OUT)"},
}

type vinematchOptions struct {
	configPath string
	verbose    bool
}

// newVinematchCmd builds the task runner. Every target is also a subcommand,
// and any positional argument is either another target or NAME=value.
func newVinematchCmd(stdout, stderr io.Writer) *cobra.Command {
	opts := &vinematchOptions{}
	cmd := &cobra.Command{
		Use:   "vinematch [target...] [NAME=value...]",
		Short: "Task runner for the VineMatch project",
		Long: `vinematch runs the project's setup, quality and scraping targets.

Targets may be combined (vinematch lint typecheck test) and variables are
passed make-style: vinematch scrape-links STYLES="Red White" PAGES=5 HEADLESS=1.
With no target the help text is printed.`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTargets(cmd, opts, args, stdout, stderr)
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &tasks.ExitError{Code: tasks.ExitUsage, Err: err}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (yaml, json or toml)")
	flags.BoolVarP(&opts.verbose, "verbose", "v", false, "report the status of every target")
	for _, f := range varFlags {
		flags.String(f.flag, "", f.usage)
	}
	flags.Bool("headless", false, "run the browser headless (HEADLESS=1)")

	for _, t := range tasks.Targets() {
		name := t.Name
		sub := &cobra.Command{
			Use:   name,
			Short: t.Usage,
			Args:  cobra.ArbitraryArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return runTargets(cmd, opts, append([]string{name}, args...), stdout, stderr)
			},
		}
		if name == tasks.DefaultTarget {
			cmd.SetHelpCommand(sub)
			continue
		}
		cmd.AddCommand(sub)
	}
	return cmd
}

func runTargets(cmd *cobra.Command, opts *vinematchOptions, args []string, stdout, stderr io.Writer) error {
	var names []string
	assignments := map[string]string{}
	var order []string
	for _, arg := range args {
		if name, value, ok := tasks.ParseAssignment(arg); ok {
			if _, seen := assignments[name]; !seen {
				order = append(order, name)
			}
			assignments[name] = value
			continue
		}
		names = append(names, arg)
	}

	cfg, err := config.Load(opts.configPath, flagOverrides(cmd.Flags()))
	if err != nil {
		return err
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	vars := tasks.VarsFromConfig(cfg.Vars)
	for _, name := range order {
		if !vars.Set(name, assignments[name]) {
			logger.Warn("ignoring unknown variable", zap.String("name", name))
		}
	}

	catalog := tasks.New(cfg.Tasks,
		tasks.WithRunner(newRunner(cfg.Tasks, stdout, stderr)),
		tasks.WithOutput(stdout),
		tasks.WithLogger(logger.Named("tasks")),
		tasks.WithVerbose(opts.verbose),
	)
	return catalog.Run(cmd.Context(), names, vars)
}

// flagOverrides returns config overrides for the variable flags that were set
// explicitly.
func flagOverrides(flags *pflag.FlagSet) map[string]any {
	overrides := map[string]any{}
	for _, f := range varFlags {
		if flags.Changed(f.flag) {
			value, _ := flags.GetString(f.flag)
			overrides[f.key] = value
		}
	}
	if flags.Changed("headless") {
		on, _ := flags.GetBool("headless")
		overrides["vars.headless"] = ""
		if on {
			overrides["vars.headless"] = "1"
		}
	}
	return overrides
}

// ExecuteVinematch runs the task runner with args and returns the process
// exit code. Errors are reported on stderr.
func ExecuteVinematch(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	cmd := newVinematchCmd(stdout, stderr)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return reportExit(stderr, "vinematch", err)
}

func reportExit(stderr io.Writer, prog string, err error) int {
	if err == nil {
		return 0
	}
	if errors.Is(err, context.Canceled) {
		fmt.Fprintf(stderr, "%s: interrupted\n", prog)
		return tasks.ExitCode(err)
	}
	fmt.Fprintf(stderr, "%s: %v\n", prog, err)
	return tasks.ExitCode(err)
}
