package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/vinematch/vinematch/internal/app"
	"github.com/vinematch/vinematch/internal/config"
	"github.com/vinematch/vinematch/internal/logging"
	"github.com/vinematch/vinematch/internal/tasks"
	"github.com/vinematch/vinematch/internal/wescrape"
	"github.com/vinematch/vinematch/internal/wine"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// Runner is the scraping surface the subcommands drive.
type Runner interface {
	CollectLinks(ctx context.Context, opts wescrape.LinksOptions) ([]wine.Link, error)
	ScrapeDetails(ctx context.Context, opts wescrape.DetailsOptions) ([]wine.Review, error)
}

// App defines the services the wescrape commands use. Tests inject a fake.
type App interface {
	Config() config.Config
	Logger() *zap.Logger
	Now() time.Time
	Runner() Runner
	Close(ctx context.Context) error
}

type appServices struct{ *app.App }

func (s appServices) Runner() Runner { return s.Scraper() }

// newApp is the application factory. It's a variable so tests can replace
// the browser-backed app with a fake.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appServices{a}, nil
}

// variadicFlags accept space-separated values after a single flag.
var variadicFlags = []string{"--styles", "--years"}

type wescrapeState struct {
	configPath string
	headless   bool
	app        App
}

func newWescrapeCmd(stdout, stderr io.Writer, state *wescrapeState) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "wescrape",
		Short: "Scrape Wine Enthusiast ratings",
		Long: `wescrape collects review links from the Wine Enthusiast ratings search
(links) and then scrapes each review page into a CSV (details).`,
		SilenceUsage:  true,
		SilenceErrors: true,

		// Runs after flag parsing and before the subcommand's RunE.
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			overrides := map[string]any{}
			if cmd.Flags().Changed("headless") {
				overrides["browser.headless"] = state.headless
			}
			cfg, err := config.Load(state.configPath, overrides)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging)
			if err != nil {
				return err
			}
			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			state.app = appInstance
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)
	cmd.CompletionOptions.DisableDefaultCmd = true
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &tasks.ExitError{Code: tasks.ExitUsage, Err: err}
	})

	cmd.PersistentFlags().StringVar(&state.configPath, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().BoolVar(&state.headless, "headless", false, "run the browser without a window")

	cmd.AddCommand(newLinksCmd(), newDetailsCmd())
	return cmd
}

func newLinksCmd() *cobra.Command {
	var (
		maxPages int
		styles   []string
		years    []int
		out      string
	)
	cmd := &cobra.Command{
		Use:   "links",
		Short: "Collect review links from the ratings search",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if !cmd.Flags().Changed("max-pages") {
				maxPages = cfg.Scraper.MaxPages
			}
			if maxPages <= 0 {
				return &tasks.ExitError{Code: tasks.ExitUsage, Err: errors.New("--max-pages must be > 0")}
			}
			if out == "" {
				out = wescrape.DefaultOutput(cfg.Scraper.OutputRoot, appInstance.Now(), wescrape.LinksFile)
			}

			links, err := appInstance.Runner().CollectLinks(cmd.Context(), wescrape.LinksOptions{
				MaxPages: maxPages,
				Styles:   styles,
				Years:    years,
				Out:      out,
			})
			if err != nil {
				return fmt.Errorf("collect links: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Collected %d links -> %s\n", len(links), out)
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 48, "listing pages per style/year")
	cmd.Flags().StringArrayVar(&styles, "styles", nil, "wine styles, e.g. --styles Red White")
	cmd.Flags().IntSliceVar(&years, "years", nil, "publication years, e.g. --years 2021 2022")
	cmd.Flags().StringVar(&out, "out", "", "output CSV (default <output_root>/<YYYYMMDD>/wine_links.csv)")
	return cmd
}

func newDetailsCmd() *cobra.Command {
	var (
		linksCSV   string
		out        string
		checkpoint int
		resume     bool
	)
	cmd := &cobra.Command{
		Use:   "details",
		Short: "Scrape every review listed in a links CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}
			cfg := appInstance.Config()
			if !cmd.Flags().Changed("checkpoint-every") {
				checkpoint = cfg.Scraper.CheckpointEvery
			}
			if checkpoint < 0 {
				return &tasks.ExitError{Code: tasks.ExitUsage, Err: errors.New("--checkpoint-every must be >= 0")}
			}
			if out == "" {
				out = wescrape.DefaultOutput(cfg.Scraper.OutputRoot, appInstance.Now(), wescrape.DetailsFile)
			}

			rows, err := appInstance.Runner().ScrapeDetails(cmd.Context(), wescrape.DetailsOptions{
				LinksCSV:        linksCSV,
				Out:             out,
				CheckpointEvery: checkpoint,
				Resume:          resume,
			})
			if err != nil {
				return fmt.Errorf("scrape details: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Scraped %d reviews -> %s\n", len(rows), out)
			return nil
		},
	}
	cmd.Flags().StringVar(&linksCSV, "links-csv", "", "links CSV produced by the links command")
	cmd.Flags().StringVar(&out, "out", "", "output CSV (default <output_root>/<YYYYMMDD>/wine_info.csv)")
	cmd.Flags().IntVar(&checkpoint, "checkpoint-every", 100, "write progress every N links (0 disables)")
	cmd.Flags().BoolVar(&resume, "resume", false, "skip URLs already present in the output CSV")
	_ = cmd.MarkFlagRequired("links-csv")
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// expandVariadicFlags rewrites "--styles Red White" into repeated
// "--styles=Red --styles=White" so pflag can parse space-separated values.
// A variadic flag with no values is dropped. Expansion stops at "--".
func expandVariadicFlags(args []string, names ...string) []string {
	variadic := make(map[string]bool, len(names))
	for _, n := range names {
		variadic[n] = true
	}
	out := make([]string, 0, len(args))
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if !variadic[arg] {
			out = append(out, arg)
			continue
		}
		for i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
			out = append(out, arg+"="+args[i])
		}
	}
	return out
}

// ExecuteWescrape runs the scraper CLI with args and returns the process
// exit code. Services opened for the run are closed before returning.
func ExecuteWescrape(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	state := &wescrapeState{}
	cmd := newWescrapeCmd(stdout, stderr, state)
	cmd.SetArgs(expandVariadicFlags(args, variadicFlags...))
	err := cmd.ExecuteContext(ctx)
	if state.app != nil {
		logger := state.app.Logger()
		closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if cerr := state.app.Close(closeCtx); cerr != nil {
			logger.Warn("failed to close services", zap.Error(cerr))
		}
		cancel()
		if err != nil {
			logger.Error("command failed", zap.Error(err))
		}
		_ = logger.Sync()
	}
	return reportExit(stderr, "wescrape", err)
}
