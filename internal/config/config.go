// Package config loads and validates vinematch configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/vinematch/vinematch/internal/logging"
)

// Config captures all knobs shared by the vinematch and wescrape binaries.
type Config struct {
	Logging logging.Config `mapstructure:"logging"`
	Tasks   TasksConfig    `mapstructure:"tasks"`
	Vars    VarsConfig     `mapstructure:"vars"`
	Scraper ScraperConfig  `mapstructure:"scraper"`
	Browser BrowserConfig  `mapstructure:"browser"`
	Storage StorageConfig  `mapstructure:"storage"`
	DB      DBConfig       `mapstructure:"db"`
	PubSub  PubSubConfig   `mapstructure:"pubsub"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
}

// TasksConfig holds the external commands behind each target.
type TasksConfig struct {
	Commands       map[string][]string `mapstructure:"commands"`
	ScraperCommand []string            `mapstructure:"scraper_command"`
	CleanPaths     []string            `mapstructure:"clean_paths"`
	CleanPycache   bool                `mapstructure:"clean_pycache"`
	WorkDir        string              `mapstructure:"work_dir"`
}

// VarsConfig mirrors the make-style variables forwarded to the scraper.
type VarsConfig struct {
	Pages      string `mapstructure:"pages"`
	Styles     string `mapstructure:"styles"`
	Years      string `mapstructure:"years"`
	Headless   string `mapstructure:"headless"`
	Checkpoint string `mapstructure:"checkpoint"`
	Links      string `mapstructure:"links"`
	Out        string `mapstructure:"out"`
}

// ScraperConfig governs the Wine Enthusiast scraping pipeline.
type ScraperConfig struct {
	Engine          string        `mapstructure:"engine"`
	BaseURL         string        `mapstructure:"base_url"`
	MaxPages        int           `mapstructure:"max_pages"`
	CheckpointEvery int           `mapstructure:"checkpoint_every"`
	OutputRoot      string        `mapstructure:"output_root"`
	ListingTimeout  time.Duration `mapstructure:"listing_timeout"`
	DetailTimeout   time.Duration `mapstructure:"detail_timeout"`
	MaxAttempts     int           `mapstructure:"max_attempts"`
	MaxQPS          float64       `mapstructure:"max_qps"`
	RespectRobots   bool          `mapstructure:"respect_robots"`
	SaveHTML        bool          `mapstructure:"save_html"`
	HumanPauses     bool          `mapstructure:"human_pauses"`
}

// BrowserConfig configures the chromedp browser context.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"`
	UserDataDir       string        `mapstructure:"user_data_dir"`
	ExecPath          string        `mapstructure:"exec_path"`
	StorageStatePath  string        `mapstructure:"storage_state_path"`
	UserAgent         string        `mapstructure:"user_agent"`
	Locale            string        `mapstructure:"locale"`
	TimezoneID        string        `mapstructure:"timezone_id"`
	ViewportMinWidth  int           `mapstructure:"viewport_min_width"`
	ViewportMinHeight int           `mapstructure:"viewport_min_height"`
	ViewportMaxWidth  int           `mapstructure:"viewport_max_width"`
	ViewportMaxHeight int           `mapstructure:"viewport_max_height"`
	NavTimeout        time.Duration `mapstructure:"nav_timeout"`
	ManualChallenge   bool          `mapstructure:"manual_challenge"`
	ChallengeTimeout  time.Duration `mapstructure:"challenge_timeout"`
	CooldownMin       time.Duration `mapstructure:"cooldown_min"`
	CooldownMax       time.Duration `mapstructure:"cooldown_max"`
}

// StorageConfig selects where exported CSVs and raw pages are mirrored.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// DBConfig controls access to the review database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// PubSubConfig holds metadata for run completion notifications.
type PubSubConfig struct {
	Backend   string `mapstructure:"backend"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// MetricsConfig toggles the Prometheus endpoint served during a scrape.
type MetricsConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultUserAgent is sent by both engines unless overridden.
const DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
	"(KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// varEnv maps variable keys to the plain environment names make would read.
var varEnv = map[string]string{
	"vars.pages":      "PAGES",
	"vars.styles":     "STYLES",
	"vars.years":      "YEARS",
	"vars.headless":   "HEADLESS",
	"vars.checkpoint": "CHECKPOINT",
	"vars.links":      "LINKS",
	"vars.out":        "OUT",
}

// Load builds a Config from disk/environment. Overrides win over every other source.
func Load(path string, overrides map[string]any) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("VINEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, env := range varEnv {
		if err := v.BindEnv(key, env); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", env, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}
	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")

	for name, argv := range DefaultCommands() {
		v.SetDefault("tasks.commands."+name, argv)
	}
	v.SetDefault("tasks.scraper_command", []string{"go", "run", "./cmd/wescrape"})
	v.SetDefault("tasks.clean_paths", []string{
		".pytest_cache",
		".mypy_cache",
		".ruff_cache",
		".ipynb_checkpoints",
		"htmlcov",
		".coverage",
		"build",
		"dist",
		"*.egg-info",
		"src/*.egg-info",
	})
	v.SetDefault("tasks.clean_pycache", true)
	v.SetDefault("tasks.work_dir", "")

	for key := range varEnv {
		v.SetDefault(key, "")
	}

	v.SetDefault("scraper.engine", "browser")
	v.SetDefault("scraper.base_url", "https://www.wineenthusiast.com/")
	v.SetDefault("scraper.max_pages", 48)
	v.SetDefault("scraper.checkpoint_every", 100)
	v.SetDefault("scraper.output_root", "data/raw/scraped/wineenthusiast")
	v.SetDefault("scraper.listing_timeout", "10s")
	v.SetDefault("scraper.detail_timeout", "15s")
	v.SetDefault("scraper.max_attempts", 2)
	v.SetDefault("scraper.max_qps", 0)
	v.SetDefault("scraper.respect_robots", false)
	v.SetDefault("scraper.save_html", false)
	v.SetDefault("scraper.human_pauses", true)

	v.SetDefault("browser.headless", false)
	v.SetDefault("browser.user_data_dir", ".we_profile")
	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.storage_state_path", "")
	v.SetDefault("browser.user_agent", DefaultUserAgent)
	v.SetDefault("browser.locale", "en-US")
	v.SetDefault("browser.timezone_id", "America/Los_Angeles")
	v.SetDefault("browser.viewport_min_width", 1200)
	v.SetDefault("browser.viewport_min_height", 750)
	v.SetDefault("browser.viewport_max_width", 1600)
	v.SetDefault("browser.viewport_max_height", 1000)
	v.SetDefault("browser.nav_timeout", "45s")
	v.SetDefault("browser.manual_challenge", true)
	v.SetDefault("browser.challenge_timeout", "180s")
	v.SetDefault("browser.cooldown_min", "12s")
	v.SetDefault("browser.cooldown_max", "22s")

	v.SetDefault("storage.backend", "")
	v.SetDefault("storage.base_dir", "data/artifacts")
	v.SetDefault("storage.prefix", "wineenthusiast")

	v.SetDefault("pubsub.backend", "")
	v.SetDefault("pubsub.topic_name", "wescrape-runs")

	v.SetDefault("db.table", "wine_reviews")
	v.SetDefault("db.max_conns", 4)

	v.SetDefault("metrics.listen_addr", "")
}

// DefaultCommands returns the recipe of every target that shells out to a single tool.
func DefaultCommands() map[string][]string {
	return map[string][]string{
		"install":     {"python", "-m", "pip", "install", "-e", "."},
		"install-dev": {"python", "-m", "pip", "install", "-e", ".[dev]"},
		"browsers":    {"python", "-m", "playwright", "install", "chromium"},
		"precommit":   {"pre-commit", "install"},
		"lint":        {"ruff", "check", "."},
		"format":      {"black", "."},
		"typecheck":   {"mypy", "src"},
		"test":        {"pytest", "-q"},
		"notebooks":   {"jupyter", "lab"},
		"app":         {"python", "-m", "vinematch.ui.gradio_app"},
	}
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if len(c.Tasks.ScraperCommand) == 0 {
		return fmt.Errorf("tasks.scraper_command must not be empty")
	}
	for name, argv := range c.Tasks.Commands {
		if len(argv) == 0 {
			return fmt.Errorf("tasks.commands.%s must not be empty", name)
		}
	}
	switch c.Scraper.Engine {
	case "browser", "http":
	default:
		return fmt.Errorf("scraper.engine must be browser or http, got %q", c.Scraper.Engine)
	}
	if c.Scraper.MaxPages <= 0 {
		return fmt.Errorf("scraper.max_pages must be > 0")
	}
	if c.Scraper.CheckpointEvery < 0 {
		return fmt.Errorf("scraper.checkpoint_every must be >= 0")
	}
	if c.Scraper.MaxAttempts <= 0 {
		return fmt.Errorf("scraper.max_attempts must be > 0")
	}
	if c.Scraper.MaxQPS < 0 {
		return fmt.Errorf("scraper.max_qps must be >= 0")
	}
	if c.Scraper.ListingTimeout <= 0 || c.Scraper.DetailTimeout <= 0 {
		return fmt.Errorf("scraper.listing_timeout and scraper.detail_timeout must be > 0")
	}
	if c.Browser.ViewportMinWidth > c.Browser.ViewportMaxWidth ||
		c.Browser.ViewportMinHeight > c.Browser.ViewportMaxHeight {
		return fmt.Errorf("browser viewport minimum exceeds maximum")
	}
	if c.Browser.CooldownMin > c.Browser.CooldownMax {
		return fmt.Errorf("browser.cooldown_min must be <= browser.cooldown_max")
	}
	switch c.Storage.Backend {
	case "", "memory", "local":
	case "gcs":
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set when storage.backend is gcs")
		}
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	switch c.PubSub.Backend {
	case "":
	case "memory", "pubsub":
		if c.PubSub.TopicName == "" {
			return fmt.Errorf("pubsub.topic_name must be set when pubsub.backend is %s", c.PubSub.Backend)
		}
		if c.PubSub.Backend == "pubsub" && c.PubSub.ProjectID == "" {
			return fmt.Errorf("pubsub.project_id must be set when pubsub.backend is pubsub")
		}
	default:
		return fmt.Errorf("unknown pubsub.backend %q", c.PubSub.Backend)
	}
	return nil
}
