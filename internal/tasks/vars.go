package tasks

import (
	"errors"
	"strings"

	"github.com/vinematch/vinematch/internal/config"
)

// DefaultPages is forwarded as --max-pages when PAGES is empty.
const DefaultPages = "48"

// ErrLinksRequired is returned by scrape-details when LINKS is empty.
var ErrLinksRequired = errors.New("LINKS is required: vinematch scrape-details LINKS=path/to/wine_links.csv")

// Vars are the make-style variables composed into scraper flags.
type Vars struct {
	Pages      string
	Styles     string
	Years      string
	Headless   string
	Checkpoint string
	Links      string
	Out        string
}

// VarsFromConfig copies the resolved vars section of the configuration.
func VarsFromConfig(c config.VarsConfig) Vars {
	return Vars{
		Pages:      c.Pages,
		Styles:     c.Styles,
		Years:      c.Years,
		Headless:   c.Headless,
		Checkpoint: c.Checkpoint,
		Links:      c.Links,
		Out:        c.Out,
	}
}

// Set assigns a variable by its upper-case name and reports whether the
// name is known.
func (v *Vars) Set(name, value string) bool {
	switch name {
	case "PAGES":
		v.Pages = value
	case "STYLES":
		v.Styles = value
	case "YEARS":
		v.Years = value
	case "HEADLESS":
		v.Headless = value
	case "CHECKPOINT":
		v.Checkpoint = value
	case "LINKS":
		v.Links = value
	case "OUT":
		v.Out = value
	default:
		return false
	}
	return true
}

// ParseAssignment splits a NAME=value argument. Names must be non-empty and
// contain no spaces.
func ParseAssignment(arg string) (name, value string, ok bool) {
	name, value, ok = strings.Cut(arg, "=")
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return "", "", false
	}
	return name, value, true
}

// HeadlessEnabled reports whether HEADLESS carries the on sentinel.
func (v Vars) HeadlessEnabled() bool {
	switch strings.ToLower(strings.TrimSpace(v.Headless)) {
	case "1", "true":
		return true
	default:
		return false
	}
}

// LinksArgs returns the scraper arguments for the links phase.
func (v Vars) LinksArgs() []string {
	pages := strings.TrimSpace(v.Pages)
	if pages == "" {
		pages = DefaultPages
	}
	args := []string{"links", "--max-pages", pages}
	if styles := strings.Fields(v.Styles); len(styles) > 0 {
		args = append(args, "--styles")
		args = append(args, styles...)
	}
	if years := strings.Fields(v.Years); len(years) > 0 {
		args = append(args, "--years")
		args = append(args, years...)
	}
	if v.HeadlessEnabled() {
		args = append(args, "--headless")
	}
	if out := strings.TrimSpace(v.Out); out != "" {
		args = append(args, "--out", out)
	}
	return args
}

// DetailsArgs returns the scraper arguments for the details phase, or
// ErrLinksRequired when LINKS is empty.
func (v Vars) DetailsArgs() ([]string, error) {
	links := strings.TrimSpace(v.Links)
	if links == "" {
		return nil, ErrLinksRequired
	}
	args := []string{"details", "--links-csv", links}
	if v.HeadlessEnabled() {
		args = append(args, "--headless")
	}
	if cp := strings.TrimSpace(v.Checkpoint); cp != "" {
		args = append(args, "--checkpoint-every", cp)
	}
	if out := strings.TrimSpace(v.Out); out != "" {
		args = append(args, "--out", out)
	}
	return args, nil
}
