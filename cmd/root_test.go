package cmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vinematch/vinematch/internal/config"
	"github.com/vinematch/vinematch/internal/tasks"
)

type recordingRunner struct {
	mu    sync.Mutex
	calls []string
	codes map[string]int
}

func (r *recordingRunner) Run(_ context.Context, argv []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	line := strings.Join(argv, " ")
	r.calls = append(r.calls, line)
	if code, ok := r.codes[argv[0]]; ok {
		return &tasks.ExitError{Code: code, Err: errors.New(argv[0] + " failed")}
	}
	return nil
}

// useRecordingRunner swaps the process runner for the duration of the test
// and clears the make-style variables from the environment.
func useRecordingRunner(t *testing.T, codes map[string]int) *recordingRunner {
	t.Helper()
	for _, name := range []string{"PAGES", "STYLES", "YEARS", "HEADLESS", "CHECKPOINT", "LINKS", "OUT"} {
		t.Setenv(name, "")
	}
	runner := &recordingRunner{codes: codes}
	orig := newRunner
	newRunner = func(config.TasksConfig, io.Writer, io.Writer) tasks.CommandRunner { return runner }
	t.Cleanup(func() { newRunner = orig })
	return runner
}

func runVinematch(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := ExecuteVinematch(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVinematchDefaultPrintsHelp(t *testing.T) {
	runner := useRecordingRunner(t, nil)

	code, stdout, _ := runVinematch(t)
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage: vinematch")
	assert.Contains(t, stdout, "scrape-details")

	code, stdout, _ = runVinematch(t, "help")
	assert.Equal(t, 0, code)
	assert.Contains(t, stdout, "Usage: vinematch")
	assert.Empty(t, runner.calls)
}

func TestVinematchScrapeDetailsGuard(t *testing.T) {
	runner := useRecordingRunner(t, nil)

	code, _, stderr := runVinematch(t, "scrape-details", "HEADLESS=1")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "LINKS is required")
	assert.Empty(t, runner.calls)
}

func TestVinematchForwardsScraperFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
		env  map[string]string
		want string
	}{
		{
			name: "details",
			args: []string{"scrape-details", "LINKS=foo.csv", "HEADLESS=1"},
			want: "go run ./cmd/wescrape details --links-csv foo.csv --headless",
		},
		{
			name: "links filters",
			args: []string{"scrape-links", "STYLES=Red White", "YEARS=2021 2022", "PAGES=5"},
			want: "go run ./cmd/wescrape links --max-pages 5 --styles Red White --years 2021 2022",
		},
		{
			name: "links defaults",
			args: []string{"scrape-links"},
			want: "go run ./cmd/wescrape links --max-pages 48",
		},
		{
			name: "assignment before target",
			args: []string{"CHECKPOINT=10", "LINKS=a.csv", "scrape-details"},
			want: "go run ./cmd/wescrape details --links-csv a.csv --checkpoint-every 10",
		},
		{
			name: "environment",
			args: []string{"scrape-details"},
			env:  map[string]string{"LINKS": "env.csv", "HEADLESS": "true"},
			want: "go run ./cmd/wescrape details --links-csv env.csv --headless",
		},
		{
			name: "assignment beats flag",
			args: []string{"scrape-links", "--pages", "3", "--headless", "PAGES=7"},
			want: "go run ./cmd/wescrape links --max-pages 7 --headless",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := useRecordingRunner(t, nil)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			code, _, stderr := runVinematch(t, tt.args...)
			require.Equal(t, 0, code, stderr)
			assert.Equal(t, []string{tt.want}, runner.calls)
		})
	}
}

func TestVinematchPropagatesExitCode(t *testing.T) {
	runner := useRecordingRunner(t, map[string]int{"mypy": 5})

	code, _, stderr := runVinematch(t, "lint", "typecheck", "test")
	assert.Equal(t, 5, code)
	assert.Contains(t, stderr, "mypy failed")
	assert.Equal(t, []string{"ruff check .", "mypy src"}, runner.calls)
}

func TestVinematchUsageErrors(t *testing.T) {
	runner := useRecordingRunner(t, nil)

	code, _, stderr := runVinematch(t, "deploy")
	assert.Equal(t, tasks.ExitUsage, code)
	assert.Contains(t, stderr, `unknown target "deploy"`)

	code, _, _ = runVinematch(t, "lint", "--no-such-flag")
	assert.Equal(t, tasks.ExitUsage, code)
	assert.Empty(t, runner.calls)
}

func TestVinematchCleanUsesConfiguredWorkDir(t *testing.T) {
	useRecordingRunner(t, nil)

	work := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(work, ".mypy_cache", "3.11"), 0o750))
	require.NoError(t, os.MkdirAll(filepath.Join(work, "pkg", "__pycache__"), 0o750))
	cfgPath := filepath.Join(t.TempDir(), "vinematch.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("tasks:\n  work_dir: "+work+"\n"), 0o600))

	code, stdout, stderr := runVinematch(t, "--config", cfgPath, "clean")
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "rm -rf")
	_, err := os.Stat(filepath.Join(work, ".mypy_cache"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(work, "pkg", "__pycache__"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(work, "pkg"))
	require.NoError(t, err)

	code, _, _ = runVinematch(t, "--config", cfgPath, "clean")
	assert.Equal(t, 0, code)
}

func TestVinematchPing(t *testing.T) {
	useRecordingRunner(t, nil)

	code, stdout, _ := runVinematch(t, "ping")
	assert.Equal(t, 0, code)
	assert.Equal(t, tasks.PingMessage+"\n", stdout)
}
