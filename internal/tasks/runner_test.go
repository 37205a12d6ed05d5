package tasks

import (
	"bytes"
	"context"
	"errors"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecRunner(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("requires sh")
	}
	t.Parallel()

	var out bytes.Buffer
	r := ExecRunner{Dir: t.TempDir(), Stdout: &out, Stderr: &out}

	require.NoError(t, r.Run(context.Background(), []string{"sh", "-c", "echo hello"}))
	assert.Equal(t, "sh -c 'echo hello'\nhello\n", out.String())

	err := r.Run(context.Background(), []string{"sh", "-c", "exit 3"})
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 3, exitErr.Code)
	assert.Equal(t, 3, ExitCode(err))

	err = r.Run(context.Background(), []string{"vinematch-no-such-binary"})
	assert.Equal(t, ExitNotFound, ExitCode(err))

	require.Error(t, r.Run(context.Background(), nil))
}

func TestExitCode(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
	assert.Equal(t, 1, ExitCode(&ExitError{Code: -1}))
	assert.Equal(t, 2, ExitCode(&ExitError{Code: 2}))
	wrapped := errors.Join(errors.New("context"), &ExitError{Code: 42})
	assert.Equal(t, 42, ExitCode(wrapped))
	assert.Equal(t, "exit status 5", (&ExitError{Code: 5}).Error())
}

func TestFormatCommand(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "ruff check .", FormatCommand([]string{"ruff", "check", "."}))
	assert.Equal(t, "echo '' 'a b' 'it'\\''s'", FormatCommand([]string{"echo", "", "a b", "it's"}))
}
