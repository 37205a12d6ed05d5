package tasks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
)

// CommandRunner executes one external command to completion.
type CommandRunner interface {
	Run(ctx context.Context, argv []string) error
}

// ExecRunner runs commands as child processes. Nil streams fall back to the
// parent's stdio and a nil Env inherits the parent environment.
type ExecRunner struct {
	Dir    string
	Env    []string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// Run echoes argv and executes it. A non-zero exit becomes an *ExitError with
// the child's code; a missing executable maps to 127.
func (r ExecRunner) Run(ctx context.Context, argv []string) error {
	if len(argv) == 0 {
		return errors.New("empty command")
	}
	stdout := r.Stdout
	if stdout == nil {
		stdout = os.Stdout
	}
	fmt.Fprintln(stdout, FormatCommand(argv))

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Env = r.Env
	cmd.Stdout = stdout
	cmd.Stdin = r.Stdin
	if cmd.Stdin == nil {
		cmd.Stdin = os.Stdin
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &exitErr):
		code := exitErr.ExitCode()
		if code <= 0 {
			// killed by a signal
			code = ExitFailure
		}
		return &ExitError{Code: code, Err: fmt.Errorf("%s: %w", argv[0], err)}
	case errors.Is(err, exec.ErrNotFound):
		return &ExitError{Code: ExitNotFound, Err: fmt.Errorf("%s: command not found", argv[0])}
	default:
		return fmt.Errorf("run %s: %w", argv[0], err)
	}
}

// FormatCommand renders argv the way a shell user would type it.
func FormatCommand(argv []string) string {
	parts := make([]string, len(argv))
	for i, arg := range argv {
		if arg == "" || strings.ContainsAny(arg, " \t\n'\"\\$") {
			arg = "'" + strings.ReplaceAll(arg, "'", `'\''`) + "'"
		}
		parts[i] = arg
	}
	return strings.Join(parts, " ")
}
