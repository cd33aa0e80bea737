package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// Runner starts one external command and waits for it.
type Runner interface {
	// Run executes name with args, feeding stdin when non-nil, and returns
	// what the command wrote to stdout. A non-zero exit is an error.
	Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error)
}

// CommandError describes a command that could not start or exited non-zero.
type CommandError struct {
	// ExitCode is -1 when the command never ran.
	ExitCode int
	Stderr   string
	Err      error
}

func (e *CommandError) Error() string {
	if e.ExitCode < 0 {
		return e.Err.Error()
	}
	if e.Stderr != "" {
		return fmt.Sprintf("exit status %d: %s", e.ExitCode, e.Stderr)
	}
	return fmt.Sprintf("exit status %d", e.ExitCode)
}

func (e *CommandError) Unwrap() error { return e.Err }

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, stdin io.Reader, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdin = stdin
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		ce := &CommandError{ExitCode: -1, Stderr: strings.TrimSpace(stderr.String()), Err: err}
		var ee *exec.ExitError
		if errors.As(err, &ee) {
			ce.ExitCode = ee.ExitCode()
		}
		return stdout.Bytes(), ce
	}
	return stdout.Bytes(), nil
}
