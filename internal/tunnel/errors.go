package tunnel

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrExternalTool is matched by every failed wg / wg-quick invocation.
	ErrExternalTool = errors.New("external tool failed")
	// ErrPreflight reports a host that cannot run the tunnel commands.
	ErrPreflight = errors.New("preflight check failed")
	// ErrTemplate reports an unreadable configuration template.
	ErrTemplate = errors.New("configuration template")
)

// Lifecycle steps named in ToolError.
const (
	StepUp     = "up"
	StepDown   = "down"
	StepStrip  = "strip"
	StepApply  = "apply"
	StepFwmark = "fwmark"
)

// ToolError reports which lifecycle step failed and how.
type ToolError struct {
	Step     string
	Command  []string
	ExitCode int // -1 if the command did not run
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("%s: %s (%q)", ErrExternalTool, e.Step, strings.Join(e.Command, " "))
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" exited with status %d", e.ExitCode)
	} else if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *ToolError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrExternalTool}
	}
	return []error{ErrExternalTool, e.Err}
}

func newToolError(step string, command []string, err error) *ToolError {
	te := &ToolError{Step: step, Command: command, ExitCode: -1, Err: err}
	var ce *CommandError
	if errors.As(err, &ce) {
		te.ExitCode = ce.ExitCode
		te.Stderr = ce.Stderr
	}
	return te
}
