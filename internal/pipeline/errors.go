package pipeline

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrStepFailed = errors.New("step failed")
	ErrNoRemote   = errors.New("remote step without a session")
	ErrNoLocal    = errors.New("local step without an executor")
	ErrEmptyStep  = errors.New("step has nothing to run")
)

// StepError reports a critical step that failed. ExitCode is the command's
// exit status, or executor.ExitUnknown when the command did not produce one.
type StepError struct {
	Step     string
	Command  string
	Output   string
	ExitCode int
	Err      error
}

func (e *StepError) Error() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s failed", e.Step)
	if e.Command != "" {
		fmt.Fprintf(&sb, " (%s)", e.Command)
	}
	if e.Err != nil {
		fmt.Fprintf(&sb, ": %v", e.Err)
	} else {
		fmt.Fprintf(&sb, " with exit code %d", e.ExitCode)
	}
	if out := strings.TrimSpace(e.Output); out != "" {
		fmt.Fprintf(&sb, "\n%s", out)
	}
	return sb.String()
}

func (e *StepError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrStepFailed}
	}
	return []error{ErrStepFailed, e.Err}
}
