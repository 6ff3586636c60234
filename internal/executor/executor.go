// Package executor runs local processes to completion and reports their
// combined output and exit status.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
)

// ExitUnknown is the exit code reported when a command finished without a
// usable exit status.
const ExitUnknown = -1

// ErrLaunch matches every LaunchError.
var ErrLaunch = errors.New("failed to launch process")

// Result is the outcome of one command, local or remote. Output holds
// standard output followed by standard error.
type Result struct {
	Output   string
	ExitCode int
}

// Success reports whether the command exited with status 0.
func (r *Result) Success() bool {
	return r != nil && r.ExitCode == 0
}

// NewResult concatenates stdout and stderr in that order.
func NewResult(stdout, stderr []byte, exitCode int) *Result {
	return &Result{
		Output:   string(stdout) + string(stderr),
		ExitCode: exitCode,
	}
}

// LaunchError is returned when a program could not be started at all.
type LaunchError struct {
	Program string
	Err     error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("failed to launch %s: %v", e.Program, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	return []error{ErrLaunch, e.Err}
}

// Local runs commands on the operator's machine.
type Local struct {
	dir    string
	stream io.Writer
}

// Option configures a Local executor
type Option func(*Local)

// WithDir sets the working directory of spawned processes
func WithDir(dir string) Option {
	return func(l *Local) {
		l.dir = dir
	}
}

// WithStream copies process output to w while it runs
func WithStream(w io.Writer) Option {
	return func(l *Local) {
		l.stream = w
	}
}

// New creates a Local executor
func New(opts ...Option) *Local {
	l := &Local{}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run starts program with args and blocks until it exits. A non-zero exit
// is reported through Result.ExitCode, not as an error.
func (l *Local) Run(ctx context.Context, program string, args ...string) (*Result, error) {
	cmd := exec.CommandContext(ctx, program, args...)
	if l.dir != "" {
		cmd.Dir = l.dir
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if l.stream != nil {
		cmd.Stdout = io.MultiWriter(&stdout, l.stream)
		cmd.Stderr = io.MultiWriter(&stderr, l.stream)
	}

	if err := cmd.Start(); err != nil {
		return nil, &LaunchError{Program: program, Err: err}
	}

	err := cmd.Wait()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		return NewResult(stdout.Bytes(), stderr.Bytes(), 0), nil
	case errors.As(err, &exitErr):
		return NewResult(stdout.Bytes(), stderr.Bytes(), exitErr.ExitCode()), nil
	case ctx.Err() != nil:
		return NewResult(stdout.Bytes(), stderr.Bytes(), ExitUnknown), ctx.Err()
	default:
		return NewResult(stdout.Bytes(), stderr.Bytes(), ExitUnknown), fmt.Errorf("waiting for %s: %w", program, err)
	}
}

// String renders a command line for logs and error messages.
func String(program string, args ...string) string {
	if len(args) == 0 {
		return program
	}
	return fmt.Sprintf("%s %s", program, strings.Join(args, " "))
}
