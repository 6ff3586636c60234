package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"minion/internal/executor"
	"minion/internal/sanitizer"
)

// Policy decides what a failing step does to the run.
type Policy int

const (
	// Critical failures abort the run.
	Critical Policy = iota
	// BestEffort failures are logged and the run continues.
	BestEffort
)

func (p Policy) String() string {
	if p == BestEffort {
		return "best-effort"
	}
	return "critical"
}

// HeredocDelimiter terminates documents written with WriteFile.
const HeredocDelimiter = "MINION_EOF"

var ErrHeredocDelimiter = errors.New("document contains the heredoc delimiter")

// Transfer copies a local file to the remote host.
type Transfer struct {
	LocalPath  string
	RemotePath string
}

// Step is one unit of work. Exactly one of Command (remote shell), Program
// (local process) or Upload is set.
type Step struct {
	Name    string
	Command string
	Program string
	Args    []string
	Upload  *Transfer
	Policy  Policy

	// Expect inspects the output of a step that exited 0.
	Expect func(output string) error

	// InvalidatesSession marks steps whose success requires a new remote
	// session before later steps can observe their effect.
	InvalidatesSession bool
}

// Stage groups steps behind an optional remote check. When SkipIf exits 0
// none of the steps run.
type Stage struct {
	Name   string
	SkipIf string
	Steps  []Step
}

// Remote builds a critical remote shell step.
func Remote(name, command string) Step {
	return Step{Name: name, Command: command}
}

// Local builds a critical local process step.
func Local(name, program string, args ...string) Step {
	return Step{Name: name, Program: program, Args: args}
}

// Upload builds a critical file transfer step.
func Upload(name, localPath, remotePath string) Step {
	return Step{Name: name, Upload: &Transfer{LocalPath: localPath, RemotePath: remotePath}}
}

// Optional returns a copy of s that does not abort the run on failure.
func (s Step) Optional() Step {
	s.Policy = BestEffort
	return s
}

// Expecting returns a copy of s with an output expectation.
func (s Step) Expecting(fn func(output string) error) Step {
	s.Expect = fn
	return s
}

// Invalidating returns a copy of s flagged as invalidating the session.
func (s Step) Invalidating() Step {
	s.InvalidatesSession = true
	return s
}

// Describe renders what the step does for logs.
func (s Step) Describe() string {
	switch {
	case s.Upload != nil:
		return fmt.Sprintf("upload %s -> %s", s.Upload.LocalPath, s.Upload.RemotePath)
	case s.Program != "":
		return executor.String(s.Program, s.Args...)
	default:
		return firstLine(s.Command)
	}
}

// WriteFile builds a remote step that writes content to path with sudo.
// The document is passed through a quoted heredoc so nothing in it is
// expanded by the remote shell.
func WriteFile(name, path, content string) (Step, error) {
	for _, line := range strings.Split(content, "\n") {
		if line == HeredocDelimiter {
			return Step{}, fmt.Errorf("%w %s", ErrHeredocDelimiter, HeredocDelimiter)
		}
	}
	content = strings.TrimSuffix(content, "\n")
	cmd := fmt.Sprintf("sudo tee %s >/dev/null << '%s'\n%s\n%s",
		sanitizer.Quote(path), HeredocDelimiter, content, HeredocDelimiter)
	return Remote(name, cmd), nil
}

// Contains expects the output to contain want.
func Contains(want string) func(string) error {
	return func(output string) error {
		if !strings.Contains(output, want) {
			return fmt.Errorf("expected output to contain %q", want)
		}
		return nil
	}
}

// Equals expects the trimmed output to equal want.
func Equals(want string) func(string) error {
	return func(output string) error {
		if got := strings.TrimSpace(output); got != want {
			return fmt.Errorf("expected %q, got %q", want, got)
		}
		return nil
	}
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i] + " ..."
	}
	return s
}
