// Package pipeline runs ordered lists of local and remote steps.
//
// Steps run strictly in the order given, once each. A failing critical step
// stops the run with a *StepError; a failing best-effort step is logged and
// skipped over. Stages may be guarded by a remote check that makes the
// whole stage a no-op when the work is already done.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"minion/internal/executor"
	"minion/internal/logger"
)

var log = logger.PackageLogger("pipeline", "🔗 PIPELINE")

// RemoteSession is the part of a remote session a Runner needs.
type RemoteSession interface {
	Run(ctx context.Context, command string) (*executor.Result, error)
	Upload(ctx context.Context, localPath, remotePath string) error
}

// LocalExecutor runs processes on the operator's machine.
type LocalExecutor interface {
	Run(ctx context.Context, program string, args ...string) (*executor.Result, error)
}

// Report summarizes a run.
type Report struct {
	Executed []string
	Skipped  []string
	Failed   []string

	// SessionInvalidated is set when a step flagged InvalidatesSession
	// succeeded.
	SessionInvalidated bool
}

// Runner executes stages. Remote may be nil for runs with only local steps.
type Runner struct {
	Local  LocalExecutor
	Remote RemoteSession
	Log    *logger.Logger
	// Stream receives a "▶ command" echo for every step when set.
	Stream io.Writer
}

func (r *Runner) logs() *logger.Logger {
	if r.Log != nil {
		return r.Log
	}
	return log
}

// Run executes the stages in order and returns what happened. The report
// is returned even when err is non-nil.
func (r *Runner) Run(ctx context.Context, stages ...Stage) (*Report, error) {
	report := &Report{}
	for _, stage := range stages {
		if err := r.runStage(ctx, stage, report); err != nil {
			return report, err
		}
	}
	return report, nil
}

// Steps runs steps as a single unguarded stage.
func (r *Runner) Steps(ctx context.Context, steps ...Step) (*Report, error) {
	return r.Run(ctx, Stage{Steps: steps})
}

func (r *Runner) runStage(ctx context.Context, stage Stage, report *Report) error {
	l := r.logs()

	if stage.SkipIf != "" {
		if r.Remote == nil {
			return fmt.Errorf("stage %s: %w", stage.Name, ErrNoRemote)
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		r.echo(stage.SkipIf)
		res, err := r.Remote.Run(ctx, stage.SkipIf)
		if err != nil {
			return &StepError{Step: stage.Name + " check", Command: stage.SkipIf, ExitCode: executor.ExitUnknown, Err: err}
		}
		if res.Success() {
			l.Success("%s already done, skipping", stage.Name)
			for _, s := range stage.Steps {
				report.Skipped = append(report.Skipped, s.Name)
			}
			return nil
		}
		l.Debug("check %q exited %d, running %s", stage.SkipIf, res.ExitCode, stage.Name)
	}

	for _, step := range stage.Steps {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		l.Info("%s", step.Name)
		r.echo(step.Describe())
		res, err := r.runStep(ctx, step)
		if res != nil && strings.TrimSpace(res.Output) != "" {
			l.Debug("%s output:\n%s", step.Name, strings.TrimSpace(res.Output))
		}
		switch {
		case err != nil:
		case res == nil:
			err = errors.New("no result")
		case !res.Success():
			err = fmt.Errorf("exit code %d", res.ExitCode)
		case step.Expect != nil:
			err = step.Expect(res.Output)
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if step.Policy == BestEffort {
				l.Warn("%s failed, continuing: %v", step.Name, err)
				report.Failed = append(report.Failed, step.Name)
				continue
			}
			return newStepError(step, res, err)
		}

		report.Executed = append(report.Executed, step.Name)
		if step.InvalidatesSession {
			report.SessionInvalidated = true
		}
	}
	return nil
}

// runStep returns a Result for every step kind; uploads report exit code 0.
func (r *Runner) runStep(ctx context.Context, step Step) (*executor.Result, error) {
	switch {
	case step.Upload != nil:
		if r.Remote == nil {
			return nil, ErrNoRemote
		}
		if err := r.Remote.Upload(ctx, step.Upload.LocalPath, step.Upload.RemotePath); err != nil {
			return nil, err
		}
		return &executor.Result{}, nil
	case step.Program != "":
		if r.Local == nil {
			return nil, ErrNoLocal
		}
		return r.Local.Run(ctx, step.Program, step.Args...)
	case step.Command != "":
		if r.Remote == nil {
			return nil, ErrNoRemote
		}
		return r.Remote.Run(ctx, step.Command)
	default:
		return nil, ErrEmptyStep
	}
}

func newStepError(step Step, res *executor.Result, err error) *StepError {
	se := &StepError{Step: step.Name, Command: step.Describe(), ExitCode: executor.ExitUnknown}
	if res != nil {
		se.Output = res.Output
		se.ExitCode = res.ExitCode
	}
	// a non-zero exit is fully described by ExitCode
	if res == nil || res.Success() {
		se.Err = err
	}
	return se
}

func (r *Runner) echo(command string) {
	if r.Stream == nil {
		return
	}
	color.New(color.FgCyan).Fprintf(r.Stream, "▶ %s\n", firstLine(command))
}

// Session is a remote session that can be closed.
type Session interface {
	RemoteSession
	Close() error
}

// Connector opens a Session to host as user. An empty password selects
// key-based authentication.
type Connector func(ctx context.Context, host, user, password string) (Session, error)
