// Package preparation provisions a fresh host: a deploy user, Docker and a
// Traefik reverse proxy.
package preparation

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"minion/internal/docker"
	"minion/internal/logger"
	"minion/internal/pipeline"
	"minion/internal/sanitizer"
	"minion/internal/server"
)

var (
	PrepLogs = logger.PackageLogger("preparation", "🛠️  PREPARATION")
)

// Options describe one provisioning run.
type Options struct {
	Host  string
	Email string
	// AdminPassword authenticates the privileged user; empty means keys.
	AdminPassword string
	// GrantSudo installs a passwordless sudoers drop-in for the deploy user.
	GrantSudo bool
	AdminUser string
	User      string
}

func (o *Options) setDefaults() {
	if o.AdminUser == "" {
		o.AdminUser = DefaultAdminUser
	}
	if o.User == "" {
		o.User = DefaultUser
	}
}

func (o Options) validate() error {
	if err := sanitizer.Host(o.Host); err != nil {
		return err
	}
	if err := sanitizer.Email(o.Email); err != nil {
		return err
	}
	for _, u := range []string{o.AdminUser, o.User} {
		if err := sanitizer.AppName(u); err != nil {
			return fmt.Errorf("user name: %w", err)
		}
	}
	return nil
}

type PreparationManager struct {
	connect pipeline.Connector
	local   pipeline.LocalExecutor
	stream  io.Writer
}

// NewPreparationManager wires the manager to its collaborators. stream may
// be nil.
func NewPreparationManager(connect pipeline.Connector, local pipeline.LocalExecutor, stream io.Writer) *PreparationManager {
	return &PreparationManager{
		connect: connect,
		local:   local,
		stream:  stream,
	}
}

// Provision runs every phase in order. A failure leaves earlier phases
// applied; running it again is the way to recover.
func (pm *PreparationManager) Provision(ctx context.Context, opts Options) error {
	opts.setDefaults()
	if err := opts.validate(); err != nil {
		return err
	}

	if err := pm.VerifyPrerequisites(ctx); err != nil {
		return err
	}
	if err := pm.SetupUser(ctx, opts); err != nil {
		return err
	}

	sess, err := pm.InstallDocker(ctx, opts)
	if err != nil {
		return err
	}
	defer func() { sess.Close() }()

	runner := pm.runner(sess)
	if _, err := runner.Steps(ctx, verifyAccessSteps()...); err != nil {
		if errors.Is(err, ErrGroupPending) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrVerificationFailed, err)
	}

	if err := pm.SetupProxy(ctx, runner, opts.Email); err != nil {
		return err
	}
	PrepLogs.Success("Host %s is ready for deployments", opts.Host)
	return nil
}

// VerifyPrerequisites checks the operator machine before touching the host.
func (pm *PreparationManager) VerifyPrerequisites(ctx context.Context) error {
	logToStream(pm.stream, "Checking local prerequisites...", color.FgCyan)
	r := &pipeline.Runner{Local: pm.local, Stream: pm.stream}
	if _, err := r.Steps(ctx, docker.CheckInstalled()); err != nil {
		return fmt.Errorf("%w: docker is not installed locally: %w", ErrPrerequisiteCheckFailed, err)
	}
	logToStream(pm.stream, "✓ docker is installed", color.FgGreen)
	return nil
}

// SetupUser creates the deploy user as the privileged user. A rejected login
// means the host was already hardened by an earlier run and is not an error.
func (pm *PreparationManager) SetupUser(ctx context.Context, opts Options) error {
	PrepLogs.Info("Connecting to %s as %s", opts.Host, opts.AdminUser)
	sess, err := pm.connect(ctx, opts.Host, opts.AdminUser, opts.AdminPassword)
	if err != nil {
		if errors.Is(err, server.ErrAuth) {
			PrepLogs.Warn("%s login rejected, assuming %s already exists: %v", opts.AdminUser, opts.User, err)
			return nil
		}
		return err
	}
	defer sess.Close()

	logToStream(pm.stream, "Setting up user "+opts.User+"...", color.FgYellow)
	if _, err := pm.runner(sess).Steps(ctx, userSteps(opts.User, opts.GrantSudo)...); err != nil {
		return fmt.Errorf("%w: %w", ErrUserSetupFailed, err)
	}
	logToStream(pm.stream, "✓ User "+opts.User+" ready", color.FgGreen)
	return nil
}

// InstallDocker installs Docker as the deploy user and returns a session
// that sees the resulting group membership.
func (pm *PreparationManager) InstallDocker(ctx context.Context, opts Options) (pipeline.Session, error) {
	PrepLogs.Info("Connecting to %s as %s", opts.Host, opts.User)
	sess, err := pm.connect(ctx, opts.Host, opts.User, "")
	if err != nil {
		return nil, err
	}

	logToStream(pm.stream, "Checking Docker installation...", color.FgCyan)
	report, err := pm.runner(sess).Run(ctx, dockerStage(), pipeline.Stage{Steps: verifyDockerSteps()})
	if err != nil {
		sess.Close()
		return nil, &InstallationError{Tool: "docker", Underlying: err}
	}
	logToStream(pm.stream, "✓ Docker installed", color.FgGreen)

	if !report.SessionInvalidated {
		return sess, nil
	}

	PrepLogs.Info("Reconnecting to apply docker group membership")
	sess.Close()
	sess, err = pm.connect(ctx, opts.Host, opts.User, "")
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SetupProxy writes the Traefik documents, starts the proxy and checks that
// its container is running.
func (pm *PreparationManager) SetupProxy(ctx context.Context, runner *pipeline.Runner, email string) error {
	steps, err := traefikSteps(email)
	if err != nil {
		return err
	}

	logToStream(pm.stream, "Setting up Traefik...", color.FgYellow)
	if _, err := runner.Steps(ctx, steps...); err != nil {
		return &InstallationError{Tool: "traefik", Underlying: err}
	}

	if _, err := runner.Steps(ctx, proxyRunningStep()); err != nil {
		if errors.Is(err, ErrProxyNotRunning) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrProxyNotRunning, err)
	}
	logToStream(pm.stream, "✓ Traefik setup complete", color.FgGreen)
	return nil
}

func (pm *PreparationManager) runner(sess pipeline.RemoteSession) *pipeline.Runner {
	return &pipeline.Runner{Local: pm.local, Remote: sess, Log: PrepLogs, Stream: pm.stream}
}
