package preparation

import (
	"errors"
	"fmt"
)

var (
	ErrPrerequisiteCheckFailed = errors.New("prerequisite check failed")
	ErrUserSetupFailed         = errors.New("user setup failed")
	ErrVerificationFailed      = errors.New("verification failed")
	// ErrGroupPending means the deploy user is not yet in the docker group
	// as seen by a fresh login.
	ErrGroupPending = errors.New("docker group membership not active")
	// ErrProxyNotRunning means the proxy container did not reach the
	// running state after compose up.
	ErrProxyNotRunning = errors.New("traefik is not running")
)

type InstallationError struct {
	Tool       string
	Underlying error
}

func (ie *InstallationError) Error() string {
	return fmt.Sprintf("installation of %s failed: %v", ie.Tool, ie.Underlying)
}

func (ie *InstallationError) Unwrap() error {
	return ie.Underlying
}
