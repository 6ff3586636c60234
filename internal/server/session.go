// Package server holds the remote command channel: one SSH connection per
// Session, one exec channel per command and SFTP for file transfers.
package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
	"sync"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"minion/internal/executor"
	"minion/internal/logger"
	"minion/internal/pipeline"
)

var (
	serverlogger = logger.PackageLogger("server", "🖧 SERVER")
)

const defaultPort = "22"

// Session is an authenticated SSH connection to one host as one user.
type Session struct {
	Host string
	User string

	client     *ssh.Client
	stream     io.Writer
	closeAgent func()

	mu     sync.Mutex
	closed bool
}

// Address returns host:22 unless host already carries a port.
func Address(host string) string {
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host
	}
	return net.JoinHostPort(strings.Trim(host, "[]"), defaultPort)
}

// Connect dials host and authenticates as user. A non-empty password selects
// password authentication; otherwise the SSH agent and the default identity
// files are offered.
func Connect(ctx context.Context, host, user, password string, opts ...Option) (*Session, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	addr := Address(host)
	hostKeys, err := o.hostKeyCallback(host)
	if err != nil {
		return nil, &ConnectError{Host: host, User: user, Kind: ErrHostKey, Err: err}
	}
	methods, closeAgent := o.authMethods(password)

	cfg := &ssh.ClientConfig{
		User:            user,
		Auth:            methods,
		HostKeyCallback: hostKeys,
	}

	serverlogger.Debug("dialing %s as %s", addr, user)
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		closeAgent()
		return nil, &ConnectError{Host: host, User: user, Kind: ErrNetwork, Err: err}
	}

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, cfg)
	stop()
	if err != nil {
		conn.Close()
		closeAgent()
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		return nil, &ConnectError{Host: host, User: user, Kind: classify(err), Err: err}
	}

	serverlogger.Debug("connected to %s as %s", addr, user)
	return &Session{
		Host:       host,
		User:       user,
		client:     ssh.NewClient(c, chans, reqs),
		stream:     o.stream,
		closeAgent: closeAgent,
	}, nil
}

func classify(err error) error {
	var keyErr *knownhosts.KeyError
	var revoked *knownhosts.RevokedError
	switch {
	case errors.As(err, &keyErr), errors.As(err, &revoked), strings.Contains(err.Error(), "knownhosts: "):
		return ErrHostKey
	case strings.Contains(err.Error(), "unable to authenticate"):
		return ErrAuth
	default:
		return ErrNetwork
	}
}

// Run executes command in a fresh exec channel and waits for it to exit.
// A non-zero exit status is reported through the Result, not as an error.
func (s *Session) Run(ctx context.Context, command string) (*executor.Result, error) {
	if s.isClosed() {
		return nil, ErrClosed
	}
	sess, err := s.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("open channel on %s: %w", s.Host, err)
	}
	defer sess.Close()

	var stdout, stderr bytes.Buffer
	sess.Stdout = &stdout
	sess.Stderr = &stderr
	if s.stream != nil {
		sess.Stdout = io.MultiWriter(&stdout, s.stream)
		sess.Stderr = io.MultiWriter(&stderr, s.stream)
	}

	if err := sess.Start(command); err != nil {
		return nil, fmt.Errorf("start command on %s: %w", s.Host, err)
	}

	done := make(chan error, 1)
	go func() { done <- sess.Wait() }()

	select {
	case <-ctx.Done():
		_ = sess.Signal(ssh.SIGTERM)
		sess.Close()
		<-done
		return executor.NewResult(stdout.Bytes(), stderr.Bytes(), executor.ExitUnknown), ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		var missing *ssh.ExitMissingError
		switch {
		case err == nil:
			return executor.NewResult(stdout.Bytes(), stderr.Bytes(), 0), nil
		case errors.As(err, &exitErr):
			return executor.NewResult(stdout.Bytes(), stderr.Bytes(), exitErr.ExitStatus()), nil
		case errors.As(err, &missing):
			return executor.NewResult(stdout.Bytes(), stderr.Bytes(), executor.ExitUnknown), nil
		default:
			return executor.NewResult(stdout.Bytes(), stderr.Bytes(), executor.ExitUnknown),
				fmt.Errorf("command on %s: %w", s.Host, err)
		}
	}
}

// Upload copies the local file to remotePath over SFTP with mode 0644.
// The file is read into memory first.
func (s *Session) Upload(ctx context.Context, localPath, remotePath string) error {
	if s.isClosed() {
		return ErrClosed
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUpload, err)
	}

	client, err := sftp.NewClient(s.client)
	if err != nil {
		return fmt.Errorf("%w: start sftp: %w", ErrUpload, err)
	}
	defer client.Close()
	stop := context.AfterFunc(ctx, func() { client.Close() })
	defer stop()

	serverlogger.Debug("uploading %s (%d bytes) to %s:%s", localPath, len(data), s.Host, remotePath)
	if err := write(client, remotePath, data); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s: %w", ErrUpload, remotePath, err)
	}
	return nil
}

func write(client *sftp.Client, remotePath string, data []byte) error {
	f, err := client.OpenFile(remotePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return err
	}
	if err := f.Chmod(0o644); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// Close tears down the connection. Calling it twice is harmless.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.closeAgent != nil {
		s.closeAgent()
	}
	return s.client.Close()
}

func (s *Session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Connector returns a pipeline.Connector that calls Connect with opts.
func Connector(opts ...Option) pipeline.Connector {
	return func(ctx context.Context, host, user, password string) (pipeline.Session, error) {
		s, err := Connect(ctx, host, user, password, opts...)
		if err != nil {
			return nil, err
		}
		return s, nil
	}
}
