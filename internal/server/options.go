package server

import (
	"io"
	"os"
)

type options struct {
	knownHosts      string
	insecureHostKey bool
	agentSocket     string
	identityFiles   []string
	stream          io.Writer
}

// Option configures Connect.
type Option func(*options)

func defaultOptions() *options {
	o := &options{
		knownHosts:  homeSSH("known_hosts"),
		agentSocket: os.Getenv("SSH_AUTH_SOCK"),
	}
	for _, name := range defaultIdentities {
		if p := homeSSH(name); p != "" {
			o.identityFiles = append(o.identityFiles, p)
		}
	}
	return o
}

// WithKnownHosts verifies host keys against path instead of ~/.ssh/known_hosts.
func WithKnownHosts(path string) Option {
	return func(o *options) {
		o.knownHosts = path
	}
}

// WithInsecureHostKey accepts any host key.
func WithInsecureHostKey() Option {
	return func(o *options) {
		o.insecureHostKey = true
	}
}

// WithIdentityFiles replaces the default private key files.
func WithIdentityFiles(paths ...string) Option {
	return func(o *options) {
		o.identityFiles = paths
	}
}

// WithAgentSocket replaces $SSH_AUTH_SOCK. An empty path disables the agent.
func WithAgentSocket(path string) Option {
	return func(o *options) {
		o.agentSocket = path
	}
}

// WithStream copies remote command output to w while it runs.
func WithStream(w io.Writer) Option {
	return func(o *options) {
		o.stream = w
	}
}
