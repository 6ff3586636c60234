package server

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

var defaultIdentities = []string{"id_ed25519", "id_ecdsa", "id_rsa"}

// authMethods picks password auth when a password is given, otherwise the
// SSH agent followed by the default identity files. The returned closer
// releases the agent connection.
func (o *options) authMethods(password string) ([]ssh.AuthMethod, func()) {
	if password != "" {
		return []ssh.AuthMethod{
			ssh.Password(password),
			ssh.KeyboardInteractive(func(_, _ string, questions []string, _ []bool) ([]string, error) {
				answers := make([]string, len(questions))
				for i := range answers {
					answers[i] = password
				}
				return answers, nil
			}),
		}, func() {}
	}

	var methods []ssh.AuthMethod
	closer := func() {}

	if sock := o.agentSocket; sock != "" {
		conn, err := net.Dial("unix", sock)
		if err != nil {
			serverlogger.Debug("ssh agent at %s unavailable: %v", sock, err)
		} else {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
			closer = func() { conn.Close() }
		}
	}

	var signers []ssh.Signer
	for _, path := range o.identityFiles {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		signer, err := ssh.ParsePrivateKey(data)
		if err != nil {
			var missing *ssh.PassphraseMissingError
			if errors.As(err, &missing) {
				serverlogger.Debug("skipping %s: key is passphrase protected, load it into ssh-agent", path)
			} else {
				serverlogger.Warn("skipping %s: %v", path, err)
			}
			continue
		}
		signers = append(signers, signer)
	}
	if len(signers) > 0 {
		methods = append(methods, ssh.PublicKeys(signers...))
	}
	return methods, closer
}

// hostKeyCallback verifies against known_hosts when the file exists. A host
// the file does not list yet is trusted on first use and appended to it; a
// listed host presenting a different key is rejected.
func (o *options) hostKeyCallback(host string) (ssh.HostKeyCallback, error) {
	if o.insecureHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if o.knownHosts == "" {
		serverlogger.Warn("no known_hosts file, accepting the host key of %s without verification", host)
		return ssh.InsecureIgnoreHostKey(), nil
	}
	if _, err := os.Stat(o.knownHosts); err != nil {
		serverlogger.Warn("no known_hosts file, accepting the host key of %s without verification", host)
		return ssh.InsecureIgnoreHostKey(), nil
	}

	check, err := knownhosts.New(o.knownHosts)
	if err != nil {
		return nil, err
	}
	path := o.knownHosts
	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := check(hostname, remote, key)
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		if len(keyErr.Want) > 0 {
			return fmt.Errorf("%w (host key of %s changed, check %s)", err, hostname, path)
		}
		serverlogger.Warn("%s is not in %s, trusting its %s key on first use", hostname, path, key.Type())
		if err := appendKnownHost(path, hostname, key); err != nil {
			serverlogger.Warn("could not record the host key of %s: %v", hostname, err)
		}
		return nil
	}, nil
}

func appendKnownHost(path, hostname string, key ssh.PublicKey) error {
	existing, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	line := knownhosts.Line([]string{hostname}, key) + "\n"
	if len(existing) > 0 && existing[len(existing)-1] != '\n' {
		line = "\n" + line
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}
	if _, err := f.WriteString(line); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func homeSSH(name string) string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".ssh", name)
}
