package server

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/pkg/sftp"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"
)

// fakeCommand is the scripted behaviour of one exec request.
type fakeCommand struct {
	stdout string
	stderr string
	status uint32
	// noStatus closes the channel without an exit-status request.
	noStatus bool
	// block waits for a signal or the client to go away.
	block bool
}

type testServer struct {
	addr     string
	hostKey  ssh.PublicKey
	commands map[string]fakeCommand

	mu       sync.Mutex
	executed []string
	signals  []string
}

const (
	testUser     = "minion"
	testPassword = "s3cret"
)

func newSigner(t *testing.T) ssh.Signer {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	signer, err := ssh.NewSignerFromKey(priv)
	require.NoError(t, err)
	return signer
}

// startTestServer runs an SSH server on 127.0.0.1 that accepts testUser with
// testPassword or any key in authorized.
func startTestServer(t *testing.T, commands map[string]fakeCommand, authorized ...ssh.PublicKey) *testServer {
	t.Helper()

	hostSigner := newSigner(t)
	cfg := &ssh.ServerConfig{
		PasswordCallback: func(c ssh.ConnMetadata, pass []byte) (*ssh.Permissions, error) {
			if c.User() == testUser && string(pass) == testPassword {
				return nil, nil
			}
			return nil, errors.New("denied")
		},
		PublicKeyCallback: func(c ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			for _, k := range authorized {
				if string(k.Marshal()) == string(key.Marshal()) {
					return nil, nil
				}
			}
			return nil, errors.New("unknown key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { ln.Close() })

	srv := &testServer{addr: ln.Addr().String(), hostKey: hostSigner.PublicKey(), commands: commands}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go srv.serveConn(conn, cfg)
		}
	}()
	return srv
}

func (s *testServer) serveConn(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for nc := range chans {
		if nc.ChannelType() != "session" {
			nc.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, chReqs, err := nc.Accept()
		if err != nil {
			continue
		}
		go s.serveSession(ch, chReqs)
	}
}

func (s *testServer) serveSession(ch ssh.Channel, reqs <-chan *ssh.Request) {
	signalled := make(chan struct{})
	var once sync.Once
	for req := range reqs {
		switch req.Type {
		case "exec":
			var p struct{ Command string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go s.exec(ch, p.Command, signalled)
		case "subsystem":
			var p struct{ Name string }
			if err := ssh.Unmarshal(req.Payload, &p); err != nil || p.Name != "sftp" {
				req.Reply(false, nil)
				continue
			}
			req.Reply(true, nil)
			go func() {
				defer ch.Close()
				server, err := sftp.NewServer(ch)
				if err != nil {
					return
				}
				if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
					return
				}
			}()
		case "signal":
			var p struct{ Signal string }
			_ = ssh.Unmarshal(req.Payload, &p)
			s.mu.Lock()
			s.signals = append(s.signals, p.Signal)
			s.mu.Unlock()
			once.Do(func() { close(signalled) })
			if req.WantReply {
				req.Reply(true, nil)
			}
		default:
			if req.WantReply {
				req.Reply(false, nil)
			}
		}
	}
	once.Do(func() { close(signalled) })
}

func (s *testServer) exec(ch ssh.Channel, command string, signalled <-chan struct{}) {
	defer ch.Close()

	s.mu.Lock()
	s.executed = append(s.executed, command)
	s.mu.Unlock()

	cmd, ok := s.commands[command]
	if !ok {
		cmd = fakeCommand{stderr: "sh: command not found\n", status: 127}
	}
	if cmd.block {
		<-signalled
		return
	}
	io.WriteString(ch, cmd.stdout)
	io.WriteString(ch.Stderr(), cmd.stderr)
	if cmd.noStatus {
		return
	}
	ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{cmd.status}))
}

func (s *testServer) Executed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.executed...)
}

func (s *testServer) Signals() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signals...)
}
