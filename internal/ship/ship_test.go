package ship

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minion/internal/config"
	"minion/internal/docker"
	"minion/internal/executor"
	"minion/internal/pipeline"
	"minion/internal/sanitizer"
	"minion/internal/server"
)

type fakeSession struct {
	commands []string
	uploads  [][2]string
	fail     map[string]*executor.Result
	closed   bool
}

func (s *fakeSession) Run(_ context.Context, command string) (*executor.Result, error) {
	s.commands = append(s.commands, command)
	for prefix, res := range s.fail {
		if strings.HasPrefix(command, prefix) {
			return res, nil
		}
	}
	return &executor.Result{}, nil
}

func (s *fakeSession) Upload(_ context.Context, local, remote string) error {
	s.uploads = append(s.uploads, [2]string{local, remote})
	return nil
}

func (s *fakeSession) Close() error {
	s.closed = true
	return nil
}

type fakeLocal struct {
	fs    afero.Fs
	calls [][]string
	code  int
}

// Run pretends to be docker: `save -o <path>` writes the archive.
func (f *fakeLocal) Run(_ context.Context, program string, args ...string) (*executor.Result, error) {
	f.calls = append(f.calls, append([]string{program}, args...))
	if f.code != 0 {
		return &executor.Result{Output: "build failed\n", ExitCode: f.code}, nil
	}
	if len(args) > 2 && args[0] == "save" {
		if err := afero.WriteFile(f.fs, args[2], []byte("image"), 0o644); err != nil {
			return nil, err
		}
	}
	return &executor.Result{}, nil
}

type harness struct {
	fs       afero.Fs
	local    *fakeLocal
	session  *fakeSession
	connects int
	connErr  error
	deployer *Deployer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/src/Dockerfile", []byte("FROM scratch\n"), 0o644))

	h := &harness{fs: fs, local: &fakeLocal{fs: fs}, session: &fakeSession{}}
	connect := func(_ context.Context, host, user, password string) (pipeline.Session, error) {
		h.connects++
		if h.connErr != nil {
			return nil, h.connErr
		}
		return h.session, nil
	}
	h.deployer = NewDeployer(connect, h.local, fs, nil, nil)
	return h
}

func blogArgs() config.Args {
	return config.Args{
		Host:    "vps.example.com",
		AppName: "blog",
		URLs:    []string{"a.example.com", "b.example.com"},
		Port:    8000,
	}
}

func TestHostRules(t *testing.T) {
	assert.Equal(t, "Host(`a.example.com`) || Host(`b.example.com`)", HostRules([]string{"a.example.com", "b.example.com"}))
	assert.Equal(t, "Host(`a.example.com`)", HostRules([]string{"a.example.com"}))
}

func TestComposeFile(t *testing.T) {
	doc, err := ComposeFile(blogArgs())
	require.NoError(t, err)
	assert.NotContains(t, doc, "volumes:")
	assert.Contains(t, doc, "traefik.http.routers.blog.rule=Host(`a.example.com`) || Host(`b.example.com`)")
	assert.Contains(t, doc, "loadbalancer.server.port=8000")

	args := blogArgs()
	args.Volumes = []config.VolumeMapping{{Local: "data", Container: "/data"}, {Local: "uploads", Container: "/app/uploads"}}
	doc, err = ComposeFile(args)
	require.NoError(t, err)
	assert.Contains(t, doc, "    volumes:\n      - /opt/minion/blog/volumes/data:/data\n      - /opt/minion/blog/volumes/uploads:/app/uploads\n")
}

func TestDeployInteractive(t *testing.T) {
	h := newHarness(t)
	args := blogArgs()
	args.Volumes = []config.VolumeMapping{{Local: "data", Container: "/data"}}

	url, err := h.deployer.Deploy(context.Background(), args, Options{Dir: "/src", Interactive: true})
	require.NoError(t, err)
	assert.Equal(t, "https://a.example.com", url)

	require.Len(t, h.local.calls, 2)
	assert.Equal(t, []string{"docker", "build", "-t", "minion_blog", ".", "--platform=linux/amd64"}, h.local.calls[0])
	save := h.local.calls[1]
	assert.Equal(t, []string{"docker", "save", "-o"}, save[:3])
	archive := save[3]
	assert.True(t, strings.HasPrefix(archive[strings.LastIndex(archive, "/")+1:], "minion_"))
	assert.Equal(t, "minion_blog", save[4])

	cmds := h.session.commands
	require.Len(t, cmds, 6)
	assert.Equal(t, "sudo mkdir -p /opt/minion/blog /opt/minion/blog/volumes /opt/minion/blog/volumes/data", cmds[0])
	assert.Equal(t, "sudo chown -R minion:minion /opt/minion/blog", cmds[1])
	assert.True(t, strings.HasPrefix(cmds[2], "sudo tee /opt/minion/blog/docker-compose.yml >/dev/null << 'MINION_EOF'\n"))
	assert.Equal(t, "cd /opt/minion/blog && docker load -i blog.tar", cmds[3])
	assert.Equal(t, "rm /opt/minion/blog/blog.tar", cmds[4])
	assert.Equal(t, "cd /opt/minion/blog && docker compose up -d 2>&1", cmds[5])

	assert.Equal(t, [][2]string{{archive, "/opt/minion/blog/blog.tar"}}, h.session.uploads)
	assert.True(t, h.session.closed)

	exists, err := afero.Exists(h.fs, archive)
	require.NoError(t, err)
	assert.False(t, exists, "archive must be removed after the run")
}

func TestDeployUnattendedUsesFixedArchive(t *testing.T) {
	h := newHarness(t)

	_, err := h.deployer.Deploy(context.Background(), blogArgs(), Options{Dir: "/src", Platform: "linux/arm64"})
	require.NoError(t, err)

	assert.Equal(t, "--platform=linux/arm64", h.local.calls[0][5])
	assert.Equal(t, "/src/blog.tar", h.local.calls[1][3])
	assert.Equal(t, "sudo mkdir -p /opt/minion/blog /opt/minion/blog/volumes", h.session.commands[0])

	exists, _ := afero.Exists(h.fs, "/src/blog.tar")
	assert.False(t, exists)
}

func TestDeployMissingDockerfile(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, h.fs.Remove("/src/Dockerfile"))

	_, err := h.deployer.Deploy(context.Background(), blogArgs(), Options{Dir: "/src"})
	assert.ErrorIs(t, err, docker.ErrDockerfileNotFound)
	assert.Empty(t, h.local.calls)
	assert.Zero(t, h.connects)
}

func TestDeployValidatesBeforeAnyWork(t *testing.T) {
	cases := map[string]func(*config.Args){
		"app name":       func(a *config.Args) { a.AppName = "Blog App" },
		"hostname":       func(a *config.Args) { a.URLs = []string{"a.example.com`) || Host(`evil.com"} },
		"host":           func(a *config.Args) { a.Host = "vps;reboot" },
		"volume name":    func(a *config.Args) { a.Volumes = []config.VolumeMapping{{Local: "../etc", Container: "/data"}} },
		"container path": func(a *config.Args) { a.Volumes = []config.VolumeMapping{{Local: "data", Container: "data"}} },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			h := newHarness(t)
			args := blogArgs()
			mutate(&args)

			_, err := h.deployer.Deploy(context.Background(), args, Options{Dir: "/src"})
			require.Error(t, err)
			assert.True(t, errors.Is(err, sanitizer.ErrInvalid), err)
			assert.Empty(t, h.local.calls)
			assert.Zero(t, h.connects)
		})
	}

	h := newHarness(t)
	args := blogArgs()
	args.Port = 0
	_, err := h.deployer.Deploy(context.Background(), args, Options{Dir: "/src"})
	assert.ErrorIs(t, err, config.ErrInvalidPort)

	args = blogArgs()
	args.URLs = nil
	_, err = h.deployer.Deploy(context.Background(), args, Options{Dir: "/src"})
	assert.ErrorIs(t, err, config.ErrNoURL)
	assert.Empty(t, h.local.calls)
}

func TestValidateRejectsUntaggableAppName(t *testing.T) {
	for _, name := range []string{"blog-", "blog__-x"} {
		args := blogArgs()
		args.AppName = name
		require.NoError(t, sanitizer.AppName(name), name)
		assert.ErrorIs(t, Validate(args, Options{}), docker.ErrInvalidImageName, name)
	}
	assert.NoError(t, Validate(blogArgs(), Options{Platform: docker.DefaultPlatform}))
}

func TestDeployBuildFailureStopsBeforeConnecting(t *testing.T) {
	h := newHarness(t)
	h.local.code = 1

	_, err := h.deployer.Deploy(context.Background(), blogArgs(), Options{Dir: "/src"})
	var se *pipeline.StepError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, 1, se.ExitCode)
	assert.Equal(t, "build failed\n", se.Output)
	assert.Len(t, h.local.calls, 1)
	assert.Zero(t, h.connects)
}

func TestDeployConnectFailure(t *testing.T) {
	h := newHarness(t)
	h.connErr = &server.ConnectError{Host: "vps.example.com", User: "minion", Kind: server.ErrAuth, Err: errors.New("denied")}

	_, err := h.deployer.Deploy(context.Background(), blogArgs(), Options{Dir: "/src"})
	assert.ErrorIs(t, err, server.ErrAuth)

	exists, _ := afero.Exists(h.fs, "/src/blog.tar")
	assert.False(t, exists)
}

func TestDeployRemoteFailureStopsRun(t *testing.T) {
	h := newHarness(t)
	h.session.fail = map[string]*executor.Result{"cd /opt/minion/blog && docker load": {Output: "no space left on device\n", ExitCode: 1}}

	_, err := h.deployer.Deploy(context.Background(), blogArgs(), Options{Dir: "/src"})
	assert.ErrorIs(t, err, pipeline.ErrStepFailed)
	assert.Len(t, h.session.commands, 4)
	assert.True(t, h.session.closed)
}
