package executor_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"minion/internal/executor"
)

func requireShell(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skipf("sh not available: %v", err)
	}
}

func TestRunSuccess(t *testing.T) {
	requireShell(t)

	result, err := executor.New().Run(context.Background(), "sh", "-c", "echo hello")
	require.NoError(t, err)

	assert.Equal(t, "hello\n", result.Output)
	assert.Equal(t, 0, result.ExitCode)
	assert.True(t, result.Success())
}

func TestRunConcatenatesStdoutThenStderr(t *testing.T) {
	requireShell(t)

	result, err := executor.New().Run(context.Background(), "sh", "-c", "echo err >&2; echo out")
	require.NoError(t, err)

	assert.Equal(t, "out\nerr\n", result.Output)
}

func TestRunNonZeroExitIsNotAnError(t *testing.T) {
	requireShell(t)

	result, err := executor.New().Run(context.Background(), "sh", "-c", "echo nope; exit 3")
	require.NoError(t, err)

	assert.Equal(t, 3, result.ExitCode)
	assert.False(t, result.Success())
	assert.Equal(t, "nope\n", result.Output)
}

func TestRunLaunchFailure(t *testing.T) {
	_, err := executor.New().Run(context.Background(), "definitely-not-a-real-program-minion")
	require.Error(t, err)

	assert.True(t, errors.Is(err, executor.ErrLaunch))
	var launchErr *executor.LaunchError
	require.True(t, errors.As(err, &launchErr))
	assert.Equal(t, "definitely-not-a-real-program-minion", launchErr.Program)
}

func TestRunWithDirAndStream(t *testing.T) {
	requireShell(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "marker"), []byte("x"), 0o644))

	var stream bytes.Buffer
	result, err := executor.New(executor.WithDir(dir), executor.WithStream(&stream)).
		Run(context.Background(), "sh", "-c", "ls")
	require.NoError(t, err)

	assert.Contains(t, result.Output, "marker")
	assert.Contains(t, stream.String(), "marker")
}

func TestSuccessOnNilResult(t *testing.T) {
	var r *executor.Result
	assert.False(t, r.Success())
	assert.False(t, (&executor.Result{ExitCode: executor.ExitUnknown}).Success())
}

func TestString(t *testing.T) {
	assert.Equal(t, "docker", executor.String("docker"))
	assert.Equal(t, "docker build -t app .", executor.String("docker", "build", "-t", "app", "."))
}
