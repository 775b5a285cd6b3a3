package runner

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/newsdeck/backend/internal/artifact"
	"github.com/wonny/newsdeck/backend/internal/workspace"
)

// fakeProject writes an executable "run" script so that `sh run <script>`
// behaves like a package manager invocation.
func fakeProject(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "run"), []byte(body), 0o755))
	return dir
}

func TestParseTask(t *testing.T) {
	task, err := ParseTask("report")
	require.NoError(t, err)
	assert.Equal(t, TaskReport, task)

	_, err = ParseTask("rm")
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRun_RelaysOutput(t *testing.T) {
	dir := fakeProject(t, "echo \"script=$1\"\necho warning >&2\n")

	res, err := New("sh", dir, nil).Run(context.Background(), TaskTest)
	require.NoError(t, err)

	assert.Equal(t, "script=test\n", res.Stdout)
	assert.Equal(t, "warning\n", res.Stderr)
	assert.Equal(t, 0, res.ExitCode)
	assert.GreaterOrEqual(t, res.Duration, 0.0)
}

func TestRun_NonZeroExit(t *testing.T) {
	dir := fakeProject(t, "echo failing >&2\nexit 3\n")

	res, err := New("sh", dir, nil).Run(context.Background(), TaskReport)
	require.NoError(t, err)

	assert.Equal(t, 3, res.ExitCode)
	assert.Equal(t, "failing\n", res.Stderr)
	assert.Equal(t, "test:report", res.Script)
}

func TestRun_UnknownTask(t *testing.T) {
	_, err := New("sh", t.TempDir(), nil).Run(context.Background(), Task("deploy"))
	assert.ErrorIs(t, err, ErrUnknownTask)
}

func TestRun_MissingBinary(t *testing.T) {
	_, err := New("definitely-not-a-runner-binary", t.TempDir(), nil).Run(context.Background(), TaskTest)
	assert.Error(t, err)
}

func TestRun_RecordsTimings(t *testing.T) {
	dir := fakeProject(t, "exit 0\n")
	ws := workspace.New(dir)
	r := New("sh", dir, nil).WithTimings(ws, "quality/script-timings.jsonl")

	_, err := r.Run(context.Background(), TaskTest)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), TaskBuild)
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "quality", "script-timings.jsonl"))
	require.NoError(t, err)

	runs, err := artifact.ParseScriptTimings(data)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "test", runs[0].Script)
	assert.Equal(t, "build", runs[1].Script)
	assert.False(t, runs[0].Timestamp.IsZero())
}
