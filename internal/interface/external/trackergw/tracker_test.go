package trackergw

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// writeScript installs a fake tracker binary for one test.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tracker script requires a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "tracker")
	script := "#!/bin/sh\n" + body
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func TestCreateIssue(t *testing.T) {
	bin := writeScript(t, `
if [ "$1" != "create" ]; then echo "bad subcommand $1" >&2; exit 2; fi
cat > /dev/null
echo "ISSUE-42"
`)
	r := NewRunner(bin, 10*time.Second)

	id, err := r.CreateIssue(context.Background(), "Disk full", "no space left", []string{"ops"})
	require.NoError(t, err)
	assert.Equal(t, "ISSUE-42", id)
}

func TestCreateIssue_PassesArgsAndBody(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	bin := writeScript(t, `
echo "$@" > `+capture+`
cat >> `+capture+`
echo "ISSUE-1"
`)
	r := NewRunner(bin, 10*time.Second)

	_, err := r.CreateIssue(context.Background(), "Disk full", "body text", []string{"ops", "ci"})
	require.NoError(t, err)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	got := string(data)
	assert.Contains(t, got, "create --title Disk full")
	assert.Contains(t, got, "--label ops --label ci")
	assert.Contains(t, got, "body text")
}

func TestCreateIssue_IdOnFirstLine(t *testing.T) {
	bin := writeScript(t, `
cat > /dev/null
echo "ISSUE-7"
echo "url: https://tracker.example/issues/7"
`)
	r := NewRunner(bin, 10*time.Second)

	id, err := r.CreateIssue(context.Background(), "t", "b", nil)
	require.NoError(t, err)
	assert.Equal(t, "ISSUE-7", id)
}

func TestCreateIssue_EmptyOutputFails(t *testing.T) {
	bin := writeScript(t, `cat > /dev/null`)
	r := NewRunner(bin, 10*time.Second)

	_, err := r.CreateIssue(context.Background(), "t", "b", nil)
	assert.Error(t, err)
}

func TestCreateIssue_NonZeroExitSurfacesStderr(t *testing.T) {
	bin := writeScript(t, `
cat > /dev/null
echo "tracker exploded" >&2
exit 1
`)
	r := NewRunner(bin, 10*time.Second)

	_, err := r.CreateIssue(context.Background(), "t", "b", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tracker exploded")
}

func TestUpdateIssue(t *testing.T) {
	capture := filepath.Join(t.TempDir(), "capture")
	bin := writeScript(t, `
echo "$@" > `+capture+`
cat >> `+capture+`
`)
	r := NewRunner(bin, 10*time.Second)

	err := r.UpdateIssue(context.Background(), "ISSUE-42", "Recurred at T")
	require.NoError(t, err)

	data, err := os.ReadFile(capture)
	require.NoError(t, err)
	assert.Contains(t, string(data), "update ISSUE-42")
	assert.Contains(t, string(data), "Recurred at T")
}

func TestUpdateIssue_RequiresID(t *testing.T) {
	r := NewRunner("/nonexistent", time.Second)
	err := r.UpdateIssue(context.Background(), "", "fragment")
	assert.Error(t, err)
}

func TestRun_Timeout(t *testing.T) {
	// exec keeps the sleep in the watched process and detaches the output
	// pipe, so the kill on deadline is observed immediately
	bin := writeScript(t, `
cat > /dev/null
exec sleep 5 > /dev/null 2>&1
`)
	r := NewRunner(bin, 200*time.Millisecond)

	start := time.Now()
	_, err := r.CreateIssue(context.Background(), "t", "b", nil)
	require.Error(t, err)
	assert.Less(t, time.Since(start), 3*time.Second, "timeout must cut the call short")
}

func TestNewRunner_DefaultTimeout(t *testing.T) {
	r := NewRunner("tracker", 0)
	assert.Equal(t, 60*time.Second, r.Timeout)
}

func TestCreateIssue_MissingBinary(t *testing.T) {
	r := NewRunner(filepath.Join(t.TempDir(), "no-such-bin"), time.Second)
	_, err := r.CreateIssue(context.Background(), "t", "b", nil)
	require.Error(t, err)
	assert.False(t, strings.Contains(err.Error(), "panic"))
}
