// Package trackergw talks to the external issue tracker by executing a
// configured CLI binary, the only protocol the tracker exposes to the
// engine: `<bin> create --title T [--label L]...` with the body on stdin
// printing the new issue id, and `<bin> update <id>` with the fragment on
// stdin. Any failure is a transient tracker error; the caller suppresses
// the invocation and may retry on a later trigger.
package trackergw

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// Runner executes tracker commands.
type Runner struct {
	Bin     string
	Timeout time.Duration
}

// NewRunner creates a runner for the given binary. A zero timeout falls
// back to 60 seconds.
func NewRunner(bin string, timeout time.Duration) *Runner {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Runner{Bin: bin, Timeout: timeout}
}

// CreateIssue files a new issue and returns the external id the tracker
// prints on stdout.
func (r *Runner) CreateIssue(ctx context.Context, title, body string, labels []string) (string, error) {
	args := []string{"create", "--title", title}
	for _, l := range labels {
		args = append(args, "--label", l)
	}

	out, err := r.run(ctx, body, args...)
	if err != nil {
		return "", err
	}
	externalID := strings.TrimSpace(out)
	if externalID == "" {
		return "", fmt.Errorf("tracker create returned no issue id")
	}
	// Trackers that print trailing detail keep the id on the first line.
	if i := strings.IndexByte(externalID, '\n'); i >= 0 {
		externalID = strings.TrimSpace(externalID[:i])
	}
	return externalID, nil
}

// UpdateIssue appends a body fragment to an existing issue.
func (r *Runner) UpdateIssue(ctx context.Context, externalID, fragment string) error {
	if externalID == "" {
		return fmt.Errorf("tracker update requires an issue id")
	}
	_, err := r.run(ctx, fragment, "update", externalID)
	return err
}

func (r *Runner) run(ctx context.Context, stdin string, args ...string) (string, error) {
	cctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	cmd := exec.CommandContext(cctx, r.Bin, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("tracker %s %s failed: %w (stderr: %s)",
			r.Bin, args[0], err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}
