package file

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/afero"
)

// Guard is a short-lived advisory mutex over a file-resident document,
// held only for a read-compute-write critical section. It is created with
// O_CREATE|O_EXCL so exactly one acquirer wins; a guard left behind by a
// crash is stolen once it is older than staleAfter.
type Guard struct {
	fs             afero.Fs
	path           string
	staleAfter     time.Duration
	retryInterval  time.Duration
	acquireTimeout time.Duration
}

// NewGuard creates a guard at path with conservative defaults: guards
// older than 30s are stale, acquisition retries every 10ms for up to 3s.
func NewGuard(fs afero.Fs, path string) *Guard {
	return &Guard{
		fs:             fs,
		path:           path,
		staleAfter:     30 * time.Second,
		retryInterval:  10 * time.Millisecond,
		acquireTimeout: 3 * time.Second,
	}
}

// Acquire blocks until the guard is held or the acquire timeout elapses.
// The returned release function removes the guard file.
func (g *Guard) Acquire() (func(), error) {
	if err := g.fs.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		return nil, fmt.Errorf("create guard directory: %w", err)
	}
	deadline := time.Now().Add(g.acquireTimeout)
	for {
		if ok, err := g.tryAcquire(); err != nil {
			return nil, err
		} else if ok {
			return func() { _ = g.fs.Remove(g.path) }, nil
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("guard %s: busy after %s", g.path, g.acquireTimeout)
		}
		time.Sleep(g.retryInterval)
	}
}

func (g *Guard) tryAcquire() (bool, error) {
	if info, err := g.fs.Stat(g.path); err == nil {
		if time.Since(info.ModTime()) < g.staleAfter {
			return false, nil
		}
		// Stale guard from a crashed holder; remove and race for O_EXCL.
		_ = g.fs.Remove(g.path)
	}

	f, err := g.fs.OpenFile(g.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("create guard %s: %w", g.path, err)
	}
	if err := f.Close(); err != nil {
		_ = g.fs.Remove(g.path)
		return false, fmt.Errorf("close guard %s: %w", g.path, err)
	}
	return true, nil
}
