// Package attemptlog keeps the rolling NDJSON logs of granted operation
// attempts: one log per operation type for the rate limiter and one per
// (actor, operation) pair for loop detection and cooldown. Writes prune
// entries older than the retention window and land via atomic rename;
// reads are unlocked and accept staleness.
package attemptlog

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tkoike/issuegate/internal/domain/model/attempt"
	"github.com/tkoike/issuegate/internal/domain/repository"
	"github.com/tkoike/issuegate/internal/infra/persistence/file"
)

const logSuffix = ".ndjson"

// FileAttemptLog implements repository.AttemptLogRepository over a
// directory of NDJSON files.
type FileAttemptLog struct {
	fs             afero.Fs
	dir            string
	opRetention    time.Duration // per-operation logs (rate limit)
	actorRetention time.Duration // per-(actor, operation) logs (loop, cooldown)
}

// NewFileAttemptLog creates an attempt log store rooted at dir. Each
// retention must cover every window that reads the log: the rate-limit
// window for operation logs, and the larger of the loop window and the
// cooldown interval for actor logs.
func NewFileAttemptLog(fs afero.Fs, dir string, opRetention, actorRetention time.Duration) *FileAttemptLog {
	return &FileAttemptLog{fs: fs, dir: dir, opRetention: opRetention, actorRetention: actorRetention}
}

// Record appends a granted attempt to both logs. Callers hold the
// operation lock, so writers to any one file do not race.
func (l *FileAttemptLog) Record(ctx context.Context, a attempt.OperationAttempt) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := l.append(l.opPath(a.Operation), a, l.opRetention); err != nil {
		return err
	}
	return l.append(l.actorPath(a.ActorID, a.Operation), a, l.actorRetention)
}

// CountOperationSince counts attempts for an operation strictly after since.
func (l *FileAttemptLog) CountOperationSince(ctx context.Context, operation string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := l.readAll(l.opPath(operation))
	if err != nil {
		return 0, err
	}
	return countAfter(entries, since), nil
}

// CountActorSince counts attempts for one (actor, operation) pair
// strictly after since.
func (l *FileAttemptLog) CountActorSince(ctx context.Context, actorID, operation string, since time.Time) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	entries, err := l.readAll(l.actorPath(actorID, operation))
	if err != nil {
		return 0, err
	}
	return countAfter(entries, since), nil
}

// LastActorAttempt returns the newest attempt for the pair, or (nil, nil).
func (l *FileAttemptLog) LastActorAttempt(ctx context.Context, actorID, operation string) (*attempt.OperationAttempt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := l.readAll(l.actorPath(actorID, operation))
	if err != nil {
		return nil, err
	}
	var last *attempt.OperationAttempt
	for i := range entries {
		if last == nil || entries[i].Timestamp.After(last.Timestamp) {
			last = &entries[i]
		}
	}
	return last, nil
}

// Verify parses every log file and reports the first corruption found.
// Used by the doctor command.
func (l *FileAttemptLog) Verify(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	infos, err := afero.ReadDir(l.fs, l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read attempts directory: %w", err)
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), logSuffix) {
			continue
		}
		if _, err := l.readAll(filepath.Join(l.dir, info.Name())); err != nil {
			return err
		}
	}
	return nil
}

func (l *FileAttemptLog) append(path string, a attempt.OperationAttempt, retention time.Duration) error {
	entries, err := l.readAll(path)
	if err != nil {
		return err
	}
	cutoff := a.Timestamp.Add(-retention)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, e := range entries {
		// Prune entries no window can still observe.
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if err := enc.Encode(e); err != nil {
			return fmt.Errorf("encode attempt: %w", err)
		}
	}
	if err := enc.Encode(a); err != nil {
		return fmt.Errorf("encode attempt: %w", err)
	}
	return file.WriteFileAtomic(l.fs, path, buf.Bytes(), 0o644)
}

func (l *FileAttemptLog) readAll(path string) ([]attempt.OperationAttempt, error) {
	f, err := l.fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open attempt log %s: %w", path, err)
	}
	defer f.Close()

	var entries []attempt.OperationAttempt
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var a attempt.OperationAttempt
		if err := json.Unmarshal([]byte(text), &a); err != nil {
			return nil, fmt.Errorf("%w: attempt log %s line %d: %v", repository.ErrCorruptState, path, line, err)
		}
		entries = append(entries, a)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan attempt log %s: %w", path, err)
	}
	return entries, nil
}

func (l *FileAttemptLog) opPath(operation string) string {
	return filepath.Join(l.dir, "op-"+sanitize(operation)+logSuffix)
}

func (l *FileAttemptLog) actorPath(actorID, operation string) string {
	return filepath.Join(l.dir, "actor-"+sanitize(actorID)+"--"+sanitize(operation)+logSuffix)
}

func countAfter(entries []attempt.OperationAttempt, since time.Time) int {
	n := 0
	for _, e := range entries {
		if e.Timestamp.After(since) {
			n++
		}
	}
	return n
}

func sanitize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
