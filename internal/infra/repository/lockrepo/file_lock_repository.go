// Package lockrepo stores named TTL locks as one JSON file per name,
// acquired with O_CREATE|O_EXCL so two concurrent acquirers for the same
// name never both succeed.
package lockrepo

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/afero"

	"github.com/tkoike/issuegate/internal/domain/model/lock"
	"github.com/tkoike/issuegate/internal/domain/repository"
)

const lockSuffix = ".lock"

// lockFile is the on-disk shape of one lock.
type lockFile struct {
	Name       string `json:"name"`
	HolderID   string `json:"holder_id"`
	PID        int    `json:"pid"`
	Hostname   string `json:"hostname"`
	AcquiredAt string `json:"acquired_at"` // UTC RFC3339
	ExpiresAt  string `json:"expires_at"`  // UTC RFC3339
}

// FileLockRepository implements repository.LockRepository over a
// directory of lock files.
type FileLockRepository struct {
	fs  afero.Fs
	dir string
}

// NewFileLockRepository creates a lock store rooted at dir.
func NewFileLockRepository(fs afero.Fs, dir string) *FileLockRepository {
	return &FileLockRepository{fs: fs, dir: dir}
}

// Acquire attempts to take the named lock. It fails fast: when an
// unexpired holder exists it returns (nil, nil) without queuing. An
// expired lock file is removed first, then acquisition races through
// O_EXCL creation; losing that race also returns (nil, nil).
func (r *FileLockRepository) Acquire(ctx context.Context, name lock.LockName, ttl time.Duration) (*lock.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := r.fs.MkdirAll(r.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	path := r.lockPath(name)
	existing, err := r.read(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if existing != nil {
		if !existing.IsExpired() {
			return nil, nil
		}
		// Expired holder; remove so O_EXCL can race for the steal.
		_ = r.fs.Remove(path)
	}

	l, err := lock.New(name, ttl)
	if err != nil {
		return nil, fmt.Errorf("build lock: %w", err)
	}
	data, err := json.Marshal(lockFile{
		Name:       l.Name().String(),
		HolderID:   l.HolderID(),
		PID:        l.PID(),
		Hostname:   l.Hostname(),
		AcquiredAt: l.AcquiredAt().Format(time.RFC3339),
		ExpiresAt:  l.ExpiresAt().Format(time.RFC3339),
	})
	if err != nil {
		return nil, fmt.Errorf("marshal lock: %w", err)
	}

	f, err := r.fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if os.IsExist(err) {
			// Someone else got the lock first
			return nil, nil
		}
		return nil, fmt.Errorf("create lock file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		_ = r.fs.Remove(path)
		return nil, fmt.Errorf("write lock file: %w", err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = r.fs.Remove(path)
		return nil, fmt.Errorf("sync lock file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = r.fs.Remove(path)
		return nil, fmt.Errorf("close lock file: %w", err)
	}
	return l, nil
}

// Release removes the lock file if l's holder still owns it. A lock that
// expired and was stolen by another holder is left alone.
func (r *FileLockRepository) Release(ctx context.Context, l *lock.Lock) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if l == nil {
		return nil
	}
	path := r.lockPath(l.Name())
	current, err := r.read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if current.HolderID() != l.HolderID() {
		return nil
	}
	if err := r.fs.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// List returns every persisted lock, expired ones included.
func (r *FileLockRepository) List(ctx context.Context) ([]*lock.Lock, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := afero.ReadDir(r.fs, r.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read lock directory: %w", err)
	}
	var locks []*lock.Lock
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), lockSuffix) {
			continue
		}
		l, err := r.read(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, nil
}

// CleanupExpired removes expired lock files (maintenance entry point).
func (r *FileLockRepository) CleanupExpired(ctx context.Context) (int, error) {
	locks, err := r.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, l := range locks {
		if !l.IsExpired() {
			continue
		}
		if err := r.fs.Remove(r.lockPath(l.Name())); err != nil && !os.IsNotExist(err) {
			return removed, fmt.Errorf("remove expired lock: %w", err)
		}
		removed++
	}
	return removed, nil
}

func (r *FileLockRepository) lockPath(name lock.LockName) string {
	return filepath.Join(r.dir, sanitize(name.String())+lockSuffix)
}

// read parses a lock file. A file that exists but cannot be parsed is
// corrupt state: it is surfaced, never deleted or overwritten.
func (r *FileLockRepository) read(path string) (*lock.Lock, error) {
	data, err := afero.ReadFile(r.fs, path)
	if err != nil {
		return nil, err
	}
	var lf lockFile
	if err := json.Unmarshal(data, &lf); err != nil {
		return nil, fmt.Errorf("%w: lock file %s: %v", repository.ErrCorruptState, path, err)
	}
	acquiredAt, err := time.Parse(time.RFC3339, lf.AcquiredAt)
	if err != nil {
		return nil, fmt.Errorf("%w: lock file %s: bad acquired_at: %v", repository.ErrCorruptState, path, err)
	}
	expiresAt, err := time.Parse(time.RFC3339, lf.ExpiresAt)
	if err != nil {
		return nil, fmt.Errorf("%w: lock file %s: bad expires_at: %v", repository.ErrCorruptState, path, err)
	}
	name, err := lock.NewLockName(lf.Name)
	if err != nil {
		return nil, fmt.Errorf("%w: lock file %s: %v", repository.ErrCorruptState, path, err)
	}
	return lock.Reconstruct(name, lf.HolderID, lf.PID, lf.Hostname, acquiredAt, expiresAt), nil
}

// sanitize maps a lock name to a safe file stem.
func sanitize(name string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(name) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return b.String()
}
