package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/go-logr/logr"
	"golang.org/x/sys/unix"
)

// rename is swapped in tests to simulate a crash between write and rename.
var rename = os.Rename

// FileStore keeps one JSON document per plan under Dir.
type FileStore struct {
	Dir    string
	Logger logr.Logger
}

// NewFileStore returns a store rooted at dir. The directory is created on the
// first Save.
func NewFileStore(dir string, logger logr.Logger) *FileStore {
	return &FileStore{Dir: dir, Logger: logger}
}

func (s *FileStore) path(planID string) string {
	return filepath.Join(s.Dir, planID+".json")
}

// Load reads the state for planID.
func (s *FileStore) Load(_ context.Context, planID string) (*DeploymentState, error) {
	data, err := os.ReadFile(s.path(planID))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read state: %w", err)
	}
	st, err := Unmarshal(data)
	if err != nil {
		return nil, err
	}
	if st.PlanID != planID {
		return nil, fmt.Errorf("%w: file for %q holds plan %q", ErrCorrupt, planID, st.PlanID)
	}
	return st, nil
}

// Save writes the state to a temporary file, syncs it, and renames it over
// the previous version.
func (s *FileStore) Save(ctx context.Context, st *DeploymentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := Marshal(st)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return fmt.Errorf("failed to create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.Dir, "."+st.PlanID+"-*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp state file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temp state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temp state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}
	if err := rename(tmpName, s.path(st.PlanID)); err != nil {
		return fmt.Errorf("failed to replace state file: %w", err)
	}
	committed = true

	if err := syncDir(s.Dir); err != nil {
		s.Logger.V(1).Info("directory sync failed", "dir", s.Dir, "error", err.Error())
	}
	return nil
}

// Delete removes the state file. The lock file belongs to Lock and is
// removed when its holder releases it.
func (s *FileStore) Delete(_ context.Context, planID string) error {
	if err := os.Remove(s.path(planID)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}

func (s *FileStore) lockPath(planID string) string {
	return filepath.Join(s.Dir, planID+".lock")
}

// lockAttempts bounds retries when the lock file is replaced between open
// and flock.
const lockAttempts = 3

// Lock takes an exclusive advisory lock on <planID>.lock. The kernel drops
// the lock when the holding process dies, so a file left behind by a crash
// or a reboot of the control host does not block the next run. The returned
// function releases the lock and removes the file.
func (s *FileStore) Lock(planID string) (func() error, error) {
	if err := os.MkdirAll(s.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}
	p := s.lockPath(planID)

	for range lockAttempts {
		f, err := os.OpenFile(p, os.O_CREATE|os.O_RDWR, 0o600) //nolint:gosec // path is built from the state dir
		if err != nil {
			return nil, fmt.Errorf("failed to open lock file: %w", err)
		}
		if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil { //nolint:gosec // fd fits in int
			_ = f.Close()
			if errors.Is(err, unix.EWOULDBLOCK) {
				owner, _ := os.ReadFile(p) //nolint:gosec // same path as above
				return nil, fmt.Errorf("%w: %s (pid %s)", ErrLocked, p, strings.TrimSpace(string(owner)))
			}
			return nil, fmt.Errorf("failed to lock %s: %w", p, err)
		}

		// A previous holder may have removed the file after we opened it.
		if !samePath(f, p) {
			_ = f.Close()
			continue
		}

		if err := writeOwner(f); err != nil {
			_ = f.Close()
			return nil, err
		}
		s.Logger.V(1).Info("acquired plan lock", "path", p)
		return func() error {
			var errs []error
			if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, fmt.Errorf("failed to remove lock file: %w", err))
			}
			if err := unix.Flock(int(f.Fd()), unix.LOCK_UN); err != nil { //nolint:gosec // fd fits in int
				errs = append(errs, fmt.Errorf("failed to release lock: %w", err))
			}
			if err := f.Close(); err != nil {
				errs = append(errs, fmt.Errorf("failed to close lock file: %w", err))
			}
			return errors.Join(errs...)
		}, nil
	}
	return nil, fmt.Errorf("%w: %s keeps being replaced", ErrLocked, p)
}

// Unlock removes the lock file for planID when no live process holds it.
// It fails with ErrLocked otherwise.
func (s *FileStore) Unlock(planID string) error {
	release, err := s.Lock(planID)
	if err != nil {
		return err
	}
	return release()
}

func samePath(f *os.File, p string) bool {
	held, err := f.Stat()
	if err != nil {
		return false
	}
	current, err := os.Stat(p)
	if err != nil {
		return false
	}
	return os.SameFile(held, current)
}

func writeOwner(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return fmt.Errorf("failed to write lock file: %w", err)
	}
	return nil
}

func syncDir(dir string) error {
	d, err := os.Open(dir) //nolint:gosec // state directory is operator supplied
	if err != nil {
		return err
	}
	defer func() { _ = d.Close() }()
	return d.Sync()
}
