package store

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"okx-connector/internal/logger"
)

// ErrLocked means another live instance owns the lock.
var ErrLocked = errors.New("instance lock held")

// InstanceLock keeps two processes with the same instance id from trading on
// one account at the same time.
type InstanceLock struct {
	path string
	file *os.File
}

type LockOptions struct {
	// TakeoverEnabled allows replacing a lock whose owner is gone or whose
	// age exceeds StaleAfter.
	TakeoverEnabled bool
	StaleAfter      time.Duration
	Now             func() time.Time
}

type lockMeta struct {
	pid       int
	instance  string
	startedAt time.Time
}

func LockPath(root, instanceID string) string {
	return filepath.Join(root, instanceID+".lock")
}

func AcquireInstanceLock(root, instanceID string, opts LockOptions) (*InstanceLock, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if instanceID == "" {
		return nil, errors.New("instance id required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	path := LockPath(root, instanceID)
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	log := logger.GetLogger().WithComponent("store").WithFields(logger.Fields{"lock": path, "instance": instanceID})

	for attempt := 0; attempt < 3; attempt++ {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			meta := lockMeta{pid: os.Getpid(), instance: instanceID, startedAt: now().UTC()}
			if err := writeLockFile(f, meta); err != nil {
				_ = f.Close()
				_ = os.Remove(path)
				return nil, err
			}
			log.Info("instance lock acquired")
			return &InstanceLock{path: path, file: f}, nil
		}
		if !os.IsExist(err) {
			return nil, err
		}
		if !opts.TakeoverEnabled {
			return nil, fmt.Errorf("%w: %s", ErrLocked, path)
		}
		stale, reason, err := staleLock(path, now().UTC(), opts.StaleAfter)
		if err != nil {
			return nil, fmt.Errorf("%w: %s (stale check failed: %v)", ErrLocked, path, err)
		}
		if !stale {
			return nil, fmt.Errorf("%w: %s (%s)", ErrLocked, path, reason)
		}
		log.WithField("reason", reason).Warn("taking over stale instance lock")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrLocked, path)
}

func (l *InstanceLock) Release() error {
	if l == nil {
		return nil
	}
	if l.file != nil {
		_ = l.file.Close()
		l.file = nil
	}
	if l.path == "" {
		return nil
	}
	err := os.Remove(l.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	l.path = ""
	return nil
}

func writeLockFile(f *os.File, meta lockMeta) error {
	var b strings.Builder
	b.WriteString("pid=" + strconv.Itoa(meta.pid) + "\n")
	b.WriteString("instance=" + meta.instance + "\n")
	b.WriteString("started_at=" + meta.startedAt.UTC().Format(time.RFC3339) + "\n")
	if _, err := f.WriteString(b.String()); err != nil {
		return err
	}
	return f.Sync()
}

func staleLock(path string, now time.Time, staleAfter time.Duration) (bool, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return true, "lock_disappeared", nil
		}
		return false, "", err
	}
	meta, err := parseLockMeta(data)
	if err != nil {
		return false, "", err
	}
	if meta.pid > 0 {
		if processAlive(meta.pid) {
			return false, "owner_process_running", nil
		}
		return true, "owner_process_not_running", nil
	}
	if meta.startedAt.IsZero() {
		return false, "missing_lock_owner_info", nil
	}
	if staleAfter > 0 && now.Sub(meta.startedAt) >= staleAfter {
		return true, "lock_age_exceeded", nil
	}
	return false, "lock_not_stale", nil
}

func parseLockMeta(data []byte) (lockMeta, error) {
	var meta lockMeta
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		key, value, ok := strings.Cut(strings.TrimSpace(scanner.Text()), "=")
		if !ok {
			continue
		}
		value = strings.TrimSpace(value)
		switch strings.TrimSpace(key) {
		case "pid":
			if pid, err := strconv.Atoi(value); err == nil && pid > 0 {
				meta.pid = pid
			}
		case "instance":
			meta.instance = value
		case "started_at":
			if ts, err := time.Parse(time.RFC3339, value); err == nil {
				meta.startedAt = ts.UTC()
			}
		}
	}
	return meta, scanner.Err()
}

// processAlive probes pid with signal 0. A permission error still means the
// process exists.
func processAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	switch {
	case err == nil:
		return true
	case errors.Is(err, os.ErrProcessDone), errors.Is(err, syscall.ESRCH):
		return false
	case errors.Is(err, syscall.EPERM):
		return true
	}
	return false
}
