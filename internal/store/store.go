// Package store keeps the small amount of local operational state a running
// connector owns: a runtime status snapshot and the instance lock.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"okx-connector/internal/logger"
)

// RuntimeStatus is rewritten on every heartbeat so operators can see what a
// running instance is doing without reading its logs.
type RuntimeStatus struct {
	Mode        string           `json:"mode"`
	InstanceID  string           `json:"instance_id"`
	Connector   string           `json:"connector"`
	PID         int              `json:"pid"`
	State       string           `json:"state"`
	PublicOnly  bool             `json:"public_only"`
	StartedAt   time.Time        `json:"started_at"`
	UpdatedAt   time.Time        `json:"updated_at"`
	LastError   string           `json:"last_error,omitempty"`
	Received    map[string]int64 `json:"received,omitempty"`
	Sent        map[string]int64 `json:"sent,omitempty"`
	InboundLen  int              `json:"inbound_len"`
	OutboundLen int              `json:"outbound_len"`
}

// StatusWriter is what the engine needs to publish its status.
type StatusWriter interface {
	SaveRuntimeStatus(status RuntimeStatus) error
}

type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) SaveRuntimeStatus(status RuntimeStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.runtimeStatusPath(), status)
}

func (s *Store) LoadRuntimeStatus() (RuntimeStatus, bool, error) {
	data, err := os.ReadFile(s.runtimeStatusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeStatus{}, false, nil
		}
		return RuntimeStatus{}, false, err
	}
	var status RuntimeStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return RuntimeStatus{}, false, err
	}
	return status, true, nil
}

func (s *Store) runtimeStatusPath() string {
	return filepath.Join(s.root, "runtime_status.json")
}

func writeJSONAtomic(path string, v interface{}) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	syncDir(dir, path)
	return nil
}

// syncDir flushes the rename; failure only costs durability across a crash.
func syncDir(dir, path string) {
	log := logger.GetLogger().WithComponent("store").WithFields(logger.Fields{"dir": dir, "target": path})
	d, err := os.Open(dir)
	if err != nil {
		log.WithError(err).Warn("directory fsync skipped")
		return
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.WithError(err).Warn("directory fsync failed")
	}
}
