// Package runlock guards against overlapping runs on one host with a
// marker file created exclusively. A lock left behind by a killed process
// stays held until an operator removes the file.
package runlock

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// ErrNotHeld is returned by Release when this Lock does not hold the file.
var ErrNotHeld = errors.New("runlock: not held")

// Holder is the metadata written into the lock file.
type Holder struct {
	PID        int       `json:"pid"`
	Trigger    string    `json:"trigger"`
	AcquiredAt time.Time `json:"acquired_at"`
}

// Lock is not reentrant: a second TryAcquire on a held Lock fails.
type Lock struct {
	path string
	mu   sync.Mutex
	held bool
}

// New returns a Lock on the marker file at path.
func New(path string) *Lock {
	return &Lock{path: path}
}

// Path returns the marker file path.
func (l *Lock) Path() string { return l.path }

// TryAcquire creates the marker file. It reports false without error when
// the file already exists, whoever created it.
func (l *Lock) TryAcquire(trigger string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held {
		return false, nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("runlock: mkdir: %w", err)
	}
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("runlock: create: %w", err)
	}
	meta, _ := json.Marshal(Holder{PID: os.Getpid(), Trigger: trigger, AcquiredAt: time.Now().UTC()})
	_, werr := f.Write(append(meta, '\n'))
	cerr := f.Close()
	if werr != nil || cerr != nil {
		os.Remove(l.path)
		return false, fmt.Errorf("runlock: write: %w", errors.Join(werr, cerr))
	}
	l.held = true
	return true, nil
}

// Release removes the marker file. A file already gone is not an error.
func (l *Lock) Release() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.held {
		return ErrNotHeld
	}
	l.held = false
	if err := os.Remove(l.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("runlock: remove: %w", err)
	}
	return nil
}

// Held reports whether the marker file exists, regardless of owner.
func (l *Lock) Held() bool {
	_, err := os.Stat(l.path)
	return err == nil
}

// Holder reads the metadata of the current holder.
func (l *Lock) Holder() (Holder, error) {
	var h Holder
	data, err := os.ReadFile(l.path)
	if err != nil {
		return h, fmt.Errorf("runlock: read: %w", err)
	}
	if err := json.Unmarshal(data, &h); err != nil {
		return h, fmt.Errorf("runlock: decode: %w", err)
	}
	return h, nil
}
