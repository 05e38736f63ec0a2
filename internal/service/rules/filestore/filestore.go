// Package filestore persists the rule set as a single JSON document.
package filestore

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/acme/lead-contact-engine/internal/service/rules"
	"github.com/acme/lead-contact-engine/pkg/logger"
)

const reloadDebounce = 250 * time.Millisecond

// FileStore reads and writes the rule set at path. Writes go to a temporary
// file that is renamed over the target, so readers never observe a partial file.
type FileStore struct {
	path string
	log  *logger.Logger

	mu         sync.Mutex
	lastDigest [sha256.Size]byte
}

// New constructs a FileStore for path.
func New(path string, log *logger.Logger) *FileStore {
	if log == nil {
		log = logger.NewNop()
	}
	return &FileStore{path: path, log: log.Named("rulefile")}
}

// Path returns the backing file path.
func (f *FileStore) Path() string { return f.path }

// Load reads the rule set. A missing file yields an empty snapshot.
func (f *FileStore) Load() (rules.Snapshot, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return rules.Snapshot{}, nil
	}
	if err != nil {
		return rules.Snapshot{}, fmt.Errorf("read rule file: %w", err)
	}
	snap, err := decode(data)
	if err != nil {
		return rules.Snapshot{}, err
	}
	f.mu.Lock()
	f.lastDigest = sha256.Sum256(data)
	f.mu.Unlock()
	return snap, nil
}

// Save atomically replaces the file with snap.
func (f *FileStore) Save(ctx context.Context, snap rules.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode rule set: %w", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return fmt.Errorf("create rule dir: %w", err)
	}
	tmp := f.path + ".tmp"
	out, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open temp rule file: %w", err)
	}
	if _, err := out.Write(data); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp rule file: %w", err)
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		_ = os.Remove(tmp)
		return fmt.Errorf("sync temp rule file: %w", err)
	}
	if err := out.Close(); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("close temp rule file: %w", err)
	}
	if err := os.Rename(tmp, f.path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace rule file: %w", err)
	}
	f.lastDigest = sha256.Sum256(data)
	return nil
}

// Watch calls onChange with the new rule set whenever another process
// rewrites the file. Changes written by Save are ignored. Watch blocks until
// ctx is cancelled.
func (f *FileStore) Watch(ctx context.Context, onChange func(rules.Snapshot)) error {
	dir := filepath.Dir(f.path)
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("rule file watcher: %w", err)
	}
	defer w.Close()

	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	debounce := func() {
		timerMu.Lock()
		defer timerMu.Unlock()
		if timer != nil {
			timer.Stop()
		}
		timer = time.AfterFunc(reloadDebounce, func() {
			f.reload(onChange)
		})
	}
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	target := filepath.Clean(f.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) == target && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				debounce()
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			f.log.Warn("rule file watcher error", zap.Error(err))
		}
	}
}

func (f *FileStore) reload(onChange func(rules.Snapshot)) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		f.log.Warn("rule file reload failed", zap.Error(err))
		return
	}
	digest := sha256.Sum256(data)
	f.mu.Lock()
	unchanged := digest == f.lastDigest
	if !unchanged {
		f.lastDigest = digest
	}
	f.mu.Unlock()
	if unchanged {
		return
	}
	snap, err := decode(data)
	if err != nil {
		f.log.Warn("rule file reload rejected", zap.Error(err))
		return
	}
	f.log.Info("rule file changed on disk, reloading")
	onChange(snap)
}

func decode(data []byte) (rules.Snapshot, error) {
	var snap rules.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return rules.Snapshot{}, fmt.Errorf("decode rule file: %w", err)
	}
	return snap, nil
}
