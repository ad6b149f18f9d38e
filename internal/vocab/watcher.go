package vocab

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher monitors a vocabulary file for changes and swaps the new
// vocabulary into a [Handle] when the file is modified. It uses polling
// (not fsnotify) to keep dependencies minimal. An invalid file is logged
// and skipped; readers keep the last valid vocabulary.
type Watcher struct {
	path     string
	handle   *Handle
	interval time.Duration

	mu       sync.Mutex
	done     chan struct{}
	stopOnce sync.Once

	// last known file state for change detection
	lastMtime time.Time
	lastHash  [sha256.Size]byte
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher creates a vocabulary file watcher. It loads the file
// immediately into handle and starts polling in a background goroutine.
func NewWatcher(path string, handle *Handle, opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		handle:   handle,
		interval: 5 * time.Second,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	v, hash, mtime, err := w.loadAndHash()
	if err != nil {
		return nil, fmt.Errorf("vocab: watcher initial load: %w", err)
	}
	w.handle.Replace(v)
	w.lastHash = hash
	w.lastMtime = mtime

	go w.poll()
	return w, nil
}

// Stop stops the file watcher.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
	})
}

func (w *Watcher) poll() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

// check reads the vocabulary file and, if it has changed and is valid,
// replaces the handle's vocabulary atomically.
func (w *Watcher) check() {
	// Quick mtime check first to avoid hashing unchanged files.
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("vocabulary watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	mtime := w.lastMtime
	w.mu.Unlock()

	if info.ModTime().Equal(mtime) {
		return
	}

	v, hash, newMtime, err := w.loadAndHash()
	if err != nil {
		slog.Warn("vocabulary watcher: failed to load file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if hash == w.lastHash {
		// File was touched but content is identical.
		w.lastMtime = newMtime
		w.mu.Unlock()
		return
	}
	w.lastHash = hash
	w.lastMtime = newMtime
	w.mu.Unlock()

	w.handle.Replace(v)
	slog.Info("vocabulary reloaded", "path", w.path, "commands", v.Len())
}

// loadAndHash reads the vocabulary file, parses and validates it, and
// returns the vocabulary alongside the file's SHA-256 hash and modification
// time. On an invalid file it returns an error; the caller keeps the old
// vocabulary.
func (w *Watcher) loadAndHash() (*Vocabulary, [sha256.Size]byte, time.Time, error) {
	var zeroHash [sha256.Size]byte

	f, err := os.Open(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}

	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	hash := sha256.Sum256(data)

	v, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, zeroHash, time.Time{}, err
	}
	return v, hash, info.ModTime(), nil
}
