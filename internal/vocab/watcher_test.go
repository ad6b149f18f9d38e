package vocab_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/wicaksana/slidesense/internal/vocab"
)

const watcherVocabV1 = `
commands:
  - id: next_slide
    phrase: next slide
    action: slide.next
`

const watcherVocabV2 = `
commands:
  - id: next_slide
    phrase: next slide
    action: slide.next
  - id: back_slide
    phrase: back slide
    action: slide.previous
`

func writeVocab(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write vocabulary: %v", err)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	writeVocab(t, path, watcherVocabV1)

	h := vocab.NewHandle(nil)
	w, err := vocab.NewWatcher(path, h, vocab.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)

	if _, ok := h.Current().LookupExact("next slide"); !ok {
		t.Fatal("initial vocabulary not loaded into handle")
	}
}

func TestWatcher_ReloadsOnChange(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	writeVocab(t, path, watcherVocabV1)

	h := vocab.NewHandle(nil)
	w, err := vocab.NewWatcher(path, h, vocab.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)

	// Keep the mtime change observable on coarse-grained filesystems.
	time.Sleep(20 * time.Millisecond)
	writeVocab(t, path, watcherVocabV2)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch vocabulary: %v", err)
	}

	waitFor(t, func() bool {
		return h.Current().Len() == 2
	})
}

func TestWatcher_KeepsOldVocabularyOnInvalidFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "vocab.yaml")
	writeVocab(t, path, watcherVocabV2)

	h := vocab.NewHandle(nil)
	w, err := vocab.NewWatcher(path, h, vocab.WithInterval(10*time.Millisecond))
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	t.Cleanup(w.Stop)

	time.Sleep(20 * time.Millisecond)
	// Duplicate id: fails validation, must not replace the vocabulary.
	writeVocab(t, path, watcherVocabV2+`
  - id: next_slide
    phrase: forward
    action: slide.next
`)
	now := time.Now()
	if err := os.Chtimes(path, now, now); err != nil {
		t.Fatalf("touch vocabulary: %v", err)
	}

	// Give the watcher a few polls to (wrongly) pick it up.
	time.Sleep(100 * time.Millisecond)
	if h.Current().Len() != 2 {
		t.Fatalf("invalid vocabulary replaced the handle: %d commands", h.Current().Len())
	}
}

func TestWatcher_InitialLoadFailure(t *testing.T) {
	t.Parallel()

	h := vocab.NewHandle(nil)
	if _, err := vocab.NewWatcher(filepath.Join(t.TempDir(), "absent.yaml"), h); err == nil {
		t.Fatal("missing file did not error")
	}
}
