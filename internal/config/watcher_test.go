package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/kisanlive/internal/config"
)

const watcherValidYAML = `
server:
  log_level: info
conversation:
  voice: Zephyr
`

const watcherUpdatedYAML = `
server:
  log_level: debug
conversation:
  voice: Aoede
`

const watcherInvalidYAML = `
server:
  log_level: bananas
`

func writeFile(t *testing.T, path, content string, mtime time.Time) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write file %q: %v", path, err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatalf("chtimes %q: %v", path, err)
	}
}

type change struct {
	cfg  *config.Config
	diff config.ConfigDiff
}

func newTestWatcher(t *testing.T) (*config.Watcher, string, *[]change) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherValidYAML, time.Unix(1_700_000_000, 0))

	var changes []change
	w, err := config.NewWatcher(path, func(cfg *config.Config, d config.ConfigDiff) {
		changes = append(changes, change{cfg, d})
	})
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	return w, path, &changes
}

func TestWatcher_InitialLoad(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatcher(t)
	if got := w.Current().Conversation.Voice; got != "Zephyr" {
		t.Errorf("Voice = %q", got)
	}
}

func TestWatcher_InitialLoadInvalid(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	writeFile(t, path, watcherInvalidYAML, time.Now())
	if _, err := config.NewWatcher(path, nil); err == nil {
		t.Fatal("expected error for invalid initial config")
	}
}

func TestWatcher_DetectsChange(t *testing.T) {
	t.Parallel()

	w, path, changes := newTestWatcher(t)
	writeFile(t, path, watcherUpdatedYAML, time.Unix(1_700_000_100, 0))
	w.Check()

	if len(*changes) != 1 {
		t.Fatalf("got %d change callbacks, want 1", len(*changes))
	}
	c := (*changes)[0]
	if c.cfg.Conversation.Voice != "Aoede" || !c.diff.VoiceChanged || !c.diff.LogLevelChanged {
		t.Errorf("change = %+v", c.diff)
	}
	if w.Current() != c.cfg {
		t.Error("Current() not updated")
	}
}

func TestWatcher_IgnoresTouchAndInvalid(t *testing.T) {
	t.Parallel()

	w, path, changes := newTestWatcher(t)
	before := w.Current()

	// Same content, new mtime.
	writeFile(t, path, watcherValidYAML, time.Unix(1_700_000_200, 0))
	w.Check()

	writeFile(t, path, watcherInvalidYAML, time.Unix(1_700_000_300, 0))
	w.Check()

	if len(*changes) != 0 {
		t.Errorf("got %d change callbacks, want 0", len(*changes))
	}
	if w.Current() != before {
		t.Error("Current() replaced by an invalid or identical config")
	}
}

func TestWatcher_RunStopsOnCancel(t *testing.T) {
	t.Parallel()

	w, _, _ := newTestWatcher(t)
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- w.Run(ctx) }()
	cancel()

	select {
	case err := <-errc:
		if !errors.Is(err, context.Canceled) {
			t.Errorf("Run = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
