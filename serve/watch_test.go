package main

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"
)

func TestWatchConfigReportsChanges(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")

	var calls atomic.Int64
	w, err := WatchConfig(path, 20*time.Millisecond, func() { calls.Add(1) })
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	// Other files in the directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Fatalf("unrelated file triggered %d reloads", n)
	}

	if err := os.WriteFile(path, []byte("[service]\nmodel = \"a\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	waitFor(t, "reload", func() bool { return calls.Load() >= 1 })

	// A burst of writes collapses into few reloads.
	time.Sleep(100 * time.Millisecond)
	before := calls.Load()
	for i := 0; i < 5; i++ {
		os.WriteFile(path, []byte("[service]\nmodel = \"b\"\n"), 0o644)
	}
	waitFor(t, "second reload", func() bool { return calls.Load() > before })
	time.Sleep(100 * time.Millisecond)
	if n := calls.Load() - before; n > 2 {
		t.Errorf("expected debounced reloads, got %d", n)
	}
}

func TestWatchConfigMissingDirectory(t *testing.T) {
	_, err := WatchConfig(filepath.Join(t.TempDir(), "absent", "config.toml"), time.Millisecond, func() {})
	if err == nil {
		t.Error("expected an error for a missing directory")
	}
}

func TestWatchedReloadUpdatesSessions(t *testing.T) {
	stub := &stubCompleter{}
	srv := newTestServerWithConfig(t, stubFactory(stub), "[service]\nhost = \"http://a:11434\"\nmodel = \"one\"\n")
	sendRequest(t, srv.sockPath, completionRequest(1, "s"))

	w, err := WatchConfig(srv.configPath, 20*time.Millisecond, srv.reloadConfig)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Close()

	writeConfig(t, srv.configPath, "[service]\nhost = \"http://b:11434\"\nmodel = \"two\"\n")
	waitFor(t, "config applied", func() bool { return stub.Config().Model == "two" })
}
