package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/natefinch/atomic"
)

func TestWatchConfigRequestsRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte(`{}`), 0o644); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	actionChan := make(chan string, 1)
	if err := watchConfig(ctx, path, actionChan, discardLogger()); err != nil {
		t.Fatalf("watchConfig failed: %v", err)
	}

	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case action := <-actionChan:
		t.Fatalf("unexpected action %q for an unrelated file", action)
	case <-time.After(2 * configSettleDelay):
	}

	// Replace the file the same way ConfigManager.Update does.
	if err := atomic.WriteFile(path, bytes.NewReader([]byte(`{"model_config":{"default_order":3}}`))); err != nil {
		t.Fatal(err)
	}
	select {
	case action := <-actionChan:
		if action != actionRestart {
			t.Errorf("expected %q, got %q", actionRestart, action)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("config change did not request a restart")
	}
}

func TestWatchConfigStopsWithContext(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	ctx, cancel := context.WithCancel(context.Background())
	actionChan := make(chan string, 1)
	if err := watchConfig(ctx, path, actionChan, discardLogger()); err != nil {
		t.Fatalf("watchConfig failed: %v", err)
	}
	cancel()
	// Give the watcher goroutine time to observe the cancellation.
	time.Sleep(50 * time.Millisecond)

	if err := os.WriteFile(path, []byte("server_config: {}\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case action := <-actionChan:
		t.Fatalf("stopped watcher still sent %q", action)
	case <-time.After(2 * configSettleDelay):
	}
}

func TestWatchConfigMissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.json")
	if err := watchConfig(context.Background(), path, make(chan string, 1), discardLogger()); err == nil {
		t.Error("expected an error when the config directory does not exist")
	}
}
