package cmd

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Edelbertschen/taskfuchs-sub003/internal/appstate"
	"github.com/Edelbertschen/taskfuchs-sub003/internal/models"
)

func TestStateWatcherDebouncesBursts(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, appstate.DefaultFile)

	sw, err := newStateWatcher(path, 100*time.Millisecond)
	if err != nil {
		t.Fatalf("newStateWatcher: %v", err)
	}

	var calls atomic.Int32
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- sw.Run(ctx, func() { calls.Add(1) }) }()

	for i := 0; i < 3; i++ {
		state := &models.AppState{Tasks: []models.Task{{ID: "t1", Title: "Buy milk"}}}
		if err := appstate.Save(path, state); err != nil {
			t.Fatalf("Save: %v", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
	// Unrelated files in the same directory are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(20 * time.Millisecond)
	}
	time.Sleep(300 * time.Millisecond)

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("expected one debounced call, got %d", got)
	}
}
