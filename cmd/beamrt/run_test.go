package main

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/chazu/beamrt/loader"
	"github.com/chazu/beamrt/vm"
)

func newWatcher(t *testing.T) *loader.Watcher {
	t.Helper()
	v := vm.New(vm.Options{})
	w, err := loader.NewWatcher(v.Code(), v.Atoms(), []string{t.TempDir()})
	if err != nil {
		t.Fatal(err)
	}
	return w
}

func TestWatchIgnoresCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := watch(ctx, newWatcher(t)); err != nil {
		t.Errorf("watch after cancel = %v", err)
	}
}

func TestWatchReportsOtherErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
	defer cancel()
	err := watch(ctx, newWatcher(t))
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("watch after deadline = %v, want DeadlineExceeded", err)
	}
}
