package loader

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/chazu/beamrt/vm"
)

// Reloaded reports the outcome of one hot reload.
type Reloaded struct {
	Path   string
	Module string
	Err    error
}

// Watcher reloads module files into a code server when they change on
// disk. Processes already running old code keep it; new calls pick up the
// new version.
type Watcher struct {
	cs      *vm.CodeServer
	atoms   *vm.AtomTable
	watcher *fsnotify.Watcher

	// OnReload, when set, is called after every reload attempt from the
	// goroutine running Run.
	OnReload func(Reloaded)
}

// NewWatcher watches every directory in dirs.
func NewWatcher(cs *vm.CodeServer, atoms *vm.AtomTable, dirs []string) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if err := fw.Add(dir); err != nil {
			fw.Close()
			return nil, fmt.Errorf("loader: watch %s: %w", dir, err)
		}
	}
	return &Watcher{cs: cs, atoms: atoms, watcher: fw}, nil
}

// Run handles file events until ctx is done or the watcher is closed.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 || !IsModuleFile(event.Name) {
				continue
			}
			w.reload(filepath.Clean(event.Name))
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			log.Errorf("watch: %s", err)
		}
	}
}

// Close stops the watcher; Run returns.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}

func (w *Watcher) reload(path string) {
	r := Reloaded{Path: path}
	m, err := LoadFile(w.cs, w.atoms, path)
	if err != nil {
		r.Err = err
		log.Warningf("reload %s: %s", path, err)
	} else {
		r.Module, _ = w.atoms.ToStr(m.Name)
	}
	if w.OnReload != nil {
		w.OnReload(r)
	}
}
