package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/chazu/beamrt/config"
	"github.com/chazu/beamrt/loader"
	"github.com/chazu/beamrt/vm"
	"github.com/chazu/beamrt/vm/crashdump"
)

var log = commonlog.GetLogger("beamrt")

func runCommand(args []string) (int, error) {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "", "Configuration file (default: beamrt.toml in this or a parent directory)")
	module := fs.String("m", "", "Entry module (overrides [entry] module)")
	function := fs.String("f", "", "Entry function (overrides [entry] function)")
	workers := fs.Int("workers", 0, "Scheduler workers (overrides [scheduler] workers)")
	watchFlag := fs.Bool("watch", false, "Reload changed module files while running")
	verbose := fs.Int("v", 0, "Log verbosity added to [log] verbosity")
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: beamrt run [options] [args...]\n\n")
		fmt.Fprintf(os.Stderr, "Arguments are immediates: integers, atoms, [] or {}.\n")
		fmt.Fprintf(os.Stderr, "The exit status is 0 when the entry process exits normally.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
	}
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return 0, err
	}
	if *module != "" {
		cfg.Entry.Module = *module
	}
	if *function != "" {
		cfg.Entry.Function = *function
	}
	if *workers > 0 {
		cfg.Scheduler.Workers = *workers
	}
	if *watchFlag {
		cfg.Code.Watch = true
	}
	if cfg.Entry.Module == "" {
		return 0, fmt.Errorf("no entry module: set [entry] module or pass -m")
	}

	var logPath *string
	if cfg.Log.Path != "" {
		logPath = &cfg.Log.Path
	}
	commonlog.Configure(cfg.Log.Verbosity+*verbose, logPath)

	opts := cfg.VMOptions()
	paths := cfg.CodePaths()
	opts.Source = &loader.DirSource{Paths: paths}
	v := vm.New(opts)
	defer v.Shutdown()

	if dir := cfg.CrashDir(); dir != "" {
		var ix *crashdump.Index
		if path := cfg.CrashIndex(); path != "" {
			if ix, err = crashdump.OpenIndex(path); err != nil {
				return 0, err
			}
			defer ix.Close()
		}
		if _, err := crashdump.Install(v, dir, ix); err != nil {
			return 0, err
		}
	}

	entryArgs, err := parseArgs(v.Atoms(), fs.Args())
	if err != nil {
		return 0, err
	}
	mfa := v.Atoms().MFA(cfg.Entry.Module, cfg.Entry.Function, len(entryArgs))
	sub := v.SubscribeExits()
	defer sub.Close()
	entry, err := v.Spawn(mfa, entryArgs, nil, vm.SpawnOpts{Priority: cfg.Priority()})
	if err != nil {
		return 0, err
	}
	log.Infof("started %s as %s", mfa.Format(v.Atoms()), entry.Pid())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	g, gctx := errgroup.WithContext(ctx)
	runCtx, cancelWatch := context.WithCancel(gctx)
	if cfg.Code.Watch {
		w, err := loader.NewWatcher(v.Code(), v.Atoms(), paths)
		if err != nil {
			cancelWatch()
			return 0, err
		}
		g.Go(func() error {
			return watch(runCtx, w)
		})
	}
	g.Go(func() error {
		defer cancelWatch()
		return v.Run(gctx)
	})
	if err := g.Wait(); err != nil {
		return 0, err
	}

	code := 1
	for {
		ev, ok := sub.Poll()
		if !ok {
			break
		}
		if ev.Pid != entry.Pid() {
			continue
		}
		fmt.Println(vm.Format(ev.Mem, v.Atoms(), ev.Reason))
		if !ev.Crashed {
			code = 0
		}
	}
	s := v.Stats()
	log.Infof("spawned %d, exited %d, crashed %d, modules %d", s.Spawned, s.Exited, s.Crashed, s.Modules)
	return code, nil
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.FindAndLoad(wd)
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

// parseArgs turns command line words into immediate terms.
func parseArgs(atoms *vm.AtomTable, words []string) ([]vm.Term, error) {
	var out []vm.Term
	for _, w := range words {
		o, err := loader.ParseOperand(w)
		if err != nil {
			return nil, fmt.Errorf("argument %q: %w", w, err)
		}
		switch o.Kind {
		case loader.OperandInt:
			t, ok := vm.TryMakeSmall(o.Int)
			if !ok {
				return nil, fmt.Errorf("argument %s does not fit a small integer", w)
			}
			out = append(out, t)
		case loader.OperandAtom:
			out = append(out, atoms.Intern(o.Name))
		case loader.OperandNil:
			out = append(out, vm.Nil)
		case loader.OperandEmptyTuple:
			out = append(out, vm.EmptyTuple)
		default:
			return nil, fmt.Errorf("argument %q is not an immediate", w)
		}
	}
	return out, nil
}

// watch runs w until ctx ends. Cancellation is the normal way out; any other
// failure stops the VM.
func watch(ctx context.Context, w *loader.Watcher) error {
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watch: %w", err)
	}
	return nil
}
