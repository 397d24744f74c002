// Package config handles beamrt.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/BurntSushi/toml"

	"github.com/chazu/beamrt/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "beamrt.toml"

// Config represents a beamrt.toml file.
type Config struct {
	Entry     Entry     `toml:"entry"`
	Heap      Heap      `toml:"heap"`
	Scheduler Scheduler `toml:"scheduler"`
	Code      Code      `toml:"code"`
	Log       Log       `toml:"log"`
	Crash     Crash     `toml:"crash"`

	// Dir is the directory containing the file (set at load time).
	Dir string `toml:"-"`
}

// Entry names the process started by `beamrt run`.
type Entry struct {
	Module   string `toml:"module"`
	Function string `toml:"function"`
	Priority string `toml:"priority"`
}

// Heap sizes process arenas, in words.
type Heap struct {
	DefaultWords int `toml:"default-words"`
	MaxWords     int `toml:"max-words"`
}

// Scheduler configures the worker pool.
type Scheduler struct {
	Workers    int `toml:"workers"`
	Reductions int `toml:"reductions"`
}

// Code configures where modules are loaded from.
type Code struct {
	Paths []string `toml:"paths"`
	Watch bool     `toml:"watch"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Crash configures post-mortem dumps. An empty Dir disables them; Index
// names an optional SQLite database that also records every dump.
type Crash struct {
	Dir   string `toml:"dir"`
	Index string `toml:"index"`
}

// Default returns the configuration used when no file is found.
func Default() *Config {
	c := &Config{}
	c.applyDefaults()
	return c
}

// Load parses beamrt.toml from the given directory.
func Load(dir string) (*Config, error) {
	return LoadFile(filepath.Join(dir, FileName))
}

// LoadFile parses the configuration file at path.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// FindAndLoad walks up from startDir to find a beamrt.toml file,
// then loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

func (c *Config) applyDefaults() {
	if c.Entry.Function == "" {
		c.Entry.Function = "main"
	}
	if c.Entry.Priority == "" {
		c.Entry.Priority = vm.PriorityNormal.String()
	}
	if c.Heap.DefaultWords <= 0 {
		c.Heap.DefaultWords = vm.DefaultProcHeap
	}
	if c.Scheduler.Workers <= 0 {
		c.Scheduler.Workers = runtime.GOMAXPROCS(0)
	}
	if c.Scheduler.Reductions <= 0 {
		c.Scheduler.Reductions = vm.DefaultReductions
	}
	if len(c.Code.Paths) == 0 {
		c.Code.Paths = []string{"."}
	}
}

// Validate reports settings that cannot be used together.
func (c *Config) Validate() error {
	if _, err := vm.ParsePriority(c.Entry.Priority); err != nil {
		return fmt.Errorf("entry: %w", err)
	}
	if c.Heap.MaxWords > 0 && c.Heap.MaxWords < c.Heap.DefaultWords {
		return fmt.Errorf("heap: max-words %d is below default-words %d", c.Heap.MaxWords, c.Heap.DefaultWords)
	}
	return nil
}

// CodePaths returns absolute paths for the configured code directories.
func (c *Config) CodePaths() []string {
	var paths []string
	for _, p := range c.Code.Paths {
		paths = append(paths, c.resolve(p))
	}
	return paths
}

// CrashDir returns the absolute dump directory, empty when dumps are off.
func (c *Config) CrashDir() string {
	if c.Crash.Dir == "" {
		return ""
	}
	return c.resolve(c.Crash.Dir)
}

// CrashIndex returns the absolute index database path, empty when unset
// or when dumps are off.
func (c *Config) CrashIndex() string {
	if c.Crash.Dir == "" || c.Crash.Index == "" {
		return ""
	}
	return c.resolve(c.Crash.Index)
}

func (c *Config) resolve(p string) string {
	if filepath.IsAbs(p) || c.Dir == "" {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Priority returns the entry process priority.
func (c *Config) Priority() vm.Priority {
	p, err := vm.ParsePriority(c.Entry.Priority)
	if err != nil {
		return vm.PriorityNormal
	}
	return p
}

// VMOptions converts the file into VM options. The module source is left
// for the caller to set.
func (c *Config) VMOptions() vm.Options {
	return vm.Options{
		HeapWords:    c.Heap.DefaultWords,
		MaxHeapWords: c.Heap.MaxWords,
		Reductions:   c.Scheduler.Reductions,
		Workers:      c.Scheduler.Workers,
	}
}
