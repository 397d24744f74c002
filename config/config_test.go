package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/chazu/beamrt/vm"
)

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[entry]
module = "hello"
function = "start"
priority = "high"

[heap]
default-words = 1024
max-words = 65536

[scheduler]
workers = 4
reductions = 500

[code]
paths = ["ebin", "/opt/lib"]
watch = true

[log]
verbosity = 2
path = "beamrt.log"

[crash]
dir = "dumps"
index = "dumps/index.db"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Entry.Module != "hello" || c.Entry.Function != "start" {
		t.Errorf("entry = %s:%s, want hello:start", c.Entry.Module, c.Entry.Function)
	}
	if c.Priority() != vm.PriorityHigh {
		t.Errorf("priority = %s, want high", c.Priority())
	}
	if !c.Code.Watch {
		t.Error("code watch = false, want true")
	}
	if c.Log.Verbosity != 2 || c.Log.Path != "beamrt.log" {
		t.Errorf("log = %+v", c.Log)
	}

	opts := c.VMOptions()
	want := vm.Options{HeapWords: 1024, MaxHeapWords: 65536, Reductions: 500, Workers: 4}
	if opts != want {
		t.Errorf("VMOptions() = %+v, want %+v", opts, want)
	}

	paths := c.CodePaths()
	if len(paths) != 2 || paths[0] != filepath.Join(c.Dir, "ebin") || paths[1] != "/opt/lib" {
		t.Errorf("CodePaths() = %v", paths)
	}
	if c.CrashDir() != filepath.Join(c.Dir, "dumps") {
		t.Errorf("CrashDir() = %q", c.CrashDir())
	}
	if c.CrashIndex() != filepath.Join(c.Dir, "dumps", "index.db") {
		t.Errorf("CrashIndex() = %q", c.CrashIndex())
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[entry]
module = "minimal"
`)

	c, err := Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if c.Entry.Function != "main" {
		t.Errorf("default function = %q, want main", c.Entry.Function)
	}
	if c.Heap.DefaultWords != vm.DefaultProcHeap {
		t.Errorf("default heap = %d, want %d", c.Heap.DefaultWords, vm.DefaultProcHeap)
	}
	if c.Scheduler.Reductions != vm.DefaultReductions {
		t.Errorf("default reductions = %d", c.Scheduler.Reductions)
	}
	if c.Scheduler.Workers <= 0 {
		t.Errorf("default workers = %d", c.Scheduler.Workers)
	}
	if len(c.Code.Paths) != 1 || c.Code.Paths[0] != "." {
		t.Errorf("default code paths = %v, want [.]", c.Code.Paths)
	}
	if c.CrashDir() != "" {
		t.Errorf("crash dumps on by default: %q", c.CrashDir())
	}
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	tests := []struct {
		content string
		want    string
	}{
		{"[entry]\npriority = \"urgent\"\n", "priority"},
		{"[heap]\ndefault-words = 4096\nmax-words = 100\n", "max-words"},
		{"[heap\n", "parse error"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeConfig(t, dir, tt.content)
		_, err := Load(dir)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("Load(%q) = %v, want error mentioning %q", tt.content, err, tt.want)
		}
	}
}

func TestFindAndLoad(t *testing.T) {
	dir := t.TempDir()
	subDir := filepath.Join(dir, "a", "b", "c")
	if err := os.MkdirAll(subDir, 0755); err != nil {
		t.Fatal(err)
	}
	writeConfig(t, dir, "[entry]\nmodule = \"found\"\n")

	c, err := FindAndLoad(subDir)
	if err != nil {
		t.Fatalf("FindAndLoad failed: %v", err)
	}
	if c == nil {
		t.Fatal("FindAndLoad returned nil")
	}
	if c.Entry.Module != "found" {
		t.Errorf("entry module = %q, want found", c.Entry.Module)
	}
}

func TestFindAndLoadNotFound(t *testing.T) {
	c, err := FindAndLoad(t.TempDir())
	if err != nil {
		t.Fatalf("FindAndLoad error: %v", err)
	}
	if c != nil {
		t.Error("expected nil config when no beamrt.toml exists")
	}
}

func TestLoadFileMissing(t *testing.T) {
	if _, err := LoadFile(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Error("LoadFile of a missing file succeeded")
	}
}

func TestDefault(t *testing.T) {
	c := Default()
	if err := c.Validate(); err != nil {
		t.Errorf("Default().Validate() = %v", err)
	}
	if c.CodePaths()[0] != "." {
		t.Errorf("Default code path = %v", c.CodePaths())
	}
}
