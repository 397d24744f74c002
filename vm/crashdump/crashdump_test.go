package crashdump

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/google/uuid"

	"github.com/chazu/beamrt/loader"
	"github.com/chazu/beamrt/vm"
)

const crashSrc = `
module: crash
exports:
  - {name: main, arity: 0, label: main}
  - {name: quiet, arity: 0, label: quiet}
code:
  - {label: main, op: allocate, args: [1, 0]}
  - {op: move, args: [boom, x0]}
  - {op: call_ext_only, args: [1, erlang, throw]}
  - {label: quiet, op: return}
`

func newVM(t *testing.T) *vm.VM {
	t.Helper()
	v := vm.New(vm.Options{})
	img, err := loader.ParseAssemblyString(crashSrc)
	if err != nil {
		t.Fatal(err)
	}
	m, err := img.Link(v.Atoms())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Load(m); err != nil {
		t.Fatal(err)
	}
	return v
}

func run(t *testing.T, v *vm.VM, fn string) {
	t.Helper()
	if _, err := v.Spawn(v.Atoms().MFA("crash", fn, 0), nil, nil, vm.SpawnOpts{}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Run(ctx); err != nil {
		t.Fatal(err)
	}
}

func TestInstallWritesDump(t *testing.T) {
	v := newVM(t)
	dir := filepath.Join(t.TempDir(), "dumps")
	if _, err := Install(v, dir, nil); err != nil {
		t.Fatal(err)
	}
	run(t, v, "quiet")
	run(t, v, "main")

	files, err := filepath.Glob(filepath.Join(dir, "*"+Ext))
	if err != nil || len(files) != 1 {
		t.Fatalf("dump files = %v, %v", files, err)
	}
	d, err := ReadFile(files[0])
	if err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(d.ID); err != nil {
		t.Errorf("dump id %q: %v", d.ID, err)
	}
	if filepath.Base(files[0]) != d.ID+Ext {
		t.Errorf("file %s does not match id %s", files[0], d.ID)
	}
	if d.Entry != "crash:main/0" || d.Kind != "throw" || d.Reason != "{'nocatch', 'boom'}" {
		t.Errorf("dump = %s", spew.Sdump(d))
	}
	// The frame allocated by main is still on the stack: one y slot and the CP.
	if d.StackUsed != 2 || len(d.Stack) != 2 {
		t.Errorf("stack = %d words %v", d.StackUsed, d.Stack)
	}
	// The only heap object is the {nocatch, boom} exit reason.
	if len(d.Objects) != 1 || d.Objects["Tuple"] != 1 {
		t.Errorf("objects = %v", d.Objects)
	}
}

func TestMarshalRoundTrip(t *testing.T) {
	d := &Dump{
		ID:     uuid.NewString(),
		Time:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		Pid:    "<0.1>",
		Entry:  "m:f/0",
		Reason: "'badarg'",
		X:      []string{"1", "'ok'"},
	}
	data, err := Marshal(d)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Unmarshal(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != d.ID || !got.Time.Equal(d.Time) || got.Reason != d.Reason || len(got.X) != 2 {
		t.Errorf("round trip:\n%s\nwant\n%s", spew.Sdump(got), spew.Sdump(d))
	}
	if _, err := Unmarshal([]byte("not cbor")); err == nil {
		t.Error("unmarshalled garbage")
	}
}

func TestWriteFailureKeepsVMRunning(t *testing.T) {
	v := newVM(t)
	dir := t.TempDir()
	if _, err := Install(v, dir, nil); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(dir); err != nil {
		t.Fatal(err)
	}
	run(t, v, "main")
	if s := v.Stats(); s.Crashed != 1 || s.Live != 0 {
		t.Errorf("stats = %+v", s)
	}
}

func TestIndex(t *testing.T) {
	ix, err := OpenIndex(filepath.Join(t.TempDir(), "dumps.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer ix.Close()

	v := newVM(t)
	w, err := Install(v, t.TempDir(), ix)
	if err != nil {
		t.Fatal(err)
	}
	run(t, v, "main")
	run(t, v, "main")

	all, err := ix.List("")
	if err != nil || len(all) != 2 {
		t.Fatalf("List() = %d dumps, %v", len(all), err)
	}
	if all[0].ID == all[1].ID || all[1].Time.Before(all[0].Time) {
		t.Errorf("dumps out of order: %s", spew.Sdump(all))
	}
	if got, _ := ix.List("crash:quiet/0"); len(got) != 0 {
		t.Errorf("List(crash:quiet/0) = %d dumps", len(got))
	}
	if got, _ := ix.List("crash:main/0"); len(got) != 2 {
		t.Errorf("List(crash:main/0) = %d dumps", len(got))
	}

	d, err := ix.Get(all[0].ID)
	if err != nil || d.Reason != "{'nocatch', 'boom'}" {
		t.Errorf("Get = %v, %v", d, err)
	}
	if _, err := ix.Get("nope"); !errors.Is(err, ErrDumpNotFound) {
		t.Errorf("Get(nope) = %v", err)
	}

	if _, err := w.Write(d); err != nil {
		t.Errorf("rewriting a dump: %v", err)
	}
	if again, _ := ix.List(""); len(again) != 2 {
		t.Errorf("rewrite added a row: %d dumps", len(again))
	}
}
