// Package crashdump writes a post-mortem record of every process that
// terminates abnormally.
package crashdump

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"
	"github.com/tliron/commonlog"

	"github.com/chazu/beamrt/vm"
)

var log = commonlog.GetLogger("beamrt.crashdump")

// Ext is the file extension of dump files.
const Ext = ".crash"

// Dump is the state of a failed process at the moment it terminated.
// Terms are rendered as text so a dump can be read without the VM.
type Dump struct {
	ID    string    `cbor:"1,keyasint"`
	Time  time.Time `cbor:"2,keyasint"`
	Pid   string    `cbor:"3,keyasint"`
	Entry string    `cbor:"4,keyasint"`

	Kind   string `cbor:"5,keyasint,omitempty"`
	Reason string `cbor:"6,keyasint"`
	Site   string `cbor:"7,keyasint,omitempty"`

	IP        string   `cbor:"8,keyasint"`
	CP        string   `cbor:"9,keyasint"`
	X         []string `cbor:"10,keyasint,omitempty"`
	Stack     []string `cbor:"11,keyasint,omitempty"`
	HeapUsed  int      `cbor:"12,keyasint"`
	StackUsed int      `cbor:"13,keyasint"`
	Capacity  int      `cbor:"14,keyasint"`
	Messages  int      `cbor:"15,keyasint"`
	Slices    int      `cbor:"16,keyasint"`

	// Objects counts heap objects by kind: box types and "Cons".
	Objects map[string]int `cbor:"17,keyasint,omitempty"`
}

var encMode cbor.EncMode

func init() {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(fmt.Sprintf("crashdump: failed to create CBOR enc mode: %v", err))
	}
	encMode = em
}

// Capture records p. Call it only from a vm.CrashHandler, while the
// process heap is still alive.
func Capture(atoms vm.AtomResolver, p *vm.Process, reason vm.Term, exc *vm.Exception) *Dump {
	h := p.Heap()
	ctx := p.Context()
	d := &Dump{
		ID:        uuid.NewString(),
		Time:      time.Now().UTC(),
		Pid:       p.Pid().String(),
		Entry:     p.Entry().Format(atoms),
		Reason:    vm.Format(h, atoms, reason),
		IP:        ctx.IP.String(),
		CP:        ctx.CP.String(),
		HeapUsed:  h.HeapUsed(),
		StackUsed: h.StackUsed(),
		Capacity:  h.Capacity(),
		Messages:  p.Mailbox().Len(),
		Slices:    p.Slices(),
	}
	if exc != nil {
		d.Kind = exc.Kind.String()
		d.Site = exc.Site
	}
	// Registers and stack slots may point at dead data; print them raw.
	for _, x := range ctx.X[:ctx.Live] {
		d.X = append(d.X, x.String())
	}
	for _, w := range h.StackWords() {
		d.Stack = append(d.Stack, w.String())
	}
	d.Objects = countObjects(h)
	return d
}

// countObjects tallies the heap by object kind. Words outside a boxed
// object are cons cell halves.
func countObjects(h *vm.Heap) map[string]int {
	counts := make(map[string]int)
	halves := 0
	h.Walk(func(_ vm.Addr, w vm.Term) error {
		if w.IsHeader() {
			counts[w.HeaderBoxType().String()]++
		} else {
			halves++
		}
		return nil
	})
	if halves > 0 {
		counts["Cons"] = halves / 2
	}
	return counts
}

// Marshal encodes d as canonical CBOR.
func Marshal(d *Dump) ([]byte, error) {
	return encMode.Marshal(d)
}

// Unmarshal decodes a dump written by Marshal.
func Unmarshal(data []byte) (*Dump, error) {
	var d Dump
	if err := cbor.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("crashdump: unmarshal: %w", err)
	}
	return &d, nil
}

// ReadFile reads one dump file.
func ReadFile(path string) (*Dump, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Unmarshal(data)
}

// ---------------------------------------------------------------------------
// Writer
// ---------------------------------------------------------------------------

// Writer stores dumps as files named after their id in Dir, and in Index
// when one is set.
type Writer struct {
	Dir   string
	Index *Index
}

// Write stores d and returns the file path.
func (w *Writer) Write(d *Dump) (string, error) {
	data, err := Marshal(d)
	if err != nil {
		return "", err
	}
	path := filepath.Join(w.Dir, d.ID+Ext)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", err
	}
	if w.Index != nil {
		if err := w.Index.Add(d); err != nil {
			return path, err
		}
	}
	return path, nil
}

// Install creates dir and makes v write a dump there for every crash. ix
// may be nil. Write errors are logged and never affect the VM.
func Install(v *vm.VM, dir string, ix *Index) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("crashdump: %w", err)
	}
	w := &Writer{Dir: dir, Index: ix}
	atoms := v.Atoms()
	v.SetCrashHandler(func(p *vm.Process, reason vm.Term, exc *vm.Exception) {
		d := Capture(atoms, p, reason, exc)
		path, err := w.Write(d)
		if err != nil {
			log.Errorf("dump of %s: %s", d.Pid, err)
			return
		}
		log.Noticef("process %s crashed, dump written to %s", d.Pid, path)
	})
	return w, nil
}
