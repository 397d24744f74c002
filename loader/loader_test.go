package loader

import (
	"context"
	"testing"
	"time"

	"github.com/chazu/beamrt/vm"
)

const helloSrc = `
module: hello
exports:
  - {name: main, arity: 0, label: main}
  - {name: greet, arity: 1, label: greet}
code:
  - {label: main, op: allocate, args: [0, 0]}
  - {op: move, args: [world, x0]}
  - {op: call, args: [1, "@greet"]}
  - {op: call_ext_last, args: [1, erlang, exit, 0]}
  - {label: greet, op: test_heap, args: [2, 1]}
  - {op: put_list, args: [x0, [], x0]}
  - {op: return}
`

func mustParse(t *testing.T, src string) *Image {
	t.Helper()
	img, err := ParseAssemblyString(src)
	if err != nil {
		t.Fatal(err)
	}
	return img
}

// runMain spawns module:main/0 and returns the formatted exit reason.
func runMain(t *testing.T, v *vm.VM, module string) string {
	t.Helper()
	sub := v.SubscribeExits()
	defer sub.Close()
	if _, err := v.Spawn(v.Atoms().MFA(module, "main", 0), nil, nil, vm.SpawnOpts{}); err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := v.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	ev, ok := sub.Next(ctx)
	if !ok {
		t.Fatal("no exit event")
	}
	return vm.Format(ev.Mem, v.Atoms(), ev.Reason)
}
