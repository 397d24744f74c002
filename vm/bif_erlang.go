package vm

import "errors"

// ---------------------------------------------------------------------------
// erlang module built-ins
// ---------------------------------------------------------------------------

func (vm *VM) registerErlangBIFs() {
	// Comparison. Only small integers exist, so == and =:= agree.
	vm.RegisterBIF("erlang", "==", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return boolAtom(Compare(p.heap, vm.atoms, args[0], args[1], false) == 0), nil
	})
	vm.RegisterBIF("erlang", "=:=", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return boolAtom(Compare(p.heap, vm.atoms, args[0], args[1], true) == 0), nil
	})
	vm.RegisterBIF("erlang", "/=", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return boolAtom(Compare(p.heap, vm.atoms, args[0], args[1], false) != 0), nil
	})
	vm.RegisterBIF("erlang", "=/=", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return boolAtom(Compare(p.heap, vm.atoms, args[0], args[1], true) != 0), nil
	})
	vm.RegisterBIF("erlang", "<", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return boolAtom(Compare(p.heap, vm.atoms, args[0], args[1], false) < 0), nil
	})

	// Raising
	vm.RegisterBIF("erlang", "error", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		return NonValue, &Exception{Kind: KindError, Reason: args[0], Site: "erlang:error/1"}
	})
	vm.RegisterBIF("erlang", "error", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		// The argument list only feeds the stack trace, which is not kept.
		return NonValue, &Exception{Kind: KindError, Reason: args[0], Site: "erlang:error/2"}
	})
	vm.RegisterBIF("erlang", "exit", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		return NonValue, &Exception{Kind: KindExit, Reason: args[0], Site: "erlang:exit/1"}
	})
	vm.RegisterBIF("erlang", "throw", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		return NonValue, &Exception{Kind: KindThrow, Reason: args[0], Site: "erlang:throw/1"}
	})
	vm.RegisterBIF("erlang", "nif_error", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		return NonValue, &Exception{Kind: KindError, Reason: args[0], Site: "erlang:nif_error/1"}
	})
	vm.RegisterBIF("erlang", "nif_error", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		return NonValue, &Exception{Kind: KindError, Reason: args[0], Site: "erlang:nif_error/2"}
	})

	// Conversion
	vm.RegisterBIF("erlang", "atom_to_list", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		name, err := vm.atoms.ToStr(args[0])
		if err != nil {
			return NonValue, Badarg()
		}
		return StringToList(p.heap, name)
	})
	vm.RegisterBIF("erlang", "atom_to_binary", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		name, err := vm.atoms.ToStr(args[0])
		if err != nil {
			return NonValue, Badarg()
		}
		return CreateBinary(p.heap, []byte(name))
	})
	vm.RegisterBIF("erlang", "binary_to_list", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		b, err := BinaryFromTerm(p.heap, args[0])
		if err != nil {
			return NonValue, Badarg()
		}
		data := b.Bytes()
		elems := make([]Term, len(data))
		for i, c := range data {
			elems[i] = MakeSmall(int64(c))
		}
		return ListFromSlice(p.heap, elems)
	})
	vm.RegisterBIF("erlang", "byte_size", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		b, err := BinaryFromTerm(p.heap, args[0])
		if err != nil {
			return NonValue, Badarg()
		}
		return MakeSmall(int64(b.Size())), nil
	})
	vm.RegisterBIF("erlang", "phash2", 1, func(vm *VM, p *Process, args []Term) (Term, error) {
		h := Hash(p.heap, vm.atoms, args[0]) % phash2Range
		return MakeSmall(int64(h)), nil
	})

	// Funs. The export stays unresolved until it is first called.
	vm.RegisterBIF("erlang", "make_fun", 3, func(vm *VM, p *Process, args []Term) (Term, error) {
		if !args[0].IsAtom() || !args[1].IsAtom() || !args[2].IsSmall() {
			return NonValue, Badarg()
		}
		arity := args[2].SmallValue()
		if arity < 0 || arity >= MaxXRegs {
			return NonValue, Badarg()
		}
		return CreateExport(p.heap, MFArity{M: args[0], F: args[1], Arity: int(arity)}, CodePtr{})
	})

	// Processes
	vm.RegisterBIF("erlang", "self", 0, func(vm *VM, p *Process, args []Term) (Term, error) {
		return p.pid, nil
	})
	vm.RegisterBIF("erlang", "yield", 0, func(vm *VM, p *Process, args []Term) (Term, error) {
		return AtomTrue, errYield
	})
	vm.RegisterBIF("erlang", "spawn", 3, func(vm *VM, p *Process, args []Term) (Term, error) {
		if !args[0].IsAtom() || !args[1].IsAtom() {
			return NonValue, Badarg()
		}
		list, err := ListToSlice(p.heap, args[2])
		if err != nil {
			return NonValue, Badarg()
		}
		if len(list) > MaxXRegs {
			return NonValue, SystemLimit()
		}
		mfa := MFArity{M: args[0], F: args[1], Arity: len(list)}
		child, err := vm.spawn(mfa, list, p.heap, SpawnOpts{Priority: p.priority})
		switch {
		case err == nil:
			return child.pid, nil
		case errors.Is(err, ErrNotFound):
			return NonValue, Raise(KindError, AtomUndef)
		case IsCapacityError(err):
			return NonValue, SystemLimit()
		default:
			return NonValue, Badarg()
		}
	})
	vm.RegisterBIF("erlang", "exit", 2, func(vm *VM, p *Process, args []Term) (Term, error) {
		if !args[0].IsLocalPid() {
			return NonValue, Badarg()
		}
		switch {
		case args[1] == AtomNormal:
			// No links, so a normal exit signal never has an effect.
		case args[0] == p.pid:
			return NonValue, &Exception{Kind: KindExit, Reason: args[1], Site: "erlang:exit/2"}
		default:
			vm.Kill(args[0])
		}
		return AtomTrue, nil
	})
}
