// Package vm implements the beamrt virtual machine core.
//
// This package contains:
//   - Tagged-word term representation
//   - Per-process heap with a downward growing stack
//   - Boxed tuples, closures, exports and binaries
//   - Stack-frame and dispatch opcodes
//   - Processes, mailboxes and the priority scheduler
package vm
