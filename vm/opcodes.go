package vm

import "fmt"

// Opcode identifies an instruction. In code an instruction is an Opcode term
// followed by Arity operand terms.
type Opcode uint16

const (
	OpIntCodeEnd Opcode = iota

	// Stack frames and heap checks
	OpAllocate
	OpAllocateZero
	OpAllocateHeap
	OpAllocateHeapZero
	OpDeallocate
	OpTrim
	OpTestHeap
	OpInit

	// Data movement and construction
	OpMove
	OpPutList
	OpPutTuple
	OpPut
	OpGetList
	OpGetTupleElement
	OpMakeFun

	// Control flow
	OpJump
	OpCall
	OpCallOnly
	OpCallLast
	OpCallExt
	OpCallExtOnly
	OpCallExtLast
	OpCallFun
	OpReturn

	// Tests
	OpIsEqExact
	OpIsLt
	OpIsGe

	// Messages
	OpSend
	OpLoopRec
	OpLoopRecEnd
	OpRemoveMessage
	OpWait

	// Exceptions
	OpTry
	OpTryEnd
	OpTryCase

	numOpcodes
)

type opInfo struct {
	name  string
	arity int
}

var opTable = [numOpcodes]opInfo{
	OpIntCodeEnd:       {"int_code_end", 0},
	OpAllocate:         {"allocate", 2},
	OpAllocateZero:     {"allocate_zero", 2},
	OpAllocateHeap:     {"allocate_heap", 3},
	OpAllocateHeapZero: {"allocate_heap_zero", 3},
	OpDeallocate:       {"deallocate", 1},
	OpTrim:             {"trim", 2},
	OpTestHeap:         {"test_heap", 2},
	OpInit:             {"init", 1},
	OpMove:             {"move", 2},
	OpPutList:          {"put_list", 3},
	OpPutTuple:         {"put_tuple", 2},
	OpPut:              {"put", 1},
	OpGetList:          {"get_list", 3},
	OpGetTupleElement:  {"get_tuple_element", 3},
	OpMakeFun:          {"make_fun", 2},
	OpJump:             {"jump", 1},
	OpCall:             {"call", 2},
	OpCallOnly:         {"call_only", 2},
	OpCallLast:         {"call_last", 3},
	OpCallExt:          {"call_ext", 3},
	OpCallExtOnly:      {"call_ext_only", 3},
	OpCallExtLast:      {"call_ext_last", 4},
	OpCallFun:          {"call_fun", 1},
	OpReturn:           {"return", 0},
	OpIsEqExact:        {"is_eq_exact", 3},
	OpIsLt:             {"is_lt", 3},
	OpIsGe:             {"is_ge", 3},
	OpSend:             {"send", 0},
	OpLoopRec:          {"loop_rec", 2},
	OpLoopRecEnd:       {"loop_rec_end", 1},
	OpRemoveMessage:    {"remove_message", 0},
	OpWait:             {"wait", 1},
	OpTry:              {"try", 2},
	OpTryEnd:           {"try_end", 1},
	OpTryCase:          {"try_case", 1},
}

var opByName = func() map[string]Opcode {
	m := make(map[string]Opcode, numOpcodes)
	for op, info := range opTable {
		m[info.name] = Opcode(op)
	}
	return m
}()

func (op Opcode) String() string {
	if op < numOpcodes {
		return opTable[op].name
	}
	return fmt.Sprintf("opcode(%d)", uint16(op))
}

// Arity returns the number of operands that follow the opcode.
func (op Opcode) Arity() int {
	if op >= numOpcodes {
		return -1
	}
	return opTable[op].arity
}

// Valid reports whether op is a known opcode.
func (op Opcode) Valid() bool {
	return op < numOpcodes
}

// OpcodeByName looks an opcode up by its assembly name.
func OpcodeByName(name string) (Opcode, bool) {
	op, ok := opByName[name]
	return op, ok
}

// Instr assembles one instruction into code words.
func Instr(op Opcode, args ...Term) []Term {
	if len(args) != op.Arity() {
		panic(fmt.Sprintf("Instr: %s takes %d operands, got %d", op, op.Arity(), len(args)))
	}
	return append([]Term{MakeOpcode(op)}, args...)
}
