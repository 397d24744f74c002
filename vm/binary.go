package vm

import (
	"encoding/binary"
	"fmt"
)

// Heap binary layout after the header: byte length, then the bytes packed
// little endian into ceil(len/8) words. The byte words are not terms.

// binaryStorageWords returns the payload size of a heap binary of n bytes.
func binaryStorageWords(n int) int {
	return 1 + (n+WordBytes-1)/WordBytes
}

// Binary is a view of a heap binary.
type Binary struct {
	mem  Memory
	addr Addr
	size int
}

// CreateBinary copies data into a new heap binary. Empty data yields the
// empty binary constant.
func CreateBinary(h *Heap, data []byte) (Term, error) {
	if len(data) == 0 {
		return EmptyBinary, nil
	}
	a, err := placeBoxed(h, BoxBinary, binaryStorageWords(len(data)))
	if err != nil {
		return NonValue, err
	}
	h.SetWord(a.Offset(1), MakeSmall(int64(len(data))))
	var buf [WordBytes]byte
	for i := 0; i < len(data); i += WordBytes {
		clear(buf[:])
		copy(buf[:], data[i:])
		h.SetWord(a.Offset(2+i/WordBytes), Term(binary.LittleEndian.Uint64(buf[:])))
	}
	return MakeBoxed(a), nil
}

// BinaryFromTerm returns a view of binary t.
func BinaryFromTerm(mem Memory, t Term) (Binary, error) {
	if t == EmptyBinary {
		return Binary{mem: mem}, nil
	}
	a, _, err := boxedOf(mem, t, BoxBinary, ErrBoxedIsNotABinary)
	if err != nil {
		return Binary{}, err
	}
	return Binary{mem: mem, addr: a, size: int(mem.Word(a.Offset(1)).SmallValue())}, nil
}

// Size returns the length in bytes.
func (b Binary) Size() int {
	return b.size
}

// Bytes returns a copy of the binary's contents.
func (b Binary) Bytes() []byte {
	out := make([]byte, 0, b.size+WordBytes)
	var buf [WordBytes]byte
	for i := 0; i < b.size; i += WordBytes {
		binary.LittleEndian.PutUint64(buf[:], uint64(b.mem.Word(b.addr.Offset(2+i/WordBytes))))
		out = append(out, buf[:]...)
	}
	return out[:b.size]
}

func (b Binary) String() string {
	return fmt.Sprintf("HeapBin(%d bytes)", b.size)
}
