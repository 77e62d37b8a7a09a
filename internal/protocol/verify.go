package protocol

import (
	"encoding/binary"
	"fmt"
)

const (
	// maxDepth bounds table nesting (envelope -> message -> ...).
	maxDepth = 16
	// maxTables bounds the number of tables visited in one buffer.
	maxTables = 4096
	// maxVectorLen bounds string vector lengths.
	maxVectorLen = 1 << 16
)

// verifier checks FlatBuffers offsets against the buffer before the
// flatbuffers accessors dereference them. Those accessors slice the buffer
// without bounds checks and would panic on corrupt input.
type verifier struct {
	buf    []byte
	tables int
}

func newVerifier(buf []byte) *verifier {
	return &verifier{buf: buf}
}

func (v *verifier) inRange(pos, size uint64) bool {
	return pos+size <= uint64(len(v.buf))
}

func (v *verifier) u32(pos uint64) uint32 {
	return binary.LittleEndian.Uint32(v.buf[pos:])
}

func (v *verifier) u16(pos uint64) uint16 {
	return binary.LittleEndian.Uint16(v.buf[pos:])
}

// root returns the position of the root table.
func (v *verifier) root() (uint32, error) {
	if !v.inRange(0, 4) {
		return 0, fmt.Errorf("buffer too short for root offset (%d bytes)", len(v.buf))
	}
	pos := uint64(v.u32(0))
	if !v.inRange(pos, 4) {
		return 0, fmt.Errorf("root offset %d out of range", pos)
	}
	return uint32(pos), nil
}

// table validates the table at pos and its vtable, returning the vtable
// length and the table's inline size.
func (v *verifier) table(pos uint32, depth int) (vtLen, tableSize uint16, err error) {
	if depth > maxDepth {
		return 0, 0, fmt.Errorf("tables nested deeper than %d", maxDepth)
	}
	v.tables++
	if v.tables > maxTables {
		return 0, 0, fmt.Errorf("buffer holds more than %d tables", maxTables)
	}

	p := uint64(pos)
	if !v.inRange(p, 4) {
		return 0, 0, fmt.Errorf("table at %d out of range", pos)
	}

	soffset := int64(int32(v.u32(p)))
	vt := int64(p) - soffset
	if vt < 0 || !v.inRange(uint64(vt), 4) {
		return 0, 0, fmt.Errorf("vtable for table at %d out of range", pos)
	}

	vtLen = v.u16(uint64(vt))
	tableSize = v.u16(uint64(vt) + 2)
	if vtLen < 4 || vtLen%2 != 0 || !v.inRange(uint64(vt), uint64(vtLen)) {
		return 0, 0, fmt.Errorf("vtable at %d has invalid length %d", vt, vtLen)
	}
	if tableSize < 4 || !v.inRange(p, uint64(tableSize)) {
		return 0, 0, fmt.Errorf("table at %d has invalid size %d", pos, tableSize)
	}
	return vtLen, tableSize, nil
}

// field checks that a field of the given inline size lies inside its table.
func (v *verifier) field(off uint16, size int, tableSize uint16) error {
	if off < 4 || uint64(off)+uint64(size) > uint64(tableSize) {
		return fmt.Errorf("field offset %d (size %d) outside table of size %d", off, size, tableSize)
	}
	return nil
}

// indirect follows the uoffset stored at pos and checks the target holds at
// least a 4-byte length or table header.
func (v *verifier) indirect(pos uint64) (uint64, error) {
	if !v.inRange(pos, 4) {
		return 0, fmt.Errorf("offset at %d out of range", pos)
	}
	target := pos + uint64(v.u32(pos))
	if !v.inRange(target, 4) {
		return 0, fmt.Errorf("offset at %d points outside buffer", pos)
	}
	return target, nil
}

// str checks the string referenced by the uoffset at pos.
func (v *verifier) str(pos uint64) error {
	return v.byteSpan(pos, "string")
}

// bytes checks the byte vector referenced by the uoffset at pos.
func (v *verifier) bytes(pos uint64) error {
	return v.byteSpan(pos, "byte vector")
}

func (v *verifier) byteSpan(pos uint64, kind string) error {
	target, err := v.indirect(pos)
	if err != nil {
		return err
	}
	n := uint64(v.u32(target))
	if !v.inRange(target+4, n) {
		return fmt.Errorf("%s at %d with length %d overruns buffer", kind, target, n)
	}
	return nil
}

// strVector checks the string vector referenced by the uoffset at pos.
func (v *verifier) strVector(pos uint64) error {
	target, err := v.indirect(pos)
	if err != nil {
		return err
	}
	n := uint64(v.u32(target))
	if n > maxVectorLen {
		return fmt.Errorf("vector at %d has %d elements, limit %d", target, n, maxVectorLen)
	}
	if !v.inRange(target+4, n*4) {
		return fmt.Errorf("vector at %d with %d elements overruns buffer", target, n)
	}
	for i := uint64(0); i < n; i++ {
		if err := v.str(target + 4 + i*4); err != nil {
			return fmt.Errorf("vector element %d: %w", i, err)
		}
	}
	return nil
}
