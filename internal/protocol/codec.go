package protocol

import (
	"fmt"

	flatbuffers "github.com/google/flatbuffers/go"
)

// Encode serializes record as a finished FlatBuffers buffer with record as
// the root table.
func Encode(record *Record) []byte {
	b := flatbuffers.NewBuilder(256)
	root := encodeTable(b, record)
	b.Finish(root)
	return b.FinishedBytes()
}

func encodeTable(b *flatbuffers.Builder, r *Record) flatbuffers.UOffsetT {
	// Strings, vectors and child tables must be complete before the
	// parent table is started.
	offsets := make(map[int]flatbuffers.UOffsetT)
	for _, f := range r.schema.Fields {
		v, ok := r.values[f.Index]
		if !ok {
			continue
		}
		switch f.Type {
		case TypeString:
			offsets[f.Index] = b.CreateString(v.(string))
		case TypeStringVector:
			offsets[f.Index] = createStringVector(b, v.([]string))
		case TypeBytes:
			offsets[f.Index] = b.CreateByteVector(v.([]byte))
		case TypeTable:
			offsets[f.Index] = encodeTable(b, v.(*Record))
		}
	}

	b.StartObject(r.schema.NumSlots())
	// Widest fields first keeps padding minimal.
	for _, size := range []int{8, 4, 1} {
		for _, f := range r.schema.Fields {
			if f.Type.size() != size {
				continue
			}
			v, ok := r.values[f.Index]
			if !ok {
				continue
			}
			switch f.Type {
			case TypeBool:
				b.PrependBoolSlot(f.Index, v.(bool), f.Default.(bool))
			case TypeUint8:
				b.PrependByteSlot(f.Index, v.(uint8), f.Default.(uint8))
			case TypeUint32:
				b.PrependUint32Slot(f.Index, v.(uint32), f.Default.(uint32))
			case TypeUint64:
				b.PrependUint64Slot(f.Index, v.(uint64), f.Default.(uint64))
			case TypeInt64:
				b.PrependInt64Slot(f.Index, v.(int64), f.Default.(int64))
			case TypeInt32:
				b.PrependInt32Slot(f.Index, v.(int32), f.Default.(int32))
			case TypeString, TypeStringVector, TypeBytes, TypeTable:
				b.PrependUOffsetTSlot(f.Index, offsets[f.Index], 0)
			}
		}
	}
	return b.EndObject()
}

func createStringVector(b *flatbuffers.Builder, values []string) flatbuffers.UOffsetT {
	elems := make([]flatbuffers.UOffsetT, len(values))
	for i, s := range values {
		elems[i] = b.CreateString(s)
	}
	b.StartVector(flatbuffers.SizeUOffsetT, len(elems), flatbuffers.SizeUOffsetT)
	for i := len(elems) - 1; i >= 0; i-- {
		b.PrependUOffsetT(elems[i])
	}
	return b.EndVector(len(elems))
}

// Decode reads buf as a table of the given schema. The buffer is verified
// before any field is read; corrupt or truncated input yields a
// *DecodeError and never a panic. Fields missing from the buffer take
// their schema defaults and fields the schema does not know are skipped.
func Decode(schema *Schema, buf []byte) (rec *Record, err error) {
	defer func() {
		if p := recover(); p != nil {
			rec = nil
			err = &DecodeError{Schema: schema.Name, Reason: fmt.Sprint("malformed buffer: ", p)}
		}
	}()

	v := newVerifier(buf)
	root, err := v.root()
	if err != nil {
		return nil, &DecodeError{Schema: schema.Name, Reason: err.Error()}
	}
	return decodeTable(v, schema, root, 0)
}

func decodeTable(v *verifier, schema *Schema, pos uint32, depth int) (*Record, error) {
	_, tableSize, err := v.table(pos, depth)
	if err != nil {
		return nil, &DecodeError{Schema: schema.Name, Reason: err.Error()}
	}

	t := flatbuffers.Table{Bytes: v.buf, Pos: flatbuffers.UOffsetT(pos)}
	r := NewRecord(schema)

	for _, f := range schema.Fields {
		o := t.Offset(flatbuffers.VOffsetT(4 + 2*f.Index))
		if o == 0 {
			continue
		}
		if err := v.field(uint16(o), f.Type.size(), tableSize); err != nil {
			return nil, fieldError(schema, f, err)
		}
		abs := t.Pos + flatbuffers.UOffsetT(o)

		switch f.Type {
		case TypeBool:
			r.values[f.Index] = t.GetBool(abs)
		case TypeUint8:
			r.values[f.Index] = t.GetByte(abs)
		case TypeUint32:
			r.values[f.Index] = t.GetUint32(abs)
		case TypeUint64:
			r.values[f.Index] = t.GetUint64(abs)
		case TypeInt64:
			r.values[f.Index] = t.GetInt64(abs)
		case TypeInt32:
			r.values[f.Index] = t.GetInt32(abs)
		case TypeString:
			if err := v.str(uint64(abs)); err != nil {
				return nil, fieldError(schema, f, err)
			}
			r.values[f.Index] = string(t.ByteVector(abs))
		case TypeStringVector:
			if err := v.strVector(uint64(abs)); err != nil {
				return nil, fieldError(schema, f, err)
			}
			n := t.VectorLen(flatbuffers.UOffsetT(o))
			start := t.Vector(flatbuffers.UOffsetT(o))
			values := make([]string, n)
			for i := 0; i < n; i++ {
				values[i] = string(t.ByteVector(start + flatbuffers.UOffsetT(i*flatbuffers.SizeUOffsetT)))
			}
			r.values[f.Index] = values
		case TypeBytes:
			if err := v.bytes(uint64(abs)); err != nil {
				return nil, fieldError(schema, f, err)
			}
			r.values[f.Index] = append([]byte{}, t.ByteVector(abs)...)
		case TypeTable:
			if _, err := v.indirect(uint64(abs)); err != nil {
				return nil, fieldError(schema, f, err)
			}
			child := uint32(t.Indirect(abs))
			if f.Schema == nil {
				r.values[f.Index] = tableRef{buf: v.buf, pos: child, depth: depth + 1}
				continue
			}
			sub, err := decodeTable(v, f.Schema, child, depth+1)
			if err != nil {
				return nil, err
			}
			r.values[f.Index] = sub
		}
	}
	return r, nil
}

func fieldError(schema *Schema, f Field, err error) error {
	return &DecodeError{Schema: schema.Name, Field: f.Name, Reason: err.Error()}
}
