package protocol

import (
	"fmt"
	"sort"
)

// FieldType is the wire type of a schema field.
type FieldType uint8

const (
	TypeBool FieldType = iota + 1
	TypeUint8
	TypeUint32
	TypeUint64
	TypeInt64
	TypeInt32
	// TypeString is an offset to a length-prefixed UTF-8 byte sequence.
	// Unlike scalars it can be absent, which is distinct from "".
	TypeString
	// TypeStringVector is an offset to a vector of string offsets.
	TypeStringVector
	// TypeBytes is an offset to a vector of raw bytes. Like strings it can
	// be absent, which is distinct from an empty vector.
	TypeBytes
	// TypeTable is an offset to a nested table. A field with a nil Schema
	// is a union member whose schema is chosen by a sibling type field.
	TypeTable
)

func (t FieldType) String() string {
	switch t {
	case TypeBool:
		return "bool"
	case TypeUint8:
		return "uint8"
	case TypeUint32:
		return "uint32"
	case TypeUint64:
		return "uint64"
	case TypeInt64:
		return "int64"
	case TypeInt32:
		return "int32"
	case TypeString:
		return "string"
	case TypeStringVector:
		return "[string]"
	case TypeBytes:
		return "[ubyte]"
	case TypeTable:
		return "table"
	default:
		return fmt.Sprintf("FieldType(%d)", uint8(t))
	}
}

// size is the inline size of the field inside its table.
func (t FieldType) size() int {
	switch t {
	case TypeBool, TypeUint8:
		return 1
	case TypeUint64, TypeInt64:
		return 8
	default:
		return 4
	}
}

func (t FieldType) isOffset() bool {
	return t == TypeString || t == TypeStringVector || t == TypeBytes || t == TypeTable
}

func (t FieldType) zero() any {
	switch t {
	case TypeBool:
		return false
	case TypeUint8:
		return uint8(0)
	case TypeUint32:
		return uint32(0)
	case TypeUint64:
		return uint64(0)
	case TypeInt64:
		return int64(0)
	case TypeInt32:
		return int32(0)
	default:
		return nil
	}
}

// Field describes one slot of a table. Index and Default are part of the
// wire contract and must never change once released.
type Field struct {
	Index   int
	Name    string
	Type    FieldType
	Default any
	Schema  *Schema
}

// Schema is the ordered field table of one message type.
type Schema struct {
	Name   string
	Fields []Field

	byIndex map[int]int
	slots   int
}

// NewSchema builds a schema and panics if it is malformed: duplicate or
// negative indices, or a default whose Go type does not match the field
// type. Schemas are package-level definitions, so a malformed one is a
// programming error.
func NewSchema(name string, fields ...Field) *Schema {
	s := &Schema{
		Name:    name,
		Fields:  make([]Field, len(fields)),
		byIndex: make(map[int]int, len(fields)),
	}
	copy(s.Fields, fields)
	sort.Slice(s.Fields, func(i, j int) bool { return s.Fields[i].Index < s.Fields[j].Index })

	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Index < 0 {
			panic(fmt.Sprintf("protocol: schema %s field %q has negative index", name, f.Name))
		}
		if _, dup := s.byIndex[f.Index]; dup {
			panic(fmt.Sprintf("protocol: schema %s has duplicate field index %d", name, f.Index))
		}
		if f.Type.isOffset() {
			if f.Default != nil {
				panic(fmt.Sprintf("protocol: schema %s field %q: offset fields have no default", name, f.Name))
			}
		} else {
			if f.Default == nil {
				f.Default = f.Type.zero()
			}
			if fmt.Sprintf("%T", f.Default) != fmt.Sprintf("%T", f.Type.zero()) {
				panic(fmt.Sprintf("protocol: schema %s field %q: default %T does not match %s",
					name, f.Name, f.Default, f.Type))
			}
		}
		s.byIndex[f.Index] = i
		if f.Index+1 > s.slots {
			s.slots = f.Index + 1
		}
	}
	return s
}

// Field returns the field with the given index.
func (s *Schema) Field(index int) (Field, bool) {
	i, ok := s.byIndex[index]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// NumSlots is the vtable size needed to hold every field.
func (s *Schema) NumSlots() int {
	return s.slots
}

// tableRef points at an undecoded nested table, kept until the caller
// resolves its schema.
type tableRef struct {
	buf   []byte
	pos   uint32
	depth int
}

// Record holds the field values of one table. Fields that were never set
// (or were absent on the wire) report their schema default.
type Record struct {
	schema *Schema
	values map[int]any
}

// NewRecord returns an empty record for schema.
func NewRecord(schema *Schema) *Record {
	return &Record{schema: schema, values: make(map[int]any)}
}

// Schema returns the record's schema.
func (r *Record) Schema() *Schema {
	return r.schema
}

// Has reports whether field index carries a value. A scalar written with
// its default value is omitted on the wire and reads back as not present.
func (r *Record) Has(index int) bool {
	_, ok := r.values[index]
	return ok
}

func (r *Record) mustField(index int, want FieldType) Field {
	f, ok := r.schema.Field(index)
	if !ok {
		panic(fmt.Sprintf("protocol: schema %s has no field %d", r.schema.Name, index))
	}
	if f.Type != want {
		panic(fmt.Sprintf("protocol: schema %s field %q is %s, not %s", r.schema.Name, f.Name, f.Type, want))
	}
	return f
}

func (r *Record) set(index int, want FieldType, v any) {
	r.mustField(index, want)
	r.values[index] = v
}

func (r *Record) SetBool(index int, v bool)     { r.set(index, TypeBool, v) }
func (r *Record) SetUint8(index int, v uint8)   { r.set(index, TypeUint8, v) }
func (r *Record) SetUint32(index int, v uint32) { r.set(index, TypeUint32, v) }
func (r *Record) SetUint64(index int, v uint64) { r.set(index, TypeUint64, v) }
func (r *Record) SetInt64(index int, v int64)   { r.set(index, TypeInt64, v) }
func (r *Record) SetInt32(index int, v int32)   { r.set(index, TypeInt32, v) }
func (r *Record) SetString(index int, v string) { r.set(index, TypeString, v) }
func (r *Record) SetTable(index int, v *Record) { r.set(index, TypeTable, v) }
func (r *Record) SetStrings(index int, v []string) {
	r.set(index, TypeStringVector, append([]string(nil), v...))
}
func (r *Record) SetBytes(index int, v []byte) {
	r.set(index, TypeBytes, append([]byte{}, v...))
}

func (r *Record) scalar(index int, want FieldType) any {
	f := r.mustField(index, want)
	if v, ok := r.values[index]; ok {
		return v
	}
	return f.Default
}

func (r *Record) Bool(index int) bool     { return r.scalar(index, TypeBool).(bool) }
func (r *Record) Uint8(index int) uint8   { return r.scalar(index, TypeUint8).(uint8) }
func (r *Record) Uint32(index int) uint32 { return r.scalar(index, TypeUint32).(uint32) }
func (r *Record) Uint64(index int) uint64 { return r.scalar(index, TypeUint64).(uint64) }
func (r *Record) Int64(index int) int64   { return r.scalar(index, TypeInt64).(int64) }
func (r *Record) Int32(index int) int32   { return r.scalar(index, TypeInt32).(int32) }

// String returns the string field, or "" when absent.
func (r *Record) String(index int) string {
	if p := r.OptString(index); p != nil {
		return *p
	}
	return ""
}

// OptString returns the string field, or nil when absent.
func (r *Record) OptString(index int) *string {
	r.mustField(index, TypeString)
	v, ok := r.values[index]
	if !ok {
		return nil
	}
	s := v.(string)
	return &s
}

// Strings returns the string vector field, or nil when absent.
func (r *Record) Strings(index int) []string {
	r.mustField(index, TypeStringVector)
	v, ok := r.values[index]
	if !ok {
		return nil
	}
	return append([]string(nil), v.([]string)...)
}

// Bytes returns the byte vector field, or nil when absent. A present but
// empty vector is returned as a non-nil empty slice.
func (r *Record) Bytes(index int) []byte {
	r.mustField(index, TypeBytes)
	v, ok := r.values[index]
	if !ok {
		return nil
	}
	return append([]byte{}, v.([]byte)...)
}

// Table returns a nested table, decoding it against schema if it was read
// from the wire as a union member. It returns nil when the field is absent.
func (r *Record) Table(index int, schema *Schema) (*Record, error) {
	r.mustField(index, TypeTable)
	switch v := r.values[index].(type) {
	case nil:
		return nil, nil
	case *Record:
		if v.schema != schema {
			return nil, &DecodeError{
				Schema: schema.Name,
				Reason: fmt.Sprintf("nested table holds %s", v.schema.Name),
			}
		}
		return v, nil
	case tableRef:
		return decodeTable(newVerifier(v.buf), schema, v.pos, v.depth)
	default:
		panic(fmt.Sprintf("protocol: unexpected table value %T", v))
	}
}
