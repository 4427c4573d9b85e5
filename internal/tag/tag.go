// Package tag implements the typed tagged-value tree used to persist vehicle
// entities. Every leaf carries an explicit type so a tree survives a trip through
// the binary NBT form without losing precision (float32 stays float32, int32
// stays int32).
package tag

import "fmt"

// Type identifies the kind of a tree node.
type Type byte

const (
	TypeByte Type = iota + 1
	TypeInt
	TypeFloat
	TypeDouble
	TypeString
	TypeList
	TypeCompound
)

func (t Type) String() string {
	switch t {
	case TypeByte:
		return "byte"
	case TypeInt:
		return "int"
	case TypeFloat:
		return "float"
	case TypeDouble:
		return "double"
	case TypeString:
		return "string"
	case TypeList:
		return "list"
	case TypeCompound:
		return "compound"
	default:
		return fmt.Sprintf("type(%d)", byte(t))
	}
}

// Value is a node of the tree.
type Value interface {
	Type() Type
}

type (
	Byte   uint8
	Int    int32
	Float  float32
	Double float64
	String string
)

func (Byte) Type() Type   { return TypeByte }
func (Int) Type() Type    { return TypeInt }
func (Float) Type() Type  { return TypeFloat }
func (Double) Type() Type { return TypeDouble }
func (String) Type() Type { return TypeString }

// List is an ordered, homogeneous sequence. Elem is kept even when the list is
// empty.
type List struct {
	Elem  Type
	Items []Value
}

func (*List) Type() Type { return TypeList }

// NewList builds a list of the given element type. Items of a different type
// are rejected.
func NewList(elem Type, items ...Value) (*List, error) {
	for i, it := range items {
		if it == nil || it.Type() != elem {
			return nil, fmt.Errorf("list item %d: want %s, got %v", i, elem, typeOf(it))
		}
	}
	return &List{Elem: elem, Items: items}, nil
}

// FloatList is a shorthand for a list of Float leaves.
func FloatList(values ...float32) *List {
	l := &List{Elem: TypeFloat, Items: make([]Value, len(values))}
	for i, v := range values {
		l.Items[i] = Float(v)
	}
	return l
}

// Floats returns the items as float32 values. ok is false if the list does not
// hold floats.
func (l *List) Floats() (out []float32, ok bool) {
	if l == nil || (l.Elem != TypeFloat && len(l.Items) > 0) {
		return nil, false
	}
	out = make([]float32, len(l.Items))
	for i, it := range l.Items {
		f, isFloat := it.(Float)
		if !isFloat {
			return nil, false
		}
		out[i] = float32(f)
	}
	return out, true
}

// Len returns the number of items, zero for a nil list.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.Items)
}

// Compound maps names to values.
type Compound map[string]Value

func (Compound) Type() Type { return TypeCompound }

func (c Compound) SetByte(key string, v uint8)     { c[key] = Byte(v) }
func (c Compound) SetInt(key string, v int32)      { c[key] = Int(v) }
func (c Compound) SetFloat(key string, v float32)  { c[key] = Float(v) }
func (c Compound) SetDouble(key string, v float64) { c[key] = Double(v) }
func (c Compound) SetString(key string, v string)  { c[key] = String(v) }
func (c Compound) SetList(key string, v *List)     { c[key] = v }
func (c Compound) SetCompound(key string, v Compound) {
	c[key] = v
}

// Has reports whether key is present.
func (c Compound) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Byte returns the byte stored under key.
func (c Compound) Byte(key string) (uint8, bool) {
	v, ok := c[key].(Byte)
	return uint8(v), ok
}

// Int returns the int stored under key.
func (c Compound) Int(key string) (int32, bool) {
	v, ok := c[key].(Int)
	return int32(v), ok
}

// IntOr returns the int stored under key or def if missing or of another type.
func (c Compound) IntOr(key string, def int32) int32 {
	if v, ok := c.Int(key); ok {
		return v
	}
	return def
}

func (c Compound) Float(key string) (float32, bool) {
	v, ok := c[key].(Float)
	return float32(v), ok
}

func (c Compound) Double(key string) (float64, bool) {
	v, ok := c[key].(Double)
	return float64(v), ok
}

func (c Compound) String(key string) (string, bool) {
	v, ok := c[key].(String)
	return string(v), ok
}

func (c Compound) List(key string) (*List, bool) {
	v, ok := c[key].(*List)
	return v, ok && v != nil
}

func (c Compound) Compound(key string) (Compound, bool) {
	v, ok := c[key].(Compound)
	return v, ok && v != nil
}

func typeOf(v Value) any {
	if v == nil {
		return "nil"
	}
	return v.Type()
}
