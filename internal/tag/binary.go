package tag

import (
	"errors"
	"fmt"
	"reflect"

	"github.com/sandertv/gophertunnel/minecraft/nbt"
)

// ErrUnsupportedValue is returned when a decoded NBT value has no tree
// equivalent (long, short, arrays).
var ErrUnsupportedValue = errors.New("unsupported nbt value")

// Encoding used on disk. World saves use the little-endian Bedrock layout.
var Encoding nbt.Encoding = nbt.LittleEndian

// Marshal writes the compound as a binary NBT document.
func Marshal(c Compound) ([]byte, error) {
	data, err := nbt.MarshalEncoding(ToNative(c), Encoding)
	if err != nil {
		return nil, fmt.Errorf("marshal nbt: %w", err)
	}
	return data, nil
}

// Unmarshal reads a binary NBT document into a compound.
func Unmarshal(data []byte) (Compound, error) {
	var m map[string]any
	if err := nbt.UnmarshalEncoding(data, &m, Encoding); err != nil {
		return nil, fmt.Errorf("unmarshal nbt: %w", err)
	}
	return FromNative(m)
}

// ToNative converts the compound into the Go values the nbt package encodes:
// int32, float32, float64, string, uint8, typed slices and nested maps.
func ToNative(c Compound) map[string]any {
	out := make(map[string]any, len(c))
	for k, v := range c {
		out[k] = nativeValue(v)
	}
	return out
}

func nativeValue(v Value) any {
	switch t := v.(type) {
	case Byte:
		return uint8(t)
	case Int:
		return int32(t)
	case Float:
		return float32(t)
	case Double:
		return float64(t)
	case String:
		return string(t)
	case Compound:
		return ToNative(t)
	case *List:
		return nativeList(t)
	}
	return nil
}

// nativeList builds a typed slice so the encoder can derive the list element
// tag even for empty lists.
func nativeList(l *List) any {
	elem := nativeElemType(l)
	s := reflect.MakeSlice(reflect.SliceOf(elem), 0, len(l.Items))
	for _, it := range l.Items {
		s = reflect.Append(s, reflect.ValueOf(nativeValue(it)))
	}
	return s.Interface()
}

func nativeElemType(l *List) reflect.Type {
	switch l.Elem {
	case TypeByte:
		return reflect.TypeOf(uint8(0))
	case TypeInt:
		return reflect.TypeOf(int32(0))
	case TypeFloat:
		return reflect.TypeOf(float32(0))
	case TypeDouble:
		return reflect.TypeOf(float64(0))
	case TypeString:
		return reflect.TypeOf("")
	case TypeCompound:
		return reflect.TypeOf(map[string]any{})
	case TypeList:
		if len(l.Items) > 0 {
			if inner, ok := l.Items[0].(*List); ok {
				return reflect.TypeOf(nativeList(inner))
			}
		}
		return reflect.TypeOf([]any{})
	}
	return reflect.TypeOf((*any)(nil)).Elem()
}

// FromNative converts decoded nbt values back into a compound.
func FromNative(m map[string]any) (Compound, error) {
	c := make(Compound, len(m))
	for k, raw := range m {
		v, err := treeValue(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		c[k] = v
	}
	return c, nil
}

func treeValue(raw any) (Value, error) {
	switch t := raw.(type) {
	case uint8:
		return Byte(t), nil
	case bool:
		if t {
			return Byte(1), nil
		}
		return Byte(0), nil
	case int32:
		return Int(t), nil
	case float32:
		return Float(t), nil
	case float64:
		return Double(t), nil
	case string:
		return String(t), nil
	case map[string]any:
		return FromNative(t)
	}

	rv := reflect.ValueOf(raw)
	if rv.Kind() != reflect.Slice {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
	l := &List{Items: make([]Value, 0, rv.Len())}
	for i := 0; i < rv.Len(); i++ {
		item, err := treeValue(rv.Index(i).Interface())
		if err != nil {
			return nil, fmt.Errorf("[%d]: %w", i, err)
		}
		if i == 0 {
			l.Elem = item.Type()
		} else if item.Type() != l.Elem {
			return nil, fmt.Errorf("[%d]: mixed list of %s and %s", i, l.Elem, item.Type())
		}
		l.Items = append(l.Items, item)
	}
	if len(l.Items) == 0 {
		l.Elem = elemFromSlice(rv.Type().Elem())
	}
	return l, nil
}

func elemFromSlice(t reflect.Type) Type {
	switch t.Kind() {
	case reflect.Uint8:
		return TypeByte
	case reflect.Int32:
		return TypeInt
	case reflect.Float32:
		return TypeFloat
	case reflect.Float64:
		return TypeDouble
	case reflect.String:
		return TypeString
	case reflect.Map:
		return TypeCompound
	case reflect.Slice:
		return TypeList
	}
	// An empty list decoded into []any carries no element type.
	return 0
}
