package bencode

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

// ErrUnsupportedType is returned when a value has no bencode representation.
var ErrUnsupportedType = errors.New("bencode: unsupported type")

// Marshaler is the interface implemented by types that can marshal themselves to bencode.
type Marshaler interface {
	MarshalBencode() ([]byte, error)
}

// RawMessage is a raw encoded bencode value. Decoding into a RawMessage
// struct field keeps the exact input bytes of that value; encoding writes
// them back verbatim.
type RawMessage []byte

var rawMessageType = reflect.TypeOf(RawMessage(nil))

// MarshalBencode returns m unchanged.
func (m RawMessage) MarshalBencode() ([]byte, error) {
	if len(m) == 0 {
		return nil, fmt.Errorf("%w: empty RawMessage", ErrUnsupportedType)
	}

	return m, nil
}

// Marshal returns the bencode encoding of v.
func Marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := NewEncoder(&buf).Encode(v); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// Encoder encodes values to bencode format.
type Encoder struct {
	w io.Writer
}

// NewEncoder creates a new encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the bencode encoding of v to the stream.
func (e *Encoder) Encode(v any) error {
	return e.encodeValue(reflect.ValueOf(v))
}

// encodeValue encodes a reflect.Value.
func (e *Encoder) encodeValue(v reflect.Value) error {
	if !v.IsValid() {
		return fmt.Errorf("%w: nil", ErrUnsupportedType)
	}

	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return fmt.Errorf("%w: nil %v", ErrUnsupportedType, v.Type())
		}

		v = v.Elem()
	}

	if v.CanInterface() {
		if marshaler, ok := v.Interface().(Marshaler); ok {
			data, err := marshaler.MarshalBencode()
			if err != nil {
				return err
			}

			_, err = e.w.Write(data)

			return err
		}
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return e.encodeInt(v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		_, err := fmt.Fprintf(e.w, "i%de", v.Uint())
		return err
	case reflect.String:
		return e.encodeBytes([]byte(v.String()))
	case reflect.Slice:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			return e.encodeBytes(v.Bytes())
		}

		return e.encodeList(v)
	case reflect.Array:
		if v.Type().Elem().Kind() == reflect.Uint8 {
			b := make([]byte, v.Len())
			reflect.Copy(reflect.ValueOf(b), v)

			return e.encodeBytes(b)
		}

		return e.encodeList(v)
	case reflect.Map:
		return e.encodeMap(v)
	case reflect.Struct:
		return e.encodeStruct(v)
	default:
		return fmt.Errorf("%w: %v", ErrUnsupportedType, v.Type())
	}
}

// encodeInt encodes an integer.
func (e *Encoder) encodeInt(i int64) error {
	_, err := fmt.Fprintf(e.w, "i%de", i)
	return err
}

// encodeBytes encodes a byte string.
func (e *Encoder) encodeBytes(b []byte) error {
	if _, err := fmt.Fprintf(e.w, "%d:", len(b)); err != nil {
		return err
	}

	_, err := e.w.Write(b)

	return err
}

// encodeList encodes a slice or array.
func (e *Encoder) encodeList(v reflect.Value) error {
	if _, err := e.w.Write([]byte("l")); err != nil {
		return err
	}

	for i := 0; i < v.Len(); i++ {
		if err := e.encodeValue(v.Index(i)); err != nil {
			return err
		}
	}

	_, err := e.w.Write([]byte("e"))

	return err
}

// encodeMap encodes a map with string keys, sorted by raw key bytes.
func (e *Encoder) encodeMap(v reflect.Value) error {
	if v.Type().Key().Kind() != reflect.String {
		return fmt.Errorf("%w: map key must be string, got %v", ErrUnsupportedType, v.Type().Key())
	}

	keys := v.MapKeys()
	sort.Slice(keys, func(i, j int) bool {
		return keys[i].String() < keys[j].String()
	})

	if _, err := e.w.Write([]byte("d")); err != nil {
		return err
	}

	for _, k := range keys {
		if err := e.encodeBytes([]byte(k.String())); err != nil {
			return err
		}

		if err := e.encodeValue(v.MapIndex(k)); err != nil {
			return err
		}
	}

	_, err := e.w.Write([]byte("e"))

	return err
}

// encodeStruct encodes a struct as a dictionary.
func (e *Encoder) encodeStruct(v reflect.Value) error {
	type field struct {
		key   string
		value reflect.Value
	}

	var fields []field

	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		f := t.Field(i)
		if f.PkgPath != "" {
			continue
		}

		key, omitempty, skip := fieldKey(f)
		if skip {
			continue
		}

		fv := v.Field(i)
		if omitempty && fv.IsZero() {
			continue
		}

		fields = append(fields, field{key: key, value: fv})
	}

	sort.Slice(fields, func(i, j int) bool {
		return fields[i].key < fields[j].key
	})

	if _, err := e.w.Write([]byte("d")); err != nil {
		return err
	}

	for _, f := range fields {
		if err := e.encodeBytes([]byte(f.key)); err != nil {
			return err
		}

		if err := e.encodeValue(f.value); err != nil {
			return fmt.Errorf("field %q: %w", f.key, err)
		}
	}

	_, err := e.w.Write([]byte("e"))

	return err
}

// fieldKey returns the dictionary key for a struct field. Untagged fields
// use the field name with a lowercase first letter.
func fieldKey(f reflect.StructField) (key string, omitempty, skip bool) {
	tag := f.Tag.Get("bencode")
	if tag == "-" {
		return "", false, true
	}

	name, opts, _ := strings.Cut(tag, ",")
	omitempty = opts == "omitempty"

	if name == "" {
		name = strings.ToLower(f.Name[:1]) + f.Name[1:]
	}

	return name, omitempty, false
}

// EncodeString encodes a string to bencode format.
func EncodeString(s string) []byte {
	return append([]byte(strconv.Itoa(len(s))+":"), s...)
}

// EncodeInt encodes an integer to bencode format.
func EncodeInt(i int64) []byte {
	return []byte(fmt.Sprintf("i%de", i))
}
