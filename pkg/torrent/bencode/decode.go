package bencode

import (
	"errors"
	"fmt"
	"io"
	"reflect"
	"strconv"
)

// Decoder errors.
var (
	ErrInvalidBencode = errors.New("invalid bencode")
	ErrUnexpectedEOF  = errors.New("unexpected EOF")
	ErrInvalidType    = errors.New("invalid type for bencode")
	ErrTrailingData   = errors.New("trailing data after bencode value")
)

// maxNesting bounds list/dict recursion so hostile input cannot exhaust the stack.
const maxNesting = 256

// dict is the intermediate form of a decoded dictionary. It remembers the
// raw encoding of every value so RawMessage fields can be populated.
type dict struct {
	entries map[string]any
	raw     map[string][]byte
}

// Unmarshal decodes a single bencode value into v. The whole input must be
// consumed.
func Unmarshal(data []byte, v any) error {
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Ptr || rv.IsNil() {
		return errors.New("bencode: Unmarshal requires non-nil pointer")
	}

	d := &Decoder{data: data}

	val, err := d.decodeValue(0)
	if err != nil {
		return err
	}

	if d.pos != len(d.data) {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, len(d.data)-d.pos)
	}

	return d.unmarshalValue(val, rv.Elem())
}

// Decode parses one bencode value from the start of data and returns it
// together with the number of bytes consumed. Integers decode to int64,
// strings to []byte, lists to []any and dictionaries to map[string]any.
func Decode(data []byte) (any, int, error) {
	d := &Decoder{data: data}

	val, err := d.decodeValue(0)
	if err != nil {
		return nil, 0, err
	}

	return plain(val), d.pos, nil
}

// Decoder decodes bencode data.
type Decoder struct {
	r    io.Reader
	data []byte
	pos  int
}

// NewDecoder creates a new decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads all of the decoder's input and decodes it into v.
func (d *Decoder) Decode(v any) error {
	if d.r != nil {
		data, err := io.ReadAll(d.r)
		if err != nil {
			return err
		}

		d.data, d.r = data, nil
	}

	return Unmarshal(d.data[d.pos:], v)
}

func (d *Decoder) peek() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, ErrUnexpectedEOF
	}

	return d.data[d.pos], nil
}

// decodeValue decodes a single bencode value.
func (d *Decoder) decodeValue(depth int) (any, error) {
	if depth > maxNesting {
		return nil, fmt.Errorf("%w: nesting too deep", ErrInvalidBencode)
	}

	b, err := d.peek()
	if err != nil {
		return nil, err
	}

	switch b {
	case 'i':
		return d.decodeInt()
	case 'l':
		return d.decodeList(depth)
	case 'd':
		return d.decodeDict(depth)
	case '0', '1', '2', '3', '4', '5', '6', '7', '8', '9':
		return d.decodeString()
	default:
		return nil, fmt.Errorf("%w: unexpected character %q at offset %d", ErrInvalidBencode, b, d.pos)
	}
}

// decodeInt decodes a bencode integer.
func (d *Decoder) decodeInt() (int64, error) {
	d.pos++ // 'i'

	start := d.pos
	for {
		b, err := d.peek()
		if err != nil {
			return 0, err
		}

		d.pos++

		if b == 'e' {
			break
		}
	}

	numStr := d.data[start : d.pos-1]
	if len(numStr) == 0 {
		return 0, fmt.Errorf("%w: empty integer", ErrInvalidBencode)
	}

	// i03e and i-0e are not canonical
	if len(numStr) > 1 && numStr[0] == '0' {
		return 0, fmt.Errorf("%w: leading zeros in integer", ErrInvalidBencode)
	}

	if len(numStr) > 1 && numStr[0] == '-' && numStr[1] == '0' {
		return 0, fmt.Errorf("%w: negative zero", ErrInvalidBencode)
	}

	n, err := strconv.ParseInt(string(numStr), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidBencode, err)
	}

	return n, nil
}

// decodeString decodes a bencode byte string.
func (d *Decoder) decodeString() ([]byte, error) {
	start := d.pos
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == ':' {
			break
		}

		if b < '0' || b > '9' {
			return nil, fmt.Errorf("%w: invalid string length", ErrInvalidBencode)
		}

		d.pos++
	}

	lenStr := d.data[start:d.pos]
	d.pos++ // ':'

	if len(lenStr) > 1 && lenStr[0] == '0' {
		return nil, fmt.Errorf("%w: leading zeros in string length", ErrInvalidBencode)
	}

	length, err := strconv.ParseInt(string(lenStr), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBencode, err)
	}

	if length < 0 {
		return nil, fmt.Errorf("%w: negative string length", ErrInvalidBencode)
	}

	if length > int64(len(d.data)-d.pos) {
		return nil, ErrUnexpectedEOF
	}

	data := d.data[d.pos : d.pos+int(length)]
	d.pos += int(length)

	return data, nil
}

// decodeList decodes a bencode list.
func (d *Decoder) decodeList(depth int) ([]any, error) {
	d.pos++ // 'l'

	list := make([]any, 0)
	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, err
		}

		list = append(list, val)
	}

	return list, nil
}

// decodeDict decodes a bencode dictionary. Keys must be strictly ascending.
func (d *Decoder) decodeDict(depth int) (*dict, error) {
	d.pos++ // 'd'

	out := &dict{
		entries: make(map[string]any),
		raw:     make(map[string][]byte),
	}

	var (
		lastKey string
		first   = true
	)

	for {
		b, err := d.peek()
		if err != nil {
			return nil, err
		}

		if b == 'e' {
			d.pos++
			break
		}

		if b < '0' || b > '9' {
			return nil, fmt.Errorf("%w: dictionary key must be a string", ErrInvalidBencode)
		}

		keyBytes, err := d.decodeString()
		if err != nil {
			return nil, fmt.Errorf("decoding dict key: %w", err)
		}

		key := string(keyBytes)
		if !first && key <= lastKey {
			return nil, fmt.Errorf("%w: dictionary keys not sorted or duplicated at %q", ErrInvalidBencode, key)
		}

		lastKey, first = key, false

		start := d.pos

		val, err := d.decodeValue(depth + 1)
		if err != nil {
			return nil, fmt.Errorf("decoding dict value for key %q: %w", key, err)
		}

		out.entries[key] = val
		out.raw[key] = d.data[start:d.pos]
	}

	return out, nil
}

// plain converts the intermediate representation into plain Go values.
func plain(val any) any {
	switch v := val.(type) {
	case *dict:
		m := make(map[string]any, len(v.entries))
		for k, e := range v.entries {
			m[k] = plain(e)
		}

		return m
	case []any:
		l := make([]any, len(v))
		for i, e := range v {
			l[i] = plain(e)
		}

		return l
	default:
		return v
	}
}

// unmarshalValue assigns a decoded value to a reflect.Value.
func (d *Decoder) unmarshalValue(val any, rv reflect.Value) error {
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			rv.Set(reflect.New(rv.Type().Elem()))
		}

		return d.unmarshalValue(val, rv.Elem())
	}

	if rv.Kind() == reflect.Interface && rv.NumMethod() == 0 {
		rv.Set(reflect.ValueOf(plain(val)))
		return nil
	}

	switch v := val.(type) {
	case int64:
		return d.unmarshalInt(v, rv)
	case []byte:
		return d.unmarshalBytes(v, rv)
	case []any:
		return d.unmarshalList(v, rv)
	case *dict:
		return d.unmarshalDict(v, rv)
	default:
		return fmt.Errorf("%w: cannot unmarshal %T into %v", ErrInvalidType, val, rv.Type())
	}
}

// unmarshalInt assigns an int64 to integer kinds.
func (d *Decoder) unmarshalInt(val int64, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if rv.OverflowInt(val) {
			return fmt.Errorf("%w: %d overflows %v", ErrInvalidType, val, rv.Type())
		}

		rv.SetInt(val)

		return nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if val < 0 || rv.OverflowUint(uint64(val)) {
			return fmt.Errorf("%w: cannot unmarshal %d into %v", ErrInvalidType, val, rv.Type())
		}

		rv.SetUint(uint64(val))

		return nil
	case reflect.Bool:
		rv.SetBool(val != 0)
		return nil
	default:
		return fmt.Errorf("%w: cannot unmarshal int into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalBytes assigns a byte string to string, []byte or [N]byte.
func (d *Decoder) unmarshalBytes(val []byte, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.String:
		rv.SetString(string(val))
		return nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			rv.SetBytes(append([]byte(nil), val...))
			return nil
		}
	case reflect.Array:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			if len(val) != rv.Len() {
				return fmt.Errorf("%w: %d bytes do not fit %v", ErrInvalidType, len(val), rv.Type())
			}

			reflect.Copy(rv, reflect.ValueOf(val))

			return nil
		}
	}

	return fmt.Errorf("%w: cannot unmarshal bytes into %v", ErrInvalidType, rv.Type())
}

// unmarshalList assigns a list to a slice.
func (d *Decoder) unmarshalList(val []any, rv reflect.Value) error {
	if rv.Kind() != reflect.Slice {
		return fmt.Errorf("%w: cannot unmarshal list into %v", ErrInvalidType, rv.Type())
	}

	slice := reflect.MakeSlice(rv.Type(), len(val), len(val))
	for i, v := range val {
		if err := d.unmarshalValue(v, slice.Index(i)); err != nil {
			return fmt.Errorf("index %d: %w", i, err)
		}
	}

	rv.Set(slice)

	return nil
}

// unmarshalDict assigns a dictionary to a map or struct.
func (d *Decoder) unmarshalDict(val *dict, rv reflect.Value) error {
	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return fmt.Errorf("%w: map key must be string, got %v", ErrInvalidType, rv.Type().Key())
		}

		mapVal := reflect.MakeMapWithSize(rv.Type(), len(val.entries))
		for k, v := range val.entries {
			elemVal := reflect.New(rv.Type().Elem()).Elem()
			if err := d.unmarshalValue(v, elemVal); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}

			mapVal.SetMapIndex(reflect.ValueOf(k).Convert(rv.Type().Key()), elemVal)
		}

		rv.Set(mapVal)

		return nil
	case reflect.Struct:
		return d.unmarshalStruct(val, rv)
	default:
		return fmt.Errorf("%w: cannot unmarshal dict into %v", ErrInvalidType, rv.Type())
	}
}

// unmarshalStruct assigns dictionary entries to struct fields by tag.
func (d *Decoder) unmarshalStruct(val *dict, rv reflect.Value) error {
	rt := rv.Type()

	for i := 0; i < rt.NumField(); i++ {
		field := rt.Field(i)
		if field.PkgPath != "" {
			continue
		}

		key, _, skip := fieldKey(field)
		if skip {
			continue
		}

		if field.Type == rawMessageType {
			if raw, ok := val.raw[key]; ok {
				rv.Field(i).SetBytes(append([]byte(nil), raw...))
			}

			continue
		}

		v, ok := val.entries[key]
		if !ok {
			continue
		}

		if err := d.unmarshalValue(v, rv.Field(i)); err != nil {
			return fmt.Errorf("field %s: %w", field.Name, err)
		}
	}

	return nil
}
