package round

import (
	"bytes"
	"encoding"
	"encoding/json"
	"errors"
	"fmt"
	"reflect"
	"time"
	"unicode/utf8"
)

// ErrInvalidUTF8 is returned by Serialize for strings encoding/json would
// rewrite to U+FFFD. Binary data must be passed as []byte.
var ErrInvalidUTF8 = errors.New("round: string is not valid UTF-8")

// Separator splits the header from the payload inside a round's plaintext.
const Separator = "$:-strcontentseparator-:$"

// Header is prepended to every round's plaintext.
type Header struct {
	// Timestamp is wall-clock milliseconds since the Unix epoch.
	Timestamp int64 `json:"ts"`
	// Precise is the monotonic reading in fractional milliseconds.
	Precise float64 `json:"now"`
	// Length is the byte length of the serialized payload.
	Length    int    `json:"length"`
	Signature string `json:"signature"`
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func fromMillis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}

// Serialize renders v as compact JSON without HTML escaping. It fails with
// ErrInvalidUTF8 rather than let a string change on the way through.
func Serialize(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	out := bytes.TrimSuffix(buf.Bytes(), []byte{'\n'})
	// Marshaler output is copied verbatim.
	if !utf8.Valid(out) {
		return nil, ErrInvalidUTF8
	}
	// Encode succeeded, so v has no cycles.
	if err := checkUTF8(reflect.ValueOf(v), "$"); err != nil {
		return nil, err
	}
	return out, nil
}

var (
	jsonMarshalerType = reflect.TypeFor[json.Marshaler]()
	textMarshalerType = reflect.TypeFor[encoding.TextMarshaler]()
)

func checkUTF8(v reflect.Value, path string) error {
	if !v.IsValid() {
		return nil
	}
	t := v.Type()
	if t.Implements(jsonMarshalerType) || (v.CanAddr() && reflect.PointerTo(t).Implements(jsonMarshalerType)) {
		return nil
	}
	if t.Implements(textMarshalerType) && v.CanInterface() {
		if (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) && v.IsNil() {
			return nil
		}
		text, err := v.Interface().(encoding.TextMarshaler).MarshalText()
		if err == nil && !utf8.Valid(text) {
			return fmt.Errorf("%w at %s", ErrInvalidUTF8, path)
		}
		return nil
	}

	switch v.Kind() {
	case reflect.String:
		if !utf8.ValidString(v.String()) {
			return fmt.Errorf("%w at %s", ErrInvalidUTF8, path)
		}
	case reflect.Pointer, reflect.Interface:
		if v.IsNil() {
			return nil
		}
		return checkUTF8(v.Elem(), path)
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			if f.Tag.Get("json") == "-" {
				continue
			}
			if !f.IsExported() {
				ft := f.Type
				if ft.Kind() == reflect.Pointer {
					ft = ft.Elem()
				}
				if !f.Anonymous || ft.Kind() != reflect.Struct {
					continue
				}
			}
			if err := checkUTF8(v.Field(i), path+"."+f.Name); err != nil {
				return err
			}
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			k := iter.Key()
			if k.Kind() == reflect.String && !utf8.ValidString(k.String()) {
				return fmt.Errorf("%w in key at %s", ErrInvalidUTF8, path)
			}
			if err := checkUTF8(iter.Value(), fmt.Sprintf("%s[%v]", path, k)); err != nil {
				return err
			}
		}
	case reflect.Slice, reflect.Array:
		if t.Elem().Kind() == reflect.Uint8 {
			return nil
		}
		for i := 0; i < v.Len(); i++ {
			if err := checkUTF8(v.Index(i), fmt.Sprintf("%s[%d]", path, i)); err != nil {
				return err
			}
		}
	}
	return nil
}
