package document

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// ErrNotObject is returned when a payload decodes to something other than
// a JSON object.
var ErrNotObject = errors.New("document: payload is not an object")

// Marshal encodes m as compact JSON with keys in insertion order. A nil map
// encodes as "{}".
func Marshal(m *Map) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeMap(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a JSON object. Key order and number literals are
// preserved.
func Unmarshal(data []byte) (*Map, error) {
	v, err := UnmarshalValue(data)
	if err != nil {
		return nil, err
	}
	m, ok := v.AsMap()
	if !ok {
		return nil, ErrNotObject
	}
	return m, nil
}

// UnmarshalValue decodes any JSON value.
func UnmarshalValue(data []byte) (Value, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	v, err := readValue(dec)
	if err != nil {
		return Null(), fmt.Errorf("document: %w", err)
	}
	if _, err := dec.Token(); err != io.EOF {
		return Null(), fmt.Errorf("document: trailing data after value")
	}
	return v, nil
}

func readValue(dec *json.Decoder) (Value, error) {
	tok, err := dec.Token()
	if err != nil {
		return Null(), err
	}
	return readFrom(dec, tok)
}

func readFrom(dec *json.Decoder, tok json.Token) (Value, error) {
	switch t := tok.(type) {
	case nil:
		return Null(), nil
	case bool:
		return Bool(t), nil
	case string:
		return String(t), nil
	case json.Number:
		return Value{kind: KindNumber, s: string(t)}, nil
	case json.Delim:
		switch t {
		case '{':
			m := NewMap()
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return Null(), err
				}
				key, ok := keyTok.(string)
				if !ok {
					return Null(), fmt.Errorf("unexpected object key %v", keyTok)
				}
				v, err := readValue(dec)
				if err != nil {
					return Null(), err
				}
				m.Set(key, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return Object(m), nil
		case '[':
			list := []Value{}
			for dec.More() {
				v, err := readValue(dec)
				if err != nil {
					return Null(), err
				}
				list = append(list, v)
			}
			if _, err := dec.Token(); err != nil {
				return Null(), err
			}
			return List(list...), nil
		}
	}
	return Null(), fmt.Errorf("unexpected token %v", tok)
}

func writeMap(buf *bytes.Buffer, m *Map) error {
	buf.WriteByte('{')
	first := true
	var err error
	m.Range(func(k string, v Value) bool {
		if !first {
			buf.WriteByte(',')
		}
		first = false
		if err = writeString(buf, k); err != nil {
			return false
		}
		buf.WriteByte(':')
		err = writeValue(buf, v)
		return err == nil
	})
	if err != nil {
		return err
	}
	buf.WriteByte('}')
	return nil
}

func writeValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindNull:
		buf.WriteString("null")
	case KindBool:
		if v.b {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case KindNumber:
		buf.WriteString(v.s)
	case KindString:
		return writeString(buf, v.s)
	case KindList:
		buf.WriteByte('[')
		for i, item := range v.list {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeValue(buf, item); err != nil {
				return err
			}
		}
		buf.WriteByte(']')
	case KindMap:
		return writeMap(buf, v.m)
	default:
		return fmt.Errorf("document: unknown value kind %d", v.kind)
	}
	return nil
}

func writeString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return err
	}
	buf.Write(bytes.TrimRight(tmp.Bytes(), "\n"))
	return nil
}

// MarshalJSON implements json.Marshaler.
func (v Value) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(data []byte) error {
	decoded, err := UnmarshalValue(data)
	if err != nil {
		return err
	}
	*v = decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (m *Map) MarshalJSON() ([]byte, error) {
	return Marshal(m)
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Map) UnmarshalJSON(data []byte) error {
	decoded, err := Unmarshal(data)
	if err != nil {
		return err
	}
	*m = *decoded
	return nil
}
