package document

import (
	"bytes"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// MarshalYAML emits an ordered mapping node.
func (m *Map) MarshalYAML() (any, error) {
	return mapNode(m)
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (any, error) {
	return valueNode(v)
}

func mapNode(m *Map) (*yaml.Node, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	var err error
	m.Range(func(k string, v Value) bool {
		key := &yaml.Node{}
		if err = key.Encode(k); err != nil {
			return false
		}
		var val *yaml.Node
		if val, err = valueNode(v); err != nil {
			return false
		}
		node.Content = append(node.Content, key, val)
		return true
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

func valueNode(v Value) (*yaml.Node, error) {
	switch v.kind {
	case KindMap:
		return mapNode(v.m)
	case KindList:
		node := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, item := range v.list {
			child, err := valueNode(item)
			if err != nil {
				return nil, err
			}
			node.Content = append(node.Content, child)
		}
		return node, nil
	default:
		node := &yaml.Node{}
		if err := node.Encode(v.ToAny()); err != nil {
			return nil, err
		}
		return node, nil
	}
}

// MarshalCBOR encodes the map as a CBOR map in insertion order.
func (m *Map) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCBORMap(&buf, m); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// MarshalCBOR implements cbor.Marshaler.
func (v Value) MarshalCBOR() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCBORValue(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCBORMap(buf *bytes.Buffer, m *Map) error {
	writeCBORHead(buf, 5, uint64(m.Len()))
	var err error
	m.Range(func(k string, v Value) bool {
		var key []byte
		if key, err = cbor.Marshal(k); err != nil {
			return false
		}
		buf.Write(key)
		err = writeCBORValue(buf, v)
		return err == nil
	})
	return err
}

func writeCBORValue(buf *bytes.Buffer, v Value) error {
	switch v.kind {
	case KindMap:
		return writeCBORMap(buf, v.m)
	case KindList:
		writeCBORHead(buf, 4, uint64(len(v.list)))
		for _, item := range v.list {
			if err := writeCBORValue(buf, item); err != nil {
				return err
			}
		}
		return nil
	default:
		data, err := cbor.Marshal(v.ToAny())
		if err != nil {
			return err
		}
		buf.Write(data)
		return nil
	}
}

// writeCBORHead writes a major type with its argument in the shortest form.
func writeCBORHead(buf *bytes.Buffer, major byte, n uint64) {
	mt := major << 5
	switch {
	case n < 24:
		buf.WriteByte(mt | byte(n))
	case n <= 0xff:
		buf.WriteByte(mt | 24)
		buf.WriteByte(byte(n))
	case n <= 0xffff:
		buf.WriteByte(mt | 25)
		buf.WriteByte(byte(n >> 8))
		buf.WriteByte(byte(n))
	case n <= 0xffffffff:
		buf.WriteByte(mt | 26)
		for shift := 24; shift >= 0; shift -= 8 {
			buf.WriteByte(byte(n >> uint(shift)))
		}
	default:
		buf.WriteByte(mt | 27)
		for shift := 56; shift >= 0; shift -= 8 {
			buf.WriteByte(byte(n >> uint(shift)))
		}
	}
}
