package document

// Codec converts documents to and from their stored form. Which codec a
// store uses is decided once, from the detected JSON capability.
type Codec interface {
	// Name identifies the codec in logs.
	Name() string
	// Native reports whether the store column is a JSON column.
	Native() bool
	// Encode renders the payload written to the document column.
	Encode(m *Map) (string, error)
	// Decode parses a stored payload. A NULL column arrives as nil.
	Decode(data []byte) (*Map, error)
}

// CodecFor returns the native codec when native is true, else the text one.
func CodecFor(native bool) Codec {
	if native {
		return NativeCodec{}
	}
	return TextCodec{}
}

// NativeCodec targets a JSON column. The database validates what it stores,
// so a malformed payload is reported as an error.
type NativeCodec struct{}

func (NativeCodec) Name() string { return "native" }

func (NativeCodec) Native() bool { return true }

func (NativeCodec) Encode(m *Map) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (NativeCodec) Decode(data []byte) (*Map, error) {
	if len(data) == 0 {
		return NewMap(), nil
	}
	return Unmarshal(data)
}

// TextCodec targets a plain text column. Anything that is not a JSON object
// decodes to an empty document.
type TextCodec struct{}

func (TextCodec) Name() string { return "text" }

func (TextCodec) Native() bool { return false }

func (TextCodec) Encode(m *Map) (string, error) {
	data, err := Marshal(m)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (TextCodec) Decode(data []byte) (*Map, error) {
	if len(data) == 0 {
		return NewMap(), nil
	}
	m, err := Unmarshal(data)
	if err != nil {
		return NewMap(), nil
	}
	return m, nil
}
