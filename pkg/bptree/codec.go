package bptree

// KeyCodec converts a key to and from its on-disk byte representation, so
// that Tree[K] can serialize a snapshot without knowing anything about K
// beyond Compare. Marshal must round-trip through Unmarshal exactly: the
// snapshot format stores only the encoded bytes, not the original value.
type KeyCodec[K any] interface {
	Marshal(key K) ([]byte, error)
	Unmarshal(data []byte) (K, error)
}

// BytesKeyCodec is the identity codec for []byte keys, the common case for
// a content-addressed store keyed by a chunk hash or path digest.
type BytesKeyCodec struct{}

func (BytesKeyCodec) Marshal(key []byte) ([]byte, error) { return key, nil }

func (BytesKeyCodec) Unmarshal(data []byte) ([]byte, error) {
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}
