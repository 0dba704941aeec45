package dispatch

import "fmt"

// Encoder turns a user value into a wire-ready Buffer, or fails with an
// invalid-argument error (never retriable).
type Encoder func(value interface{}) (*Buffer, error)

// Codec supplies the three encoders spec.md's data model names: a generic
// value encoder and map-key/map-value encoders used by hash-shaped
// commands. The dispatch core never inspects the encoded bytes itself.
type Codec interface {
	ValueEncoder() Encoder
	MapKeyEncoder() Encoder
	MapValueEncoder() Encoder
}

// ReferenceBuilder is the optional hook that substitutes a user value with
// a persistent reference before encoding (object-reference transformation
// is out of scope here; only the hook is specified, per spec.md §1).
type ReferenceBuilder interface {
	// ToReference returns the replacement value and true if value is
	// convertible to a persistent reference, or (nil, false) otherwise.
	ToReference(value interface{}) (interface{}, bool)
}

// BytesCodec is a reference Codec implementation: values must already be
// []byte, string or *Buffer. []byte and string values are copied into a new
// Buffer; a *Buffer is returned as-is, without a copy. It exists so the
// dispatch core's own tests (and simple callers) don't need a real wire
// codec — the typed facades above this layer own that concern.
type BytesCodec struct{}

func (BytesCodec) ValueEncoder() Encoder    { return encodeBytesLike }
func (BytesCodec) MapKeyEncoder() Encoder   { return encodeBytesLike }
func (BytesCodec) MapValueEncoder() Encoder { return encodeBytesLike }

func encodeBytesLike(value interface{}) (*Buffer, error) {
	switch v := value.(type) {
	case []byte:
		cp := make([]byte, len(v))
		copy(cp, v)
		return NewBuffer(cp), nil
	case string:
		return NewBuffer([]byte(v)), nil
	case *Buffer:
		return v, nil
	default:
		return nil, &DispatchError{
			Kind:    KindInvalidArgument,
			Message: fmt.Sprintf("bytescodec: unsupported value type %T", value),
		}
	}
}
