package dispatch

import "errors"

// EncodeValue is the encoder gateway (spec.md §4.2): given a codec and an
// optional ReferenceBuilder, it gives the builder first refusal on
// substituting value with a persistent reference, then encodes whatever
// value remains via the codec's value encoder. Encode failures are wrapped
// as KindInvalidArgument — a bad value is never retriable.
func EncodeValue(codec Codec, builder ReferenceBuilder, value interface{}) (*Buffer, error) {
	return encodeWith(codec.ValueEncoder(), builder, value)
}

// EncodeMapKey is EncodeValue for a hash-shaped command's field name.
func EncodeMapKey(codec Codec, builder ReferenceBuilder, value interface{}) (*Buffer, error) {
	return encodeWith(codec.MapKeyEncoder(), builder, value)
}

// EncodeMapValue is EncodeValue for a hash-shaped command's field value.
func EncodeMapValue(codec Codec, builder ReferenceBuilder, value interface{}) (*Buffer, error) {
	return encodeWith(codec.MapValueEncoder(), builder, value)
}

func encodeWith(enc Encoder, builder ReferenceBuilder, value interface{}) (*Buffer, error) {
	if builder != nil {
		if ref, ok := builder.ToReference(value); ok {
			value = ref
		}
	}
	buf, err := enc(value)
	if err != nil {
		var derr *DispatchError
		if errors.As(err, &derr) {
			return nil, derr
		}
		return nil, invalidArgument("encoder: %v", err)
	}
	return buf, nil
}
