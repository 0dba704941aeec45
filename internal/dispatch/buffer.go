package dispatch

import "sync/atomic"

// Buffer is a reference-counted encoded argument. Encoder Gateway creates
// them, SingleExecutor (via RetryDriver) consumes them, ScriptCache may take
// a deep copy of them when it needs to re-drive a command after NOSCRIPT.
type Buffer struct {
	b    []byte
	refs *int32
}

// NewBuffer wraps b with an initial reference count of 1. b is not copied;
// callers that need an independent copy should use DeepCopy.
func NewBuffer(b []byte) *Buffer {
	n := int32(1)
	return &Buffer{b: b, refs: &n}
}

// Bytes returns the underlying encoded bytes.
func (b *Buffer) Bytes() []byte {
	if b == nil {
		return nil
	}
	return b.b
}

// Retain increments the reference count and returns b for chaining.
func (b *Buffer) Retain() *Buffer {
	atomic.AddInt32(b.refs, 1)
	return b
}

// Release decrements the reference count. It is safe to call only once per
// retain/creation; callers that need exactly-once release semantics across
// branching control flow should use ArgList, not call Release directly.
func (b *Buffer) Release() int32 {
	return atomic.AddInt32(b.refs, -1)
}

// DeepCopy returns an independent Buffer with its own backing array and its
// own reference count of 1, used by ScriptCache to survive the first
// attempt consuming (and releasing) the original buffers.
func (b *Buffer) DeepCopy() *Buffer {
	cp := make([]byte, len(b.b))
	copy(cp, b.b)
	return NewBuffer(cp)
}
