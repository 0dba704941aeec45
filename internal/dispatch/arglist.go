package dispatch

import "sync/atomic"

// ArgList is the owned-args abstraction described in spec design notes: a
// vector of ref-counted buffers plus exactly-once release. Ownership
// transfers wholesale between RetryDriver and ScriptCache; whichever side
// holds it when a command reaches a terminal outcome calls Release exactly
// once, no matter which branch of the control flow got there.
type ArgList struct {
	Buffers  []*Buffer
	released int32
}

// NewArgList wraps already-encoded buffers into an owned list.
func NewArgList(buffers ...*Buffer) *ArgList {
	return &ArgList{Buffers: buffers}
}

// Prepend returns a new ArgList sharing a's buffers but with extra buffers
// inserted at the front (used to turn [keys, params] into
// [sha, keys, params] without re-encoding). The returned list becomes the
// sole owner of the combined buffer set; a itself must not be released
// separately afterwards.
func (a *ArgList) Prepend(extra ...*Buffer) *ArgList {
	combined := make([]*Buffer, 0, len(extra)+len(a.Buffers))
	combined = append(combined, extra...)
	combined = append(combined, a.Buffers...)
	return &ArgList{Buffers: combined}
}

// DeepCopy returns an independent ArgList whose buffers are copies of a's,
// safe to retain even after a's buffers are released.
func (a *ArgList) DeepCopy() *ArgList {
	copies := make([]*Buffer, len(a.Buffers))
	for i, b := range a.Buffers {
		copies[i] = b.DeepCopy()
	}
	return &ArgList{Buffers: copies}
}

// Release releases every buffer exactly once. Calling Release more than
// once is safe and a no-op after the first call — this is the guard that
// makes "release exactly once across every terminal path" achievable
// without auditing every branch by hand.
func (a *ArgList) Release() {
	if a == nil {
		return
	}
	if !atomic.CompareAndSwapInt32(&a.released, 0, 1) {
		return
	}
	for _, b := range a.Buffers {
		b.Release()
	}
}

// Bytes returns the raw wire bytes for every buffer, in order, for handing
// to a Client implementation.
func (a *ArgList) Bytes() [][]byte {
	if a == nil {
		return nil
	}
	out := make([][]byte, len(a.Buffers))
	for i, b := range a.Buffers {
		out[i] = b.Bytes()
	}
	return out
}
