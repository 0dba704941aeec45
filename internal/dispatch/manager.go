package dispatch

import "context"

// Entry is a master-plus-replicas group that owns a contiguous range of
// slots (spec.md glossary). internal/rconn supplies the concrete
// implementation over go-redis connections.
type Entry interface {
	// Addr identifies the entry for logging and for keying per-entry
	// circuit breakers / batch executors (typically the master's address).
	Addr() string
	Master() Client
	Replicas() []Client
}

// Client is a single-node handle the dispatch core talks to. It is
// intentionally narrow: connect/pool/topology concerns live entirely in
// internal/rconn, behind this interface.
type Client interface {
	Addr() string
	IsMaster() bool

	// Execute writes cmd+args to this node and returns the decoded raw
	// reply, or a classified error (a *DispatchError, or a *RedirectError
	// for MOVED/ASK). Implementations must not retain args beyond the call.
	Execute(ctx context.Context, cmd Command, args *ArgList) (interface{}, error)
}

// ConnectionManager is the required collaborator from spec.md §6: slot to
// node mapping, connection pooling and cluster topology discovery are all
// its responsibility, not the dispatch core's.
type ConnectionManager interface {
	Codec() Codec
	ClusterMode() bool
	Entries() []Entry
	EntryForSlot(slot int) (Entry, error)
	EntryForClient(c Client) (Entry, error)
	CalcSlotString(key string) int
	CalcSlotBytes(key []byte) int

	// DefaultEntry is used when a null/empty key is routed in non-cluster
	// mode (spec.md §4.1): "a null key in non-cluster mode resolves to the
	// default master".
	DefaultEntry() Entry
}

// BatchExecutor is the required collaborator from spec.md §6: same
// readAsync/writeAsync shape as the facade, but queues rather than sends
// until ExecuteAsync flushes. internal/rconn/batch.go implements it over a
// go-redis pipeline.
type BatchExecutor interface {
	ReadAsync(ctx context.Context, entry Entry, codec Codec, cmd Command, args *ArgList) *ReplyPromise
	WriteAsync(ctx context.Context, entry Entry, codec Codec, cmd Command, args *ArgList) *ReplyPromise
	ExecuteAsync(ctx context.Context) error
}

// RedirectError signals a MOVED or ASK cluster redirection. Client
// implementations return this (never a plain server error) so SingleExecutor
// can classify it without parsing reply text itself.
type RedirectError struct {
	Ask      bool // true = ASK (transient), false = MOVED (permanent)
	Addr     string
	resolved Client // the client internal/rconn already resolved Addr to
}

// NewRedirectError builds a RedirectError with its target client already
// resolved, so RetryDriver never needs a second ConnectionManager lookup.
func NewRedirectError(ask bool, addr string, resolved Client) *RedirectError {
	return &RedirectError{Ask: ask, Addr: addr, resolved: resolved}
}

func (e *RedirectError) Error() string {
	if e.Ask {
		return "ASK " + e.Addr
	}
	return "MOVED " + e.Addr
}
