package dispatch

import (
	"context"
	"time"
)

type loopMarkerKey struct{}

// WithLoopMarker tags ctx as running on the transport's event-loop
// goroutine. Go has no addressable "thread name" the way the original
// runtime does, so a context value is the idiomatic stand-in: it travels
// with the call the same way a thread-local would, and the sync bridges
// below check it the same way.
func WithLoopMarker(ctx context.Context) context.Context {
	return context.WithValue(ctx, loopMarkerKey{}, true)
}

func isLoopGoroutine(ctx context.Context) bool {
	v, _ := ctx.Value(loopMarkerKey{}).(bool)
	return v
}

// CommandFacade is the thin, stable surface spec.md §4.8 describes:
// overloads on NodeSource provenance all reduce to the selector plus
// ScriptCache/RetryDriver machinery, and two synchronous bridges sit on
// top for callers that want to block.
type CommandFacade struct {
	mgr             ConnectionManager
	selector        *NodeSelector
	scripts         *ScriptCache
	driver          *RetryDriver
	scatter         *Scatter
	blocking        *BlockingPollEmulator
	builder         ReferenceBuilder
	retryOpts       RetryOptions
	subscribeBudget time.Duration
}

// NewCommandFacade wires the full component chain: NodeSelector over mgr,
// SingleExecutor/RetryDriver over mgr, ScriptCache over the driver, Scatter
// for fan-out, and BlockingPollEmulator for multi-queue blocking pops, all
// sharing opts as the default retry policy. metrics may be nil to disable
// instrumentation entirely.
func NewCommandFacade(mgr ConnectionManager, opts RetryOptions, scriptCacheEnabled bool, scriptCacheCapacity int, metrics *Metrics) *CommandFacade {
	exec := NewSingleExecutor(mgr, metrics)
	driver := NewRetryDriver(exec)
	return &CommandFacade{
		mgr:             mgr,
		selector:        NewNodeSelector(mgr),
		scripts:         NewScriptCache(scriptCacheEnabled, scriptCacheCapacity, driver, metrics),
		driver:          driver,
		scatter:         NewScatter(mgr, driver),
		blocking:        NewBlockingPollEmulator(mgr, driver),
		retryOpts:       opts,
		subscribeBudget: opts.Interval*time.Duration(opts.Attempts) + opts.AttemptTimeout,
	}
}

// SetReferenceBuilder wires an optional ReferenceBuilder into the facade's
// encoder gateway (EncodeValue/WriteKeyValue); nil (the default) means no
// value is ever substituted with a reference.
func (f *CommandFacade) SetReferenceBuilder(builder ReferenceBuilder) {
	f.builder = builder
}

// EncodeValue runs value through the encoder gateway (encoder.go): an
// optional ReferenceBuilder substitution followed by the manager's codec.
func (f *CommandFacade) EncodeValue(value interface{}) (*Buffer, error) {
	return EncodeValue(f.mgr.Codec(), f.builder, value)
}

// ReadKey dispatches a read command addressed by a string key, routing to a
// replica when the entry has one (spec.md §4.3's readOnlyMode).
func (f *CommandFacade) ReadKey(ctx context.Context, key string, cmd Command, args *ArgList) *ReplyPromise {
	opts := f.retryOpts
	opts.ReadOnly = true
	return f.dispatch(ctx, f.selector.ForKey(key), cmd, args, opts)
}

// WriteKey dispatches a write command addressed by a string key, always at
// the entry's master.
func (f *CommandFacade) WriteKey(ctx context.Context, key string, cmd Command, args *ArgList) *ReplyPromise {
	return f.dispatch(ctx, f.selector.ForKey(key), cmd, args, f.retryOpts)
}

// WriteKeyValue runs value through the encoder gateway and dispatches a
// write command carrying key and the encoded value as wire arguments.
func (f *CommandFacade) WriteKeyValue(ctx context.Context, key string, cmd Command, value interface{}) (*ReplyPromise, error) {
	valueBuf, err := f.EncodeValue(value)
	if err != nil {
		return nil, err
	}
	args := NewArgList(NewBuffer([]byte(key)), valueBuf)
	return f.WriteKey(ctx, key, cmd, args), nil
}

// ReadBytes dispatches a read command addressed by a raw byte-array key.
func (f *CommandFacade) ReadBytes(ctx context.Context, key []byte, cmd Command, args *ArgList) *ReplyPromise {
	return f.dispatch(ctx, f.selector.ForBytes(key), cmd, args, f.retryOpts)
}

// ReadEntry dispatches against an already-resolved entry handle.
func (f *CommandFacade) ReadEntry(ctx context.Context, entry Entry, cmd Command, args *ArgList) *ReplyPromise {
	return f.dispatch(ctx, f.selector.ForEntry(entry), cmd, args, f.retryOpts)
}

// ReadClient dispatches against a bare client handle (used by higher-level
// facades that have already picked a specific node, e.g. replica reads).
func (f *CommandFacade) ReadClient(ctx context.Context, client Client, cmd Command, args *ArgList) *ReplyPromise {
	return f.dispatch(ctx, f.selector.ForClient(client), cmd, args, f.retryOpts)
}

// Eval dispatches an EVAL command through the script cache. Like dispatch,
// the EVALSHA→NOSCRIPT→SCRIPT LOAD→retry round trip runs on its own
// goroutine so the caller's thread never blocks on it (spec.md §5).
func (f *CommandFacade) Eval(ctx context.Context, key string, cmd Command, args *ArgList) *ReplyPromise {
	promise := NewReplyPromise()
	go f.scripts.Dispatch(ctx, f.selector.ForKey(key), cmd, args, promise, f.retryOpts)
	return promise
}

func (f *CommandFacade) dispatch(ctx context.Context, source NodeSource, cmd Command, args *ArgList, opts RetryOptions) *ReplyPromise {
	promise := NewReplyPromise()
	go f.driver.Run(ctx, source, cmd, args, promise, opts)
	return promise
}

// ReadAllAsync scatters cmd across every entry via clientFor/argsFor and
// completes promise once every node has replied, aggregating via cb (or the
// default flattening aggregator when cb is nil).
func (f *CommandFacade) ReadAllAsync(ctx context.Context, cmd Command, clientFor func(Entry) Client, argsFor func(Entry) *ArgList, cb SlotCallback[interface{}, interface{}]) *ReplyPromise {
	promise := NewReplyPromise()
	go f.scatter.AllNodes(ctx, f.retryOpts, cmd, clientFor, argsFor, cb, promise)
	return promise
}

// WriteAllAsync is ReadAllAsync's write counterpart: every entry's master,
// never a replica.
func (f *CommandFacade) WriteAllAsync(ctx context.Context, cmd Command, argsFor func(Entry) *ArgList, cb SlotCallback[interface{}, interface{}]) *ReplyPromise {
	promise := NewReplyPromise()
	clientFor := func(e Entry) Client { return e.Master() }
	go f.scatter.AllNodes(ctx, f.retryOpts, cmd, clientFor, argsFor, cb, promise)
	return promise
}

// EvalWriteAllAsync is WriteAllAsync for an EVAL payload: each node
// independently goes through the script cache instead of the bare retry
// driver.
func (f *CommandFacade) EvalWriteAllAsync(ctx context.Context, cmd Command, argsFor func(Entry) *ArgList, cb SlotCallback[interface{}, interface{}]) *ReplyPromise {
	promise := NewReplyPromise()
	clientFor := func(e Entry) Client { return e.Master() }
	go f.scatter.AllNodesEval(ctx, f.retryOpts, f.scripts, cmd, clientFor, argsFor, cb, promise)
	return promise
}

// ReadRandomAsync tries clients in random order, stopping at the first
// non-null result (spec.md §4.6's readRandomAsync).
func (f *CommandFacade) ReadRandomAsync(ctx context.Context, clients []Client, cmd Command, args *ArgList) *ReplyPromise {
	promise := NewReplyPromise()
	go f.scatter.RandomSequential(ctx, f.retryOpts, cmd, clients, args, promise)
	return promise
}

// ReadBatchedAsync dispatches groups (pre-split by owning entry/slot) as a
// single cross-slot batch, pipelined through batch when non-nil.
func (f *CommandFacade) ReadBatchedAsync(ctx context.Context, cmd Command, groups []BatchGroup, batch BatchExecutor, cb SlotCallback[interface{}, interface{}]) *ReplyPromise {
	promise := NewReplyPromise()
	go f.scatter.Batched(ctx, f.retryOpts, cmd, groups, batch, cb, promise)
	return promise
}

// WriteBatchedAsync is ReadBatchedAsync's write counterpart; routing to
// master vs. replica is already encoded in how groups was built.
func (f *CommandFacade) WriteBatchedAsync(ctx context.Context, cmd Command, groups []BatchGroup, batch BatchExecutor, cb SlotCallback[interface{}, interface{}]) *ReplyPromise {
	return f.ReadBatchedAsync(ctx, cmd, groups, batch, cb)
}

// BlockingPop dispatches a multi-queue blocking pop: forwarded natively to
// the backend in non-cluster mode, emulated via rotating non-blocking polls
// in cluster mode (blocking.go).
func (f *CommandFacade) BlockingPop(ctx context.Context, queues []string, seconds int, nativeCmd Command, pollCmd func(queue string) Command, args *ArgList) *ReplyPromise {
	promise := NewReplyPromise()
	source := f.selector.ForKey(queues[0])
	go f.blocking.Pop(ctx, source, nativeCmd, pollCmd, queues, seconds, args, promise)
	return promise
}

// SyncGet awaits promise and unwraps its result. It refuses to run on a
// goroutine marked via WithLoopMarker: calling it there would deadlock the
// loop waiting on a reply the loop itself is responsible for delivering.
func (f *CommandFacade) SyncGet(ctx context.Context, promise *ReplyPromise) (interface{}, error) {
	if isLoopGoroutine(ctx) {
		return nil, ErrSyncFromLoop
	}
	return promise.Await(ctx)
}

// SyncSubscribe awaits promise with the dedicated subscription timeout
// budget (timeout + retryInterval*retryAttempts). On timeout it fails the
// underlying promise with a subscribe-timeout error before returning it.
func (f *CommandFacade) SyncSubscribe(ctx context.Context, promise *ReplyPromise) (interface{}, error) {
	if isLoopGoroutine(ctx) {
		return nil, ErrSyncFromLoop
	}
	budgetCtx, cancel := context.WithTimeout(ctx, f.subscribeBudget)
	defer cancel()

	value, err := promise.Await(budgetCtx)
	if err == context.DeadlineExceeded {
		subErr := subscribeTimeout()
		promise.Fail(subErr)
		return nil, subErr
	}
	return value, err
}

// SyncGetInterruptible is the interruptible variant: cancelling ctx fails
// the promise with the interrupt classification and the cancellation is
// rethrown to the caller, matching spec.md §5's interrupt-handling
// contract for the interruptible bridge.
func (f *CommandFacade) SyncGetInterruptible(ctx context.Context, promise *ReplyPromise) (interface{}, error) {
	if isLoopGoroutine(ctx) {
		return nil, ErrSyncFromLoop
	}
	value, err := promise.Await(ctx)
	if err == context.Canceled || err == context.DeadlineExceeded {
		promise.Fail(interruptedError())
		return nil, err
	}
	return value, err
}
