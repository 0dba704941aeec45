package dispatch

import (
	"context"
	"math/rand"
	"sync"
)

// SlotCallback aggregates per-node results from a scatter/gather fan-out.
// OnSlotResult is invoked under mutual exclusion (spec.md §5's ordering
// guarantee); OnFinish runs once, after every attempt has terminated.
type SlotCallback[T any, R any] interface {
	OnSlotResult(v T)
	OnFinish() R
}

// sliceCallback is the default aggregator used when the caller supplies
// none: collect every per-node result into a slice, flattening any that are
// themselves slices (spec.md §4.6: "collection results are flattened").
type sliceCallback struct {
	mu      sync.Mutex
	results []interface{}
}

func (c *sliceCallback) OnSlotResult(v interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if items, ok := v.([]interface{}); ok {
		c.results = append(c.results, items...)
		return
	}
	c.results = append(c.results, v)
}

func (c *sliceCallback) OnFinish() []interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

// Scatter implements the three multi-node dispatch patterns of spec.md
// §4.6: all-nodes fan-out, random-sequential, and cross-slot batching.
type Scatter struct {
	mgr    ConnectionManager
	driver *RetryDriver
}

// NewScatter builds a Scatter over mgr/driver.
func NewScatter(mgr ConnectionManager, driver *RetryDriver) *Scatter {
	return &Scatter{mgr: mgr, driver: driver}
}

// AllNodes fans cmd+argsFor(entry) out to every entry's client (master for
// writes, master for reads unless readOnly routes to a replica — callers
// pick via clientFor), aggregates via cb (or the default flattening
// aggregator if cb is nil), and completes promise once every attempt has
// terminated.
func (s *Scatter) AllNodes(ctx context.Context, opts RetryOptions, cmd Command, clientFor func(Entry) Client, argsFor func(Entry) *ArgList, cb SlotCallback[interface{}, interface{}], promise *ReplyPromise) {
	entries := s.mgr.Entries()
	if cb == nil {
		cb = &sliceCallback{}
	}

	opts.IgnoreRedirect = true

	var wg sync.WaitGroup
	var firstErrOnce sync.Once
	var firstErr error

	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := clientFor(entry)
			args := argsFor(entry)
			attemptPromise := NewReplyPromise()
			s.driver.Run(ctx, ByClient(client), cmd, args, attemptPromise, opts)
			value, err := attemptPromise.Result()
			if err != nil {
				if redirect, ok := err.(*RedirectError); ok {
					args.Release() // an ignored redirect hands args back to us
					converted, cerr := cmd.Convert(redirect)
					if cerr == nil {
						cb.OnSlotResult(converted)
						return
					}
				}
				firstErrOnce.Do(func() { firstErr = err })
				return
			}
			cb.OnSlotResult(value)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		promise.Fail(firstErr)
		return
	}
	promise.Complete(cb.OnFinish())
}

// AllNodesEval is AllNodes routed through scripts instead of the bare retry
// driver, for evalWriteAllAsync: every node independently gets the EVAL→
// EVALSHA→NOSCRIPT fallback dance instead of a flat retry attempt.
func (s *Scatter) AllNodesEval(ctx context.Context, opts RetryOptions, scripts *ScriptCache, cmd Command, clientFor func(Entry) Client, argsFor func(Entry) *ArgList, cb SlotCallback[interface{}, interface{}], promise *ReplyPromise) {
	entries := s.mgr.Entries()
	if cb == nil {
		cb = &sliceCallback{}
	}
	opts.IgnoreRedirect = true

	var wg sync.WaitGroup
	var firstErrOnce sync.Once
	var firstErr error

	for _, entry := range entries {
		entry := entry
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := clientFor(entry)
			args := argsFor(entry)
			attemptPromise := NewReplyPromise()
			scripts.Dispatch(ctx, ByClient(client), cmd, args, attemptPromise, opts)
			value, err := attemptPromise.Result()
			if err != nil {
				firstErrOnce.Do(func() { firstErr = err })
				return
			}
			cb.OnSlotResult(value)
		}()
	}
	wg.Wait()

	if firstErr != nil {
		promise.Fail(firstErr)
		return
	}
	promise.Complete(cb.OnFinish())
}

// RandomSequential implements readRandomAsync: try nodes in random order,
// stop at the first non-null result, return null if every node returns
// null, fail immediately on the first error.
func (s *Scatter) RandomSequential(ctx context.Context, opts RetryOptions, cmd Command, clients []Client, args *ArgList, promise *ReplyPromise) {
	order := rand.Perm(len(clients))
	opts.IgnoreRedirect = true
	defer args.Release() // no-op if the last attempt already consumed args

	for i, idx := range order {
		client := clients[idx]
		attemptArgs := args
		if i < len(order)-1 {
			attemptArgs = args.DeepCopy()
		}
		attemptPromise := NewReplyPromise()
		s.driver.Run(ctx, ByClient(client), cmd, attemptArgs, attemptPromise, opts)
		value, err := attemptPromise.Result()
		if err != nil {
			attemptArgs.Release() // still ours if the error was an ignored redirect
			promise.Fail(err)
			return
		}
		if value != nil {
			promise.Complete(value)
			return
		}
	}
	promise.Complete(nil)
}

// BatchGroup is one (entry, slot) group produced by grouping cross-slot keys
// before a batched dispatch.
type BatchGroup struct {
	Entry Entry
	Slot  int
	Args  *ArgList
}

// Batched implements readBatchedAsync/writeBatchedAsync: in non-cluster
// mode the caller should have already collapsed to a single group; in
// cluster mode groups is produced by grouping keys by owning entry then by
// slot (CROSSLOT avoidance). Each group is submitted through batch if
// non-nil (pipelines groups sharing a connection), else through the normal
// retry path.
func (s *Scatter) Batched(ctx context.Context, opts RetryOptions, cmd Command, groups []BatchGroup, batch BatchExecutor, cb SlotCallback[interface{}, interface{}], promise *ReplyPromise) {
	if cb == nil {
		cb = &sliceCallback{}
	}
	opts.IgnoreRedirect = true

	var firstErr error
	collect := func(value interface{}, err error) {
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return
		}
		cb.OnSlotResult(value)
	}

	if batch != nil {
		// Queue every group on the shared pipeline first so one flush
		// covers the whole batch, then gather results concurrently.
		codec := s.mgr.Codec()
		promises := make([]*ReplyPromise, len(groups))
		for i, group := range groups {
			promises[i] = batch.WriteAsync(ctx, group.Entry, codec, cmd, group.Args)
		}
		if err := batch.ExecuteAsync(ctx); err != nil {
			promise.Fail(unexpectedWrapper(err))
			return
		}
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, p := range promises {
			p := p
			wg.Add(1)
			go func() {
				defer wg.Done()
				value, err := p.Result()
				mu.Lock()
				defer mu.Unlock()
				collect(value, err)
			}()
		}
		wg.Wait()
	} else {
		var mu sync.Mutex
		var wg sync.WaitGroup
		for _, group := range groups {
			group := group
			wg.Add(1)
			go func() {
				defer wg.Done()
				attemptPromise := NewReplyPromise()
				s.driver.Run(ctx, ByEntry(group.Entry), cmd, group.Args, attemptPromise, opts)
				value, err := attemptPromise.Result()
				group.Args.Release() // no-op unless an ignored redirect handed it back
				mu.Lock()
				defer mu.Unlock()
				collect(value, err)
			}()
		}
		wg.Wait()
	}

	if firstErr != nil {
		promise.Fail(firstErr)
		return
	}
	promise.Complete(cb.OnFinish())
}
