package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// ReplyPromise is a single-completion future: it completes exactly once,
// with either a value or a classified error, and supports cancellation and
// a try-fail primitive so multiple goroutines racing to fail it (e.g. a
// scatter/gather fan-out) never panic on a double-complete.
//
// Each promise is stamped with a correlation ID so logs across the
// attempt/retry/redirect chain can be tied back to one logical command.
type ReplyPromise struct {
	ID uuid.UUID

	done  chan struct{}
	once  sync.Once
	mu    sync.Mutex
	value interface{}
	err   error

	cancelled int32
}

// NewReplyPromise creates a fresh, incomplete promise.
func NewReplyPromise() *ReplyPromise {
	return &ReplyPromise{ID: uuid.New(), done: make(chan struct{})}
}

// Complete resolves the promise with a success value. Returns false if the
// promise was already completed.
func (p *ReplyPromise) Complete(value interface{}) bool {
	return p.finish(value, nil)
}

// Fail resolves the promise with a classified error. Returns false if the
// promise was already completed.
func (p *ReplyPromise) Fail(err error) bool {
	return p.finish(nil, err)
}

// TryFail is Fail's explicit name for call sites that race to fail a
// promise from multiple goroutines and only care about "did I win".
func (p *ReplyPromise) TryFail(err error) bool {
	return p.Fail(err)
}

func (p *ReplyPromise) finish(value interface{}, err error) bool {
	won := false
	p.once.Do(func() {
		p.mu.Lock()
		p.value, p.err = value, err
		p.mu.Unlock()
		close(p.done)
		won = true
	})
	return won
}

// Cancel tries to fail the promise with a cancellation error. It makes no
// promise about stopping an in-flight wire round-trip; it only unblocks
// waiters and releases whatever this promise's caller is tracking.
func (p *ReplyPromise) Cancel() bool {
	atomic.StoreInt32(&p.cancelled, 1)
	return p.Fail(cancelledError())
}

// Cancelled reports whether Cancel has been called, independent of whether
// it won the race to complete the promise.
func (p *ReplyPromise) Cancelled() bool {
	return atomic.LoadInt32(&p.cancelled) == 1
}

// Done returns a channel closed when the promise completes.
func (p *ReplyPromise) Done() <-chan struct{} {
	return p.done
}

// Result blocks until the promise completes and returns its outcome. It
// never itself times out — callers that need a deadline should use Await.
func (p *ReplyPromise) Result() (interface{}, error) {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.value, p.err
}

// Await blocks until the promise completes or ctx is done, whichever comes
// first.
func (p *ReplyPromise) Await(ctx context.Context) (interface{}, error) {
	select {
	case <-p.done:
		p.mu.Lock()
		defer p.mu.Unlock()
		return p.value, p.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
