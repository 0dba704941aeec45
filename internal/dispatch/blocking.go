package dispatch

import (
	"context"
	"time"
)

// BlockingPollEmulator implements blocking multi-queue pop (spec.md §4.7).
// Non-cluster mode can forward straight to the backend's native multi-key
// blocking command; cluster mode can't, because the queues may span slots,
// so it emulates blocking by rotating non-blocking pops across the queue
// names until a value appears or the timeout budget is exhausted.
type BlockingPollEmulator struct {
	mgr       ConnectionManager
	driver    *RetryDriver
	pollEvery time.Duration
}

// NewBlockingPollEmulator builds an emulator over mgr/driver. nativeCmd and
// pollCmd are supplied per Pop call instead of fixed at construction, so one
// emulator instance serves every blocking-pop-shaped command the facade
// exposes (BLPOP/BRPOP/...), not just one.
func NewBlockingPollEmulator(mgr ConnectionManager, driver *RetryDriver) *BlockingPollEmulator {
	return &BlockingPollEmulator{
		mgr:       mgr,
		driver:    driver,
		pollEvery: 200 * time.Millisecond,
	}
}

// Pop runs the blocking pop across queues with the given seconds timeout
// and completes promise with either a result, nil (timeout exhausted with
// no value), or a classified error. nativeCmd is dispatched verbatim in
// non-cluster mode; pollCmd builds the non-blocking, count=1 pop issued per
// queue name in cluster mode.
//
// In cluster mode seconds is a countdown of full rotations, not of
// wall-clock seconds: it drops by one each time every queue has been
// polled once, and consecutive polls are spaced by pollEvery (200ms by
// default). An all-empty run therefore lasts about
// seconds * len(queues) * pollEvery.
func (b *BlockingPollEmulator) Pop(ctx context.Context, source NodeSource, nativeCmd Command, pollCmd func(queue string) Command, queues []string, seconds int, args *ArgList, promise *ReplyPromise) {
	if !b.mgr.ClusterMode() {
		b.driver.Run(ctx, source, nativeCmd, args, promise, RetryOptions{Attempts: 0, Interval: time.Second, AttemptTimeout: time.Duration(seconds) * time.Second})
		return
	}

	args.Release() // native-only payload; the cluster path re-encodes per poll
	remaining := seconds
	idx := 0

	ticker := time.NewTicker(b.pollEvery)
	defer ticker.Stop()

	for remaining > 0 {
		queue := queues[idx%len(queues)]
		cmd := pollCmd(queue)
		pollArgs := NewArgList(NewBuffer([]byte(queue)), NewBuffer([]byte("1")))

		attemptPromise := NewReplyPromise()
		b.driver.Run(ctx, source, cmd, pollArgs, attemptPromise, RetryOptions{Attempts: 0, Interval: time.Second, AttemptTimeout: 2 * time.Second})
		value, err := attemptPromise.Result()
		if err != nil {
			promise.Fail(err)
			return
		}
		if value != nil {
			promise.Complete(value)
			return
		}

		idx++
		if idx%len(queues) == 0 {
			remaining--
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			promise.Fail(interruptedError())
			return
		}
	}

	promise.Complete(nil)
}
