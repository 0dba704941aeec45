package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDriverExhaustsRetryBudgetThenFails(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, connectionError(assertError{"down"})
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	driver.Run(context.Background(), ByClient(client), NewCommand("GET", nil, nil), args, promise, RetryOptions{
		Attempts: 2,
		Interval: time.Millisecond,
	})

	_, err := promise.Result()
	require.Error(t, err)
	assert.Equal(t, 3, client.callCount(), "initial attempt plus 2 retries")
	assert.Equal(t, int32(0), *args.Buffers[0].refs, "args must be released on terminal failure")
}

func TestRetryDriverNoRetryOverrideStopsAfterOneAttempt(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, connectionError(assertError{"down"})
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	driver.Run(context.Background(), ByClient(client), NewCommand("GET", nil, nil), args, promise, RetryOptions{
		Attempts: 5,
		Interval: time.Millisecond,
		NoRetry:  true,
	})

	_, err := promise.Result()
	require.Error(t, err)
	assert.Equal(t, 1, client.callCount(), "noRetry must stop after a single attempt")
}

func TestRetryDriverRedirectResetsRetryBudget(t *testing.T) {
	target := newFakeClient("node-1", true,
		func(cmd Command, args *ArgList) (interface{}, error) {
			return nil, connectionError(assertError{"transient"}) // needs the budget the redirect restored
		},
		func(cmd Command, args *ArgList) (interface{}, error) {
			return "OK", nil
		},
	)
	source := newFakeClient("node-0", true,
		func(cmd Command, args *ArgList) (interface{}, error) {
			return nil, connectionError(assertError{"transient"}) // consumes 1 of 1 retries
		},
		func(cmd Command, args *ArgList) (interface{}, error) {
			return nil, NewRedirectError(false, "node-1", target) // then redirects
		},
	)
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: source}, &fakeEntry{addr: "node-1", master: target})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	driver.Run(context.Background(), ByClient(source), NewCommand("GET", nil, nil), args, promise, RetryOptions{
		Attempts: 1,
		Interval: time.Millisecond,
	})

	value, err := promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "OK", value)
	assert.Equal(t, 2, source.callCount())
	assert.Equal(t, 2, target.callCount(), "target retried once after the redirect reset the budget")
}

func TestRetryDriverIgnoreRedirectPropagatesToCaller(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, NewRedirectError(true, "node-1", newFakeClient("node-1", false))
	})
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	driver.Run(context.Background(), ByClient(client), NewCommand("GET", nil, nil), args, promise, RetryOptions{
		Attempts:       1,
		Interval:       time.Millisecond,
		IgnoreRedirect: true,
	})

	_, err := promise.Result()
	var redirect *RedirectError
	require.ErrorAs(t, err, &redirect)
	assert.True(t, redirect.Ask)

	// Ownership of args returns to the caller on an ignored redirect.
	assert.Equal(t, int32(1), *args.Buffers[0].refs)
	args.Release()
}
