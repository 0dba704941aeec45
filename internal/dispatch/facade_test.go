package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFacadeSyncGetRoundTrips(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) { return "PONG", nil })
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	facade := NewCommandFacade(mgr, RetryOptions{Attempts: 1, Interval: time.Millisecond, AttemptTimeout: time.Second}, false, 500, nil)

	promise := facade.ReadKey(context.Background(), "k", NewCommand("GET", nil, nil), NewArgList())
	value, err := facade.SyncGet(context.Background(), promise)
	require.NoError(t, err)
	assert.Equal(t, "PONG", value)
}

func TestFacadeSyncGetRefusesFromLoopGoroutine(t *testing.T) {
	client := newFakeClient("node-0", true)
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	facade := NewCommandFacade(mgr, RetryOptions{Attempts: 1, Interval: time.Millisecond, AttemptTimeout: time.Second}, false, 500, nil)

	promise := facade.ReadKey(context.Background(), "k", NewCommand("GET", nil, nil), NewArgList())

	loopCtx := WithLoopMarker(context.Background())
	_, err := facade.SyncGet(loopCtx, promise)
	assert.Same(t, ErrSyncFromLoop, err)
}

func TestFacadeSyncSubscribeTimesOutWithDedicatedBudget(t *testing.T) {
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: newFakeClient("node-0", true)})
	facade := NewCommandFacade(mgr, RetryOptions{Attempts: 0, Interval: time.Millisecond, AttemptTimeout: time.Millisecond}, false, 500, nil)

	promise := NewReplyPromise() // never completed, simulating a subscription that never confirms
	_, err := facade.SyncSubscribe(context.Background(), promise)
	require.Error(t, err)
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindSubscribeTimeout, derr.Kind)
}

func TestFacadeEvalGoesThroughScriptCache(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		assert.Equal(t, "EVALSHA", cmd.Name)
		return "1", nil
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	facade := NewCommandFacade(mgr, RetryOptions{Attempts: 1, Interval: time.Millisecond, AttemptTimeout: time.Second}, true, 500, nil)

	promise := facade.Eval(context.Background(), "k", NewCommand("EVAL", nil, nil), evalArgs("return 1", "1", "k"))
	value, err := facade.SyncGet(context.Background(), promise)
	require.NoError(t, err)
	assert.Equal(t, "1", value)
}
