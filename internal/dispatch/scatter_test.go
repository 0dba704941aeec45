package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScatterAllNodesAggregatesEveryEntry(t *testing.T) {
	c0 := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) { return "v0", nil })
	c1 := newFakeClient("node-1", true, func(cmd Command, args *ArgList) (interface{}, error) { return "v1", nil })
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: c0}, &fakeEntry{addr: "node-1", master: c1})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	scatter := NewScatter(mgr, driver)

	promise := NewReplyPromise()
	scatter.AllNodes(context.Background(), RetryOptions{Attempts: 1, Interval: time.Millisecond}, NewCommand("PING", nil, nil),
		func(e Entry) Client { return e.Master() },
		func(e Entry) *ArgList { return NewArgList() },
		nil, promise)

	value, err := promise.Result()
	require.NoError(t, err)
	results, ok := value.([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"v0", "v1"}, results)
}

func TestScatterAllNodesFailsOnFirstNonRedirectError(t *testing.T) {
	c0 := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, serverError(assertError{"boom"})
	})
	c1 := newFakeClient("node-1", true, func(cmd Command, args *ArgList) (interface{}, error) { return "v1", nil })
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: c0}, &fakeEntry{addr: "node-1", master: c1})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	scatter := NewScatter(mgr, driver)

	promise := NewReplyPromise()
	scatter.AllNodes(context.Background(), RetryOptions{Attempts: 1, Interval: time.Millisecond}, NewCommand("GET", nil, nil),
		func(e Entry) Client { return e.Master() },
		func(e Entry) *ArgList { return NewArgList() },
		nil, promise)

	_, err := promise.Result()
	require.Error(t, err)
}

func TestScatterRandomSequentialStopsAtFirstNonNull(t *testing.T) {
	c0 := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) { return nil, nil })
	c1 := newFakeClient("node-1", true, func(cmd Command, args *ArgList) (interface{}, error) { return "found", nil })
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: c0}, &fakeEntry{addr: "node-1", master: c1})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	scatter := NewScatter(mgr, driver)

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	scatter.RandomSequential(context.Background(), RetryOptions{Attempts: 1, Interval: time.Millisecond}, NewCommand("GET", nil, nil), []Client{c0, c1}, args, promise)

	value, err := promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "found", value)
}

func TestScatterRandomSequentialAllNullReturnsNull(t *testing.T) {
	c0 := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) { return nil, nil })
	c1 := newFakeClient("node-1", true, func(cmd Command, args *ArgList) (interface{}, error) { return nil, nil })
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: c0}, &fakeEntry{addr: "node-1", master: c1})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	scatter := NewScatter(mgr, driver)

	promise := NewReplyPromise()
	args := NewArgList(NewBuffer([]byte("k")))
	scatter.RandomSequential(context.Background(), RetryOptions{Attempts: 1, Interval: time.Millisecond}, NewCommand("GET", nil, nil), []Client{c0, c1}, args, promise)

	value, err := promise.Result()
	require.NoError(t, err)
	assert.Nil(t, value)
}

func TestScatterBatchedGroupsByEntry(t *testing.T) {
	c0 := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) { return "g0", nil })
	c1 := newFakeClient("node-1", true, func(cmd Command, args *ArgList) (interface{}, error) { return "g1", nil })
	e0 := &fakeEntry{addr: "node-0", master: c0}
	e1 := &fakeEntry{addr: "node-1", master: c1}
	mgr := newFakeManager(true, e0, e1)
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	scatter := NewScatter(mgr, driver)

	groups := []BatchGroup{
		{Entry: e0, Slot: 1, Args: NewArgList(NewBuffer([]byte("k0")))},
		{Entry: e1, Slot: 9000, Args: NewArgList(NewBuffer([]byte("k1")))},
	}

	promise := NewReplyPromise()
	scatter.Batched(context.Background(), RetryOptions{Attempts: 1, Interval: time.Millisecond}, NewCommand("MGET", nil, nil), groups, nil, nil, promise)

	value, err := promise.Result()
	require.NoError(t, err)
	results, ok := value.([]interface{})
	require.True(t, ok)
	assert.ElementsMatch(t, []interface{}{"g0", "g1"}, results)
}
