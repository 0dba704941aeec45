package dispatch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func evalArgs(script, keyCount, key string) *ArgList {
	return NewArgList(NewBuffer([]byte(script)), NewBuffer([]byte(keyCount)), NewBuffer([]byte(key)))
}

func TestScriptCacheRewritesEvalToEvalsha(t *testing.T) {
	script := "return 1"
	sum := sha1.Sum([]byte(script))
	sha := hex.EncodeToString(sum[:])

	var sawCmd string
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		sawCmd = cmd.Name
		assert.Equal(t, sha, string(args.Buffers[0].Bytes()))
		return "1", nil
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	cache := NewScriptCache(true, 500, driver, nil)

	promise := NewReplyPromise()
	cache.Dispatch(context.Background(), ByClient(client), NewCommand("EVAL", nil, nil), evalArgs(script, "1", "k"), promise, RetryOptions{Attempts: 1, Interval: time.Millisecond})

	value, err := promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "1", value)
	assert.Equal(t, "EVALSHA", sawCmd)
}

func TestScriptCacheFallsBackOnNoScript(t *testing.T) {
	script := "return 2"
	attempt := 0
	client := newFakeClient("node-0", true,
		func(cmd Command, args *ArgList) (interface{}, error) {
			attempt++
			return nil, &DispatchError{Kind: KindScriptMissing, Message: "NOSCRIPT No matching script"}
		},
		func(cmd Command, args *ArgList) (interface{}, error) {
			attempt++
			assert.Equal(t, "SCRIPT LOAD", cmd.Name)
			return "OK", nil
		},
		func(cmd Command, args *ArgList) (interface{}, error) {
			attempt++
			assert.Equal(t, "EVALSHA", cmd.Name)
			require.GreaterOrEqual(t, len(args.Buffers), 1)
			return "2", nil
		},
	)
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	cache := NewScriptCache(true, 500, driver, nil)

	promise := NewReplyPromise()
	cache.Dispatch(context.Background(), ByClient(client), NewCommand("EVAL", nil, nil), evalArgs(script, "1", "k"), promise, RetryOptions{Attempts: 1, Interval: time.Millisecond})

	value, err := promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "2", value)
	assert.Equal(t, 3, attempt, "evalsha attempt, script load, evalsha retry")
}

func TestScriptCachePassesThroughNonEvalCommands(t *testing.T) {
	var sawCmd string
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		sawCmd = cmd.Name
		return "PONG", nil
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	driver := NewRetryDriver(NewSingleExecutor(mgr, nil))
	cache := NewScriptCache(true, 500, driver, nil)

	promise := NewReplyPromise()
	cache.Dispatch(context.Background(), ByClient(client), NewCommand("PING", nil, nil), NewArgList(), promise, RetryOptions{Attempts: 1, Interval: time.Millisecond})

	_, err := promise.Result()
	require.NoError(t, err)
	assert.Equal(t, "PING", sawCmd)
}

func TestScriptDigestTableEvictsLeastRecentlyUsed(t *testing.T) {
	table := newScriptDigestTable(2)
	table.Put("a", "sha-a")
	table.Put("b", "sha-b")
	table.Get("a") // touch a, making b the LRU victim
	table.Put("c", "sha-c")

	_, stillPresent := table.Get("a")
	assert.True(t, stillPresent)
	_, bStillPresent := table.Get("b")
	assert.False(t, bStillPresent)
}
