package dispatch

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSingleExecutorClassifiesSuccess(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return "PONG", nil
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	exec := NewSingleExecutor(mgr, nil)

	attempt := exec.Execute(context.Background(), false, ByClient(client), NewCommand("PING", nil, nil), NewArgList())
	assert.Equal(t, OutcomeSuccess, attempt.Outcome)
	assert.Equal(t, "PONG", attempt.Value)
}

func TestSingleExecutorClassifiesRedirect(t *testing.T) {
	target := newFakeClient("node-1", true)
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, NewRedirectError(false, "node-1", target)
	})
	mgr := newFakeManager(true, &fakeEntry{addr: "node-0", master: client})
	exec := NewSingleExecutor(mgr, nil)

	attempt := exec.Execute(context.Background(), false, ByClient(client), NewCommand("GET", nil, nil), NewArgList())
	assert.Equal(t, OutcomeRedirect, attempt.Outcome)
	assert.False(t, attempt.Redirect.Ask)
	assert.Equal(t, "node-1", attempt.Redirect.Addr)
}

func TestSingleExecutorClassifiesConnectionErrorAsRetriable(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, connectionError(assertError{"dial refused"})
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	exec := NewSingleExecutor(mgr, nil)

	attempt := exec.Execute(context.Background(), false, ByClient(client), NewCommand("GET", nil, nil), NewArgList())
	assert.Equal(t, OutcomeRetriable, attempt.Outcome)
}

func TestSingleExecutorClassifiesNoScriptAsFatal(t *testing.T) {
	client := newFakeClient("node-0", true, func(cmd Command, args *ArgList) (interface{}, error) {
		return nil, &DispatchError{Kind: KindScriptMissing, Message: "NOSCRIPT No matching script"}
	})
	mgr := newFakeManager(false, &fakeEntry{addr: "node-0", master: client})
	exec := NewSingleExecutor(mgr, nil)

	attempt := exec.Execute(context.Background(), false, ByClient(client), NewCommand("EVALSHA", nil, nil), NewArgList())
	assert.Equal(t, OutcomeFatal, attempt.Outcome)
	assert.True(t, IsNoScript(attempt.Err))
}

type assertError struct{ msg string }

func (e assertError) Error() string { return e.msg }
