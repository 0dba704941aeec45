package dispatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplyPromiseCompletesExactlyOnce(t *testing.T) {
	p := NewReplyPromise()
	assert.True(t, p.Complete("first"))
	assert.False(t, p.Complete("second"))
	assert.False(t, p.Fail(assertError{"too late"}))

	value, err := p.Result()
	require.NoError(t, err)
	assert.Equal(t, "first", value)
}

func TestReplyPromiseCancel(t *testing.T) {
	p := NewReplyPromise()
	assert.True(t, p.Cancel())
	assert.True(t, p.Cancelled())

	_, err := p.Result()
	var derr *DispatchError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, KindCancelled, derr.Kind)
}

func TestReplyPromiseAwaitRespectsContextDeadline(t *testing.T) {
	p := NewReplyPromise()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	_, err := p.Await(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
