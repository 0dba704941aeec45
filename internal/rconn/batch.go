package rconn

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"

	"github.com/shardkv/client/internal/dispatch"
)

// queuedCmd pairs a queued go-redis command with the promise it must
// resolve once the pipeline flushes.
type queuedCmd struct {
	cmd     *redis.Cmd
	promise *dispatch.ReplyPromise
	client  *Client
}

// PipelineBatch is the concrete dispatch.BatchExecutor: ReadAsync/
// WriteAsync queue a Cmder per entry's master (reads may later be pointed
// at a replica; this reference implementation always reads the master,
// matching the default ReadOnly=false cluster config) and ExecuteAsync
// flushes every per-entry pipeline in one round-trip, demultiplexing
// replies back to each queued promise in order.
type PipelineBatch struct {
	mu        sync.Mutex
	pipelines map[string]redis.Pipeliner
	queued    map[string][]*queuedCmd
}

// NewPipelineBatch builds an empty batch. A fresh PipelineBatch should be
// built per logical batched-dispatch call; it is not meant to be reused
// across calls.
func NewPipelineBatch() *PipelineBatch {
	return &PipelineBatch{
		pipelines: make(map[string]redis.Pipeliner),
		queued:    make(map[string][]*queuedCmd),
	}
}

func (b *PipelineBatch) queue(ctx context.Context, entry dispatch.Entry, cmd dispatch.Command, args *dispatch.ArgList) *dispatch.ReplyPromise {
	promise := dispatch.NewReplyPromise()

	client, ok := entry.Master().(*Client)
	if !ok {
		promise.Fail(&dispatch.DispatchError{Kind: dispatch.KindServerError, Message: "rconn: batch entry master is not an rconn.Client"})
		return promise
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	pipe, ok := b.pipelines[entry.Addr()]
	if !ok {
		pipe = client.rdb.Pipeline()
		b.pipelines[entry.Addr()] = pipe
	}

	argv := make([]interface{}, 0, len(args.Bytes())+1)
	argv = append(argv, cmd.Name)
	for _, a := range args.Bytes() {
		argv = append(argv, a)
	}
	redisCmd := redis.NewCmd(ctx, argv...)
	pipe.Process(ctx, redisCmd)

	b.queued[entry.Addr()] = append(b.queued[entry.Addr()], &queuedCmd{cmd: redisCmd, promise: promise, client: client})
	args.Release()
	return promise
}

// ReadAsync queues a read command against entry's pipeline.
func (b *PipelineBatch) ReadAsync(ctx context.Context, entry dispatch.Entry, codec dispatch.Codec, cmd dispatch.Command, args *dispatch.ArgList) *dispatch.ReplyPromise {
	return b.queue(ctx, entry, cmd, args)
}

// WriteAsync queues a write command against entry's pipeline.
func (b *PipelineBatch) WriteAsync(ctx context.Context, entry dispatch.Entry, codec dispatch.Codec, cmd dispatch.Command, args *dispatch.ArgList) *dispatch.ReplyPromise {
	return b.queue(ctx, entry, cmd, args)
}

// ExecuteAsync flushes every per-entry pipeline concurrently and resolves
// each queued promise from its command's own result/error.
func (b *PipelineBatch) ExecuteAsync(ctx context.Context) error {
	b.mu.Lock()
	pipelines := b.pipelines
	queued := b.queued
	b.mu.Unlock()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error

	for addr, pipe := range pipelines {
		addr, pipe := addr, pipe
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := pipe.Exec(ctx)
			if err != nil && err != redis.Nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
			}
			for _, qc := range queued[addr] {
				val, cmdErr := qc.cmd.Result()
				if cmdErr != nil && cmdErr != redis.Nil {
					qc.promise.Fail(qc.client.classifyError(cmdErr))
					continue
				}
				qc.promise.Complete(val)
			}
		}()
	}
	wg.Wait()
	return firstErr
}
