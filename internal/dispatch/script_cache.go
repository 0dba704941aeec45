package dispatch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
)

// ScriptCache rewrites EVAL into EVALSHA against a digest table, falling
// back to SCRIPT LOAD + retry on NOSCRIPT (spec.md §4.5). It is activated
// only when enabled in configuration and the command's wire name is EVAL;
// anything else passes straight through to RetryDriver with the literal
// script text as the first argument.
type ScriptCache struct {
	enabled bool
	table   *scriptDigestTable
	driver  *RetryDriver
	metrics *Metrics
}

// NewScriptCache builds a cache of the given capacity. enabled mirrors the
// configuration toggle; when false, Dispatch always takes the pass-through
// path. metrics may be nil.
func NewScriptCache(enabled bool, capacity int, driver *RetryDriver, metrics *Metrics) *ScriptCache {
	return &ScriptCache{enabled: enabled, table: newScriptDigestTable(capacity), driver: driver, metrics: metrics}
}

// Dispatch runs the EVAL/EVALSHA flow (or passes through for any other
// command, or when the cache is disabled) and completes promise exactly
// once.
func (s *ScriptCache) Dispatch(ctx context.Context, source NodeSource, cmd Command, args *ArgList, promise *ReplyPromise, opts RetryOptions) {
	if !s.enabled || cmd.Name != "EVAL" || len(args.Buffers) < 2 {
		s.driver.Run(ctx, source, cmd, args, promise, opts)
		return
	}

	scriptText := string(args.Buffers[0].Bytes())
	sha, ok := s.table.Get(scriptText)
	if ok && s.metrics != nil {
		s.metrics.ScriptCacheHits.Inc()
	}
	if !ok {
		sum := sha1.Sum([]byte(scriptText))
		sha = hex.EncodeToString(sum[:])
		s.table.Put(scriptText, sha)
	}

	pps := args.DeepCopy()

	// The original scriptText buffer is never sent again (EVALSHA carries
	// the digest instead); release it now and transfer args' remaining
	// keys/params buffers wholesale into evalshaArgs.
	args.Buffers[0].Release()
	evalshaArgs := NewArgList(append([]*Buffer{NewBuffer([]byte(sha))}, args.Buffers[1:]...)...)
	evalshaCmd := cmd.WithName("EVALSHA")

	firstOpts := opts
	firstOpts.NoRetry = true

	attemptPromise := NewReplyPromise()
	s.driver.Run(ctx, source, evalshaCmd, evalshaArgs, attemptPromise, firstOpts)

	value, err := attemptPromise.Result()
	if err == nil {
		pps.Release()
		promise.Complete(value)
		return
	}

	if !IsNoScript(err) {
		evalshaArgs.Release() // no-op unless an ignored redirect handed it back
		pps.Release()
		promise.Fail(err)
		return
	}

	loadClient, resolveErr := source.Resolve(s.driver.exec.mgr, opts.ReadOnly)
	if resolveErr != nil {
		pps.Release()
		promise.Fail(unexpectedWrapper(resolveErr))
		return
	}
	loadArgs := NewArgList(NewBuffer([]byte(scriptText)))
	if s.metrics != nil {
		s.metrics.ScriptLoadsTotal.Inc()
	}
	_, loadErr := loadClient.Execute(ctx, NewCommand("SCRIPT LOAD", nil, nil), loadArgs)
	loadArgs.Release()
	if loadErr != nil {
		pps.Release()
		promise.Fail(serverError(loadErr))
		return
	}

	s.table.Put(scriptText, sha)

	// pps[0] was the raw script text; EVALSHA never sends it, so its copy
	// is released here and the remaining keys/params buffers transfer to
	// retryArgs, which becomes pps's sole remaining owner.
	pps.Buffers[0].Release()
	retryArgs := NewArgList(append([]*Buffer{NewBuffer([]byte(sha))}, pps.Buffers[1:]...)...)
	pinnedSource := ByClient(loadClient)
	s.driver.Run(ctx, pinnedSource, evalshaCmd, retryArgs, promise, opts)
	retryArgs.Release() // no-op unless an ignored redirect handed it back
}
