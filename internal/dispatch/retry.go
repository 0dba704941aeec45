package dispatch

import (
	"context"
	"time"
)

// retryState is the explicit state machine from spec.md §4.4.
type retryState int

const (
	stateIssuing retryState = iota
	stateWaiting
	stateClassifying
	stateSleeping
	stateTerminated
)

// RetryOptions controls one RetryDriver.Run call.
type RetryOptions struct {
	Attempts       int
	Interval       time.Duration
	AttemptTimeout time.Duration

	// IgnoreRedirect short-circuits redirect handling: the redirect is
	// returned to the caller as-is instead of being followed. Scatter/gather
	// sets this so it can treat a redirect as a (different kind of)
	// terminal success of the single-attempt fan-out.
	IgnoreRedirect bool

	// NoRetry collapses a Retriable outcome straight to Terminated(failure)
	// after exactly one attempt.
	NoRetry bool

	// ReadOnly marks this as a read that may land on a replica instead of
	// an entry's master (spec.md §4.3). CommandFacade.ReadKey sets this;
	// WriteKey and Eval leave it false.
	ReadOnly bool
}

// RetryDriver runs SingleExecutor in a loop, following redirects and
// retrying transient failures per spec.md §4.4. It is the only component
// that consumes retry/redirect budget; SingleExecutor is stateless.
type RetryDriver struct {
	exec *SingleExecutor
}

// NewRetryDriver builds a driver over exec.
func NewRetryDriver(exec *SingleExecutor) *RetryDriver {
	return &RetryDriver{exec: exec}
}

// Run drives source/cmd/args to a terminal outcome and completes promise.
// It owns args for the duration of the run and releases it exactly once,
// on whichever branch reaches Terminated — this is the "terminal path"
// release point the buffer-ownership design note requires.
//
// If IgnoreRedirect is set, args is NOT released here on a redirect
// outcome: ownership returns to the caller (scatter/gather), which decides
// whether to re-dispatch or release.
func (d *RetryDriver) Run(ctx context.Context, source NodeSource, cmd Command, args *ArgList, promise *ReplyPromise, opts RetryOptions) {
	attemptsLeft := opts.Attempts
	current := source
	sendAsking := false
	state := stateIssuing
	var lastErr error

	for {
		switch state {
		case stateIssuing:
			attemptCtx := ctx
			var cancel context.CancelFunc
			if opts.AttemptTimeout > 0 {
				attemptCtx, cancel = context.WithTimeout(ctx, opts.AttemptTimeout)
			}
			if sendAsking {
				// An ASKING failure ends the run: the error is wrapped as
				// unexpected and is neither classified nor retried.
				if askErr := d.sendAsking(attemptCtx, current); askErr != nil {
					if cancel != nil {
						cancel()
					}
					state = stateTerminated
					args.Release()
					promise.Fail(unexpectedWrapper(askErr))
					return
				}
				sendAsking = false
			}
			attempt := d.exec.Execute(attemptCtx, opts.ReadOnly, current, cmd, args)
			if cancel != nil {
				cancel()
			}
			state = stateWaiting
			lastErr = attempt.Err

			switch attempt.Outcome {
			case OutcomeSuccess:
				state = stateTerminated
				args.Release()
				promise.Complete(attempt.Value)
				return

			case OutcomeFatal:
				state = stateTerminated
				args.Release()
				promise.Fail(classifyFatal(attempt.Err))
				return

			case OutcomeRetriable:
				if opts.NoRetry {
					state = stateTerminated
					args.Release()
					promise.Fail(connectionError(lastErr))
					return
				}
				if attemptsLeft <= 0 {
					state = stateTerminated
					args.Release()
					promise.Fail(retryExhausted(opts.Attempts, lastErr))
					return
				}
				attemptsLeft--
				if d.exec.metrics != nil {
					d.exec.metrics.RetriesTotal.Inc()
				}
				state = stateSleeping

			case OutcomeTimedOut:
				if opts.NoRetry || attemptsLeft <= 0 || ctx.Err() != nil {
					state = stateTerminated
					args.Release()
					promise.Fail(retryExhausted(opts.Attempts-attemptsLeft, lastErr))
					return
				}
				attemptsLeft--
				if d.exec.metrics != nil {
					d.exec.metrics.RetriesTotal.Inc()
				}
				state = stateSleeping

			case OutcomeRedirect:
				if opts.IgnoreRedirect {
					state = stateTerminated
					promise.Fail(attempt.Redirect)
					return
				}
				newClient, err := d.resolveRedirectClient(attempt.Redirect)
				if err != nil {
					state = stateTerminated
					args.Release()
					promise.Fail(unexpectedWrapper(err))
					return
				}
				current = Redirected(current, newClient, attempt.Redirect.Ask)
				sendAsking = attempt.Redirect.Ask
				if d.exec.metrics != nil {
					kind := "moved"
					if attempt.Redirect.Ask {
						kind = "ask"
					}
					d.exec.metrics.RedirectsTotal.WithLabelValues(kind).Inc()
				}
				attemptsLeft = opts.Attempts // redirects never consume retry budget
				state = stateIssuing
			}

		case stateSleeping:
			select {
			case <-time.After(opts.Interval):
			case <-ctx.Done():
				state = stateTerminated
				args.Release()
				promise.Fail(interruptedError())
				return
			}
			state = stateIssuing

		default:
			// unreachable: every branch above sets Issuing, Sleeping, or
			// returns from Terminated directly.
			return
		}
	}
}

func classifyFatal(err error) error {
	if err == nil {
		return unexpectedWrapper(nil)
	}
	return err
}

// resolveRedirectClient is a hook point: in this core it simply trusts the
// RedirectError's client is already resolved by the Client implementation
// that produced it (internal/rconn looks the address up against its entry
// table before returning the error). Kept as a method so a future
// implementation can re-resolve through a ConnectionManager instead.
func (d *RetryDriver) resolveRedirectClient(r *RedirectError) (Client, error) {
	if r.resolved != nil {
		return r.resolved, nil
	}
	return nil, invalidArgument("retry: redirect to %s carries no resolved client", r.Addr)
}

// sendAsking issues the bare ASKING pre-command an ASK redirect requires on
// the next attempt's connection, immediately before the real command is
// reissued (spec.md §4.4, §9).
func (d *RetryDriver) sendAsking(ctx context.Context, source NodeSource) error {
	client, err := source.Resolve(d.exec.mgr, false)
	if err != nil {
		return err
	}
	_, err = client.Execute(ctx, NewCommand("ASKING", nil, nil), NewArgList())
	return err
}
