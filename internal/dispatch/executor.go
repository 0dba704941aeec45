package dispatch

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Outcome classifies one wire round-trip so RetryDriver never has to
// inspect raw errors itself (spec.md §4.2).
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRedirect
	OutcomeRetriable
	OutcomeTimedOut
	OutcomeFatal
)

// Attempt is the result of exactly one SingleExecutor.Execute call.
type Attempt struct {
	Outcome  Outcome
	Value    interface{}
	Err      error
	Redirect *RedirectError // set only when Outcome == OutcomeRedirect
}

// SingleExecutor performs exactly one wire round-trip and classifies the
// result. It never retries, never sleeps, and never owns args — the caller
// decides release timing (spec.md's design note on buffer ownership).
type SingleExecutor struct {
	mgr     ConnectionManager
	metrics *Metrics
}

// NewSingleExecutor builds an executor over mgr. metrics may be nil.
func NewSingleExecutor(mgr ConnectionManager, metrics *Metrics) *SingleExecutor {
	return &SingleExecutor{mgr: mgr, metrics: metrics}
}

// Execute resolves source against the current topology, sends cmd+args to
// the resolved client, and classifies the outcome. readOnlyMode is honored
// by NodeSource.Resolve: set it for read commands so a by-slot/by-entry
// source can land on a replica instead of the master (spec.md §4.3).
func (e *SingleExecutor) Execute(ctx context.Context, readOnlyMode bool, source NodeSource, cmd Command, args *ArgList) Attempt {
	start := time.Now()
	attempt := e.execute(ctx, readOnlyMode, source, cmd, args)
	if e.metrics != nil {
		label := outcomeLabel(attempt.Outcome)
		e.metrics.AttemptsTotal.WithLabelValues(label).Inc()
		e.metrics.AttemptDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
	return attempt
}

func (e *SingleExecutor) execute(ctx context.Context, readOnlyMode bool, source NodeSource, cmd Command, args *ArgList) Attempt {
	client, err := source.Resolve(e.mgr, readOnlyMode)
	if err != nil {
		return Attempt{Outcome: OutcomeFatal, Err: err}
	}

	value, err := client.Execute(ctx, cmd, args)
	if err == nil {
		return Attempt{Outcome: OutcomeSuccess, Value: value}
	}

	var redirect *RedirectError
	if errors.As(err, &redirect) {
		return Attempt{Outcome: OutcomeRedirect, Err: err, Redirect: redirect}
	}

	if ctx.Err() != nil {
		return Attempt{Outcome: OutcomeTimedOut, Err: ctx.Err()}
	}

	var derr *DispatchError
	if errors.As(err, &derr) {
		switch derr.Kind {
		case KindConnection:
			return Attempt{Outcome: OutcomeRetriable, Err: derr}
		case KindTimeout:
			return Attempt{Outcome: OutcomeTimedOut, Err: derr}
		case KindScriptMissing:
			// NOSCRIPT is surfaced as a fatal attempt here; ScriptCache is
			// the layer that recognizes the prefix and mounts its own
			// SCRIPT LOAD + retry, per spec.md's script-cache design note.
			return Attempt{Outcome: OutcomeFatal, Err: derr}
		default:
			return Attempt{Outcome: OutcomeFatal, Err: derr}
		}
	}

	if looksConnectionReset(err) {
		return Attempt{Outcome: OutcomeRetriable, Err: connectionError(err)}
	}

	return Attempt{Outcome: OutcomeFatal, Err: unexpectedWrapper(err)}
}

func looksConnectionReset(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "eof") ||
		strings.Contains(msg, "use of closed network connection")
}

// IsNoScript reports whether err is the NOSCRIPT server error ScriptCache
// should react to by loading the script and retrying once.
func IsNoScript(err error) bool {
	var derr *DispatchError
	if !errors.As(err, &derr) {
		return false
	}
	return strings.HasPrefix(strings.ToUpper(derr.Message), "NOSCRIPT") ||
		(derr.Cause != nil && strings.Contains(strings.ToUpper(derr.Cause.Error()), "NOSCRIPT"))
}
