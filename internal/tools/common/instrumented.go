package common

import (
	"context"
	"time"

	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
)

// Instruments bundles the optional metrics and audit sinks for tool calls.
// A zero value disables both.
type Instruments struct {
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
}

// CallInfo identifies one tool call.
type CallInfo struct {
	Tool      string
	UserID    string
	SessionID string
}

// Outcome is what an instrumented call reports back.
type Outcome struct {
	// Status is the dispatch status (ok, unauthenticated, ...).
	Status  string
	Success bool
	Err     error
}

// InstrumentedCall runs fn inside a tool span and records tool metrics and
// an audit line for it.
//
// Usage:
//
//	common.InstrumentedCall(ctx, inst, common.CallInfo{Tool: name}, func(ctx context.Context) common.Outcome {
//	    ...
//	})
func InstrumentedCall(ctx context.Context, inst Instruments, info CallInfo, fn func(ctx context.Context) Outcome) Outcome {
	attrs := instrumentation.NewSpanAttributeBuilder().
		WithSession(info.SessionID).
		WithUser(logging.AnonymizeUser(info.UserID)).
		Build()
	ctx, span := instrumentation.StartToolSpan(ctx, info.Tool, attrs...)
	defer span.End()

	invocation := instrumentation.StartToolInvocation(ctx, info.Tool, info.UserID, info.SessionID)

	start := time.Now()
	outcome := fn(ctx)
	duration := time.Since(start)

	status := instrumentation.StatusSuccess
	if outcome.Success {
		instrumentation.SetSpanSuccess(span)
	} else {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, outcome.Err)
	}

	invocation.Finish(outcome.Status, outcome.Success, outcome.Err)
	inst.Metrics.RecordToolInvocation(ctx, info.Tool, status, info.UserID, duration)
	inst.Audit.LogToolInvocation(ctx, invocation)

	return outcome
}
