// Package observer defines hooks notified once per finished execution.
package observer

import (
	"context"
	"time"

	"codeexec/internal/execution/sandbox/result"
	appErr "codeexec/pkg/errors"
)

// Record summarizes one execution. It never carries code or output text.
type Record struct {
	ExecutionID   string
	Language      string
	Mode          string
	Verdict       result.Verdict
	Code          appErr.ErrorCode
	HasTestInput  bool
	Duration      time.Duration
	BuildDuration time.Duration
	RunWallTimeMs int64
	RunTimeMs     int64
	MemoryKB      int64
	OutputBytes   int64
	FinishedAt    time.Time
}

// ExecutionObserver receives a record for every execution that reached the runner
// or was answered as unsupported. Implementations must not block the caller.
type ExecutionObserver interface {
	ObserveExecution(ctx context.Context, rec Record)
}

// Noop discards records.
type Noop struct{}

func (Noop) ObserveExecution(context.Context, Record) {}

// Multi fans a record out to several observers in order.
type Multi []ExecutionObserver

func (m Multi) ObserveExecution(ctx context.Context, rec Record) {
	for _, o := range m {
		if o != nil {
			o.ObserveExecution(ctx, rec)
		}
	}
}
