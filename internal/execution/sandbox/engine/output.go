package engine

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// outputBudget is shared by the stdout and stderr writers of one process.
// Once the combined byte count passes the limit, exceeded is closed and
// further bytes are drained without being kept.
type outputBudget struct {
	limit    int64
	used     atomic.Int64
	exceeded chan struct{}
	once     sync.Once
}

func newOutputBudget(limit int64) *outputBudget {
	return &outputBudget{limit: limit, exceeded: make(chan struct{})}
}

func (b *outputBudget) Exceeded() <-chan struct{} {
	return b.exceeded
}

func (b *outputBudget) Used() int64 {
	return b.used.Load()
}

// Tripped reports whether more than limit bytes were written. It does not
// depend on anyone having observed Exceeded.
func (b *outputBudget) Tripped() bool {
	return b.limit > 0 && b.used.Load() > b.limit
}

func (b *outputBudget) trip() {
	b.once.Do(func() { close(b.exceeded) })
}

// budgetWriter keeps at most the budgeted prefix of what it receives.
// It never returns an error so the pipe keeps draining until the process dies.
type budgetWriter struct {
	budget *outputBudget
	buf    bytes.Buffer
}

func (b *outputBudget) writer() *budgetWriter {
	return &budgetWriter{budget: b}
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	n := len(p)
	if n == 0 {
		return 0, nil
	}
	used := w.budget.used.Add(int64(n))
	if w.budget.limit <= 0 || used <= w.budget.limit {
		w.buf.Write(p)
		return n, nil
	}
	keep := int64(n) - (used - w.budget.limit)
	if keep > 0 {
		w.buf.Write(p[:keep])
	}
	w.budget.trip()
	return n, nil
}

func (w *budgetWriter) String() string {
	return w.buf.String()
}
