// Package result defines raw process results and the classified execution outcome.
package result

import "time"

// Verdict classifies the outcome of one execution.
type Verdict string

const (
	VerdictOK          Verdict = "OK"
	VerdictRE          Verdict = "RE"
	VerdictTLE         Verdict = "TLE"
	VerdictMLE         Verdict = "MLE"
	VerdictOLE         Verdict = "OLE"
	VerdictCE          Verdict = "CE"
	VerdictSE          Verdict = "SE"
	VerdictUnsupported Verdict = "UNSUPPORTED"
)

// RunResult captures raw engine data for one process.
type RunResult struct {
	ExitCode    int
	Signal      string
	TimeMs      int64
	WallTimeMs  int64
	MemoryKB    int64
	OutputBytes int64
	Stdout      string
	Stderr      string

	TimedOut       bool
	OutputExceeded bool
	OomKilled      bool
	// SetupFailed is set when the isolation helper failed before exec.
	SetupFailed bool
}

// Outcome is the classified result of one process or one unsupported request.
// Values are built by the constructors below and never modified afterwards.
type Outcome struct {
	Verdict Verdict
	Stdout  string
	Stderr  string
	// Reason carries the spawn failure reason or the unsupported notice.
	Reason      string
	Timeout     time.Duration
	OutputLimit int64

	ExitCode    int
	TimeMs      int64
	WallTimeMs  int64
	MemoryKB    int64
	OutputBytes int64
}

// Success is a zero exit with stdout, or with no output at all.
func Success(stdout string) Outcome {
	return Outcome{Verdict: VerdictOK, Stdout: stdout}
}

// RuntimeError is a non-zero exit, or a zero exit that only wrote stderr.
func RuntimeError(stderr string) Outcome {
	return Outcome{Verdict: VerdictRE, Stderr: stderr}
}

// Timeout is a process killed at its wall-clock deadline.
func Timeout(limit time.Duration) Outcome {
	return Outcome{Verdict: VerdictTLE, Timeout: limit}
}

// OutputTooLarge is a process killed for exceeding its output budget.
func OutputTooLarge(limit int64) Outcome {
	return Outcome{Verdict: VerdictOLE, OutputLimit: limit}
}

// MemoryExceeded is a process killed by the memory controller.
func MemoryExceeded() Outcome {
	return Outcome{Verdict: VerdictMLE}
}

// SpawnFailure is a process that never started.
func SpawnFailure(reason string) Outcome {
	return Outcome{Verdict: VerdictSE, Reason: reason}
}

// BuildFailure is a build step that produced no runnable artifact.
func BuildFailure(diagnostics string) Outcome {
	return Outcome{Verdict: VerdictCE, Stderr: diagnostics}
}

// Unsupported is a language that is registered but never executed.
func Unsupported(notice string) Outcome {
	return Outcome{Verdict: VerdictUnsupported, Reason: notice}
}

// WithUsage copies resource usage from the raw result.
func (o Outcome) WithUsage(res RunResult) Outcome {
	o.ExitCode = res.ExitCode
	o.TimeMs = res.TimeMs
	o.WallTimeMs = res.WallTimeMs
	o.MemoryKB = res.MemoryKB
	o.OutputBytes = res.OutputBytes
	return o
}
