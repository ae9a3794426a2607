// Package normalizer shapes classified outcomes into caller-facing responses.
package normalizer

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"codeexec/internal/execution"
	"codeexec/internal/execution/sandbox/result"
	appErr "codeexec/pkg/errors"
)

const (
	NoOutputMessage       = "Code executed successfully (no output)"
	OutputLimitMessage    = "Output limit exceeded"
	MemoryLimitMessage    = "Memory limit exceeded"
	BuildFailedMessage    = "Build failed"
	UnknownFailureMessage = "Execution failed"

	diagnosticsHeader = "Build diagnostics:"
)

// Normalize maps an outcome onto a response carrying exactly one of output or error.
func Normalize(o result.Outcome) execution.ExecutionResponse {
	switch o.Verdict {
	case result.VerdictOK:
		out := strings.TrimSpace(o.Stdout)
		if out == "" {
			out = NoOutputMessage
		}
		return execution.OutputResponse(out)
	case result.VerdictUnsupported:
		return execution.OutputResponse(nonEmpty(o.Reason, appErr.LanguageNotSupported.Message()))
	case result.VerdictRE:
		return execution.ErrorResponse(nonEmpty(o.Stderr, UnknownFailureMessage))
	case result.VerdictTLE:
		return execution.ErrorResponse(TimeoutMessage(o.Timeout))
	case result.VerdictOLE:
		return execution.ErrorResponse(OutputLimitMessage)
	case result.VerdictMLE:
		return execution.ErrorResponse(MemoryLimitMessage)
	case result.VerdictCE:
		return execution.ErrorResponse(nonEmpty(o.Stderr, BuildFailedMessage))
	case result.VerdictSE:
		return execution.ErrorResponse(nonEmpty(o.Reason, appErr.SpawnFailure.Message()))
	default:
		return execution.ErrorResponse(UnknownFailureMessage)
	}
}

// TimeoutMessage renders the limit in seconds without trailing zeros.
func TimeoutMessage(limit time.Duration) string {
	return fmt.Sprintf("Execution timeout (%s seconds)", strconv.FormatFloat(limit.Seconds(), 'f', -1, 64))
}

// AttachDiagnostics appends build diagnostics to whichever field the response carries.
func AttachDiagnostics(resp execution.ExecutionResponse, diagnostics string) execution.ExecutionResponse {
	diagnostics = strings.TrimSpace(diagnostics)
	if diagnostics == "" {
		return resp
	}
	block := diagnosticsHeader + "\n" + diagnostics
	if resp.Failed() {
		resp.Error = strings.TrimRight(resp.Error, "\n") + "\n\n" + block
		return resp
	}
	resp.Output = resp.Output + "\n\n" + block
	return resp
}

// Code classifies an outcome for logs, metrics and events.
func Code(o result.Outcome) appErr.ErrorCode {
	switch o.Verdict {
	case result.VerdictOK, result.VerdictUnsupported:
		return appErr.Success
	case result.VerdictRE:
		return appErr.RuntimeFailure
	case result.VerdictTLE:
		return appErr.ExecutionTimeout
	case result.VerdictOLE:
		return appErr.OutputLimitExceeded
	case result.VerdictMLE:
		return appErr.MemoryLimitExceeded
	case result.VerdictCE:
		return appErr.BuildFailure
	case result.VerdictSE:
		return appErr.SpawnFailure
	default:
		return appErr.ExecutionSystemError
	}
}

func nonEmpty(s, fallback string) string {
	if s = strings.TrimSpace(s); s == "" {
		return fallback
	}
	return s
}
