package errors

import "net/http"

// ErrorCode identifies a failure class across logs, metrics, events and the
// X-Error-Code response header.
//
//	10000-10999  common
//	13000-13099  execution request rejected before anything runs
//	13100-13199  execution outcome, reported in a 200 body
type ErrorCode int

const (
	Success ErrorCode = 10000

	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007

	CacheError ErrorCode = 10200

	ValidationFailed   ErrorCode = 10300
	RequiredFieldEmpty ErrorCode = 10303

	CodeTooLarge         ErrorCode = 13002
	LanguageNotSupported ErrorCode = 13003
	TestInputTooLarge    ErrorCode = 13004
	ServiceBusy          ErrorCode = 13005

	ExecutionSystemError ErrorCode = 13101
	BuildFailure         ErrorCode = 13102
	RuntimeFailure       ErrorCode = 13103
	ExecutionTimeout     ErrorCode = 13104
	MemoryLimitExceeded  ErrorCode = 13105
	OutputLimitExceeded  ErrorCode = 13106
	SpawnFailure         ErrorCode = 13107
	CleanupFailure       ErrorCode = 13108
)

type codeInfo struct {
	message string
	status  int
}

var codes = map[ErrorCode]codeInfo{
	Success:             {"Success", http.StatusOK},
	InternalServerError: {"Internal server error", http.StatusInternalServerError},
	InvalidParams:       {"Invalid parameters", http.StatusBadRequest},
	TooManyRequests:     {"Too many requests, please try again later", http.StatusTooManyRequests},
	ServiceUnavailable:  {"Service temporarily unavailable", http.StatusServiceUnavailable},
	CacheError:          {"Cache operation failed", http.StatusInternalServerError},
	ValidationFailed:    {"Validation failed", http.StatusBadRequest},
	RequiredFieldEmpty:  {"Required field is empty", http.StatusBadRequest},

	CodeTooLarge:         {"Code is too large", http.StatusBadRequest},
	LanguageNotSupported: {"Unsupported language", http.StatusBadRequest},
	TestInputTooLarge:    {"Test input is too large", http.StatusBadRequest},
	ServiceBusy:          {"Too many executions in flight, please try again later", http.StatusServiceUnavailable},

	ExecutionSystemError: {"Execution system error", http.StatusOK},
	BuildFailure:         {"Build failed", http.StatusOK},
	RuntimeFailure:       {"Runtime error", http.StatusOK},
	ExecutionTimeout:     {"Execution timeout", http.StatusOK},
	MemoryLimitExceeded:  {"Memory limit exceeded", http.StatusOK},
	OutputLimitExceeded:  {"Output limit exceeded", http.StatusOK},
	SpawnFailure:         {"Failed to start toolchain", http.StatusOK},
	CleanupFailure:       {"Failed to remove scratch files", http.StatusOK},
}

func (c ErrorCode) Message() string {
	if info, ok := codes[c]; ok {
		return info.message
	}
	return "Unknown error"
}

// HTTPStatus is the status a rejection with this code is sent with.
// Outcome codes map to 200: the failure travels in the body.
func (c ErrorCode) HTTPStatus() int {
	if info, ok := codes[c]; ok {
		return info.status
	}
	return http.StatusInternalServerError
}

// IsOutcome reports whether c classifies a finished execution.
func (c ErrorCode) IsOutcome() bool {
	return c >= 13100 && c < 13200
}
