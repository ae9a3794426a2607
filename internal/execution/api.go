// Package execution defines the public call interface of the code execution core.
package execution

import "context"

// Service is the only entrypoint the HTTP boundary calls.
type Service interface {
	// Execute runs one submission. A non-nil error means the request was rejected
	// before anything ran; every execution outcome is carried in the response.
	Execute(ctx context.Context, req ExecutionRequest) (ExecutionResponse, error)
}

// ExecutionRequest is one submission.
type ExecutionRequest struct {
	Code     string `json:"code"`
	Language string `json:"language"`
	// TestInput is passed to a user-defined solution function when present.
	TestInput *string `json:"testInput,omitempty"`
}

// ExecutionResponse carries exactly one of Output or Error.
type ExecutionResponse struct {
	Output string `json:"output,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Failed reports whether the response carries an error.
func (r ExecutionResponse) Failed() bool {
	return r.Error != ""
}

// OutputResponse builds a successful response.
func OutputResponse(output string) ExecutionResponse {
	return ExecutionResponse{Output: output}
}

// ErrorResponse builds a failed response.
func ErrorResponse(message string) ExecutionResponse {
	return ExecutionResponse{Error: message}
}

// LanguageInfo describes one registered language for listing.
type LanguageInfo struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Mode           string   `json:"mode"`
	FileExtension  string   `json:"fileExtension"`
	TestInvocation bool     `json:"testInvocation"`
	Aliases        []string `json:"aliases,omitempty"`
}
