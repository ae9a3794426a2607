package engine

import (
	"codeexec/internal/execution/sandbox/security"
	"codeexec/internal/execution/sandbox/spec"
)

// InitRequest is the JSON document sandbox-init reads from stdin.
type InitRequest struct {
	RunSpec       spec.RunSpec              `json:"run"`
	Isolation     security.IsolationProfile `json:"isolation"`
	EnableSeccomp bool                      `json:"seccomp,omitempty"`
	EnableNs      bool                      `json:"namespaces,omitempty"`
}
