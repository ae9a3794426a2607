package engine

import (
	"context"

	"codeexec/internal/execution/sandbox/result"
	"codeexec/internal/execution/sandbox/security"
	"codeexec/internal/execution/sandbox/spec"
)

// Engine executes a RunSpec as one bounded process group.
//
// Run returns an error only when the process could not be started. Every
// started process yields a RunResult, including killed ones.
type Engine interface {
	Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error)
}

// ProfileResolver resolves a profile name into an isolation profile.
type ProfileResolver interface {
	Resolve(profile string) (security.IsolationProfile, error)
}
