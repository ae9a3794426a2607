//go:build !linux

package engine

import (
	"context"
	"fmt"

	"codeexec/internal/execution/sandbox/result"
	"codeexec/internal/execution/sandbox/spec"
)

type stubEngine struct{}

func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	return &stubEngine{}, nil
}

func (s *stubEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	return result.RunResult{}, fmt.Errorf("process engine is only supported on linux")
}
