// Package runner turns argv plus limits into a classified execution outcome.
package runner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/exec"
	"path"
	"path/filepath"
	"strings"
	"time"

	"codeexec/internal/execution/sandbox/engine"
	"codeexec/internal/execution/sandbox/result"
	"codeexec/internal/execution/sandbox/spec"
	"codeexec/pkg/utils/logger"

	"go.uber.org/zap"
)

const containerWorkDir = "/work"

// Runner executes one toolchain command under a timeout and output ceiling.
type Runner interface {
	Run(ctx context.Context, req Request) result.Outcome
	// Path maps a host path inside dir to the path the process sees.
	Path(dir, hostPath string) string
}

// Request describes one bounded process.
type Request struct {
	ExecutionID    string
	Stage          string
	Argv           []string
	Dir            string
	Env            []string
	Timeout        time.Duration
	MaxOutputBytes int64
}

// Config holds limits and isolation options shared by every request.
type Config struct {
	Profile string
	// MountWorkDir binds the scratch directory at /work inside the sandbox.
	MountWorkDir bool
	// Limits supplies memory, stack, file size and pid ceilings.
	Limits  spec.ResourceLimit
	BaseEnv []string
}

// DefaultRunner runs requests on a process engine.
type DefaultRunner struct {
	eng engine.Engine
	cfg Config
}

// NewRunner creates a runner backed by eng.
func NewRunner(eng engine.Engine, cfg Config) *DefaultRunner {
	return &DefaultRunner{eng: eng, cfg: cfg}
}

func (r *DefaultRunner) Run(ctx context.Context, req Request) result.Outcome {
	if err := validateRequest(req); err != nil {
		return result.SpawnFailure(err.Error())
	}

	limits := r.cfg.Limits
	limits.WallTimeMs = req.Timeout.Milliseconds()
	limits.CPUTimeMs = req.Timeout.Milliseconds()
	limits.OutputBytes = req.MaxOutputBytes

	runSpec := spec.RunSpec{
		ExecutionID: req.ExecutionID,
		Stage:       req.Stage,
		WorkDir:     r.Path(req.Dir, req.Dir),
		Cmd:         req.Argv,
		Env:         mergeEnv(r.cfg.BaseEnv, req.Env),
		Profile:     r.cfg.Profile,
		Limits:      limits,
	}
	if r.cfg.MountWorkDir {
		runSpec.BindMounts = []spec.MountSpec{{Source: req.Dir, Target: containerWorkDir}}
	}

	res, err := r.eng.Run(ctx, runSpec)
	outcome := Classify(res, err, req)
	logger.Debug(ctx, "process finished",
		zap.String("stage", req.Stage),
		zap.String("command", req.Argv[0]),
		zap.String("verdict", string(outcome.Verdict)),
		zap.Int("exit_code", res.ExitCode),
		zap.Int64("wall_ms", res.WallTimeMs),
		zap.Int64("output_bytes", res.OutputBytes),
	)
	return outcome
}

func (r *DefaultRunner) Path(dir, hostPath string) string {
	if !r.cfg.MountWorkDir {
		return hostPath
	}
	rel, err := filepath.Rel(dir, hostPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		return hostPath
	}
	return path.Join(containerWorkDir, filepath.ToSlash(rel))
}

// Classify maps a raw engine result onto an Outcome.
func Classify(res result.RunResult, err error, req Request) result.Outcome {
	if err != nil {
		return result.SpawnFailure(spawnReason(req.Argv, err))
	}
	if res.SetupFailed {
		reason := strings.TrimSpace(strings.TrimPrefix(res.Stderr, engine.HelperErrorPrefix))
		return result.SpawnFailure(reason).WithUsage(res)
	}
	if res.TimedOut {
		return result.Timeout(req.Timeout).WithUsage(res)
	}
	if res.OutputExceeded {
		return result.OutputTooLarge(req.MaxOutputBytes).WithUsage(res)
	}
	if res.OomKilled {
		return result.MemoryExceeded().WithUsage(res)
	}
	if res.ExitCode == 0 {
		if res.Stdout != "" || strings.TrimSpace(res.Stderr) == "" {
			return result.Success(res.Stdout).WithUsage(res)
		}
		return result.RuntimeError(res.Stderr).WithUsage(res)
	}
	return result.RuntimeError(failureText(res)).WithUsage(res)
}

func failureText(res result.RunResult) string {
	if strings.TrimSpace(res.Stderr) != "" {
		return res.Stderr
	}
	if strings.TrimSpace(res.Stdout) != "" {
		return res.Stdout
	}
	if res.Signal != "" {
		return fmt.Sprintf("Process killed by signal %s", res.Signal)
	}
	return fmt.Sprintf("Process exited with code %d", res.ExitCode)
}

func spawnReason(argv []string, err error) string {
	name := ""
	if len(argv) > 0 {
		name = argv[0]
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("Toolchain not found: %s", name)
	}
	return fmt.Sprintf("Failed to start %s: %v", name, err)
}

func validateRequest(req Request) error {
	if req.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	if req.Dir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(req.Argv) == 0 || req.Argv[0] == "" {
		return fmt.Errorf("command is required")
	}
	if req.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	return nil
}

// mergeEnv overlays entries by key, later values winning.
func mergeEnv(base, extra []string) []string {
	if len(extra) == 0 {
		return base
	}
	index := make(map[string]int, len(base)+len(extra))
	merged := make([]string, 0, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, kv := range list {
			key, _, _ := strings.Cut(kv, "=")
			if i, ok := index[key]; ok {
				merged[i] = kv
				continue
			}
			index[key] = len(merged)
			merged = append(merged, kv)
		}
	}
	return merged
}
