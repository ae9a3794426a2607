//go:build linux

package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"codeexec/internal/execution/sandbox/result"
	"codeexec/internal/execution/sandbox/security"
	"codeexec/internal/execution/sandbox/spec"
	"codeexec/pkg/utils/logger"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

const (
	killNone int32 = iota
	killTimeout
	killOutput
	killCanceled
	// killExited marks a leader that exited before any kill was sent.
	killExited
)

type linuxEngine struct {
	cfg      Config
	resolver ProfileResolver
}

// NewEngine creates a Linux process engine.
func NewEngine(cfg Config, resolver ProfileResolver) (Engine, error) {
	if cfg.EnableHelper && cfg.HelperPath == "" {
		cfg.HelperPath = "sandbox-init"
	}
	if !cfg.EnableHelper && (cfg.EnableNamespaces || cfg.EnableSeccomp) {
		return nil, fmt.Errorf("namespaces and seccomp require the sandbox helper")
	}
	if cfg.EnableCgroup && cfg.CgroupRoot == "" {
		return nil, fmt.Errorf("cgroup root is required when cgroups are enabled")
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	if resolver == nil {
		resolver = security.ProfileSet{"": {}}
	}
	return &linuxEngine{cfg: cfg, resolver: resolver}, nil
}

func (e *linuxEngine) Run(ctx context.Context, runSpec spec.RunSpec) (result.RunResult, error) {
	if err := validateRunSpec(runSpec); err != nil {
		return result.RunResult{}, err
	}

	isoProfile, err := e.resolver.Resolve(runSpec.Profile)
	if err != nil {
		return result.RunResult{}, fmt.Errorf("resolve profile: %w", err)
	}
	if e.cfg.SeccompDir != "" && isoProfile.SeccompProfile != "" && !filepath.IsAbs(isoProfile.SeccompProfile) {
		isoProfile.SeccompProfile = filepath.Join(e.cfg.SeccompDir, isoProfile.SeccompProfile)
	}

	var cg *runCgroup
	if e.cfg.EnableCgroup {
		cg, err = newRunCgroup(e.cfg.CgroupRoot, runSpec.ExecutionID, runSpec.Stage, runSpec.Limits)
		if err != nil {
			return result.RunResult{}, fmt.Errorf("prepare cgroup: %w", err)
		}
		defer cg.remove()
	}

	cmd, stdin, err := e.buildCommand(runSpec, isoProfile)
	if err != nil {
		return result.RunResult{}, err
	}
	if stdin != nil {
		defer stdin.Close()
	}

	budget := newOutputBudget(runSpec.Limits.OutputBytes)
	stdout := budget.writer()
	stderr := budget.writer()
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return result.RunResult{}, fmt.Errorf("start %s: %w", runSpec.Cmd[0], err)
	}
	pid := cmd.Process.Pid

	if err := cg.add(pid); err != nil {
		logger.Warn(ctx, "add process to cgroup failed", zap.String("execution_id", runSpec.ExecutionID), zap.Error(err))
	}

	var killReason atomic.Int32
	kill := func(reason int32) {
		if !killReason.CompareAndSwap(killNone, reason) {
			return
		}
		killProcessGroup(pid)
		if err := cg.kill(); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "kill cgroup failed", zap.String("execution_id", runSpec.ExecutionID), zap.Error(err))
		}
	}

	done := make(chan struct{})
	go func() {
		var wallTimer <-chan time.Time
		if runSpec.Limits.WallTimeMs > 0 {
			timer := time.NewTimer(time.Duration(runSpec.Limits.WallTimeMs) * time.Millisecond)
			defer timer.Stop()
			wallTimer = timer.C
		}
		select {
		case <-ctx.Done():
			kill(killCanceled)
		case <-wallTimer:
			kill(killTimeout)
		case <-budget.Exceeded():
			kill(killOutput)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	// Claiming the reason keeps the watcher from signalling a reaped pid.
	if killReason.CompareAndSwap(killNone, killExited) {
		reapDescendants(ctx, runSpec.ExecutionID, pid, cg)
	}
	reason := killReason.Load()

	runResult := result.RunResult{
		ExitCode:       exitCodeFromErr(waitErr, cmd.ProcessState),
		Signal:         signalFromState(cmd.ProcessState),
		TimeMs:         cpuTimeMs(cmd.ProcessState),
		WallTimeMs:     time.Since(start).Milliseconds(),
		MemoryKB:       cg.peakKB(cmd.ProcessState),
		OutputBytes:    budget.Used(),
		Stdout:         stdout.String(),
		Stderr:         stderr.String(),
		TimedOut:       reason == killTimeout,
		OutputExceeded: reason == killOutput || budget.Tripped(),
		OomKilled:      cg.oomKilled(),
	}
	if runResult.ExitCode == 0 && reason != killExited {
		runResult.ExitCode = -1
	}
	if e.cfg.EnableHelper && isHelperFailure(runResult) {
		runResult.SetupFailed = true
	}
	if reason == killCanceled {
		return runResult, fmt.Errorf("run canceled: %w", ctx.Err())
	}
	return runResult, nil
}

func (e *linuxEngine) buildCommand(runSpec spec.RunSpec, isoProfile security.IsolationProfile) (*exec.Cmd, io.ReadCloser, error) {
	env := runSpec.Env
	if len(env) == 0 {
		env = []string{"PATH=" + defaultPath}
	}

	if !e.cfg.EnableHelper {
		cmd := exec.Command(runSpec.Cmd[0], runSpec.Cmd[1:]...)
		cmd.Dir = runSpec.WorkDir
		cmd.Env = env
		cmd.SysProcAttr = buildSysProcAttr(isoProfile, false)
		cmd.WaitDelay = e.cfg.WaitDelay
		return cmd, nil, nil
	}

	runSpec.Env = env
	stdin := jsonToPipe(InitRequest{
		RunSpec:       runSpec,
		Isolation:     isoProfile,
		EnableSeccomp: e.cfg.EnableSeccomp,
		EnableNs:      e.cfg.EnableNamespaces,
	})
	cmd := exec.Command(e.cfg.HelperPath)
	cmd.Stdin = stdin
	cmd.Env = env
	cmd.SysProcAttr = buildSysProcAttr(isoProfile, e.cfg.EnableNamespaces)
	cmd.WaitDelay = e.cfg.WaitDelay
	return cmd, stdin, nil
}

func isHelperFailure(res result.RunResult) bool {
	if res.ExitCode != HelperSetupExitCode && res.ExitCode != HelperNotFoundExitCode {
		return false
	}
	return strings.HasPrefix(res.Stderr, HelperErrorPrefix)
}

func exitCodeFromErr(err error, state *os.ProcessState) int {
	if state != nil {
		return state.ExitCode()
	}
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return -1
}

func signalFromState(state *os.ProcessState) string {
	if state == nil {
		return ""
	}
	status, ok := state.Sys().(syscall.WaitStatus)
	if !ok || !status.Signaled() {
		return ""
	}
	return unix.SignalName(status.Signal())
}

// reapDescendants kills whatever the leader left behind after exiting on its
// own. cgroup.kill is preferred since it holds no pid. Otherwise the group is
// signalled only while it still has members: a pgid in use is never handed
// out as a new pid.
func reapDescendants(ctx context.Context, executionID string, pid int, cg *runCgroup) {
	if cg != nil {
		err := cg.kill()
		if err == nil {
			return
		}
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn(ctx, "kill cgroup failed", zap.String("execution_id", executionID), zap.Error(err))
		}
	}
	if unix.Kill(-pid, 0) == nil {
		killProcessGroup(pid)
	}
}

func killProcessGroup(pid int) {
	if pid <= 0 {
		return
	}
	_ = unix.Kill(-pid, unix.SIGKILL)
}

func validateRunSpec(runSpec spec.RunSpec) error {
	if runSpec.ExecutionID == "" {
		return fmt.Errorf("execution id is required")
	}
	if runSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if len(runSpec.Cmd) == 0 || runSpec.Cmd[0] == "" {
		return fmt.Errorf("command is required")
	}
	return nil
}

func jsonToPipe(req InitRequest) io.ReadCloser {
	reader, writer := io.Pipe()
	go func() {
		err := json.NewEncoder(writer).Encode(req)
		_ = writer.CloseWithError(err)
	}()
	return reader
}

// buildSysProcAttr puts the child in its own process group so a kill reaches
// every descendant. With namespaces on, the helper starts as root of a fresh
// user namespace mapped to the service's own uid and gid.
func buildSysProcAttr(profile security.IsolationProfile, enableNamespaces bool) *syscall.SysProcAttr {
	attr := &syscall.SysProcAttr{Setpgid: true, Pdeathsig: syscall.SIGKILL}
	if !enableNamespaces {
		return attr
	}
	flags := syscall.CLONE_NEWUSER | syscall.CLONE_NEWNS | syscall.CLONE_NEWPID |
		syscall.CLONE_NEWUTS | syscall.CLONE_NEWIPC
	if profile.DisableNetwork {
		flags |= syscall.CLONE_NEWNET
	}
	attr.Cloneflags = uintptr(flags)
	attr.UidMappings = []syscall.SysProcIDMap{{HostID: os.Getuid(), Size: 1}}
	attr.GidMappings = []syscall.SysProcIDMap{{HostID: os.Getgid(), Size: 1}}
	return attr
}
