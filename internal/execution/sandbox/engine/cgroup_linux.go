//go:build linux

package engine

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"codeexec/internal/execution/sandbox/spec"
)

// runCgroup is the cgroup v2 leaf one stage runs in, laid out as
// <root>/<executionID>/<stage>. A nil *runCgroup is valid and does nothing,
// which is how runs without cgroup support are handled.
type runCgroup struct {
	path string
}

func newRunCgroup(root, executionID, stage string, limits spec.ResourceLimit) (*runCgroup, error) {
	if root == "" {
		return nil, errors.New("cgroup root is required")
	}
	if stage == "" {
		stage = "run"
	}
	cg := &runCgroup{path: filepath.Join(root, executionID, stage)}
	if err := os.MkdirAll(cg.path, 0o750); err != nil {
		return nil, fmt.Errorf("create cgroup %s: %w", cg.path, err)
	}

	pids := "max"
	if limits.PIDs > 0 {
		pids = strconv.FormatInt(limits.PIDs, 10)
	}
	settings := [][2]string{{"pids.max", pids}}
	if limits.MemoryMB > 0 {
		settings = append(settings, [2]string{"memory.max", strconv.FormatInt(limits.MemoryMB<<20, 10)})
	}
	for _, kv := range settings {
		if err := cg.write(kv[0], kv[1]); err != nil {
			cg.remove()
			return nil, err
		}
	}
	if limits.MemoryMB > 0 {
		// Not every host exposes swap accounting.
		_ = cg.write("memory.swap.max", "0")
	}
	return cg, nil
}

func (cg *runCgroup) add(pid int) error {
	if cg == nil {
		return nil
	}
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	return cg.write("cgroup.procs", strconv.Itoa(pid))
}

// kill stops every process in the cgroup, including ones that left the
// process group.
func (cg *runCgroup) kill() error {
	if cg == nil {
		return nil
	}
	if _, err := os.Stat(filepath.Join(cg.path, "cgroup.kill")); err != nil {
		return err
	}
	return cg.write("cgroup.kill", "1")
}

// oomKilled reports whether the kernel OOM killer fired inside the cgroup.
func (cg *runCgroup) oomKilled() bool {
	if cg == nil {
		return false
	}
	data, err := os.ReadFile(filepath.Join(cg.path, "memory.events"))
	if err != nil {
		return false
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, value, ok := bytes.Cut(sc.Bytes(), []byte(" "))
		if ok && string(name) == "oom_kill" {
			n, _ := strconv.ParseInt(string(bytes.TrimSpace(value)), 10, 64)
			return n > 0
		}
	}
	return false
}

// peakKB prefers memory.peak and falls back to the leader's max RSS.
func (cg *runCgroup) peakKB(state *os.ProcessState) int64 {
	if cg != nil {
		if data, err := os.ReadFile(filepath.Join(cg.path, "memory.peak")); err == nil {
			if n, err := strconv.ParseInt(string(bytes.TrimSpace(data)), 10, 64); err == nil && n > 0 {
				return n >> 10
			}
		}
	}
	if usage := rusageOf(state); usage != nil {
		return usage.Maxrss
	}
	return 0
}

// remove deletes the stage leaf and, once empty, the execution directory.
func (cg *runCgroup) remove() {
	if cg == nil {
		return
	}
	_ = os.Remove(cg.path)
	_ = os.Remove(filepath.Dir(cg.path))
}

func (cg *runCgroup) write(name, value string) error {
	if err := os.WriteFile(filepath.Join(cg.path, name), []byte(value), 0o640); err != nil {
		return fmt.Errorf("write %s: %w", name, err)
	}
	return nil
}

func rusageOf(state *os.ProcessState) *syscall.Rusage {
	if state == nil {
		return nil
	}
	usage, _ := state.SysUsage().(*syscall.Rusage)
	return usage
}

// cpuTimeMs is user plus system time of the waited process and its reaped
// children.
func cpuTimeMs(state *os.ProcessState) int64 {
	usage := rusageOf(state)
	if usage == nil {
		return 0
	}
	cpu := time.Duration(usage.Utime.Nano() + usage.Stime.Nano())
	return cpu.Milliseconds()
}
