//go:build linux

// sandbox-init applies isolation to itself and then execs the requested
// command. It reads one engine.InitRequest from stdin. Setup failures exit
// with engine.HelperSetupExitCode and a prefixed message on stderr so the
// engine can tell them apart from the command's own exit status.
package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"

	"codeexec/internal/execution/sandbox/engine"
	"codeexec/internal/execution/sandbox/spec"

	"golang.org/x/sys/unix"
)

const defaultPath = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"

func init() {
	// The seccomp filter and exec must happen on the same thread.
	runtime.LockOSThread()
}

func main() {
	req, err := decodeRequest(os.Stdin)
	if err == nil {
		err = validateRequest(req)
	}
	if err == nil {
		err = setup(req)
	}
	if err != nil {
		fail(engine.HelperSetupExitCode, err)
	}

	env := buildEnv(req.RunSpec.Env)
	cmdPath, err := resolveCommand(req.RunSpec.Cmd[0], env)
	if err != nil {
		fail(engine.HelperNotFoundExitCode, err)
	}

	if err := dropPrivileges(req.Isolation.RunAsUID, req.Isolation.RunAsGID); err != nil {
		fail(engine.HelperSetupExitCode, err)
	}
	if req.EnableSeccomp {
		if err := applySeccomp(req.Isolation.SeccompProfile); err != nil {
			fail(engine.HelperSetupExitCode, err)
		}
	}

	err = unix.Exec(cmdPath, req.RunSpec.Cmd, env)
	code := engine.HelperSetupExitCode
	if errors.Is(err, unix.ENOENT) {
		code = engine.HelperNotFoundExitCode
	}
	fail(code, fmt.Errorf("exec %s: %w", req.RunSpec.Cmd[0], err))
}

func fail(code int, err error) {
	_, _ = fmt.Fprintln(os.Stderr, engine.HelperErrorPrefix+err.Error())
	os.Exit(code)
}

func decodeRequest(r io.Reader) (engine.InitRequest, error) {
	var req engine.InitRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return engine.InitRequest{}, fmt.Errorf("decode request: %w", err)
	}
	return req, nil
}

func validateRequest(req engine.InitRequest) error {
	if len(req.RunSpec.Cmd) == 0 || req.RunSpec.Cmd[0] == "" {
		return fmt.Errorf("command is required")
	}
	if req.RunSpec.WorkDir == "" {
		return fmt.Errorf("work dir is required")
	}
	if !req.EnableNs && (req.Isolation.RootFS != "" || len(req.RunSpec.BindMounts) > 0) {
		return fmt.Errorf("rootfs and bind mounts require namespaces")
	}
	return nil
}

// setup runs everything that needs the original privileges.
func setup(req engine.InitRequest) error {
	if req.EnableNs {
		if err := unix.Mount("", "/", "", unix.MS_REC|unix.MS_PRIVATE, ""); err != nil {
			return fmt.Errorf("make mount private: %w", err)
		}
		if err := applyBindMounts(req.Isolation.RootFS, req.RunSpec.BindMounts); err != nil {
			return err
		}
		if req.Isolation.RootFS != "" {
			if err := unix.Chroot(req.Isolation.RootFS); err != nil {
				return fmt.Errorf("chroot: %w", err)
			}
		}
	}
	if err := os.Chdir(req.RunSpec.WorkDir); err != nil {
		return fmt.Errorf("chdir workdir: %w", err)
	}
	if err := applyRlimits(req.RunSpec.Limits); err != nil {
		return err
	}
	// stdin carried the request; the command gets an empty one. stdout and
	// stderr stay inherited from the engine.
	return nullStdin()
}

func applyBindMounts(rootfs string, mounts []spec.MountSpec) error {
	for _, m := range mounts {
		if m.Source == "" || m.Target == "" {
			return fmt.Errorf("invalid mount spec %q -> %q", m.Source, m.Target)
		}
		target := m.Target
		if rootfs != "" {
			target = filepath.Join(rootfs, m.Target)
		}
		if err := ensureMountTarget(m.Source, target); err != nil {
			return err
		}
		if err := unix.Mount(m.Source, target, "", unix.MS_BIND|unix.MS_REC, ""); err != nil {
			return fmt.Errorf("bind mount %s: %w", m.Target, err)
		}
		if m.ReadOnly {
			if err := unix.Mount("", target, "", unix.MS_BIND|unix.MS_REMOUNT|unix.MS_RDONLY, ""); err != nil {
				return fmt.Errorf("remount %s readonly: %w", m.Target, err)
			}
		}
	}
	if rootfs == "" {
		return nil
	}
	procPath := filepath.Join(rootfs, "proc")
	if err := os.MkdirAll(procPath, 0755); err != nil {
		return fmt.Errorf("mkdir proc: %w", err)
	}
	if err := unix.Mount("proc", procPath, "proc", unix.MS_NOSUID|unix.MS_NODEV|unix.MS_NOEXEC, ""); err != nil && !errors.Is(err, unix.EBUSY) {
		return fmt.Errorf("mount proc: %w", err)
	}
	return nil
}

func ensureMountTarget(source, target string) error {
	info, err := os.Stat(source)
	if err != nil {
		return fmt.Errorf("stat mount source: %w", err)
	}
	if info.IsDir() {
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("mkdir mount target: %w", err)
		}
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("mkdir mount target dir: %w", err)
	}
	file, err := os.OpenFile(target, os.O_CREATE, 0644)
	if err != nil {
		return fmt.Errorf("create mount target file: %w", err)
	}
	return file.Close()
}

type rlimit struct {
	resource int
	name     string
	value    uint64
}

// rlimitsFor maps limits to setrlimit calls. Memory is left to the cgroup:
// RLIMIT_AS breaks runtimes that reserve large virtual ranges up front.
func rlimitsFor(limits spec.ResourceLimit) []rlimit {
	const mb = 1024 * 1024
	var out []rlimit
	if limits.CPUTimeMs > 0 {
		// One second of slack keeps the wall clock the primary limit.
		seconds := uint64((limits.CPUTimeMs+999)/1000) + 1
		out = append(out, rlimit{unix.RLIMIT_CPU, "cpu", seconds})
	}
	if limits.FileSizeMB > 0 {
		out = append(out, rlimit{unix.RLIMIT_FSIZE, "fsize", uint64(limits.FileSizeMB) * mb})
	}
	if limits.StackMB > 0 {
		out = append(out, rlimit{unix.RLIMIT_STACK, "stack", uint64(limits.StackMB) * mb})
	}
	if limits.PIDs > 0 {
		out = append(out, rlimit{unix.RLIMIT_NPROC, "nproc", uint64(limits.PIDs)})
	}
	return out
}

func applyRlimits(limits spec.ResourceLimit) error {
	for _, l := range rlimitsFor(limits) {
		if err := unix.Setrlimit(l.resource, &unix.Rlimit{Cur: l.value, Max: l.value}); err != nil {
			return fmt.Errorf("set rlimit %s: %w", l.name, err)
		}
	}
	return nil
}

func nullStdin() error {
	devNull, err := os.Open(os.DevNull)
	if err != nil {
		return fmt.Errorf("open %s: %w", os.DevNull, err)
	}
	defer devNull.Close()
	if err := unix.Dup2(int(devNull.Fd()), 0); err != nil {
		return fmt.Errorf("dup stdin: %w", err)
	}
	return nil
}

func buildEnv(env []string) []string {
	for _, kv := range env {
		if strings.HasPrefix(kv, "PATH=") {
			return env
		}
	}
	return append(append([]string(nil), env...), "PATH="+defaultPath)
}

// resolveCommand looks name up on the PATH carried by env rather than the
// helper's own environment.
func resolveCommand(name string, env []string) (string, error) {
	if strings.Contains(name, "/") {
		if _, err := os.Stat(name); err != nil {
			return "", fmt.Errorf("resolve command %s: %w", name, err)
		}
		return name, nil
	}
	for _, kv := range env {
		if path, ok := strings.CutPrefix(kv, "PATH="); ok {
			if err := os.Setenv("PATH", path); err != nil {
				return "", fmt.Errorf("set PATH: %w", err)
			}
		}
	}
	resolved, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("resolve command %s: %w", name, err)
	}
	return resolved, nil
}

func dropPrivileges(uid, gid int) error {
	if gid > 0 {
		if err := unix.Setgroups(nil); err != nil {
			return fmt.Errorf("clear groups: %w", err)
		}
		if err := unix.Setresgid(gid, gid, gid); err != nil {
			return fmt.Errorf("set gid %d: %w", gid, err)
		}
	}
	if uid > 0 {
		if err := unix.Setresuid(uid, uid, uid); err != nil {
			return fmt.Errorf("set uid %d: %w", uid, err)
		}
	}
	return nil
}
