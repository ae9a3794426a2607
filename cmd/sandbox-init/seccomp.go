//go:build linux

package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	seccomp "github.com/seccomp/libseccomp-golang"
	"golang.org/x/sys/unix"
)

// builtinDenyList applies when no profile file is configured: everything is
// allowed except these, which fail with EPERM.
var builtinDenyList = []string{
	"acct", "add_key", "bpf", "clock_adjtime", "clock_settime", "delete_module",
	"finit_module", "init_module", "kexec_file_load", "kexec_load", "keyctl",
	"mount", "move_mount", "open_by_handle_at", "perf_event_open", "pivot_root",
	"process_vm_readv", "process_vm_writev", "ptrace", "reboot", "request_key",
	"setns", "settimeofday", "swapoff", "swapon", "umount2", "unshare",
}

// seccompProfile is the on-disk profile, a small subset of the OCI layout.
type seccompProfile struct {
	DefaultAction string        `json:"defaultAction"`
	Syscalls      []seccompRule `json:"syscalls"`
}

type seccompRule struct {
	Names  []string `json:"names"`
	Action string   `json:"action"`
	// ErrnoRet overrides EPERM for SCMP_ACT_ERRNO rules.
	ErrnoRet *int16 `json:"errnoRet,omitempty"`
}

func loadSeccompProfile(path string) (seccompProfile, error) {
	if path == "" {
		return seccompProfile{
			DefaultAction: "SCMP_ACT_ALLOW",
			Syscalls:      []seccompRule{{Names: builtinDenyList, Action: "SCMP_ACT_ERRNO"}},
		}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return seccompProfile{}, fmt.Errorf("read seccomp profile: %w", err)
	}
	var profile seccompProfile
	if err := json.Unmarshal(data, &profile); err != nil {
		return seccompProfile{}, fmt.Errorf("parse seccomp profile %s: %w", path, err)
	}
	return profile, nil
}

// buildFilter compiles profile. Syscall names unknown to this architecture
// or libseccomp version are skipped.
func buildFilter(profile seccompProfile) (*seccomp.ScmpFilter, error) {
	fallback, err := parseSeccompAction(profile.DefaultAction, nil)
	if err != nil {
		return nil, err
	}
	filter, err := seccomp.NewFilter(fallback)
	if err != nil {
		return nil, fmt.Errorf("new seccomp filter: %w", err)
	}
	for _, rule := range profile.Syscalls {
		action, err := parseSeccompAction(rule.Action, rule.ErrnoRet)
		if err != nil {
			filter.Release()
			return nil, err
		}
		if action == fallback {
			continue
		}
		for _, name := range rule.Names {
			nr, err := seccomp.GetSyscallFromName(name)
			if err != nil {
				continue
			}
			if err := filter.AddRule(nr, action); err != nil {
				filter.Release()
				return nil, fmt.Errorf("seccomp rule %s: %w", name, err)
			}
		}
	}
	return filter, nil
}

// applySeccomp installs the filter on the calling thread. It must run after
// privileges are dropped and right before exec.
func applySeccomp(path string) error {
	profile, err := loadSeccompProfile(path)
	if err != nil {
		return err
	}
	filter, err := buildFilter(profile)
	if err != nil {
		return err
	}
	defer filter.Release()

	if err := unix.Prctl(unix.PR_SET_NO_NEW_PRIVS, 1, 0, 0, 0); err != nil {
		return fmt.Errorf("prctl no_new_privs: %w", err)
	}
	if err := filter.Load(); err != nil {
		return fmt.Errorf("load seccomp filter: %w", err)
	}
	return nil
}

func parseSeccompAction(name string, errnoRet *int16) (seccomp.ScmpAction, error) {
	switch strings.TrimPrefix(strings.ToUpper(strings.TrimSpace(name)), "SCMP_ACT_") {
	case "ALLOW":
		return seccomp.ActAllow, nil
	case "LOG":
		return seccomp.ActLog, nil
	case "ERRNO":
		errno := int16(unix.EPERM)
		if errnoRet != nil {
			errno = *errnoRet
		}
		return seccomp.ActErrno.SetReturnCode(errno), nil
	case "KILL", "KILL_PROCESS":
		return seccomp.ActKillProcess, nil
	case "KILL_THREAD":
		return seccomp.ActKillThread, nil
	}
	return seccomp.ActInvalid, fmt.Errorf("unsupported seccomp action %q", name)
}
