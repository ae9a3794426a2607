// Package spec describes one sandboxed process: what to run, where, and
// under which limits. It is also the wire format handed to sandbox-init.
package spec

// ResourceLimit holds the hard limits for one process group. Zero means
// unlimited for every field.
type ResourceLimit struct {
	CPUTimeMs   int64 `json:"cpuTimeMs,omitempty"`
	WallTimeMs  int64 `json:"wallTimeMs,omitempty"`
	MemoryMB    int64 `json:"memoryMB,omitempty"`
	StackMB     int64 `json:"stackMB,omitempty"`
	FileSizeMB  int64 `json:"fileSizeMB,omitempty"`
	PIDs        int64 `json:"pids,omitempty"`
	OutputBytes int64 `json:"outputBytes,omitempty"` // stdout+stderr
}

// MountSpec binds Source on the host to Target inside the sandbox root.
type MountSpec struct {
	Source   string `json:"source"`
	Target   string `json:"target"`
	ReadOnly bool   `json:"readOnly,omitempty"`
}

type RunSpec struct {
	ExecutionID string `json:"executionId"`
	// Stage names the cgroup leaf, "build" or "run".
	Stage      string        `json:"stage,omitempty"`
	WorkDir    string        `json:"workDir"`
	Cmd        []string      `json:"cmd"`
	Env        []string      `json:"env,omitempty"`
	BindMounts []MountSpec   `json:"bindMounts,omitempty"`
	Profile    string        `json:"profile,omitempty"`
	Limits     ResourceLimit `json:"limits"`
}
