package engine

import "time"

const (
	// HelperSetupExitCode is returned by the helper when isolation setup fails.
	HelperSetupExitCode = 125
	// HelperNotFoundExitCode is returned by the helper when the command cannot be resolved.
	HelperNotFoundExitCode = 127
	// HelperErrorPrefix starts every diagnostic the helper writes to stderr.
	HelperErrorPrefix = "sandbox-init: "

	defaultWaitDelay = 500 * time.Millisecond
	defaultPath      = "/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Config controls engine behavior. The zero value runs processes directly in
// their own process group with no further isolation.
type Config struct {
	// EnableHelper execs every process through the sandbox-init helper.
	EnableHelper bool
	HelperPath   string
	CgroupRoot   string
	SeccompDir   string

	EnableSeccomp    bool
	EnableCgroup     bool
	EnableNamespaces bool

	// WaitDelay bounds how long Wait blocks on inherited pipes after a kill.
	WaitDelay time.Duration
}
