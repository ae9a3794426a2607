//go:build !linux

package main

import (
	"fmt"
	"os"

	"codeexec/internal/execution/sandbox/engine"
)

func main() {
	_, _ = fmt.Fprintln(os.Stderr, engine.HelperErrorPrefix+"isolation is only supported on linux")
	os.Exit(engine.HelperSetupExitCode)
}
