//go:build !windows

package kerneldiscovery

import (
	"os"
	"syscall"
)

// sendGracefulStop sends SIGTERM on Unix as the first step of the graceful shutdown sequence.
func sendGracefulStop(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
