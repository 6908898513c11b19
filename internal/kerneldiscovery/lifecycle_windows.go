//go:build windows

package kerneldiscovery

import "os"

// sendGracefulStop has no SIGTERM equivalent on Windows; the process is
// killed directly: there is no graceful-stop signal to send on Windows.
func sendGracefulStop(p *os.Process) error {
	return p.Kill()
}
