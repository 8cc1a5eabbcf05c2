//go:build !unix

package capture

import "os/exec"

// killProcessGroup leaves the default cancellation, which kills only the
// direct child.
func killProcessGroup(cmd *exec.Cmd) {}
