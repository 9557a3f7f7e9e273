//go:build !unix

package render

import "os/exec"

// killProcessGroup keeps the exec default of killing the direct child.
func killProcessGroup(*exec.Cmd) {}
