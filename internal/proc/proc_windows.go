//go:build windows

package proc

import "os/exec"

// setGroup is a no-op on Windows; WaitDelay still bounds Wait.
func setGroup(cmd *exec.Cmd) {}
