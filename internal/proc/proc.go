// Package proc starts subprocesses that are killed as a group when their
// context ends.
package proc

import (
	"context"
	"os/exec"
	"time"
)

// WaitDelay bounds how long Wait keeps reading output after the process
// group has been killed.
const WaitDelay = 2 * time.Second

// Command is exec.CommandContext for commands that may spawn children of
// their own (npx, gh, git hooks). The child runs in a new process group and
// cancelling ctx kills the whole group, so a grandchild holding stdout open
// cannot outlive the deadline.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.WaitDelay = WaitDelay
	setGroup(cmd)
	return cmd
}
