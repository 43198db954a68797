package proc

import (
	"bytes"
	"context"
	"os/exec"
	"runtime"
	"strings"
	"testing"
	"time"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("process groups are unix only")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommand_KillsDescendants(t *testing.T) {
	requireShell(t)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	// The backgrounded sleep inherits stdout and outlives its parent shell.
	cmd := Command(ctx, "sh", "-c", "(sleep 5; echo done) & wait")
	var out bytes.Buffer
	cmd.Stdout = &out

	start := time.Now()
	err := cmd.Run()
	elapsed := time.Since(start)

	if err == nil {
		t.Fatal("expected an error from the cancelled command")
	}
	if elapsed > 3*time.Second {
		t.Errorf("Run took %s, want the group killed at the deadline", elapsed)
	}
	if strings.Contains(out.String(), "done") {
		t.Errorf("descendant kept running: %q", out.String())
	}
}

func TestCommand_CompletesNormally(t *testing.T) {
	requireShell(t)

	out, err := Command(context.Background(), "sh", "-c", "echo ok").Output()
	if err != nil {
		t.Fatalf("Output: %v", err)
	}
	if strings.TrimSpace(string(out)) != "ok" {
		t.Errorf("output = %q, want ok", out)
	}
}
