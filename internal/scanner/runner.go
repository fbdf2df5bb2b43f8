package scanner

import (
	"context"
	"fmt"
	"os/exec"
)

// LocalRunner executes commands on the machine spider itself runs on
type LocalRunner struct{}

// Run executes the command through the local shell
func (LocalRunner) Run(ctx context.Context, cmd string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", cmd).CombinedOutput()
	if err != nil {
		// Non-zero exit with output is still useful: docker ps with the
		// daemon down, df on an unmounted path
		if len(out) > 0 {
			return string(out), nil
		}
		return "", fmt.Errorf("command %q failed: %w", cmd, err)
	}
	return string(out), nil
}

// Close is a no-op for the local runner
func (LocalRunner) Close() error { return nil }
