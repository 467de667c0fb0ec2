package uciproc

import (
	"context"
	"fmt"
	"os"
	"os/exec"

	srlog "github.com/shallowred/shallowred/pkg/log"
)

// Start launches the engine binary at path and performs the handshake.
func Start(ctx context.Context, path string, args ...string) (*Client, error) {
	cmd := exec.Command(path, args...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to open engine stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine %q: %w", path, err)
	}
	srlog.Info("external engine started", "path", path, "pid", cmd.Process.Pid)

	closeFn := func() error {
		_ = stdin.Close()
		return cmd.Wait()
	}
	c, err := NewClient(ctx, stdin, stdout, closeFn)
	if err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		return nil, err
	}
	return c, nil
}
