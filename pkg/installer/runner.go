package installer

import (
	"context"
	"io"
	"os"
	"os/exec"
)

// DefaultPipBin is the pip executable used when none is configured.
const DefaultPipBin = "pip"

// ExecRunner runs pip as a child process. Process output streams to the
// configured writers so the user sees pip's own progress reporting.
type ExecRunner struct {
	// Bin is the pip executable name or path. Empty means DefaultPipBin.
	Bin string

	// Stdout and Stderr receive the process output. Nil means the calling
	// process's streams.
	Stdout io.Writer
	Stderr io.Writer
}

func (r *ExecRunner) bin() string {
	if r.Bin != "" {
		return r.Bin
	}
	return DefaultPipBin
}

func (r *ExecRunner) Run(ctx context.Context, args ...string) error {
	cmd := exec.CommandContext(ctx, r.bin(), args...)
	cmd.Stdout = r.Stdout
	if cmd.Stdout == nil {
		cmd.Stdout = os.Stdout
	}
	cmd.Stderr = r.Stderr
	if cmd.Stderr == nil {
		cmd.Stderr = os.Stderr
	}
	return cmd.Run()
}

func (r *ExecRunner) Output(ctx context.Context, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, r.bin(), args...).Output()
	return string(out), err
}
