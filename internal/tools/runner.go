package tools

import (
	"context"
	"os/exec"
)

// CommandRunner abstracts process execution so the shell tool can be tested
// without touching the host.
type CommandRunner interface {
	// Run executes a command with arguments in the given working directory
	// and returns combined stdout and stderr.
	Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error)
	// RunShell executes a shell command line in the given working directory.
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
}

// ExecRunner runs commands on the host using os/exec.
type ExecRunner struct{}

// NewExecRunner creates a runner backed by the host shell.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run executes a command and returns its combined output.
func (r *ExecRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = workDir
	return cmd.CombinedOutput()
}

// RunShell executes a command line through sh -c.
func (r *ExecRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

var _ CommandRunner = (*ExecRunner)(nil)
