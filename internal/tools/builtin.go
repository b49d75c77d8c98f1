package tools

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// defaultShellTimeout bounds a shell invocation that does not ask for its
// own timeout.
const defaultShellTimeout = 2 * time.Minute

// Shell runs free-form command lines in a working directory.
type Shell struct {
	workDir string
	runner  CommandRunner
}

// NewShell creates the shell tool rooted at workDir. A nil runner uses the
// host shell.
func NewShell(workDir string, runner CommandRunner) *Shell {
	if runner == nil {
		runner = NewExecRunner()
	}
	return &Shell{workDir: workDir, runner: runner}
}

// Contract implements Tool.
func (s *Shell) Contract() Contract {
	return Contract{
		Name:        "shell",
		Description: "Run a shell command line and return its combined output.",
		Params: []Param{
			{Name: "command", Type: "string", Description: "Command line to execute.", Required: true},
			{Name: "timeout_ms", Type: "integer", Description: "Timeout in milliseconds. Defaults to 120000."},
		},
		Scopes: []string{"proc:exec"},
		Risk:   RiskRisky,
	}
}

// Invoke implements Tool.
func (s *Shell) Invoke(ctx context.Context, params map[string]any) (string, error) {
	command := stringParam(params, "command")

	timeout := defaultShellTimeout
	if ms := intParam(params, "timeout_ms", 0); ms > 0 {
		timeout = time.Duration(ms) * time.Millisecond
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := s.runner.RunShell(ctx, s.workDir, command)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return "", fmt.Errorf("command timed out after %v:\n%s", timeout, output)
		}
		return "", fmt.Errorf("%s\ncommand failed: %w", output, err)
	}
	return string(output), nil
}

// ReadFile returns file contents with line numbers.
type ReadFile struct {
	workDir string
}

// NewReadFile creates the read_file tool rooted at workDir.
func NewReadFile(workDir string) *ReadFile {
	return &ReadFile{workDir: workDir}
}

// Contract implements Tool.
func (t *ReadFile) Contract() Contract {
	return Contract{
		Name:        "read_file",
		Description: "Read a file and return its contents with line numbers.",
		Params: []Param{
			{Name: "path", Type: "string", Description: "File path, absolute or relative to the working directory.", Required: true},
			{Name: "offset", Type: "integer", Description: "1-based line to start from."},
			{Name: "limit", Type: "integer", Description: "Maximum number of lines to return."},
		},
		Scopes: []string{"fs:read"},
		Risk:   RiskSafe,
	}
}

// Invoke implements Tool.
func (t *ReadFile) Invoke(ctx context.Context, params map[string]any) (string, error) {
	path := resolvePath(t.workDir, stringParam(params, "path"))
	content, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read file: %w", err)
	}

	lines := strings.Split(string(content), "\n")

	start := 0
	if offset := intParam(params, "offset", 0); offset > 0 {
		start = offset - 1
		if start >= len(lines) {
			return "", fmt.Errorf("offset %d beyond end of file (%d lines)", offset, len(lines))
		}
	}
	end := len(lines)
	if limit := intParam(params, "limit", 0); limit > 0 && start+limit < end {
		end = start + limit
	}

	var out strings.Builder
	for i := start; i < end; i++ {
		fmt.Fprintf(&out, "%6d\t%s\n", i+1, lines[i])
	}
	return out.String(), nil
}

// WriteFile creates or replaces a file, creating parent directories as
// needed.
type WriteFile struct {
	workDir string
}

// NewWriteFile creates the write_file tool rooted at workDir.
func NewWriteFile(workDir string) *WriteFile {
	return &WriteFile{workDir: workDir}
}

// Contract implements Tool.
func (t *WriteFile) Contract() Contract {
	return Contract{
		Name:        "write_file",
		Description: "Write content to a file, replacing any existing content.",
		Params: []Param{
			{Name: "path", Type: "string", Description: "File path, absolute or relative to the working directory.", Required: true},
			{Name: "content", Type: "string", Description: "Full content to write.", Required: true},
		},
		Scopes: []string{"fs:write"},
		Risk:   RiskStandard,
	}
}

// Invoke implements Tool.
func (t *WriteFile) Invoke(ctx context.Context, params map[string]any) (string, error) {
	path := resolvePath(t.workDir, stringParam(params, "path"))
	content := stringParam(params, "content")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("create directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		return "", fmt.Errorf("write file: %w", err)
	}
	return fmt.Sprintf("wrote %d bytes to %s", len(content), path), nil
}

// ListDir lists directory entries.
type ListDir struct {
	workDir string
}

// NewListDir creates the list_dir tool rooted at workDir.
func NewListDir(workDir string) *ListDir {
	return &ListDir{workDir: workDir}
}

// Contract implements Tool.
func (t *ListDir) Contract() Contract {
	return Contract{
		Name:        "list_dir",
		Description: "List the entries of a directory.",
		Params: []Param{
			{Name: "path", Type: "string", Description: "Directory path. Use \".\" for the working directory.", Required: true},
		},
		Scopes: []string{"fs:read"},
		Risk:   RiskSafe,
	}
}

// Invoke implements Tool.
func (t *ListDir) Invoke(ctx context.Context, params map[string]any) (string, error) {
	path := t.workDir
	if p := stringParam(params, "path"); p != "" {
		path = resolvePath(t.workDir, p)
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return "", fmt.Errorf("read directory: %w", err)
	}

	var out strings.Builder
	for _, entry := range entries {
		if entry.IsDir() {
			fmt.Fprintf(&out, "d %s/\n", entry.Name())
			continue
		}
		info, err := entry.Info()
		if err != nil {
			fmt.Fprintf(&out, "? %s\n", entry.Name())
			continue
		}
		fmt.Fprintf(&out, "- %s (%d bytes)\n", entry.Name(), info.Size())
	}
	return out.String(), nil
}

// NewBuiltinRegistry returns a registry preloaded with the standing tool set
// rooted at workDir. A nil runner uses the host shell.
func NewBuiltinRegistry(workDir string, runner CommandRunner) *Registry {
	reg := NewRegistry()
	for _, t := range []Tool{
		NewShell(workDir, runner),
		NewReadFile(workDir),
		NewWriteFile(workDir),
		NewListDir(workDir),
		NewHTTPGet(nil),
	} {
		// Names in the standing set are distinct.
		reg.Register(t)
	}
	return reg
}

func resolvePath(workDir, path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(workDir, path)
}

// stringParam returns the string value for key, or "" when absent. The
// dispatcher validates directives against the contract before invocation, so
// required parameters are present by the time a tool reads them.
func stringParam(params map[string]any, key string) string {
	v, _ := params[key].(string)
	return v
}

// intParam returns the integer value for key, accepting the float64 that
// JSON decoding produces. Absent or non-numeric values return def.
func intParam(params map[string]any, key string, def int) int {
	switch v := params[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
