package tools

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hapershtein/llamagent/errors"
)

const (
	defaultShellTimeout = 90 * time.Second
	defaultTestTimeout  = 120 * time.Second
)

// ShellTool runs an arbitrary shell command, subject to the configured
// allowlist. The interactive gate treats it as dangerous.
type ShellTool struct {
	allowedCommands []string
}

func (t *ShellTool) Name() string { return "shell" }
func (t *ShellTool) Description() string {
	return "Run a shell command and return its stdout/stderr. Use for file ops, git, " +
		"package managers, compiling, etc. Avoid long-running or interactive processes."
}
func (t *ShellTool) Risk() Risk { return RiskDangerous }
func (t *ShellTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"command": {Type: "string", Description: "The shell command to execute."},
			"cwd":     {Type: "string", Description: "Working directory (optional, defaults to current dir)."},
			"timeout": {Type: "integer", Description: "Timeout in seconds (default 90)."},
		},
		Required: []string{"command"},
	}
}

func (t *ShellTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	command, ok := strArg(args, "command")
	if !ok {
		return "", errors.New("missing or invalid 'command' argument")
	}
	if !isCommandAllowed(command, t.allowedCommands) {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	timeout := defaultShellTimeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	cwd := strArgDefault(args, "cwd", "")

	return runShell(ctx, command, cwd, timeout)
}

// runShell executes a command through `sh -c` and formats its combined
// output the way the model expects: stdout, a [stderr] section, and an exit
// code trailer on failure.
func runShell(ctx context.Context, command, cwd string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	if cwd != "" {
		cmd.Dir = expandHome(cwd)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.New("command timed out after %s", timeout)
	}

	exitCode := 0
	if err != nil {
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return "", errors.Wrapf(err, "failed to run command")
		}
	}

	var b strings.Builder
	if stdout.Len() > 0 {
		b.WriteString(stdout.String())
	}
	if stderr.Len() > 0 {
		if stdout.Len() > 0 {
			b.WriteString("\n[stderr]\n")
		} else {
			b.WriteString("[stderr]\n")
		}
		b.WriteString(stderr.String())
	}
	out := strings.TrimRight(b.String(), "\n \t")
	if out == "" {
		return fmt.Sprintf("(exit code %d, no output)", exitCode), nil
	}
	if exitCode != 0 {
		out += fmt.Sprintf("\n[exit code %d]", exitCode)
	}
	return out, nil
}

// RunTestsTool composes and runs a test-runner command.
type RunTestsTool struct {
	allowedCommands []string
}

func (t *RunTestsTool) Name() string { return "run_tests" }
func (t *RunTestsTool) Description() string {
	return "Run a test suite and return the output. Defaults to 'go test'. Use the " +
		"'command' parameter to specify a different runner (e.g. 'pytest'). " +
		"Returns stdout/stderr and exit code."
}
func (t *RunTestsTool) Risk() Risk { return RiskConfirm }
func (t *RunTestsTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"path":    {Type: "string", Description: "Test file, directory or package to run (default './...')."},
			"command": {Type: "string", Description: "Test runner command (default 'go test')."},
			"args":    {Type: "string", Description: "Extra flags, e.g. '-v -run TestFoo' (optional)."},
			"cwd":     {Type: "string", Description: "Working directory (optional)."},
			"timeout": {Type: "integer", Description: "Timeout in seconds (default 120)."},
		},
	}
}

func (t *RunTestsTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	runner := strArgDefault(args, "command", "go test")
	path := strArgDefault(args, "path", "./...")
	extra := strArgDefault(args, "args", "")

	parts := []string{runner, path}
	if extra != "" {
		parts = append(parts, extra)
	}
	command := strings.Join(parts, " ")

	if !isCommandAllowed(command, t.allowedCommands) {
		return "", errors.New("command '%s' is not in the list of allowed commands", command)
	}

	timeout := defaultTestTimeout
	if secs := intArg(args, "timeout", 0); secs > 0 {
		timeout = time.Duration(secs) * time.Second
	}
	return runShell(ctx, command, strArgDefault(args, "cwd", ""), timeout)
}

// PythonEvalTool executes a snippet of Python code via the local
// interpreter. Output comes from print().
type PythonEvalTool struct{}

func (t *PythonEvalTool) Name() string { return "python_eval" }
func (t *PythonEvalTool) Description() string {
	return "Execute Python code and return the output. Useful for calculations, data " +
		"processing, and quick scripts. Use print() to produce output."
}
func (t *PythonEvalTool) Risk() Risk { return RiskConfirm }
func (t *PythonEvalTool) Schema() Parameters {
	return Parameters{
		Type: "object",
		Properties: map[string]Property{
			"code": {Type: "string", Description: "Python code to execute."},
		},
		Required: []string{"code"},
	}
}

func (t *PythonEvalTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	code, ok := strArg(args, "code")
	if !ok {
		return "", errors.New("missing or invalid 'code' argument")
	}

	ctx, cancel := context.WithTimeout(ctx, defaultShellTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "python3", "-c", code)
	out, err := cmd.CombinedOutput()
	if ctx.Err() == context.DeadlineExceeded {
		return "", errors.New("python execution timed out after %s", defaultShellTimeout)
	}
	if err != nil {
		// The traceback is in the combined output; surface it as the result
		// so the model can correct its code.
		if len(out) > 0 {
			return strings.TrimRight(string(out), "\n"), nil
		}
		return "", errors.Wrapf(err, "python execution failed")
	}
	if len(out) == 0 {
		return "(no output)", nil
	}
	return strings.TrimRight(string(out), "\n"), nil
}
