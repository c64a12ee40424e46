package world

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	osexec "os/exec"
	"time"

	"github.com/invopop/jsonschema"

	"github.com/agentworld/nexusworld/internal/exec"
	"github.com/agentworld/nexusworld/internal/shell"
	"github.com/agentworld/nexusworld/internal/providers"
)

// ShellCmdArgs is the argument shape of the shell_cmd tool. Its JSON Schema
// is reflected once at registration via invopop/jsonschema rather than
// hand-written, per spec §2.2.
type ShellCmdArgs struct {
	Command          string   `json:"command" jsonschema:"required,description=Executable name or path"`
	Args             []string `json:"args,omitempty" jsonschema:"description=Arguments passed to the executable"`
	WorkingDirectory string   `json:"workingDirectory,omitempty" jsonschema:"description=Directory to run the command in"`
	TimeoutSeconds   int      `json:"timeoutSeconds,omitempty" jsonschema:"description=Kill the process after this many seconds (default 30)"`
}

const defaultShellTimeout = 30 * time.Second

// shellRegistry backs every shell_cmd invocation across the world's
// lifetime, so running/finished sessions are inspectable the way the
// teacher's process_registry.go intends, rather than thrown away per call.
var shellSessionRegistry = shell.NewProcessRegistry(slog.Default())

func (r *ToolRegistry) registerShellCmd() {
	schema := jsonschema.Reflect(&ShellCmdArgs{})
	raw, err := json.Marshal(schema)
	if err != nil {
		raw = json.RawMessage(`{}`)
	}
	r.Register(providers.Tool{
		Name:        "shell_cmd",
		Description: "Execute a shell command and return its combined stdout/stderr output",
		Schema:      raw,
	}, executeShellCmd)
}

// executeShellCmd validates and runs one shell_cmd invocation. Both the
// executable and every argument are passed through internal/exec's
// allowlist validators (no shell metacharacters, no null bytes, no
// option-injection) since the command runs with exec.CommandContext and
// never through a shell.
func executeShellCmd(ctx context.Context, agentID string, input json.RawMessage) (string, error) {
	var args ShellCmdArgs
	if err := json.Unmarshal(input, &args); err != nil {
		return "", fmt.Errorf("shell_cmd: invalid arguments: %w", err)
	}

	command, err := exec.SanitizeExecutableValue(args.Command)
	if err != nil {
		return "", fmt.Errorf("shell_cmd: %w", err)
	}
	safeArgs, err := exec.SanitizeArguments(args.Args)
	if err != nil {
		return "", fmt.Errorf("shell_cmd: %w", err)
	}

	timeout := defaultShellTimeout
	if args.TimeoutSeconds > 0 {
		timeout = time.Duration(args.TimeoutSeconds) * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := osexec.CommandContext(runCtx, command, safeArgs...)
	if args.WorkingDirectory != "" {
		cmd.Dir = args.WorkingDirectory
	}

	session := &shell.ProcessSession{
		ID:        fmt.Sprintf("%s-%d", agentID, time.Now().UnixNano()),
		Command:   command,
		ScopeKey:  agentID,
		StartedAt: time.Now(),
		CWD:       args.WorkingDirectory,
	}
	shellSessionRegistry.AddSession(session)

	output, runErr := cmd.CombinedOutput()
	shellSessionRegistry.AppendOutput(session, "stdout", string(output))

	var exitCode *int
	status := shell.ProcessStatusCompleted
	if runErr != nil {
		status = shell.ProcessStatusFailed
		var exitErr *osexec.ExitError
		if ok := asExitError(runErr, &exitErr); ok {
			code := exitErr.ExitCode()
			exitCode = &code
		}
	} else {
		code := 0
		exitCode = &code
	}
	shellSessionRegistry.MarkExited(session, exitCode, "", status)

	if runErr != nil && exitCode == nil {
		return "", fmt.Errorf("shell_cmd: %w", runErr)
	}
	return string(output), nil
}

func asExitError(err error, target **osexec.ExitError) bool {
	if ee, ok := err.(*osexec.ExitError); ok {
		*target = ee
		return true
	}
	return false
}

// encodeToolArgs renders an approval envelope's toolArgs back to the
// json.RawMessage shape a registered tool's executor expects as input.
func encodeToolArgs(args map[string]any) (json.RawMessage, error) {
	if args == nil {
		args = map[string]any{}
	}
	return json.Marshal(args)
}

// declaredToolResult renders a client-declared result (for any approved tool
// other than shell_cmd) as the content of the resulting tool-role memory
// entry, per spec §4.2.2.d "otherwise persist the declared result".
func declaredToolResult(args map[string]any) string {
	data, err := encodeToolArgs(args)
	if err != nil {
		return "{}"
	}
	return string(data)
}
