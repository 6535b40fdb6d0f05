// Package shell implements the "shell" worker: running an arbitrary
// command via the system shell and reporting stdout/stderr/exit code.
// Ported from original_source/src/workers/shell.py, with one addition
// spec.md §9 and the diagnoser's Tier-1 rules both assume exists but the
// original never implements: a dangerous-pattern block list rejecting
// command-chaining operators (see SPEC_FULL.md §C.6).
package shell

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"github.com/opsai/opsai/pkg/worker"
)

// Worker executes shell commands.
type Worker struct{}

// New builds a shell Worker.
func New() *Worker { return &Worker{} }

func (w *Worker) Name() string { return "shell" }

func (w *Worker) Capabilities() []string { return []string{"execute_command"} }

// dangerousPatterns rejects the chain operators an attacker could use to
// smuggle a second command past a caller that only validated the first.
var dangerousPatterns = []string{";", "&&", "||"}

func detectDangerousPattern(command string) (string, bool) {
	for _, pattern := range dangerousPatterns {
		if strings.Contains(command, pattern) {
			return pattern, true
		}
	}
	return "", false
}

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	if action != "execute_command" {
		return worker.Unknown(action)
	}

	command, ok := args.GetString("command")
	if !ok || command == "" {
		return worker.WorkerResult{Success: false, Message: "command must be a string"}
	}

	if pattern, blocked := detectDangerousPattern(command); blocked {
		return worker.WorkerResult{
			Success: false,
			Message: fmt.Sprintf("Command blocked: Dangerous pattern detected: %q", pattern),
		}
	}

	workingDir, _ := args.GetString("working_dir")
	if workingDir == "" {
		if wd, err := os.Getwd(); err == nil {
			workingDir = wd
		}
	}

	if args.GetBool("dry_run", false) {
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would execute: %s (cwd: %s)", command, workingDir),
			Simulated: true,
		}
	}

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = workingDir

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()

	exitCode := 0
	if runErr != nil {
		if exitErr, ok := runErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Failed to execute command: %s", runErr)}
		}
	}
	success := exitCode == 0

	out := strings.TrimSpace(stdout.String())
	errOut := strings.TrimSpace(stderr.String())

	parts := []string{fmt.Sprintf("Command: %s", command)}
	if out != "" {
		parts = append(parts, fmt.Sprintf("Output:\n%s", out))
	}
	if errOut != "" {
		parts = append(parts, fmt.Sprintf("Error:\n%s", errOut))
	}
	parts = append(parts, fmt.Sprintf("Exit code: %d", exitCode))

	return worker.WorkerResult{
		Success:       success,
		Message:       strings.Join(parts, "\n"),
		RawOutput:     stdout.String(),
		TaskCompleted: success,
		Data: []worker.DataRow{{
			"command":   command,
			"stdout":    stdout.String(),
			"stderr":    stderr.String(),
			"exit_code": fmt.Sprintf("%d", exitCode),
		}},
	}
}
