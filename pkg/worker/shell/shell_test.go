package shell_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/worker"
	"github.com/opsai/opsai/pkg/worker/shell"
)

func TestExecuteCommandSuccess(t *testing.T) {
	w := shell.New()
	result := w.Execute(context.Background(), "execute_command", worker.Args{
		"command": worker.String("echo hello"),
	})
	require.True(t, result.Success)
	assert.True(t, result.TaskCompleted)
	assert.Contains(t, result.Message, "Command: echo hello")
	assert.Contains(t, result.RawOutput, "hello")
}

func TestExecuteCommandDryRun(t *testing.T) {
	w := shell.New()
	result := w.Execute(context.Background(), "execute_command", worker.Args{
		"command": worker.String("rm -rf /tmp/whatever"),
		"dry_run": worker.Bool(true),
	})
	require.True(t, result.Success)
	assert.True(t, result.Simulated)
	assert.Contains(t, result.Message, "[DRY-RUN] Would execute: rm -rf /tmp/whatever")
}

func TestExecuteCommandNonZeroExit(t *testing.T) {
	w := shell.New()
	result := w.Execute(context.Background(), "execute_command", worker.Args{
		"command": worker.String("exit 3"),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Exit code: 3")
}

func TestExecuteCommandBlocksChainOperators(t *testing.T) {
	w := shell.New()
	for _, cmd := range []string{"echo hi; rm -rf /", "echo hi && rm -rf /", "echo hi || rm -rf /"} {
		result := w.Execute(context.Background(), "execute_command", worker.Args{
			"command": worker.String(cmd),
		})
		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "Command blocked: Dangerous pattern detected:")
	}
}

func TestExecuteCommandMissingCommand(t *testing.T) {
	w := shell.New()
	result := w.Execute(context.Background(), "execute_command", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "command must be a string")
}

func TestUnknownAction(t *testing.T) {
	w := shell.New()
	result := w.Execute(context.Background(), "bogus", worker.Args{})
	assert.Contains(t, result.Message, "Unknown action")
}
