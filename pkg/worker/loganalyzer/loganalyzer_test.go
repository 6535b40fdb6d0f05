package loganalyzer_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/worker"
	"github.com/opsai/opsai/pkg/worker/loganalyzer"
)

func TestAnalyzeLinesDedupesIdenticalErrors(t *testing.T) {
	var lines []string
	for i := 0; i < 100; i++ {
		lines = append(lines, "2024-01-15T09:30:01Z ERROR Connection timeout to db:5432")
	}

	w := loganalyzer.New(nil)
	result := w.Execute(context.Background(), "analyze_lines", worker.Args{
		"lines": worker.String(strings.Join(lines, "\n")),
	})

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "独立模式: 1")
	assert.Contains(t, result.Message, "ERROR: 100")

	var errorRow worker.DataRow
	for _, row := range result.Data {
		if row["name"] == "error_0" {
			errorRow = row
		}
	}
	require.NotNil(t, errorRow)
	assert.Equal(t, "100", errorRow["count"])
	assert.Contains(t, errorRow["pattern"], "<N>")
}

func TestAnalyzeLinesMissingArgument(t *testing.T) {
	w := loganalyzer.New(nil)
	result := w.Execute(context.Background(), "analyze_lines", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "缺少参数: lines")
}

func TestAnalyzeFileMissingFile(t *testing.T) {
	w := loganalyzer.New(nil)
	result := w.Execute(context.Background(), "analyze_file", worker.Args{
		"path": worker.String("/no/such/file.log"),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "文件不存在")
}

type stubShell struct {
	result worker.WorkerResult
}

func (s *stubShell) Name() string           { return "shell" }
func (s *stubShell) Capabilities() []string { return []string{"execute_command"} }
func (s *stubShell) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	return s.result
}

func TestAnalyzeContainerUsesShellOutput(t *testing.T) {
	shell := &stubShell{result: worker.WorkerResult{
		Success:   true,
		RawOutput: "2024-01-15T09:30:01Z WARN disk usage high\n2024-01-15T09:30:02Z WARN disk usage high",
	}}
	w := loganalyzer.New(shell)

	result := w.Execute(context.Background(), "analyze_container", worker.Args{
		"container": worker.String("web-1"),
	})
	require.True(t, result.Success)
	assert.Contains(t, result.Message, "WARN: 2")
}

func TestAnalyzeContainerPropagatesShellFailure(t *testing.T) {
	shell := &stubShell{result: worker.WorkerResult{Success: false, Message: "no such container"}}
	w := loganalyzer.New(shell)

	result := w.Execute(context.Background(), "analyze_container", worker.Args{
		"container": worker.String("ghost"),
	})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "获取容器日志失败")
}

func TestUnknownAction(t *testing.T) {
	w := loganalyzer.New(nil)
	result := w.Execute(context.Background(), "bogus", worker.Args{})
	assert.Contains(t, result.Message, "Unknown action")
}
