package analyze_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/worker"
	"github.com/opsai/opsai/pkg/worker/analyze"
)

// stubShell returns a fixed WorkerResult per command prefix, ignoring actual
// execution, so the port adjudication logic can be tested deterministically.
type stubShell struct {
	results map[string]worker.WorkerResult
	calls   []string
}

func (s *stubShell) Name() string            { return "shell" }
func (s *stubShell) Capabilities() []string  { return []string{"execute_command"} }
func (s *stubShell) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	cmd, _ := args.GetString("command")
	s.calls = append(s.calls, cmd)
	if r, ok := s.results[cmd]; ok {
		return r
	}
	return worker.WorkerResult{Success: false, Message: "[Failed: no stub]"}
}

type stubLLM struct {
	called bool
}

func (s *stubLLM) Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	s.called = true
	return "unexpected call", nil
}

func TestAnalyzeS1PortDetectionNothingListening(t *testing.T) {
	cache, err := analyze.Open(filepath.Join(t.TempDir(), "templates.json"))
	require.NoError(t, err)

	shellStub := &stubShell{results: map[string]worker.WorkerResult{
		"ss -tlnp | grep :9999": {
			Success: true,
			Message: "Command: ss -tlnp | grep :9999\nExit code: 1",
		},
		"lsof -i :9999 -P -n": {
			Success: false,
			Message: "connection refused",
		},
		"curl -sI http://localhost:9999 --max-time 3 || true": {
			Success: true,
			Message: "Command: curl -sI http://localhost:9999 --max-time 3 || true\nError:\nconnection refused\nExit code: 0",
		},
	}}
	llmStub := &stubLLM{}

	w := analyze.New(llmStub, shellStub, cache)
	result := w.Execute(context.Background(), "explain", worker.Args{
		"target": worker.String("9999"),
	})

	assert.True(t, result.Success)
	assert.Contains(t, result.Message, "端口 9999 当前没有服务在监听")
	assert.False(t, llmStub.called)
}

func TestAnalyzeMissingTargetAsksForClarification(t *testing.T) {
	w := analyze.New(nil, &stubShell{}, nil)
	result := w.Execute(context.Background(), "explain", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "请指定要分析的对象名称")
}

func TestAnalyzeUsesCachedCommandsOverDefaults(t *testing.T) {
	cache, err := analyze.Open(filepath.Join(t.TempDir(), "templates.json"))
	require.NoError(t, err)
	require.NoError(t, cache.Set("docker", []string{"echo cached {name}"}))

	shellStub := &stubShell{results: map[string]worker.WorkerResult{
		"echo cached mycontainer": {Success: true, RawOutput: "cached output here that is long enough"},
	}}

	w := analyze.New(&stubLLM{}, shellStub, cache)
	result := w.Execute(context.Background(), "explain", worker.Args{
		"target": worker.String("mycontainer"),
		"type":   worker.String("docker"),
	})

	require.True(t, result.Success)
	assert.Equal(t, []string{"echo cached mycontainer"}, shellStub.calls)

	updated := cache.ListAll()["docker"]
	assert.Equal(t, 1, updated.HitCount)
}

func TestAnalyzeNoMeaningfulDataShortCircuits(t *testing.T) {
	cache, err := analyze.Open(filepath.Join(t.TempDir(), "templates.json"))
	require.NoError(t, err)

	shellStub := &stubShell{results: map[string]worker.WorkerResult{
		"docker inspect ghost": {Success: true, Message: "(no matches found)"},
		"docker logs --tail 50 ghost": {Success: true, Message: "(no matches found)"},
	}}
	llmStub := &stubLLM{}

	w := analyze.New(llmStub, shellStub, cache)
	result := w.Execute(context.Background(), "explain", worker.Args{
		"target": worker.String("ghost"),
		"type":   worker.String("docker"),
	})

	require.True(t, result.Success)
	assert.Contains(t, result.Message, "未检测到 ghost 相关信息")
	assert.False(t, llmStub.called)
}
