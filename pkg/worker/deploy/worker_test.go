package deploy_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/deploy"
	workerdeploy "github.com/opsai/opsai/pkg/worker/deploy"

	"github.com/opsai/opsai/pkg/worker"
)

type stubWorker struct {
	name string
	run  func(action string, args worker.Args) worker.WorkerResult
}

func (s *stubWorker) Name() string           { return s.name }
func (s *stubWorker) Capabilities() []string { return nil }
func (s *stubWorker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	return s.run(action, args)
}

type stubGenerator struct{ response string }

func (g *stubGenerator) Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return g.response, nil
}

func TestWorkerRequiresRepoURL(t *testing.T) {
	w := workerdeploy.New(deploy.New(&stubWorker{name: "http"}, &stubWorker{name: "shell"}, &stubGenerator{}, nil))
	result := w.Execute(context.Background(), "deploy", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "repo_url is required")
}

func TestWorkerRejectsUnknownAction(t *testing.T) {
	w := workerdeploy.New(deploy.New(&stubWorker{name: "http"}, &stubWorker{name: "shell"}, &stubGenerator{}, nil))
	result := w.Execute(context.Background(), "rollback", worker.Args{})
	assert.False(t, result.Success)
	assert.Contains(t, result.Message, "Unknown")
}

func TestWorkerDispatchesDryRunDeployAndReportsData(t *testing.T) {
	httpW := &stubWorker{name: "http", run: func(action string, args worker.Args) worker.WorkerResult {
		switch action {
		case "fetch_github_readme":
			return worker.WorkerResult{Success: true, RawOutput: "# App"}
		case "list_github_files":
			return worker.WorkerResult{Success: true, Data: []worker.DataRow{{"name": "package.json"}}}
		}
		return worker.Unknown(action)
	}}
	shellW := &stubWorker{name: "shell", run: func(action string, args worker.Args) worker.WorkerResult {
		return worker.WorkerResult{Success: false, Message: "not found"}
	}}
	llm := &stubGenerator{response: `{"project_type":"node","notes":"","steps":[{"description":"install","command":"npm install"}]}`}

	w := workerdeploy.New(deploy.New(httpW, shellW, llm, nil))
	result := w.Execute(context.Background(), "deploy", worker.Args{
		"repo_url": worker.String("https://github.com/acme/widget"),
		"dry_run":  worker.Bool(true),
	})

	require.True(t, result.Success)
	assert.True(t, result.Simulated)
	require.Len(t, result.Data, 1)
	assert.Equal(t, "https://github.com/acme/widget", result.Data[0]["repo_url"])
	assert.Equal(t, "node", result.Data[0]["project_type"])
	assert.True(t, result.TaskCompleted)
}
