package orchestrator_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/orchestrator"
	"github.com/opsai/opsai/pkg/prompt"
	"github.com/opsai/opsai/pkg/worker"
)

type stubWorker struct {
	name string
	caps []string
	run  func(action string, args worker.Args) worker.WorkerResult
}

func (s *stubWorker) Name() string           { return s.name }
func (s *stubWorker) Capabilities() []string { return s.caps }
func (s *stubWorker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	return s.run(action, args)
}

type scriptedLLM struct {
	responses []string
	calls     int
}

func (s *scriptedLLM) Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.calls >= len(s.responses) {
		return "", fmt.Errorf("no more scripted responses")
	}
	r := s.responses[s.calls]
	s.calls++
	return r, nil
}

type stubHost struct {
	approve bool
	asked   []string
}

func (h *stubHost) Approve(ctx context.Context, summary string) bool {
	h.asked = append(h.asked, summary)
	return h.approve
}

func newRegistry() *worker.Registry {
	return worker.NewRegistry(&stubWorker{
		name: "shell",
		caps: []string{"execute_command"},
		run: func(action string, args worker.Args) worker.WorkerResult {
			cmd, _ := args.GetString("command")
			return worker.WorkerResult{Success: true, Message: "ran: " + cmd}
		},
	})
}

func newBuilder(reg *worker.Registry) *prompt.Builder {
	return prompt.New(reg, nil)
}

func TestRunStopsOnInstructionTaskCompleted(t *testing.T) {
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"no action needed","worker":"","action":"","args":{},"risk_level":"safe","task_completed":true,"final_message":"nothing to do"}`,
	}}
	reg := newRegistry()
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy())

	result := orch.Run(context.Background(), "is everything fine?")

	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Equal(t, "nothing to do", result.FinalText)
	assert.Equal(t, 1, result.Iterations)
	assert.NotEmpty(t, result.RunID)
}

func TestRunStopsOnWorkerResultTaskCompleted(t *testing.T) {
	reg := worker.NewRegistry(&stubWorker{
		name: "http",
		caps: []string{"fetch_url"},
		run: func(action string, args worker.Args) worker.WorkerResult {
			return worker.WorkerResult{Success: true, Message: "fetched", TaskCompleted: true}
		},
	})
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"fetch it","worker":"http","action":"fetch_url","args":{"url":"https://example.com"},"risk_level":"safe","task_completed":false}`,
	}}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy())

	result := orch.Run(context.Background(), "fetch example.com")

	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Equal(t, "fetched", result.FinalText)
}

func TestRunRejectsInstructionAboveRiskCeiling(t *testing.T) {
	reg := newRegistry()
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"delete everything","worker":"shell","action":"execute_command","args":{"command":"rm -rf /"},"risk_level":"high","task_completed":false}`,
		`{"thinking":"give up","worker":"","action":"","args":{},"risk_level":"safe","task_completed":true,"final_message":"refused, too risky"}`,
	}}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy())

	result := orch.Run(context.Background(), "wipe the disk")

	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Equal(t, "refused, too risky", result.FinalText)
	assert.Equal(t, 2, result.Iterations)
	require.Len(t, result.History, 2)
	assert.False(t, result.History[0].Result.Success)
	assert.Contains(t, result.History[0].Result.Message, "exceeds the current policy ceiling")
}

func TestRunRequiresApprovalForLowRiskAndHonorsRefusal(t *testing.T) {
	reg := newRegistry()
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"restart the service","worker":"shell","action":"execute_command","args":{"command":"systemctl restart api"},"risk_level":"low","task_completed":false}`,
		`{"thinking":"done trying","worker":"","action":"","args":{},"risk_level":"safe","task_completed":true,"final_message":"user declined"}`,
	}}
	policy := orchestrator.RiskPolicy{MaxRisk: worker.RiskMedium, AutoApproveSafe: true, ApprovalFloor: worker.RiskLow}
	host := &stubHost{approve: false}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, host, policy)

	result := orch.Run(context.Background(), "restart the api service")

	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Len(t, host.asked, 1)
	assert.Contains(t, result.History[0].Result.Message, "declined")
}

func TestRunForceConcludesWhenIterationBudgetExhausted(t *testing.T) {
	reg := newRegistry()
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"check again","worker":"shell","action":"execute_command","args":{"command":"echo hi"},"risk_level":"safe","task_completed":false}`,
		`{"thinking":"check again","worker":"shell","action":"execute_command","args":{"command":"echo hi"},"risk_level":"safe","task_completed":false}`,
		`{"thinking":"summarize","worker":"","action":"","args":{},"risk_level":"safe","task_completed":true,"final_message":"partial progress made"}`,
	}}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy()).WithMaxIterations(2)

	result := orch.Run(context.Background(), "keep checking forever")

	assert.Equal(t, orchestrator.StatusIncomplete, result.Status)
	assert.Equal(t, "partial progress made", result.FinalText)
}

func TestRunRecoversFromUnparsableResponse(t *testing.T) {
	reg := newRegistry()
	llm := &scriptedLLM{responses: []string{
		"not json at all",
		`{"thinking":"retry with valid json","worker":"","action":"","args":{},"risk_level":"safe","task_completed":true,"final_message":"recovered"}`,
	}}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy())

	result := orch.Run(context.Background(), "do something")

	assert.Equal(t, orchestrator.StatusCompleted, result.Status)
	assert.Equal(t, "recovered", result.FinalText)
	assert.Equal(t, 2, result.Iterations)
}

func TestWithDryRunForcesDryRunArg(t *testing.T) {
	var seenDryRun bool
	reg := worker.NewRegistry(&stubWorker{
		name: "shell",
		caps: []string{"execute_command"},
		run: func(action string, args worker.Args) worker.WorkerResult {
			seenDryRun = args.GetBool("dry_run", false)
			return worker.WorkerResult{Success: true, Message: "ok", TaskCompleted: true}
		},
	})
	llm := &scriptedLLM{responses: []string{
		`{"thinking":"run it","worker":"shell","action":"execute_command","args":{"command":"echo hi"},"risk_level":"safe","task_completed":false}`,
	}}
	orch := orchestrator.New(reg, llm, newBuilder(reg), nil, nil, orchestrator.DefaultRiskPolicy()).WithDryRun(true)

	orch.Run(context.Background(), "echo hi")

	assert.True(t, seenDryRun)
}
