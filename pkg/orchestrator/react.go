package orchestrator

import (
	"context"
	"fmt"

	"github.com/opsai/opsai/pkg/memory"
	"github.com/opsai/opsai/pkg/prompt"
	"github.com/opsai/opsai/pkg/worker"
)

const defaultMaxIterations = 10

// Orchestrator drives the ReAct loop over a worker registry (spec §4.3).
type Orchestrator struct {
	registry      *worker.Registry
	llm           Generator
	builder       *prompt.Builder
	memory        *memory.Store
	host          Host
	policy        RiskPolicy
	maxIterations int
	dryRun        bool
}

// New builds an Orchestrator. memStore may be nil to disable memory-context
// injection.
func New(registry *worker.Registry, llm Generator, builder *prompt.Builder, memStore *memory.Store, host Host, policy RiskPolicy) *Orchestrator {
	return &Orchestrator{
		registry:      registry,
		llm:           llm,
		builder:       builder,
		memory:        memStore,
		host:          host,
		policy:        policy,
		maxIterations: defaultMaxIterations,
	}
}

// WithMaxIterations overrides the default iteration budget.
func (o *Orchestrator) WithMaxIterations(n int) *Orchestrator {
	if n > 0 {
		o.maxIterations = n
	}
	return o
}

// WithDryRun forces dry_run=true into every dispatched instruction's args,
// regardless of what the model requested (used by `opsai query --dry-run`).
func (o *Orchestrator) WithDryRun(dryRun bool) *Orchestrator {
	o.dryRun = dryRun
	return o
}

func (o *Orchestrator) memoryContext() string {
	if o.memory == nil {
		return ""
	}
	return o.memory.GetContextPrompt(10)
}

// Run executes the ReAct loop for one user request until task_completed or
// the iteration budget is exhausted (spec §4.3).
func (o *Orchestrator) Run(ctx context.Context, userRequest string) Result {
	runID := newRunID()
	var history []ConversationEntry
	var turns []prompt.HistoryTurn

	for iteration := 0; iteration < o.maxIterations; iteration++ {
		userPrompt := o.builder.Build(userRequest, turns, o.memoryContext())

		response, err := o.llm.Simple(ctx, o.builder.System(), userPrompt)
		if err != nil {
			turns = append(turns, prompt.HistoryTurn{
				WorkerAction:  "(llm)",
				ResultMessage: fmt.Sprintf("LLM call failed: %s. Try a different approach.", err),
			})
			continue
		}

		instr, ok := parseInstruction(response)
		if !ok {
			turns = append(turns, prompt.HistoryTurn{
				WorkerAction:  "(llm)",
				ResultMessage: "Your previous response was not a single valid JSON instruction object. Respond with exactly one JSON object per the contract.",
			})
			continue
		}

		if instr.TaskCompleted {
			history = append(history, ConversationEntry{Instruction: instr})
			return Result{RunID: runID, Status: StatusCompleted, FinalText: instr.FinalMessage, History: history, Iterations: iteration + 1}
		}

		if !o.policy.Allowed(instr.Risk) {
			observation := fmt.Sprintf("Rejected: %s.%s requires risk level %q, which exceeds the current policy ceiling of %q. Propose a lower-risk alternative or ask the user.", instr.Worker, instr.Action, instr.Risk, o.policy.MaxRisk)
			history = append(history, ConversationEntry{Instruction: instr, Result: worker.WorkerResult{Success: false, Message: observation}})
			turns = append(turns, prompt.HistoryTurn{WorkerAction: fmt.Sprintf("%s.%s", instr.Worker, instr.Action), ArgsSummary: summarizeArgs(instr.Args), ResultMessage: observation})
			continue
		}

		if o.policy.RequiresApproval(instr.Risk) && o.host != nil {
			summary := fmt.Sprintf("%s.%s(%s) [risk: %s]", instr.Worker, instr.Action, summarizeArgs(instr.Args), instr.Risk)
			if !o.host.Approve(ctx, summary) {
				observation := "The user declined to approve this action. Propose an alternative or stop."
				history = append(history, ConversationEntry{Instruction: instr, Result: worker.WorkerResult{Success: false, Message: observation}})
				turns = append(turns, prompt.HistoryTurn{WorkerAction: fmt.Sprintf("%s.%s", instr.Worker, instr.Action), ArgsSummary: summarizeArgs(instr.Args), ResultMessage: observation})
				continue
			}
		}

		args := instr.Args
		if o.dryRun {
			if args == nil {
				args = worker.Args{}
			}
			args["dry_run"] = worker.Bool(true)
		}

		result := o.registry.Dispatch(ctx, instr.Worker, instr.Action, args)
		entry := ConversationEntry{Instruction: instr, Result: result}
		if iteration == 0 {
			entry.UserInput = userRequest
		}
		history = append(history, entry)
		turns = append(turns, prompt.HistoryTurn{
			WorkerAction:    fmt.Sprintf("%s.%s", instr.Worker, instr.Action),
			ArgsSummary:     summarizeArgs(instr.Args),
			ResultMessage:   result.Message,
			RawOutput:       result.RawOutput,
			OutputTruncated: result.OutputTruncated,
		})

		if result.TaskCompleted {
			return Result{RunID: runID, Status: StatusCompleted, FinalText: result.Message, History: history, Iterations: iteration + 1}
		}
	}

	return o.forceConclusion(ctx, runID, userRequest, history, turns)
}

// forceConclusion asks the model for one final summary once the iteration
// budget is exhausted, mirroring the teacher's forceConclusion fallback
// (pkg/agent/controller/react.go) — except OpsAI marks the run incomplete
// rather than failed, since a partial result is still useful to the user.
func (o *Orchestrator) forceConclusion(ctx context.Context, runID, userRequest string, history []ConversationEntry, turns []prompt.HistoryTurn) Result {
	prompt := o.builder.Build(userRequest+"\n\n(Iteration budget exhausted. Summarize what was accomplished and what remains; set task_completed=true.)", turns, o.memoryContext())

	response, err := o.llm.Simple(ctx, o.builder.System(), prompt)
	if err != nil {
		return Result{RunID: runID, Status: StatusIncomplete, FinalText: "Iteration budget exhausted and the final summary call failed.", History: history, Iterations: o.maxIterations}
	}

	if instr, ok := parseInstruction(response); ok && instr.FinalMessage != "" {
		return Result{RunID: runID, Status: StatusIncomplete, FinalText: instr.FinalMessage, History: history, Iterations: o.maxIterations}
	}

	return Result{RunID: runID, Status: StatusIncomplete, FinalText: response, History: history, Iterations: o.maxIterations}
}
