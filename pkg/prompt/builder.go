// Package prompt assembles the system and user prompts the ReAct
// orchestrator sends to the LLM (spec §4.3 step 1): the capability
// catalogue rendered from the worker registry, matched runbook snippets,
// the session-memory context, and the full conversation history. Grounded
// structurally on the teacher's pkg/agent/prompt/builder.go (a dedicated
// builder type over a template, not string concatenation inline in the
// controller) and on original_source/src/agent/prompt_builder.py for the
// content itself.
package prompt

import (
	"fmt"
	"strings"

	"github.com/opsai/opsai/pkg/runbook"
	"github.com/opsai/opsai/pkg/worker"
)

// systemPrompt is the orchestrator's fixed system message: the JSON
// instruction contract the model must honor each turn.
const systemPrompt = `You are OpsAI, a terminal operations assistant. You investigate and act on the user's machine strictly through the worker tools described below — you never invent a tool or action name that is not listed.

On every turn, respond with EXACTLY one JSON object and nothing else:
{
  "thinking": "brief reasoning",
  "worker": "<worker name>",
  "action": "<action name>",
  "args": { ... },
  "risk_level": "safe|low|medium|high",
  "task_completed": false,
  "final_message": ""
}

When the task is finished, set "task_completed": true and put your answer to the user in "final_message"; worker/action/args may then be empty.

Risk levels: "safe" for reads, "low" for reversible local writes, "medium" for service-affecting changes, "high" for destructive or hard-to-reverse actions (deletions, force operations, production traffic changes). Always pick the lowest risk level that honestly describes the action.`

// Builder renders the capability catalogue, matched runbooks, and memory
// context into the user-facing prompt handed to pkg/llm.Client.Generate.
type Builder struct {
	registry *worker.Registry
	runbooks *runbook.Library
}

// New builds a prompt Builder over the given registry and runbook library.
// library may be nil if no runbooks were loaded.
func New(registry *worker.Registry, library *runbook.Library) *Builder {
	return &Builder{registry: registry, runbooks: library}
}

// System returns the fixed system prompt.
func (b *Builder) System() string { return systemPrompt }

// catalogue renders "worker.action" lines in registration order (spec
// §4.1's "worker.action(param: kind)" listing — params are omitted since
// the worker contract does not publish per-action parameter schemas, only
// action identifiers; this mirrors the original's capability listing,
// which is likewise just a name enumeration).
func (b *Builder) catalogue() string {
	var lines []string
	for _, c := range b.registry.Capabilities() {
		for _, action := range c.Capabilities {
			lines = append(lines, fmt.Sprintf("- %s.%s", c.Worker, action))
		}
	}
	if len(lines) == 0 {
		return "(no workers registered)"
	}
	return strings.Join(lines, "\n")
}

// HistoryTurn is one rendered prior ReAct iteration: the instruction that
// was dispatched and the observation it produced. A nil-worker turn (empty
// WorkerAction) never occurs — the very first iteration has no history yet.
type HistoryTurn struct {
	WorkerAction    string // "worker.action"
	ArgsSummary     string
	ResultMessage   string
	RawOutput       string
	OutputTruncated bool
}

func renderHistory(history []HistoryTurn) string {
	var turns []string
	for i, h := range history {
		observation := h.ResultMessage
		if h.RawOutput != "" {
			note := ""
			if h.OutputTruncated {
				note = " [OUTPUT TRUNCATED]"
			}
			observation += fmt.Sprintf("\n\nRaw Output%s:\n%s", note, h.RawOutput)
		}
		turns = append(turns, fmt.Sprintf("%d. Called %s(%s)\n   Observation: %s", i+1, h.WorkerAction, h.ArgsSummary, observation))
	}
	return strings.Join(turns, "\n")
}

// Build assembles the user prompt for one orchestrator iteration: the
// request, the full history, the capability catalogue, matched runbook
// snippets, and the memory context prompt (omitted entirely when empty,
// per spec §4.3 step 1's "if non-empty" clause).
func (b *Builder) Build(userRequest string, history []HistoryTurn, memoryContext string) string {
	var sections []string

	sections = append(sections, fmt.Sprintf("User request:\n%s", userRequest))

	if len(history) > 0 {
		sections = append(sections, fmt.Sprintf("History so far:\n%s", renderHistory(history)))
	}

	sections = append(sections, fmt.Sprintf("Available tools:\n%s", b.catalogue()))

	if b.runbooks != nil {
		if matches := b.runbooks.Match(userRequest); len(matches) > 0 {
			var snippets []string
			for _, m := range matches {
				snippets = append(snippets, fmt.Sprintf("### %s\n%s", m.Title, m.Body))
			}
			sections = append(sections, fmt.Sprintf("Relevant runbooks:\n%s", strings.Join(snippets, "\n\n")))
		}
	}

	if strings.TrimSpace(memoryContext) != "" {
		sections = append(sections, fmt.Sprintf("Known context:\n%s", memoryContext))
	}

	return strings.Join(sections, "\n\n")
}
