// Package orchestrator implements the ReAct loop: iterate plan/act/observe
// against the worker registry until the model signals task_completed or
// the iteration budget is exhausted (spec §4.3). Grounded structurally on
// the teacher's pkg/agent/controller/react.go iterate/parse/dispatch/observe
// shape and forced-conclusion fallback, re-expressed around spec §4.3's
// JSON-Instruction wire contract (the teacher parses `Thought:`/`Action:`
// text sections; OpsAI's model returns one JSON object per turn instead).
package orchestrator

import (
	"context"

	"github.com/google/uuid"

	"github.com/opsai/opsai/pkg/worker"
)

// Generator is the orchestrator's narrow LLM seam — a single-turn
// completion, since pkg/prompt.Builder renders the full history into one
// prompt string each iteration rather than relying on multi-turn chat
// state (spec §4.3 step 1).
type Generator interface {
	Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Host is the orchestrator's approval surface (spec §4.3 step 4).
type Host interface {
	// Approve asks the user (or an unattended policy) whether to proceed
	// with an instruction whose risk level requires confirmation.
	Approve(ctx context.Context, summary string) bool
}

// Instruction is a single planned tool call (spec's Instruction glossary
// entry): immutable once parsed.
type Instruction struct {
	Thinking      string
	Worker        string
	Action        string
	Args          worker.Args
	Risk          worker.RiskLevel
	TaskCompleted bool
	FinalMessage  string
}

// ConversationEntry is one completed turn: the instruction that was
// dispatched and the observation it produced (spec's ConversationEntry
// glossary entry). UserInput is only set on the entry representing the
// original request; internal turns leave it empty.
type ConversationEntry struct {
	UserInput   string
	Instruction Instruction
	Result      worker.WorkerResult
}

// Status is the terminal disposition of a Run.
type Status int

const (
	StatusCompleted Status = iota
	StatusIncomplete
	StatusRejected
)

// Result is the outcome of one orchestrator Run. RunID is a fresh UUID
// minted per run (teacher's pkg/session/manager.go mints session IDs with
// uuid.New() the same way).
type Result struct {
	RunID      string
	Status     Status
	FinalText  string
	History    []ConversationEntry
	Iterations int
}

// newRunID mints a fresh run identifier.
func newRunID() string {
	return uuid.New().String()
}
