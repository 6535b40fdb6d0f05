package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/opsai/opsai/pkg/llm"
	"github.com/opsai/opsai/pkg/worker"
)

type instructionJSON struct {
	Thinking      string                 `json:"thinking"`
	Worker        string                 `json:"worker"`
	Action        string                 `json:"action"`
	Args          map[string]interface{} `json:"args"`
	RiskLevel     string                 `json:"risk_level"`
	TaskCompleted bool                   `json:"task_completed"`
	FinalMessage  string                 `json:"final_message"`
}

// parseInstruction extracts and decodes one Instruction from a raw LLM
// response, per spec §4.2's brace-balanced extraction contract. ok is
// false if no syntactically valid instruction object could be recovered —
// one of the three terminal-for-iteration parse-failure conditions in
// spec §4.3 step 2.
func parseInstruction(response string) (Instruction, bool) {
	obj, ok := llm.ExtractJSON(response)
	if !ok {
		return Instruction{}, false
	}

	var parsed instructionJSON
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return Instruction{}, false
	}

	return Instruction{
		Thinking:      parsed.Thinking,
		Worker:        parsed.Worker,
		Action:        parsed.Action,
		Args:          toArgs(parsed.Args),
		Risk:          worker.ParseRiskLevel(parsed.RiskLevel),
		TaskCompleted: parsed.TaskCompleted,
		FinalMessage:  parsed.FinalMessage,
	}, true
}

// toArgs converts loosely-typed JSON values into the discriminated Args
// union the worker contract expects.
func toArgs(raw map[string]interface{}) worker.Args {
	args := make(worker.Args, len(raw))
	for k, v := range raw {
		switch val := v.(type) {
		case string:
			args[k] = worker.String(val)
		case bool:
			args[k] = worker.Bool(val)
		case float64:
			args[k] = worker.Int(int(val))
		case []interface{}:
			items := make([]string, 0, len(val))
			for _, item := range val {
				items = append(items, fmt.Sprintf("%v", item))
			}
			args[k] = worker.List(items)
		default:
			args[k] = worker.String(fmt.Sprintf("%v", val))
		}
	}
	return args
}

// summarizeArgs renders args compactly for history/approval display.
func summarizeArgs(args worker.Args) string {
	if len(args) == 0 {
		return ""
	}
	b, err := json.Marshal(rawArgs(args))
	if err != nil {
		return ""
	}
	return string(b)
}

func rawArgs(args worker.Args) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		switch v.Kind {
		case worker.ArgString:
			out[k] = v.Str
		case worker.ArgInt:
			out[k] = v.Int
		case worker.ArgBool:
			out[k] = v.Bool
		case worker.ArgList:
			out[k] = v.List
		}
	}
	return out
}
