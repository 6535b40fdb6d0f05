package llm

import "encoding/json"

// jsonValid reports whether s parses as a JSON object (not just any valid
// JSON value) — spec §4.2 only ever expects an Instruction-shaped object.
func jsonValid(s string) bool {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v) == nil
}
