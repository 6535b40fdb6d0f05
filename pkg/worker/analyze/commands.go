package analyze

import (
	"encoding/json"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*\\n?(.*?)\\n?```")

// parseCommandList extracts a JSON array of command strings from an LLM
// response, stripping a markdown fence if present. Ported from
// original_source/src/workers/analyze.py's _parse_command_list.
func parseCommandList(response string) []string {
	jsonStr := strings.TrimSpace(response)
	if m := fencePattern.FindStringSubmatch(response); m != nil {
		jsonStr = strings.TrimSpace(m[1])
	}

	var parsed []any
	if err := json.Unmarshal([]byte(jsonStr), &parsed); err != nil {
		return nil
	}

	commands := make([]string, 0, len(parsed))
	for _, v := range parsed {
		if s, ok := v.(string); ok {
			commands = append(commands, s)
		}
	}
	return commands
}
