package deploy

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"runtime"
	"strings"
)

func writeFileString(path, content string) error {
	return os.WriteFile(path, []byte(content), 0o644)
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func goosRelease() string {
	switch runtime.GOOS {
	case "darwin":
		return "Darwin"
	case "linux":
		return "Linux"
	default:
		return runtime.GOOS
	}
}

var githubURLPattern = regexp.MustCompile(`^https?://github\.com/([\w\-.]+)/([\w\-.]+?)(?:\.git)?/?$`)

// parseGithubURL splits a GitHub repo URL into (owner, repo); ok is false
// for anything that doesn't match the expected shape.
func parseGithubURL(rawURL string) (owner, repo string, ok bool) {
	m := githubURLPattern.FindStringSubmatch(rawURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

// classifyProjectType is the FSM's analyze-state filename-signal
// classification (spec §4.4), independent of (and cheaper than) the
// planner's LLM-driven classification used for the deployment plan itself.
func classifyProjectType(files []string) string {
	has := func(name string) bool {
		for _, f := range files {
			if strings.EqualFold(strings.TrimSpace(f), name) {
				return true
			}
		}
		return false
	}
	switch {
	case has("Dockerfile"):
		return "docker"
	case has("pyproject.toml") || has("requirements.txt"):
		return "python"
	case has("package.json"):
		return "nodejs"
	case has("go.mod"):
		return "go"
	case has("Cargo.toml"):
		return "rust"
	default:
		return "unknown"
	}
}

type planResponse struct {
	Thinking    []any  `json:"thinking"`
	ProjectType string `json:"project_type"`
	Notes       string `json:"notes"`
	Steps       []struct {
		Description string `json:"description"`
		Command     string `json:"command"`
	} `json:"steps"`
}

func parsePlanResponse(obj string) PlanResult {
	var parsed planResponse
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return PlanResult{ProjectType: "unknown", Notes: "LLM 返回格式错误"}
	}

	var steps []Step
	for _, s := range parsed.Steps {
		steps = append(steps, Step{Description: s.Description, Command: s.Command})
	}

	var thinking []string
	for _, t := range parsed.Thinking {
		thinking = append(thinking, fmt.Sprintf("%v", t))
	}

	projectType := parsed.ProjectType
	if projectType == "" {
		projectType = "unknown"
	}

	return PlanResult{Steps: steps, ProjectType: projectType, Notes: parsed.Notes, Thinking: thinking}
}

type diagnosisResponse struct {
	Thinking   []any  `json:"thinking"`
	Action     string `json:"action"`
	NewCommand string `json:"new_command"`
	Commands   []any  `json:"commands"`
	AskUser    *struct {
		Question string   `json:"question"`
		Options  []string `json:"options"`
		Context  string   `json:"context"`
	} `json:"ask_user"`
	EditFile *struct {
		Path    string `json:"path"`
		Content string `json:"content"`
		Reason  string `json:"reason"`
	} `json:"edit_file"`
	Cause      string `json:"cause"`
	Suggestion string `json:"suggestion"`
}

func parseDiagnosisResponse(obj string) Diagnosis {
	var parsed diagnosisResponse
	if err := json.Unmarshal([]byte(obj), &parsed); err != nil {
		return Diagnosis{Action: diagnoseActionGiveUp, Cause: "无法解析诊断结果", Suggestion: "请手动检查"}
	}

	d := Diagnosis{
		Action:     parsed.Action,
		NewCommand: parsed.NewCommand,
		Cause:      parsed.Cause,
		Suggestion: parsed.Suggestion,
	}
	if d.Action == "" {
		d.Action = diagnoseActionGiveUp
	}
	for _, t := range parsed.Thinking {
		d.Thinking = append(d.Thinking, fmt.Sprintf("%v", t))
	}
	for _, c := range parsed.Commands {
		if s, ok := c.(string); ok && s != "" {
			d.Commands = append(d.Commands, s)
		}
	}
	if parsed.AskUser != nil {
		d.AskUser = &AskUserRequest{
			Question: parsed.AskUser.Question,
			Options:  parsed.AskUser.Options,
			Context:  parsed.AskUser.Context,
		}
	}
	if parsed.EditFile != nil {
		d.EditFile = &EditFileRequest{
			Path:    parsed.EditFile.Path,
			Content: parsed.EditFile.Content,
			Reason:  parsed.EditFile.Reason,
		}
	}
	return d
}
