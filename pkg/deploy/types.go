// Package deploy implements the GitHub-project deploy subsystem: a fixed
// state machine (analyze→clone→setup→start→done/error) driving an
// LLM-generated plan through a retrying executor and a two-tier diagnoser.
// Grounded on original_source/src/workers/deploy/{types,planner,diagnose,
// executor,worker}.py and src/orchestrator/graph/{state,deploy,nodes}.py for
// the state shape. LangGraph itself has no Go analog in the retrieved
// corpus, so the state machine is a plain switch-driven loop (spec §4.4,
// SPEC_FULL §C.7) rather than a graph-library construction.
package deploy

import (
	"context"
	"strings"
)

// Generator is the narrow LLM seam the planner and diagnoser depend on,
// matching pkg/worker/analyze.Generator so pkg/llm.Client satisfies both
// without an adapter.
type Generator interface {
	Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Host bundles the cross-module callbacks the original threads through
// mutable setter methods (set_progress_callback/set_confirmation_callback/
// set_ask_user_callback). Spec §9 calls for explicit capability passing
// instead, so the whole bundle is a single interface injected once at
// construction; internal/host provides the CLI-backed implementation.
type Host interface {
	// Progress reports a human-readable status line for a named step.
	Progress(step, message string)
	// Confirm asks for approval before a destructive action. Returns false
	// if no interactive surface is available (safe default: refuse).
	Confirm(ctx context.Context, action, detail string) bool
	// AskUser presents a question with a closed set of options and returns
	// the user's choice, or "" if no interactive surface is available.
	AskUser(ctx context.Context, question string, options []string, context string) string
}

// Step is one planner-produced deployment action.
type Step struct {
	Description string
	Command     string
}

// EnvInfo is the local-machine probe consumed by the plan prompt.
type EnvInfo struct {
	OS            string
	Python        string
	Docker        string
	DockerRunning string
	Node          string
	UV            string
}

// AskUserRequest is the diagnoser's request for a user decision.
type AskUserRequest struct {
	Question string
	Options  []string
	Context  string
}

// EditFileRequest is the diagnoser's request to rewrite a project file.
type EditFileRequest struct {
	Path    string
	Content string
	Reason  string
}

// Diagnosis is the two-tier diagnoser's verdict. Action selects which
// fields are meaningful: NewCommand/Commands for "fix", AskUser for
// "ask_user", EditFile for "edit_file".
type Diagnosis struct {
	Thinking   []string
	Action     string // "fix" | "ask_user" | "edit_file" | "give_up"
	NewCommand string
	Commands   []string
	AskUser    *AskUserRequest
	EditFile   *EditFileRequest
	Cause      string
	Suggestion string
}

const diagnoseActionFix = "fix"
const diagnoseActionAskUser = "ask_user"
const diagnoseActionEditFile = "edit_file"
const diagnoseActionGiveUp = "give_up"

// destructivePatterns gates commands the diagnoser proposes through the
// confirmation callback before they run (spec §4.7 tier 2).
var destructivePatterns = []string{
	"rm ", "rm -", "rmdir", "delete", "kill ", "kill -", "pkill", "killall",
	"sudo ", "chmod ", "chown ", "docker rm", "docker rmi", "docker stop",
	"docker kill", "> ", ">> ", "mv ", "cp -f",
}

func isDestructiveCommand(cmd string) bool {
	lower := strings.ToLower(strings.TrimSpace(cmd))
	for _, pattern := range destructivePatterns {
		if strings.Contains(lower, pattern) {
			return true
		}
	}
	return false
}

// isSafeReadCommand reports whether cmd is a known read-only inspection
// command.
func isSafeReadCommand(cmd string) bool {
	safePrefixes := []string{
		"ls", "cat", "head", "tail", "grep", "find", "pwd", "echo",
		"docker ps", "docker logs", "docker inspect", "docker images",
		"ps ", "ps aux", "env", "printenv", "which", "whereis", "file ",
		"stat ", "du ", "df ", "free", "uname",
		"python --version", "node --version", "docker --version",
	}
	lower := strings.ToLower(strings.TrimSpace(cmd))
	for _, prefix := range safePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

const deployPlanPrompt = `You are an ops expert. Analyze the following project and produce the optimal deployment plan.

## Project info
README:
%s

File list:
%s

## Key config file contents (important!)
%s

## Local environment
%s

## Task
Think step by step and produce a deployment plan:

1. Classify the project type from the file list and config contents.
2. Extract ports, environment variables, and other key config from Dockerfile/docker-compose.yml.
3. Check whether the local environment satisfies the runtime requirements; note anything missing.
4. Decide the deployment strategy (Docker / run directly / etc).
5. Produce the concrete command steps.

Important:
- Port mappings MUST come from the Dockerfile's EXPOSE directive or docker-compose.yml's ports field — never invent a port.
- If the Dockerfile has EXPOSE 5000, use -p 5000:5000. If docker-compose.yml has ports: ["5000:5000"], use that.
- Environment variables must also come from the config files.

Return JSON only (no markdown code fences):
{
  "thinking": ["step one reasoning", "step two reasoning", "..."],
  "project_type": "python/nodejs/docker/go/rust/unknown",
  "env_check": {"satisfied": true, "missing": [], "warnings": []},
  "steps": [
    {"description": "build image", "command": "docker build -t myapp .", "risk_level": "safe"},
    {"description": "run container", "command": "docker run -d --name myapp -p 5000:5000 myapp", "risk_level": "safe"}
  ],
  "notes": "anything worth flagging"
}

Notes:
- Never use a default port like 8000 or 8080; always read it from the project's own config.
- Prefer "docker compose up -d" when a docker-compose.yml is present.
- If the Docker daemon isn't running, the first step should start it.
- Do not include "git clone" — the repository is already cloned.
- All commands run inside the project directory.`

const diagnoseErrorPrompt = `A command failed. You are an ops expert; diagnose the problem and propose a fix immediately.

## Failed command
%s

## Error
%s

## Project context
Project type: %s
Project directory: %s
Known files: %s

## Already collected
%s

## Solve it in one pass

Give a complete fix this round — don't waste a round exploring.

### Standard handling for common problems:

**Port already in use (address already in use)**
- Don't re-diagnose the port conflict. Just change the command to use a different port.
- If the original port was 5000, use 5001; if 3000, use 3001.
- action = "fix", emit a command using the new port directly.

**Container name conflict (container name already in use)**
- docker rm -f the old container, then rerun.

**Image not found**
- Try docker build to produce a local image.

**Missing config file (.env not found)**
- Check for a .env.example and copy it directly.

**Dependency install failure**
- Try an alternate installer (pip → uv, npm → pnpm).

## Response format

Return JSON only (no markdown fences):
{
  "thinking": ["observation: ...", "analysis: ...", "decision: ..."],
  "action": "fix|ask_user|edit_file|give_up",
  "commands": ["fix command 1", "fix command 2"],
  "new_command": "full replacement command, if applicable",
  "ask_user": {"question": "...", "options": ["...", "..."], "context": "..."},
  "edit_file": {"path": "...", "content": "...", "reason": "..."},
  "cause": "root cause",
  "suggestion": "advice for the user if giving up"
}

### action meanings:
- fix: run the fix commands, or retry with new_command substituted for the original.
- ask_user: the user must choose (e.g. which port, confirm a deletion).
- edit_file: rewrite a config file (always requires user confirmation).
- give_up: cannot be fixed automatically.

Never return action="explore" or action="diagnose" — those waste time.`
