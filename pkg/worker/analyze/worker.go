package analyze

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/opsai/opsai/pkg/worker"
)

// wellKnownPorts is the service-port set from spec §4.8 step 1.
var wellKnownPorts = map[int]bool{
	80: true, 443: true, 8080: true, 3306: true, 5432: true,
	6379: true, 27017: true, 3000: true, 8443: true, 9000: true,
}

// networkPrefixes marks target names that look like network interfaces.
var networkPrefixes = []string{"eth", "en", "wlan", "lo", "br-", "docker", "veth"}

// Generator asks the LLM to produce shell commands or a final summary; the
// same seam the original's _generate_commands_via_llm/_generate_summary use.
// Named to match pkg/llm.Client's single-turn Simple method, so the client
// satisfies this interface with no adapter needed at the wiring site.
type Generator interface {
	Simple(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// Worker implements the "explain" action of the analyze worker (spec §4.8).
type Worker struct {
	llm   Generator
	shell worker.Worker
	cache *Cache
}

// New builds an analyze Worker. cache may be nil to disable template caching.
func New(llm Generator, shell worker.Worker, cache *Cache) *Worker {
	return &Worker{llm: llm, shell: shell, cache: cache}
}

func (w *Worker) Name() string { return "analyze" }

func (w *Worker) Capabilities() []string { return []string{"explain"} }

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	if action != "explain" {
		return worker.Unknown(action)
	}

	target, _ := args.GetString("target")
	if target == "" {
		return worker.WorkerResult{
			Success:       false,
			Message:       "请指定要分析的对象名称（如容器名、进程 PID、端口号等）",
			TaskCompleted: false,
		}
	}

	targetType, _ := args.GetString("type")
	if targetType == "" {
		targetType = detectTargetType(target)
	}

	commands, err := w.getAnalyzeCommands(ctx, targetType, target)
	if err != nil || len(commands) == 0 {
		return worker.WorkerResult{
			Success:       false,
			Message:       fmt.Sprintf("无法生成分析步骤，请检查对象类型是否正确: %s", targetType),
			TaskCompleted: false,
		}
	}

	collected := w.collectInfo(ctx, commands, target)

	allFailed := true
	for _, out := range collected {
		if !strings.HasPrefix(out, "[Failed:") {
			allFailed = false
			break
		}
	}
	if allFailed {
		return worker.WorkerResult{
			Success:       false,
			Message:       fmt.Sprintf("无法收集 %s 的信息，所有命令执行失败", target),
			TaskCompleted: false,
		}
	}

	if targetType == "port" {
		if result, handled := adjudicatePort(target, collected); handled {
			return result
		}
	}

	if !hasMeaningfulData(collected) {
		return worker.WorkerResult{
			Success:       true,
			Message:       fmt.Sprintf("未检测到 %s 相关信息。", target),
			TaskCompleted: true,
		}
	}

	summary := w.generateSummary(ctx, targetType, target, collected)
	return worker.WorkerResult{Success: true, Message: summary, TaskCompleted: true}
}

// detectTargetType is the fallback guess used when the caller omits a type
// (spec §4.8 step 1).
func detectTargetType(target string) string {
	if port, err := strconv.Atoi(target); err == nil {
		if port < 1024 || wellKnownPorts[port] {
			return "port"
		}
		return "process"
	}
	if strings.HasPrefix(target, "/") {
		return "file"
	}
	if strings.HasSuffix(target, ".service") {
		return "systemd"
	}
	for _, prefix := range networkPrefixes {
		if strings.HasPrefix(target, prefix) {
			return "network"
		}
	}
	return "docker"
}

// getAnalyzeCommands selects a command set: cache hit > built-in default >
// LLM-generated (cached on success), per spec §4.8 step 2.
func (w *Worker) getAnalyzeCommands(ctx context.Context, targetType, target string) ([]string, error) {
	if targetType != "" && w.cache != nil {
		if cached, ok := w.cache.Get(targetType); ok {
			return cached, nil
		}
	}

	if targetType != "" {
		if defaults, ok := DefaultAnalyzeCommands()[targetType]; ok {
			return defaults, nil
		}
	}

	commands, err := w.generateCommandsViaLLM(ctx, targetType, target)
	if err != nil {
		return nil, err
	}

	if targetType != "" && len(commands) > 0 && w.cache != nil {
		_ = w.cache.Set(targetType, commands)
	}
	return commands, nil
}

func (w *Worker) generateCommandsViaLLM(ctx context.Context, targetType, target string) ([]string, error) {
	if w.llm == nil {
		return nil, nil
	}

	typeHint := ""
	if targetType != "" {
		typeHint = fmt.Sprintf(" of type '%s'", targetType)
	}
	prompt := fmt.Sprintf(`Generate shell commands to analyze an object%s named %q.

Return ONLY a JSON array of command strings, no explanation or markdown.
Commands should be safe (read-only) and gather useful diagnostic info.
Use {name} as placeholder for the object name.

Example for docker:
["docker inspect {name}", "docker logs --tail 50 {name}"]

Example for process (PID):
["ps aux | grep {name}", "lsof -p {name} 2>/dev/null | head -50"]

Example for port:
["lsof -i :{name}", "ss -tlnp | grep :{name}"]

Your response (JSON array only):`, typeHint, target)

	response, err := w.llm.Simple(ctx, "You are a Linux ops expert. Output only valid JSON.", prompt)
	if err != nil {
		return nil, err
	}
	return parseCommandList(response), nil
}

func (w *Worker) collectInfo(ctx context.Context, commands []string, target string) map[string]string {
	results := make(map[string]string, len(commands))
	for _, tmpl := range commands {
		cmd := strings.ReplaceAll(tmpl, "{name}", target)

		result := w.shell.Execute(ctx, "execute_command", worker.Args{
			"command": worker.String(cmd),
		})
		switch {
		case !result.Success:
			results[cmd] = fmt.Sprintf("[Failed: %s]", result.Message)
		case result.RawOutput != "":
			results[cmd] = result.RawOutput
		default:
			results[cmd] = result.Message
		}
	}
	return results
}

func (w *Worker) generateSummary(ctx context.Context, targetType, target string, collected map[string]string) string {
	if w.llm == nil {
		return fmt.Sprintf("已收集 %s 的诊断信息，但 LLM 不可用，无法生成总结。", target)
	}

	var sb strings.Builder
	first := true
	for cmd, out := range collected {
		if !first {
			sb.WriteString("\n\n")
		}
		first = false
		fmt.Fprintf(&sb, "=== %s ===\n%s", cmd, out)
	}

	typeHint := ""
	if targetType != "" {
		typeHint = fmt.Sprintf(" (%s)", targetType)
	}
	prompt := fmt.Sprintf(`Analyze this object %q%s based on the following command outputs:

%s

Provide a concise Chinese summary explaining:
1. What this object is and its purpose
2. Key configuration details (ports, volumes, environment, etc. if applicable)
3. Current status and any notable observations

Keep the summary under 200 words. Use natural language.
If some commands failed, mention what info is missing but still provide analysis based on available data.`, target, typeHint, sb.String())

	summary, err := w.llm.Simple(ctx, "You are an expert ops engineer. Provide clear, actionable analysis in Chinese.", prompt)
	if err != nil {
		return fmt.Sprintf("已收集 %s 的诊断信息，但总结生成失败: %s", target, err)
	}
	return summary
}

func hasMeaningfulData(collected map[string]string) bool {
	for _, out := range collected {
		if strings.HasPrefix(out, "[Failed:") {
			continue
		}
		if strings.Contains(out, "(no matches found)") {
			continue
		}
		if strings.TrimSpace(out) != "" {
			return true
		}
	}
	return false
}

// adjudicatePort implements spec §4.8 step 4: positive evidence of an open
// port wins before negative evidence is considered; positive-but-no-owner
// becomes a permission hint.
func adjudicatePort(target string, collected map[string]string) (worker.WorkerResult, bool) {
	hasOpenEvidence := false
	hasClosedEvidence := false

	for cmd, out := range collected {
		if strings.HasPrefix(out, "[Failed:") {
			if strings.Contains(strings.ToLower(out), "connection refused") {
				hasClosedEvidence = true
			}
			continue
		}

		actual := out
		if idx := strings.Index(out, "Output:\n"); idx != -1 {
			actual = out[idx+len("Output:\n"):]
		} else if idx := strings.Index(out, "Stderr:\n"); idx != -1 {
			actual = out[idx+len("Stderr:\n"):]
		}

		actualLower := strings.ToLower(actual)
		if strings.Contains(actualLower, "succeeded") || strings.HasPrefix(actual, "HTTP/") {
			hasOpenEvidence = true
			break
		}

		if (strings.Contains(actual, "LISTEN") && !strings.Contains(cmd, "lsof")) ||
			(strings.Contains(actual, "ESTABLISHED") && len(strings.TrimSpace(actual)) > 50) {
			hasOpenEvidence = true
			break
		}
	}

	if !hasOpenEvidence {
		for cmd, out := range collected {
			outLower := strings.ToLower(out)
			if strings.Contains(outLower, "connection refused") ||
				(strings.Contains(outLower, "(no matches found)") && strings.Contains(strings.ToLower(cmd), "lsof")) {
				hasClosedEvidence = true
				break
			}
		}
	}

	hasProcessInfo := false
	for cmd, out := range collected {
		if !containsAny(cmd, "lsof", "ss ", "netstat") {
			continue
		}
		if strings.HasPrefix(out, "[Failed:") {
			continue
		}
		outLower := strings.ToLower(out)
		if strings.Contains(outLower, "(no matches found)") || strings.Contains(outLower, "connection refused") || strings.Contains(outLower, "failed") {
			continue
		}
		if trimmed := strings.TrimSpace(out); trimmed != "" && len(trimmed) > 20 {
			hasProcessInfo = true
			break
		}
	}

	if hasOpenEvidence && !hasProcessInfo {
		return worker.WorkerResult{
			Success: true,
			Message: fmt.Sprintf(
				"端口 %s 有服务在监听（连接测试成功），但无法查看进程详情（可能需要 sudo 权限）。\n建议使用: sudo lsof -i :%s",
				target, target,
			),
			TaskCompleted: true,
		}, true
	}

	if hasClosedEvidence || !hasOpenEvidence {
		return worker.WorkerResult{
			Success:       true,
			Message:       fmt.Sprintf("端口 %s 当前没有服务在监听（端口关闭）。", target),
			TaskCompleted: true,
		}, true
	}

	return worker.WorkerResult{}, false
}

func containsAny(s string, substrs ...string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
