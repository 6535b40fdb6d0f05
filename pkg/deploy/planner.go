package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsai/opsai/pkg/llm"
	"github.com/opsai/opsai/pkg/worker"
)

// priorityConfigFiles is the read order for key_file_contents, capped at 5
// hits — ported from original_source/src/workers/deploy/planner.py.
var priorityConfigFiles = []string{
	"Dockerfile", "docker-compose.yml", "docker-compose.yaml", ".env.example",
	"package.json", "requirements.txt", "pyproject.toml", "Makefile",
	"README.md", "README",
}

// Planner collects local environment/project signal and asks the LLM for a
// deployment plan (spec §4.5).
type Planner struct {
	shell worker.Worker
	llm   Generator
	host  Host
}

// NewPlanner builds a Planner over the given shell worker and LLM seam.
func NewPlanner(shell worker.Worker, generator Generator, host Host) *Planner {
	return &Planner{shell: shell, llm: generator, host: host}
}

func (p *Planner) progress(step, message string) {
	if p.host != nil {
		p.host.Progress(step, message)
	}
}

func shellStdout(ctx context.Context, shell worker.Worker, command string) (string, bool) {
	result := shell.Execute(ctx, "execute_command", worker.Args{"command": worker.String(command)})
	if !result.Success {
		return "", false
	}
	out := result.RawOutput
	if out == "" {
		out = result.Message
	}
	return strings.TrimSpace(out), strings.TrimSpace(out) != ""
}

// CollectEnvInfo probes the local machine for python/docker/node/uv
// presence, mirroring DeployPlanner.collect_env_info.
func (p *Planner) CollectEnvInfo(ctx context.Context) EnvInfo {
	env := EnvInfo{
		OS:            runtimeOS(),
		Python:        "unknown",
		Docker:        "not installed",
		DockerRunning: "no",
		Node:          "not installed",
		UV:            "not installed",
	}

	if stdout, ok := shellStdout(ctx, p.shell, "which python3"); ok {
		env.Python = fmt.Sprintf("python3 (%s)", stdout)
	}

	if stdout, ok := shellStdout(ctx, p.shell, "docker version"); ok {
		lines := strings.SplitN(stdout, "\n", 2)
		env.Docker = lines[0]

		result := p.shell.Execute(ctx, "execute_command", worker.Args{"command": worker.String("docker info")})
		if result.Success {
			env.DockerRunning = "yes"
		} else {
			env.DockerRunning = "no (Docker daemon not running)"
		}
	}

	if stdout, ok := shellStdout(ctx, p.shell, "which node"); ok {
		env.Node = fmt.Sprintf("installed (%s)", stdout)
	}

	if stdout, ok := shellStdout(ctx, p.shell, "which uv"); ok {
		env.UV = fmt.Sprintf("installed (%s)", stdout)
	}

	return env
}

// ReadLocalFile reads up to maxLines lines of a project file, refusing
// anything over 50KB — mirrors DeployPlanner.read_local_file.
func (p *Planner) ReadLocalFile(projectDir, filename string, maxLines int) string {
	path := filepath.Join(projectDir, filename)
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return ""
	}
	if info.Size() > 50000 {
		return "(文件过大，跳过)"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Sprintf("(读取失败: %s)", err)
	}

	lines := strings.Split(string(data), "\n")
	truncated := len(lines) > maxLines
	if truncated {
		lines = lines[:maxLines]
	}
	content := strings.Join(lines, "\n")
	if truncated {
		content += fmt.Sprintf("\n... (截断，仅显示前 %d 行)", maxLines)
	}
	return content
}

// CollectKeyFileContents reads the first 5 present priority config files.
func (p *Planner) CollectKeyFileContents(projectDir string) string {
	var parts []string
	read := 0
	for _, filename := range priorityConfigFiles {
		if read >= 5 {
			break
		}
		path := filepath.Join(projectDir, filename)
		info, err := os.Stat(path)
		if err != nil || info.IsDir() {
			continue
		}
		content := p.ReadLocalFile(projectDir, filename, 100)
		if content != "" && !strings.HasPrefix(content, "(") {
			parts = append(parts, fmt.Sprintf("=== %s ===\n%s", filename, content))
			read++
		}
	}
	if len(parts) == 0 {
		return "(无关键配置文件)"
	}
	return strings.Join(parts, "\n\n")
}

// PlanResult is the planner's LLM-produced quadruple (spec §4.5).
type PlanResult struct {
	Steps       []Step
	ProjectType string
	Notes       string
	Thinking    []string
}

// GeneratePlan asks the LLM to classify the project and emit an ordered
// step list. The steps are returned as parsed, without re-validation;
// Deployer.runSetup skips steps whose command is empty.
func (p *Planner) GeneratePlan(ctx context.Context, readme string, files []string, env EnvInfo, projectDir string) (PlanResult, error) {
	readmeTrunc := "(无 README)"
	if readme != "" {
		readmeTrunc = truncateRunes(readme, 3000)
	}

	filesStr := "(无文件列表)"
	if len(files) > 0 {
		listed := files
		if len(listed) > 50 {
			listed = listed[:50]
		}
		filesStr = strings.Join(listed, ", ")
	}

	var envLines []string
	for _, kv := range [][2]string{
		{"os", env.OS}, {"python", env.Python}, {"docker", env.Docker},
		{"docker_running", env.DockerRunning}, {"node", env.Node}, {"uv", env.UV},
	} {
		envLines = append(envLines, fmt.Sprintf("- %s: %s", kv[0], kv[1]))
	}

	keyFileContents := "(项目尚未克隆)"
	if projectDir != "" {
		p.progress("deploy", "  读取本地配置文件...")
		keyFileContents = p.CollectKeyFileContents(projectDir)
		if keyFileContents == "(无关键配置文件)" {
			keyFileContents = "(无关键配置文件，请根据文件名推断)"
		}
	}

	prompt := fmt.Sprintf(deployPlanPrompt, readmeTrunc, filesStr, keyFileContents, strings.Join(envLines, "\n"))

	if p.llm == nil {
		return PlanResult{ProjectType: "unknown", Notes: "LLM 不可用"}, nil
	}

	response, err := p.llm.Simple(ctx, "You are an ops expert. Return only valid JSON without markdown code blocks.", prompt)
	if err != nil {
		return PlanResult{}, fmt.Errorf("deploy: generate plan: %w", err)
	}

	obj, ok := llm.ExtractJSON(response)
	if !ok {
		return PlanResult{ProjectType: "unknown", Notes: "LLM 返回格式错误"}, nil
	}

	return parsePlanResponse(obj), nil
}

func runtimeOS() string {
	return goosRelease()
}
