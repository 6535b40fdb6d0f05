package deploy

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/opsai/opsai/pkg/worker"
)

// state is one node of the fixed deploy state machine (spec §4.4):
//
//	analyze --success--> clone --success--> setup --needs_runtime--> start --> done
//	   |                   |                   |                       |
//	   +--fail--> error    +--fail--> error    +--fail--> error        +--fail--> error
//	                                           +--static site--> done
type state int

const (
	stateAnalyze state = iota
	stateClone
	stateSetup
	stateStart
	stateDone
	stateError
)

// Result is the outcome of a full Deploy run.
type Result struct {
	Success     bool
	Message     string
	ProjectDir  string
	ProjectType string
	RepoURL     string
	Simulated   bool
}

// Deployer wires the planner/executor/diagnoser together behind the fixed
// state machine. Grounded on original_source/src/workers/deploy/worker.py's
// _intelligent_deploy, split across the FSM states the spec names.
type Deployer struct {
	http      worker.Worker
	shell     worker.Worker
	planner   *Planner
	diagnoser *Diagnoser
	executor  *Executor
	host      Host
}

// New builds a Deployer. httpW must support fetch_github_readme and
// list_github_files; shellW must support execute_command.
func New(httpW, shellW worker.Worker, generator Generator, host Host) *Deployer {
	diagnoser := NewDiagnoser(shellW, generator, host)
	return &Deployer{
		http:      httpW,
		shell:     shellW,
		planner:   NewPlanner(shellW, generator, host),
		diagnoser: diagnoser,
		executor:  NewExecutor(shellW, diagnoser, host),
		host:      host,
	}
}

func (d *Deployer) progress(step, message string) {
	if d.host != nil {
		d.host.Progress(step, message)
	}
}

// deployContext accumulates state as the FSM advances; it never mutates a
// step already logged, only appends.
type deployContext struct {
	repoURL, owner, repo       string
	targetDir, clonePath       string
	readme                     string
	keyFiles                   []string
	envInfo                    EnvInfo
	steps                      []Step
	projectType, notes         string
	thinking                   []string
	dryRun                     bool
	log                        []string
	failureMessage             string
	classifiedType             string
}

func (c *deployContext) appendLog(line string) {
	c.log = append(c.log, line)
}

// Deploy runs the full analyze→clone→setup→start FSM against a GitHub repo
// URL.
func (d *Deployer) Deploy(ctx context.Context, repoURL, targetDir string, dryRun bool) Result {
	dctx := &deployContext{repoURL: repoURL, targetDir: targetDir, dryRun: dryRun}
	st := stateAnalyze

	for {
		switch st {
		case stateAnalyze:
			st = d.runAnalyze(ctx, dctx)
		case stateClone:
			st = d.runClone(ctx, dctx)
		case stateSetup:
			st = d.runSetup(ctx, dctx)
		case stateStart:
			st = d.runStart(ctx, dctx)
		case stateDone:
			return d.finish(dctx, true)
		case stateError:
			return d.finish(dctx, false)
		}
	}
}

func (d *Deployer) finish(dctx *deployContext, success bool) Result {
	summary := strings.Join(dctx.log, "\n")
	if !success {
		summary += fmt.Sprintf("\n\n❌ 部署失败: %s", dctx.failureMessage)
		summary += "\n\n💡 可能的解决方法:"
		summary += "\n1. 检查项目 README 了解具体要求"
		summary += "\n2. 手动进入项目目录排查问题"
		if dctx.clonePath != "" {
			summary += fmt.Sprintf("\n   cd %s", dctx.clonePath)
		}
	} else {
		if dctx.dryRun {
			summary = "[DRY-RUN 模式]\n\n" + summary
		} else {
			summary += "\n\n✅ 部署完成！"
			summary += fmt.Sprintf("\n📂 项目路径: %s", dctx.clonePath)
			summary += fmt.Sprintf("\n🎯 项目类型: %s", dctx.projectType)
		}
	}

	return Result{
		Success:     success,
		Message:     summary,
		ProjectDir:  dctx.clonePath,
		ProjectType: dctx.projectType,
		RepoURL:     dctx.repoURL,
		Simulated:   dctx.dryRun,
	}
}

func (d *Deployer) runAnalyze(ctx context.Context, dctx *deployContext) state {
	d.progress("deploy", "📋 Step 1/4: 收集项目信息...")
	dctx.appendLog("📋 Step 1/4: 收集项目信息...")

	owner, repo, ok := parseGithubURL(dctx.repoURL)
	if !ok {
		dctx.failureMessage = fmt.Sprintf("无效的 GitHub URL: %s", dctx.repoURL)
		return stateError
	}
	dctx.owner, dctx.repo = owner, repo

	d.progress("deploy", "  获取 README...")
	readmeResult := d.http.Execute(ctx, "fetch_github_readme", worker.Args{"repo_url": worker.String(dctx.repoURL)})
	if readmeResult.Success {
		dctx.readme = readmeResult.RawOutput
		if dctx.readme == "" {
			dctx.readme = readmeResult.Message
		}
	}

	d.progress("deploy", "  获取文件列表...")
	filesResult := d.http.Execute(ctx, "list_github_files", worker.Args{"repo_url": worker.String(dctx.repoURL)})
	if filesResult.Success {
		for _, row := range filesResult.Data {
			if name, ok := row["name"]; ok {
				dctx.keyFiles = append(dctx.keyFiles, name)
			}
		}
	}

	dctx.classifiedType = classifyProjectType(dctx.keyFiles)

	dctx.appendLog(fmt.Sprintf("  ✓ 仓库: %s/%s", owner, repo))
	filesPreview := "无"
	if len(dctx.keyFiles) > 0 {
		preview := dctx.keyFiles
		if len(preview) > 10 {
			preview = preview[:10]
		}
		filesPreview = strings.Join(preview, ", ")
	}
	dctx.appendLog(fmt.Sprintf("  ✓ 关键文件: %s", filesPreview))

	return stateClone
}

func (d *Deployer) runClone(ctx context.Context, dctx *deployContext) state {
	d.progress("deploy", "📦 Step 2/4: 克隆仓库...")
	dctx.appendLog("📦 Step 2/4: 克隆仓库...")

	targetDir := dctx.targetDir
	if strings.TrimSpace(targetDir) == "" {
		if wd, err := os.Getwd(); err == nil {
			targetDir = wd
		}
	}
	if abs, err := filepath.Abs(expandHomePath(targetDir)); err == nil {
		targetDir = abs
	}
	clonePath := filepath.Join(targetDir, dctx.repo)
	dctx.clonePath = clonePath

	if dctx.dryRun {
		dctx.appendLog(fmt.Sprintf("  [DRY-RUN] 将执行: mkdir -p %s", targetDir))
		dctx.appendLog(fmt.Sprintf("  [DRY-RUN] 将执行: git clone %s", dctx.repoURL))
		return stateSetup
	}

	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		dctx.failureMessage = fmt.Sprintf("创建目录失败: %s", err)
		return stateError
	}

	if info, err := os.Stat(clonePath); err == nil && info.IsDir() {
		dctx.appendLog(fmt.Sprintf("  ⚠️ 项目已存在: %s", clonePath))
		return stateSetup
	}

	cloneResult := d.shell.Execute(ctx, "execute_command", worker.Args{
		"command": worker.String(fmt.Sprintf("git clone %s %s", shellQuote(dctx.repoURL), shellQuote(clonePath))),
	})
	if !cloneResult.Success {
		dctx.failureMessage = fmt.Sprintf("克隆失败: %s", cloneResult.Message)
		return stateError
	}
	dctx.appendLog(fmt.Sprintf("  ✓ 克隆完成: %s", clonePath))

	return stateSetup
}

func (d *Deployer) runSetup(ctx context.Context, dctx *deployContext) state {
	d.progress("deploy", "🤖 Step 3/4: AI 分析项目并生成部署计划...")
	dctx.appendLog("🤖 Step 3/4: AI 分析项目并生成部署计划...")

	d.progress("deploy", "  收集本机环境信息...")
	dctx.envInfo = d.planner.CollectEnvInfo(ctx)

	d.progress("deploy", "  调用 LLM 生成部署计划...")
	plan, err := d.planner.GeneratePlan(ctx, dctx.readme, dctx.keyFiles, dctx.envInfo, dctx.clonePath)
	if err != nil {
		dctx.failureMessage = fmt.Sprintf("生成部署计划失败: %s", err)
		return stateError
	}

	var normalized []Step
	skippedEmpty := 0
	for _, s := range plan.Steps {
		command := strings.TrimSpace(s.Command)
		if command == "" {
			skippedEmpty++
			continue
		}
		description := strings.TrimSpace(s.Description)
		if description == "" {
			description = command
		}
		normalized = append(normalized, Step{Description: description, Command: command})
	}

	if len(normalized) == 0 {
		dctx.failureMessage = "无法生成部署计划：未发现可执行命令（命令为空）。请检查项目结构或手动部署。"
		return stateError
	}

	dctx.steps = normalized
	dctx.projectType = plan.ProjectType
	dctx.notes = plan.Notes
	dctx.thinking = plan.Thinking

	if skippedEmpty > 0 {
		msg := fmt.Sprintf("  ⚠️ 已跳过 %d 个空命令步骤", skippedEmpty)
		d.progress("deploy", msg)
		dctx.appendLog(msg)
	}

	if len(dctx.thinking) > 0 {
		dctx.appendLog("  💭 AI 思考过程:")
		for i, thought := range dctx.thinking {
			d.progress("deploy", fmt.Sprintf("    💭 %s", thought))
			dctx.appendLog(fmt.Sprintf("    %d. %s", i+1, thought))
		}
	}

	dctx.appendLog(fmt.Sprintf("  ✓ 项目类型: %s", dctx.projectType))
	dctx.appendLog(fmt.Sprintf("  ✓ 部署步骤: %d 步", len(dctx.steps)))
	if dctx.notes != "" {
		dctx.appendLog(fmt.Sprintf("  📝 备注: %s", dctx.notes))
	}

	d.progress("deploy", "🚀 Step 4/4: 执行部署计划...")
	dctx.appendLog("🚀 Step 4/4: 执行部署计划...")

	for i, step := range dctx.steps {
		description := step.Description
		d.progress("deploy", fmt.Sprintf("  [%d/%d] %s", i+1, len(dctx.steps), description))
		dctx.appendLog(fmt.Sprintf("  [%d/%d] %s", i+1, len(dctx.steps), description))

		success, message := d.executor.ExecuteWithRetry(ctx, step, dctx.clonePath, dctx.projectType, dctx.keyFiles, 3, dctx.dryRun)
		if !success {
			dctx.failureMessage = message
			dctx.appendLog(fmt.Sprintf("    ❌ %s", message))
			return stateError
		}
		dctx.appendLog(fmt.Sprintf("    %s", message))
	}

	return stateStart
}

// usesDocker reports whether any step in the plan drives Docker directly —
// the FSM's needs_runtime/static-site fork (spec §4.4).
func usesDocker(steps []Step) bool {
	for _, s := range steps {
		if strings.Contains(s.Command, "docker run") || strings.Contains(s.Command, "docker compose") || strings.Contains(s.Command, "docker-compose") {
			return true
		}
	}
	return false
}

func (d *Deployer) runStart(ctx context.Context, dctx *deployContext) state {
	if !usesDocker(dctx.steps) || dctx.dryRun {
		return stateDone
	}

	d.progress("deploy", "\n🔍 Step 5/5: 验证部署...")
	verifyOK, verifyMessage, containerInfo := d.executor.VerifyDockerDeployment(ctx, dctx.steps, dctx.clonePath, dctx.projectType, dctx.keyFiles, 2)

	if !verifyOK {
		dctx.failureMessage = fmt.Sprintf("部署验证失败: %s\n\n💡 可能的解决方法:\n1. 检查 docker logs 查看容器日志\n2. 确认端口没有被占用\n3. 检查环境变量是否正确配置\n4. 手动进入项目目录排查问题: cd %s", verifyMessage, dctx.clonePath)
		return stateError
	}

	if containerInfo != nil {
		dctx.appendLog("\n" + verifyMessage)
	}

	return stateDone
}

func expandHomePath(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// shellQuote is a minimal POSIX single-quote escape, ported from the
// original's shlex.quote usage around clone URLs/paths.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	if !strings.ContainsAny(s, " \t\n'\"\\$`!*?[]{}()<>|&;~#") {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
