package deploy

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opsai/opsai/pkg/llm"
	"github.com/opsai/opsai/pkg/worker"
)

// Diagnoser is the two-tier error diagnoser from spec §4.7: a local rule
// table checked before any LLM call, then an LLM-driven ReAct mini-loop.
type Diagnoser struct {
	shell worker.Worker
	llm   Generator
	host  Host
}

// NewDiagnoser builds a Diagnoser over the given shell worker and LLM seam.
func NewDiagnoser(shell worker.Worker, generator Generator, host Host) *Diagnoser {
	return &Diagnoser{shell: shell, llm: generator, host: host}
}

func (d *Diagnoser) progress(step, message string) {
	if d.host != nil {
		d.host.Progress(step, message)
	}
}

var portMappingPattern = regexp.MustCompile(`-p\s+(\d+):(\d+)`)
var containerNamePattern = regexp.MustCompile(`--name\s+(\S+)`)

// TryLocalFix is tier 1: a fixed, ordered pattern table over (command,
// error), matched before any LLM call (spec §4.7 tier 1).
func (d *Diagnoser) TryLocalFix(command, errText string) *Diagnosis {
	errLower := strings.ToLower(errText)

	if strings.Contains(errLower, "command blocked") || strings.Contains(errLower, "dangerous pattern") {
		if diag := d.handleBlockedCommand(command, errText); diag != nil {
			return diag
		}
	}

	if strings.Contains(errLower, "address already in use") ||
		(strings.Contains(errLower, "port") && strings.Contains(errLower, "in use")) {
		if m := portMappingPattern.FindStringSubmatch(command); m != nil {
			hostPort, _ := strconv.Atoi(m[1])
			containerPort := m[2]
			newHostPort := hostPort + 1
			newCommand := portMappingPattern.ReplaceAllString(command, fmt.Sprintf("-p %d:%s", newHostPort, containerPort))
			return &Diagnosis{
				Action: diagnoseActionFix,
				Thinking: []string{
					fmt.Sprintf("观察：端口 %d 被占用", hostPort),
					fmt.Sprintf("决策：改用端口 %d", newHostPort),
				},
				NewCommand: newCommand,
				Cause:      fmt.Sprintf("端口 %d 被占用，已改用 %d", hostPort, newHostPort),
			}
		}
	}

	if strings.Contains(errLower, "container name") && strings.Contains(errLower, "already in use") {
		if m := containerNamePattern.FindStringSubmatch(command); m != nil {
			name := m[1]
			return &Diagnosis{
				Action: diagnoseActionFix,
				Thinking: []string{
					fmt.Sprintf("观察：容器 %s 已存在", name),
					"决策：先删除旧容器再创建",
				},
				Commands: []string{fmt.Sprintf("docker rm -f %s", name)},
				Cause:    fmt.Sprintf("容器 %s 已存在，已删除旧容器", name),
			}
		}
	}

	return nil
}

// handleBlockedCommand reacts to the shell worker's dangerous-pattern
// rejections (spec §4.1/§C.6) with command substitutions that avoid the
// blocked syntax entirely.
func (d *Diagnoser) handleBlockedCommand(command, errText string) *Diagnosis {
	if strings.Contains(command, "python") && (strings.Contains(command, "secrets") || strings.Contains(command, "random")) {
		if strings.Contains(errText, "';'") || strings.Contains(strings.ToLower(errText), "dangerous pattern") {
			d.progress("deploy", "    🔄 检测到 Python 命令被拦截（包含分号），尝试 openssl 替代...")
			if strings.Contains(command, "> .env") || strings.Contains(command, ">> .env") {
				return &Diagnosis{
					Action: diagnoseActionFix,
					Thinking: []string{
						"观察：Python 命令包含分号被安全系统拦截",
						"分析：这是生成 SECRET_KEY 并写入 .env 的命令",
						"决策：使用 openssl rand -hex 32 替代，避免分号",
					},
					NewCommand: "echo SECRET_KEY=$(openssl rand -hex 32) > .env",
					Cause:      "Python 命令被拦截，已改用 openssl 生成密钥",
				}
			}
			return &Diagnosis{
				Action: diagnoseActionFix,
				Thinking: []string{
					"观察：Python 命令包含分号被安全系统拦截",
					"分析：这是生成随机密钥的命令",
					"决策：使用 openssl rand -hex 32 替代",
				},
				NewCommand: "openssl rand -hex 32",
				Cause:      "Python 命令被拦截，已改用 openssl",
			}
		}
	}

	if strings.Contains(command, "&&") || strings.Contains(command, "||") {
		if strings.Contains(errText, "'&&'") || strings.Contains(errText, "'||'") || strings.Contains(strings.ToLower(errText), "dangerous pattern") {
			d.progress("deploy", "    🔄 检测到命令链被拦截，尝试分解为独立命令...")

			var commands []string
			switch {
			case strings.Contains(command, "&&"):
				for _, c := range strings.Split(command, "&&") {
					commands = append(commands, strings.TrimSpace(c))
				}
			case strings.Contains(command, "||"):
				parts := strings.SplitN(command, "||", 2)
				commands = []string{strings.TrimSpace(parts[0])}
			}

			if len(commands) > 0 {
				return &Diagnosis{
					Action: diagnoseActionFix,
					Thinking: []string{
						"观察：命令链包含 && 或 || 被安全系统拦截",
						"决策：分解为独立命令逐个执行",
					},
					Commands: commands,
					Cause:    "命令链被拦截，已分解为独立命令",
				}
			}
		}
	}

	d.progress("deploy", "    ⚠️ 命令被安全系统拦截，无法自动替代，将使用 LLM 诊断...")
	return nil
}

// LLMDiagnoseError is tier 2: local rules first, then a time-boxed LLM
// call. Timeout or error degrades to give_up (spec §4.7).
func (d *Diagnoser) LLMDiagnoseError(ctx context.Context, command, errText, projectType, projectDir string, knownFiles []string, collectedInfo string) Diagnosis {
	if fix := d.TryLocalFix(command, errText); fix != nil {
		d.progress("deploy", "    🔧 使用本地规则修复...")
		return *fix
	}

	files := knownFiles
	if len(files) > 30 {
		files = files[:30]
	}
	filesStr := "(未知)"
	if len(files) > 0 {
		filesStr = strings.Join(files, ", ")
	}
	info := collectedInfo
	if info == "" {
		info = "(无)"
	}

	prompt := fmt.Sprintf(diagnoseErrorPrompt, command, truncateRunes(errText, 1500), projectType, projectDir, filesStr, info)

	d.progress("deploy", "    🤖 调用 LLM 分析中...")

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	response, err := d.llm.Simple(ctx, "You are an ops expert. Diagnose and fix. Return only valid JSON.", prompt)
	if err != nil {
		if ctx.Err() != nil {
			d.progress("deploy", "    ⚠️ LLM 响应超时")
			return Diagnosis{Action: diagnoseActionGiveUp, Cause: "LLM 响应超时", Suggestion: "请检查网络连接或稍后重试"}
		}
		d.progress("deploy", fmt.Sprintf("    ⚠️ LLM 调用失败: %s", err))
		return Diagnosis{Action: diagnoseActionGiveUp, Cause: fmt.Sprintf("LLM 调用失败: %s", err), Suggestion: "请检查 LLM 配置"}
	}

	obj, ok := llm.ExtractJSON(response)
	if !ok {
		d.progress("deploy", "    ⚠️ LLM 返回格式错误")
		d.progress("deploy", fmt.Sprintf("    📝 LLM 原始响应: %s...", truncateRunes(response, 200)))
		return Diagnosis{Action: diagnoseActionGiveUp, Cause: "无法解析诊断结果", Suggestion: "请手动检查"}
	}

	return parseDiagnosisResponse(obj)
}

// ReactResult is the outcome of one ReactDiagnoseLoop run.
type ReactResult struct {
	Fixed       bool
	Message     string
	FixCommands []string
	NewCommand  string
	Cause       string
}

// ReactDiagnoseLoop runs the diagnose/act loop up to maxIterations times,
// dispatching fix/ask_user/edit_file/give_up per spec §4.7 tier 2.
func (d *Diagnoser) ReactDiagnoseLoop(ctx context.Context, command, errText, projectType, projectDir string, knownFiles []string, maxIterations int) ReactResult {
	var collectedInfo []string
	var fixCommands []string

	for iteration := 0; iteration < maxIterations; iteration++ {
		d.progress("deploy", fmt.Sprintf("    🔍 AI 诊断中 (轮次 %d/%d)...", iteration+1, maxIterations))

		diagnosis := d.LLMDiagnoseError(ctx, command, errText, projectType, projectDir, knownFiles, strings.Join(collectedInfo, "\n"))

		for _, thought := range diagnosis.Thinking {
			d.progress("deploy", fmt.Sprintf("    💭 %s", thought))
		}
		if diagnosis.Cause != "" {
			d.progress("deploy", fmt.Sprintf("    💡 分析: %s", diagnosis.Cause))
		}

		switch diagnosis.Action {
		case diagnoseActionGiveUp:
			suggestion := diagnosis.Suggestion
			if suggestion == "" {
				suggestion = "请手动检查项目"
			}
			return ReactResult{Message: fmt.Sprintf("原因: %s\n建议: %s", diagnosis.Cause, suggestion), Cause: diagnosis.Cause}

		case diagnoseActionFix:
			if diagnosis.NewCommand != "" {
				d.progress("deploy", "    🔄 使用修改后的命令:")
				d.progress("deploy", fmt.Sprintf("    📝 %s...", truncateRunes(diagnosis.NewCommand, 100)))
				return ReactResult{Fixed: true, Message: "已生成修复命令", NewCommand: diagnosis.NewCommand, Cause: diagnosis.Cause}
			}

			commands := diagnosis.Commands
			if len(commands) > 5 {
				commands = commands[:5]
			}
			for _, cmd := range commands {
				if isDestructiveCommand(cmd) {
					if d.host != nil {
						d.progress("deploy", fmt.Sprintf("    ⚠️ 需要确认: %s", cmd))
						if !d.host.Confirm(ctx, "执行命令", cmd) {
							collectedInfo = append(collectedInfo, fmt.Sprintf("用户拒绝执行: %s", cmd))
							continue
						}
					} else {
						collectedInfo = append(collectedInfo, fmt.Sprintf("跳过破坏性命令（需用户确认）: %s", cmd))
						continue
					}
				}

				d.progress("deploy", fmt.Sprintf("    🔧 修复: %s", cmd))
				result := d.shell.Execute(ctx, "execute_command", worker.Args{
					"command":     worker.String(cmd),
					"working_dir": worker.String(projectDir),
				})
				if result.Success {
					d.progress("deploy", "    ✓ 成功")
					fixCommands = append(fixCommands, cmd)
				} else {
					d.progress("deploy", fmt.Sprintf("    ✗ 失败: %s", truncateRunes(result.Message, 100)))
					collectedInfo = append(collectedInfo, fmt.Sprintf("修复命令 `%s` 失败: %s", cmd, truncateRunes(result.Message, 200)))
				}
			}

			if len(fixCommands) > 0 {
				return ReactResult{Fixed: true, Message: "已执行修复命令", FixCommands: fixCommands, Cause: diagnosis.Cause}
			}

		case diagnoseActionAskUser:
			if diagnosis.AskUser != nil {
				question := diagnosis.AskUser.Question
				if question == "" {
					question = "请做出选择"
				}
				options := diagnosis.AskUser.Options
				if len(options) == 0 {
					options = []string{"确认", "取消"}
				}
				d.progress("deploy", fmt.Sprintf("    ❓ %s", question))
				if diagnosis.AskUser.Context != "" {
					d.progress("deploy", fmt.Sprintf("    📋 %s", diagnosis.AskUser.Context))
				}
				if d.host != nil {
					choice := d.host.AskUser(ctx, question, options, diagnosis.AskUser.Context)
					d.progress("deploy", fmt.Sprintf("    ✓ 用户选择: %s", choice))
					collectedInfo = append(collectedInfo, fmt.Sprintf("用户选择: %s", choice))
					if choice == "" {
						return ReactResult{Message: "用户取消操作"}
					}
				} else {
					collectedInfo = append(collectedInfo, fmt.Sprintf("需要用户选择但无回调: %s", question))
					d.progress("deploy", "    ⚠️ 无法询问用户，跳过此步骤")
				}
			}

		case diagnoseActionEditFile:
			if diagnosis.EditFile != nil && diagnosis.EditFile.Path != "" && diagnosis.EditFile.Content != "" {
				fullPath := filepath.Join(projectDir, diagnosis.EditFile.Path)
				if d.host != nil {
					d.progress("deploy", fmt.Sprintf("    ✏️ 需要编辑: %s", diagnosis.EditFile.Path))
					d.progress("deploy", fmt.Sprintf("    原因: %s", diagnosis.EditFile.Reason))
					detail := fmt.Sprintf("原因: %s\n内容预览: %s...", diagnosis.EditFile.Reason, truncateRunes(diagnosis.EditFile.Content, 200))
					if d.host.Confirm(ctx, fmt.Sprintf("编辑文件 %s", diagnosis.EditFile.Path), detail) {
						if err := writeFileString(fullPath, diagnosis.EditFile.Content); err != nil {
							collectedInfo = append(collectedInfo, fmt.Sprintf("编辑文件失败: %s", err))
						} else {
							d.progress("deploy", "    ✓ 文件已更新")
							fixCommands = append(fixCommands, "edit:"+diagnosis.EditFile.Path)
							return ReactResult{Fixed: true, Message: fmt.Sprintf("已编辑文件 %s", diagnosis.EditFile.Path), FixCommands: fixCommands, Cause: diagnosis.Cause}
						}
					} else {
						collectedInfo = append(collectedInfo, fmt.Sprintf("用户拒绝编辑文件: %s", diagnosis.EditFile.Path))
					}
				} else {
					collectedInfo = append(collectedInfo, fmt.Sprintf("需要编辑文件但无法确认: %s", diagnosis.EditFile.Path))
				}
			}

		default:
			collectedInfo = append(collectedInfo, fmt.Sprintf("跳过操作: %s", diagnosis.Action))
			d.progress("deploy", "    ⚠️ 跳过探索操作，继续分析...")
		}
	}

	return ReactResult{Message: "诊断超过最大尝试次数"}
}
