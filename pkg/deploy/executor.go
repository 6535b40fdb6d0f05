package deploy

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/opsai/opsai/pkg/worker"
)

// Executor runs plan steps with retry+diagnose and the post-deploy Docker
// verification protocol (spec §4.6).
type Executor struct {
	shell     worker.Worker
	diagnoser *Diagnoser
	host      Host
}

// NewExecutor builds an Executor over the given shell worker and diagnoser.
func NewExecutor(shell worker.Worker, diagnoser *Diagnoser, host Host) *Executor {
	return &Executor{shell: shell, diagnoser: diagnoser, host: host}
}

func (e *Executor) progress(step, message string) {
	if e.host != nil {
		e.host.Progress(step, message)
	}
}

// ExecuteWithRetry runs step.Command, and on failure enters the diagnose
// loop for up to maxRetries additional attempts. The first error is
// reported on exhaustion, not the last, per spec §4.6.
func (e *Executor) ExecuteWithRetry(ctx context.Context, step Step, projectDir, projectType string, knownFiles []string, maxRetries int, dryRun bool) (bool, string) {
	command := strings.TrimSpace(step.Command)
	description := step.Description
	if description == "" {
		description = command
	}

	if command == "" {
		return false, "空命令"
	}

	if dryRun {
		return true, fmt.Sprintf("[DRY-RUN] 将执行: %s", command)
	}

	var firstError string
	currentCommand := command

	for attempt := 0; attempt <= maxRetries; attempt++ {
		e.progress("deploy", fmt.Sprintf("    执行: %s...", truncateRunes(currentCommand, 80)))
		result := e.shell.Execute(ctx, "execute_command", worker.Args{
			"command":     worker.String(currentCommand),
			"working_dir": worker.String(projectDir),
		})

		if result.Success {
			return true, fmt.Sprintf("✓ %s", description)
		}

		if attempt == 0 {
			firstError = result.Message
		}

		if attempt == maxRetries {
			return false, fmt.Sprintf("✗ %s\n命令: %s\n错误: %s", description, currentCommand, firstError)
		}

		e.progress("deploy", "    ⚠️ 命令失败，启动 AI 自主诊断...")
		react := e.diagnoser.ReactDiagnoseLoop(ctx, currentCommand, result.Message, projectType, projectDir, knownFiles, 3)

		if !react.Fixed {
			detail := fmt.Sprintf("✗ %s\n命令: %s\n错误: %s", description, currentCommand, firstError)
			if react.Message != "" {
				detail += "\n" + react.Message
			}
			return false, detail
		}

		if react.NewCommand != "" {
			currentCommand = react.NewCommand
			e.progress("deploy", "    🔄 使用修改后的命令重试...")
		} else if len(react.FixCommands) > 0 {
			e.progress("deploy", "    ✓ 修复完成，重试原命令...")
		}
	}

	return false, fmt.Sprintf("✗ %s: 重试次数耗尽\n命令: %s\n错误: %s", description, currentCommand, firstError)
}

var dockerRunNamePattern = regexp.MustCompile(`--name\s+(\S+)`)
var dockerStatusPattern = `%s\s+(.+)`

// ContainerInfo is returned on a successful Docker verification.
type ContainerInfo struct {
	ContainerName string
	Status        string
}

// VerifyDockerDeployment implements the post-deploy Docker verification
// protocol from spec §4.6. If no deploy step ran `docker run --name X`,
// verification is skipped and reports success.
func (e *Executor) VerifyDockerDeployment(ctx context.Context, steps []Step, projectDir, projectType string, knownFiles []string, maxFixAttempts int) (bool, string, *ContainerInfo) {
	var containerName, dockerRunCommand string
	for _, step := range steps {
		if strings.Contains(step.Command, "docker run") && strings.Contains(step.Command, "--name") {
			dockerRunCommand = step.Command
			if m := dockerRunNamePattern.FindStringSubmatch(step.Command); m != nil {
				containerName = m[1]
				break
			}
		}
	}

	if containerName == "" {
		e.progress("deploy", "    ℹ️ 未检测到 Docker 容器名称，跳过验证")
		return true, "未检测到容器名称", nil
	}

	e.progress("deploy", fmt.Sprintf("    🔍 检查容器 %s 状态...", containerName))

	for attempt := 0; attempt <= maxFixAttempts; attempt++ {
		checkCmd := fmt.Sprintf("docker ps --filter name=^%s$ --format '{{.Names}} {{.Status}}'", containerName)
		checkResult := e.shell.Execute(ctx, "execute_command", worker.Args{"command": worker.String(checkCmd)})

		if checkResult.Success && strings.Contains(checkResult.Message, containerName) {
			statusPattern := regexp.MustCompile(fmt.Sprintf(dockerStatusPattern, regexp.QuoteMeta(containerName)))
			status := "running"
			if m := statusPattern.FindStringSubmatch(checkResult.Message); m != nil {
				status = m[1]
			}

			if strings.Contains(status, "Up") {
				e.progress("deploy", fmt.Sprintf("    ✅ 容器 %s 运行中: %s", containerName, status))
				return true, fmt.Sprintf("✅ 容器验证通过: %s (%s)", containerName, status), &ContainerInfo{ContainerName: containerName, Status: status}
			}
		}

		e.progress("deploy", fmt.Sprintf("    ⚠️ 容器 %s 未运行，检查原因...", containerName))

		allContainersCmd := fmt.Sprintf("docker ps -a --filter name=^%s$ --format '{{.Names}} {{.Status}}'", containerName)
		allResult := e.shell.Execute(ctx, "execute_command", worker.Args{"command": worker.String(allContainersCmd)})
		containerExists := strings.Contains(allResult.Message, containerName)

		var errorMessage string
		if containerExists {
			e.progress("deploy", "    📋 获取容器日志...")
			logsResult := e.shell.Execute(ctx, "execute_command", worker.Args{
				"command": worker.String(fmt.Sprintf("docker logs --tail 50 %s 2>&1", containerName)),
			})
			logs := "无法获取日志"
			if logsResult.Success {
				logs = logsResult.Message
			}
			errorMessage = fmt.Sprintf("容器 %s 已退出。\n日志:\n%s", containerName, truncateRunes(logs, 500))
		} else {
			errorMessage = fmt.Sprintf("容器 %s 不存在", containerName)
		}

		e.progress("deploy", fmt.Sprintf("    ❌ %s...", truncateRunes(errorMessage, 100)))

		if attempt < maxFixAttempts && dockerRunCommand != "" {
			e.progress("deploy", fmt.Sprintf("    🔧 尝试修复 (尝试 %d/%d)...", attempt+1, maxFixAttempts))

			react := e.diagnoser.ReactDiagnoseLoop(ctx, dockerRunCommand, errorMessage, projectType, projectDir, knownFiles, 2)

			if react.Fixed {
				if react.NewCommand != "" {
					dockerRunCommand = react.NewCommand
					e.progress("deploy", "    🔄 执行修复后的命令...")
					runResult := e.shell.Execute(ctx, "execute_command", worker.Args{
						"command":     worker.String(react.NewCommand),
						"working_dir": worker.String(projectDir),
					})
					if !runResult.Success {
						e.progress("deploy", fmt.Sprintf("    ❌ 修复命令执行失败: %s", truncateRunes(runResult.Message, 100)))
						continue
					}
				}
				sleep(ctx, 2*time.Second)
				continue
			}
			e.progress("deploy", fmt.Sprintf("    ❌ 无法自动修复: %s", truncateRunes(react.Message, 100)))
		}

		return false, fmt.Sprintf("容器 %s 启动失败: %s", containerName, truncateRunes(errorMessage, 200)), nil
	}

	return false, fmt.Sprintf("容器 %s 验证失败", containerName), nil
}

func sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
