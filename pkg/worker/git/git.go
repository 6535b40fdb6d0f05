// Package git implements the "git" worker: clone/pull/status, ported from
// original_source/src/workers/git.py. The design principle it carries over
// verbatim is "explicit path first" — clone never silently depends on cwd;
// when the caller omits target_dir, cwd is used but the result says so.
package git

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/opsai/opsai/pkg/worker"
)

// Worker runs git operations through a shell worker.
type Worker struct {
	shell worker.Worker
}

// New builds a git Worker over the given shell worker.
func New(shell worker.Worker) *Worker {
	return &Worker{shell: shell}
}

func (w *Worker) Name() string { return "git" }

func (w *Worker) Capabilities() []string { return []string{"clone", "pull", "status"} }

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	switch action {
	case "clone":
		return w.clone(ctx, args)
	case "pull":
		return w.pull(ctx, args)
	case "status":
		return w.status(ctx, args)
	default:
		return worker.Unknown(action)
	}
}

var repoNamePattern = regexp.MustCompile(`[/:]([^/:]+)$`)

func extractRepoName(rawURL string) string {
	u := strings.TrimSuffix(strings.TrimRight(rawURL, "/"), ".git")
	if m := repoNamePattern.FindStringSubmatch(u); m != nil {
		return m[1]
	}
	parts := strings.Split(u, "/")
	if last := parts[len(parts)-1]; last != "" {
		return last
	}
	return "repo"
}

// expandHome mirrors Python's Path.expanduser(): only "~" is substituted, no
// abspath resolution.
func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

// normalizePath mirrors original_source/src/workers/path_utils.py's
// normalize_path: expanduser then abspath. Used only for clone's target_dir
// (explicit-path-first) — pull/status only expanduser, matching the
// original's narrower use of Path.expanduser() there.
func normalizePath(path string) string {
	expanded := expandHome(path)
	abs, err := filepath.Abs(expanded)
	if err != nil {
		return expanded
	}
	return abs
}

func (w *Worker) clone(ctx context.Context, args worker.Args) worker.WorkerResult {
	repoURL, ok := args.GetString("url")
	if !ok || repoURL == "" {
		return worker.WorkerResult{Success: false, Message: "url is required and must be a string"}
	}

	var targetDir, pathSource string
	if raw, present := args["target_dir"]; present {
		if raw.Kind != worker.ArgString {
			return worker.WorkerResult{Success: false, Message: "target_dir must be a string"}
		}
		targetDir = normalizePath(raw.Str)
		pathSource = "specified path"
	} else {
		wd, err := os.Getwd()
		if err != nil {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("failed to resolve cwd: %s", err)}
		}
		targetDir = wd
		pathSource = "current working directory"
	}

	repoName := extractRepoName(repoURL)
	fullPath := filepath.Join(targetDir, repoName)
	command := fmt.Sprintf("git clone %s %s", repoURL, fullPath)

	row := worker.DataRow{
		"url": repoURL, "target_dir": targetDir, "full_path": fullPath,
		"repo_name": repoName, "path_source": pathSource,
	}

	if args.GetBool("dry_run", false) {
		return worker.WorkerResult{
			Success:   true,
			Data:      []worker.DataRow{row},
			Message:   fmt.Sprintf("[DRY-RUN] Would clone %s to %s (%s)", repoURL, fullPath, pathSource),
			Simulated: true,
		}
	}

	if _, err := os.Stat(fullPath); err == nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Target directory already exists: %s", fullPath)}
	}
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("failed to create %s: %s", targetDir, err)}
	}

	result := w.shell.Execute(ctx, "execute_command", worker.Args{
		"command":     worker.String(command),
		"working_dir": worker.String(targetDir),
	})
	if !result.Success {
		return result
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          []worker.DataRow{row},
		Message:       fmt.Sprintf("Cloned %s to %s (%s)", repoURL, fullPath, pathSource),
		TaskCompleted: true,
	}
}

func (w *Worker) pull(ctx context.Context, args worker.Args) worker.WorkerResult {
	repoDir, ok := args.GetString("repo_dir")
	if !ok || repoDir == "" {
		return worker.WorkerResult{Success: false, Message: "repo_dir is required and must be a string"}
	}
	repoDir = expandHome(repoDir)

	if args.GetBool("dry_run", false) {
		return worker.WorkerResult{Success: true, Message: fmt.Sprintf("[DRY-RUN] Would pull in %s", repoDir), Simulated: true}
	}

	if _, err := os.Stat(repoDir); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Repository directory not found: %s", repoDir)}
	}

	result := w.shell.Execute(ctx, "execute_command", worker.Args{
		"command":     worker.String("git pull"),
		"working_dir": worker.String(repoDir),
	})
	if !result.Success {
		return result
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          result.Data,
		Message:       fmt.Sprintf("Pulled updates in %s", repoDir),
		TaskCompleted: true,
	}
}

func (w *Worker) status(ctx context.Context, args worker.Args) worker.WorkerResult {
	repoDir, ok := args.GetString("repo_dir")
	if !ok || repoDir == "" {
		return worker.WorkerResult{Success: false, Message: "repo_dir is required and must be a string"}
	}
	repoDir = expandHome(repoDir)

	if _, err := os.Stat(repoDir); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Repository directory not found: %s", repoDir)}
	}

	result := w.shell.Execute(ctx, "execute_command", worker.Args{
		"command":     worker.String("git status"),
		"working_dir": worker.String(repoDir),
	})
	if !result.Success {
		return result
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          result.Data,
		Message:       result.Message,
		TaskCompleted: true,
	}
}
