// Package http implements the "http" worker: generic URL fetches plus two
// GitHub-specific conveniences the deploy subsystem's analyze step leans on
// (README + top-level file listing). Ported from the behavior exercised by
// original_source/tests/test_http_worker.py (the worker's own source file
// was not part of the retrieval pack, but its contract is fully pinned down
// by that test suite).
package http

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/opsai/opsai/pkg/worker"
)

var githubURLPattern = regexp.MustCompile(`^https?://github\.com/([\w\-.]+)/([\w\-.]+?)(?:\.git)?/?$`)

// Worker performs HTTP GET requests.
type Worker struct {
	client *http.Client
}

// New builds an HTTP worker with the given request timeout.
func New(timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Worker{client: &http.Client{Timeout: timeout}}
}

func (w *Worker) Name() string { return "http" }

func (w *Worker) Capabilities() []string {
	return []string{"fetch_url", "fetch_github_readme", "list_github_files"}
}

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	switch action {
	case "fetch_url":
		return w.fetchURL(ctx, args)
	case "fetch_github_readme":
		return w.fetchGithubReadme(ctx, args)
	case "list_github_files":
		return w.listGithubFiles(ctx, args)
	default:
		return worker.Unknown(action)
	}
}

func parseGithubURL(repoURL string) (owner, repo string, ok bool) {
	m := githubURLPattern.FindStringSubmatch(repoURL)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func (w *Worker) fetchURL(ctx context.Context, args worker.Args) worker.WorkerResult {
	target, ok := args.GetString("url")
	if !ok || target == "" {
		return worker.WorkerResult{Success: false, Message: "url is required"}
	}
	if _, err := url.ParseRequestURI(target); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Invalid URL: %s", target)}
	}

	body, status, err := w.get(ctx, target, nil)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Failed to fetch %s: %s", target, err)}
	}
	if status >= 400 {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Request to %s failed with status %d", target, status)}
	}
	return worker.WorkerResult{Success: true, Message: body, RawOutput: body, TaskCompleted: true}
}

func (w *Worker) fetchGithubReadme(ctx context.Context, args worker.Args) worker.WorkerResult {
	repoURL, _ := args.GetString("repo_url")
	owner, repo, ok := parseGithubURL(repoURL)
	if !ok {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Invalid GitHub URL: %s", repoURL)}
	}

	rawURL := fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/HEAD/README.md", owner, repo)
	body, status, err := w.get(ctx, rawURL, nil)
	if err != nil || status >= 400 {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Failed to fetch README for %s/%s", owner, repo)}
	}
	return worker.WorkerResult{Success: true, Message: body, RawOutput: body, TaskCompleted: true}
}

type githubFile struct {
	Name string `json:"name"`
	Type string `json:"type"`
	Path string `json:"path"`
	Size int    `json:"size"`
}

func (w *Worker) listGithubFiles(ctx context.Context, args worker.Args) worker.WorkerResult {
	repoURL, _ := args.GetString("repo_url")
	owner, repo, ok := parseGithubURL(repoURL)
	if !ok {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Invalid GitHub URL: %s", repoURL)}
	}

	apiURL := fmt.Sprintf("https://api.github.com/repos/%s/%s/contents/", owner, repo)
	body, status, err := w.get(ctx, apiURL, map[string]string{"Accept": "application/vnd.github+json"})
	if err != nil || status >= 400 {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Failed to list files for %s/%s", owner, repo)}
	}

	var files []githubFile
	if err := json.Unmarshal([]byte(body), &files); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Failed to parse file listing for %s/%s", owner, repo)}
	}

	rows := make([]worker.DataRow, 0, len(files))
	names := make([]string, 0, len(files))
	for _, f := range files {
		rows = append(rows, worker.DataRow{
			"name": f.Name,
			"type": f.Type,
			"path": f.Path,
			"size": strconv.Itoa(f.Size),
		})
		names = append(names, f.Name)
	}

	return worker.WorkerResult{
		Success:       true,
		Message:       fmt.Sprintf("Found %d top-level entries: %s", len(files), strings.Join(names, ", ")),
		Data:          rows,
		TaskCompleted: true,
	}
}

func (w *Worker) get(ctx context.Context, target string, headers map[string]string) (string, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return "", 0, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", resp.StatusCode, err
	}
	return string(data), resp.StatusCode, nil
}
