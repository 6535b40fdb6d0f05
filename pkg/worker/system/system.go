// Package system implements the "system" worker: directory listing, large-
// file search, disk usage, file deletion, and file write/append/replace.
// Ported from original_source/src/workers/system.py and file_ops.py. Every
// mutating action snapshots through pkg/journal before touching disk, so a
// later rollback can undo it (spec §4.10).
package system

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"syscall"

	"github.com/opsai/opsai/pkg/journal"
	"github.com/opsai/opsai/pkg/worker"
)

// Worker implements the system worker's seven actions.
type Worker struct {
	journal *journal.Journal
}

// New builds a system Worker journaling mutations through j.
func New(j *journal.Journal) *Worker {
	return &Worker{journal: j}
}

func (w *Worker) Name() string { return "system" }

func (w *Worker) Capabilities() []string {
	return []string{
		"list_files", "find_large_files", "check_disk_usage", "delete_files",
		"write_file", "append_to_file", "replace_in_file",
	}
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}
	return path
}

func normalizePath(path, def string) string {
	if path == "" {
		path = def
	}
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return path
	}
	return abs
}

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	dryRun := args.GetBool("dry_run", false)

	switch action {
	case "list_files":
		return w.listFiles(args, dryRun)
	case "find_large_files":
		return w.findLargeFiles(args, dryRun)
	case "check_disk_usage":
		return w.checkDiskUsage(args, dryRun)
	case "delete_files":
		return w.deleteFiles(args, dryRun)
	case "write_file":
		return w.writeFile(args, dryRun)
	case "append_to_file":
		return w.appendToFile(args, dryRun)
	case "replace_in_file":
		return w.replaceInFile(args, dryRun)
	default:
		return worker.Unknown(action)
	}
}

func (w *Worker) listFiles(args worker.Args, dryRun bool) worker.WorkerResult {
	pathStr, _ := args.GetString("path")
	if pathStr == "" {
		pathStr = "."
	}

	if dryRun {
		return worker.WorkerResult{Success: true, Message: fmt.Sprintf("[DRY-RUN] Would list files in %s", pathStr), Simulated: true}
	}

	normalized := normalizePath(pathStr, ".")
	info, err := os.Stat(normalized)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path does not exist: %s", normalized)}
	}
	if !info.IsDir() {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path is not a directory: %s", normalized)}
	}

	entries, err := os.ReadDir(normalized)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Cannot list directory: %s", err)}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	rows := make([]worker.DataRow, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.IsDir() {
			kind = "dir"
		}
		rows = append(rows, worker.DataRow{"name": e.Name(), "type": kind})
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          rows,
		Message:       fmt.Sprintf("Found %d items in %s", len(rows), normalized),
		TaskCompleted: true,
	}
}

func (w *Worker) findLargeFiles(args worker.Args, dryRun bool) worker.WorkerResult {
	pathStr, _ := args.GetString("path")
	if pathStr == "" {
		pathStr = "."
	}
	minSizeMB := args.GetInt("min_size_mb", 100)

	if dryRun {
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would search for files larger than %dMB in %s", minSizeMB, pathStr),
			Simulated: true,
		}
	}

	normalized := normalizePath(pathStr, ".")
	if _, err := os.Stat(normalized); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path does not exist: %s", normalized)}
	}

	minSizeBytes := int64(minSizeMB) * 1024 * 1024
	type found struct {
		path   string
		sizeMB int64
	}
	var large []found

	_ = filepath.Walk(normalized, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return nil
		}
		if info.Size() >= minSizeBytes {
			large = append(large, found{path: p, sizeMB: info.Size() / (1024 * 1024)})
		}
		return nil
	})

	sort.Slice(large, func(i, j int) bool { return large[i].sizeMB > large[j].sizeMB })

	rows := make([]worker.DataRow, 0, len(large))
	for _, f := range large {
		rows = append(rows, worker.DataRow{"path": f.path, "size_mb": strconv.FormatInt(f.sizeMB, 10)})
	}

	return worker.WorkerResult{
		Success: true,
		Data:    rows,
		Message: fmt.Sprintf("Found %d files larger than %dMB", len(rows), minSizeMB),
	}
}

func (w *Worker) checkDiskUsage(args worker.Args, dryRun bool) worker.WorkerResult {
	pathStr, _ := args.GetString("path")
	if pathStr == "" {
		pathStr = "/"
	}

	if dryRun {
		return worker.WorkerResult{Success: true, Message: fmt.Sprintf("[DRY-RUN] Would check disk usage for %s", pathStr), Simulated: true}
	}

	normalized := normalizePath(pathStr, "/")
	var stat syscall.Statfs_t
	if err := syscall.Statfs(normalized, &stat); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Cannot check disk usage: %s", err)}
	}

	total := stat.Blocks * uint64(stat.Bsize)
	free := stat.Bfree * uint64(stat.Bsize)
	used := total - free
	const gb = 1024 * 1024 * 1024
	percentUsed := 0
	if total > 0 {
		percentUsed = int(float64(used) / float64(total) * 100)
	}

	return worker.WorkerResult{
		Success: true,
		Data: []worker.DataRow{{
			"total":        strconv.FormatUint(total/gb, 10),
			"used":         strconv.FormatUint(used/gb, 10),
			"free":         strconv.FormatUint(free/gb, 10),
			"percent_used": strconv.Itoa(percentUsed),
		}},
		Message: fmt.Sprintf("Disk usage: %d%% used", percentUsed),
	}
}

func (w *Worker) deleteFiles(args worker.Args, dryRun bool) worker.WorkerResult {
	var files []string
	if _, present := args["files"]; present {
		var ok bool
		files, ok = args.GetList("files")
		if !ok {
			return worker.WorkerResult{Success: false, Message: "files must be a list"}
		}
	}
	if len(files) == 0 {
		if p, ok := args.GetString("path"); ok && p != "" {
			files = []string{p}
		}
	}
	if len(files) == 0 {
		return worker.WorkerResult{Success: false, Message: "files list cannot be empty"}
	}

	if dryRun {
		preview := files
		more := ""
		if len(files) > 3 {
			preview = files[:3]
			more = "..."
		}
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would delete %d files: %s%s", len(files), strings.Join(preview, ", "), more),
			Simulated: true,
		}
	}

	var deleted, errs []string
	for _, path := range files {
		info, err := os.Lstat(path)
		switch {
		case err != nil:
			errs = append(errs, fmt.Sprintf("File not found: %s", path))
		case info.IsDir():
			errs = append(errs, fmt.Sprintf("Cannot delete directory: %s", path))
		default:
			if w.journal != nil {
				if _, jerr := w.journal.RecordDelete(path, "delete_files"); jerr != nil {
					errs = append(errs, fmt.Sprintf("Cannot delete %s: %s", path, jerr))
					continue
				}
			}
			if err := os.Remove(path); err != nil {
				errs = append(errs, fmt.Sprintf("Cannot delete %s: %s", path, err))
				continue
			}
			deleted = append(deleted, path)
		}
	}

	success := len(errs) == 0
	var parts []string
	if len(deleted) > 0 {
		parts = append(parts, fmt.Sprintf("Deleted %d files", len(deleted)))
	}
	if len(errs) > 0 {
		parts = append(parts, fmt.Sprintf("%d errors", len(errs)))
	}

	rows := make([]worker.DataRow, 0, len(deleted)+len(errs))
	for _, d := range deleted {
		rows = append(rows, worker.DataRow{"type": "deleted", "path": d})
	}
	for _, e := range errs {
		rows = append(rows, worker.DataRow{"type": "error", "message": e})
	}

	message := "No files to delete"
	if len(parts) > 0 {
		message = strings.Join(parts, ", ")
	}

	return worker.WorkerResult{Success: success, Data: rows, Message: message, TaskCompleted: success}
}

func (w *Worker) writeFile(args worker.Args, dryRun bool) worker.WorkerResult {
	path, ok := args.GetString("path")
	if !ok || path == "" {
		return worker.WorkerResult{Success: false, Message: "path parameter is required and must be a string"}
	}
	content, ok := args.GetString("content")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "content parameter is required and must be a string"}
	}

	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path is a directory: %s", path)}
	}
	if _, err := os.Stat(filepath.Dir(path)); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Parent directory does not exist: %s", filepath.Dir(path))}
	}

	if dryRun {
		preview := content
		suffix := ""
		if len(content) > 200 {
			preview = content[:200]
			suffix = "..."
		}
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would write %d chars to %s\nContent preview:\n%s%s", len(content), path, preview, suffix),
			Simulated: true,
		}
	}

	if w.journal != nil {
		if _, err := w.journal.SnapshotFile(path, "write_file"); err != nil {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error writing file: %s", err)}
		}
	}

	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		if os.IsPermission(err) {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Permission denied: %s", path)}
		}
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error writing file: %s", err)}
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          []worker.DataRow{{"path": path, "size": strconv.Itoa(len(content))}},
		Message:       fmt.Sprintf("Successfully wrote %d chars to %s", len(content), path),
		TaskCompleted: true,
	}
}

func (w *Worker) appendToFile(args worker.Args, dryRun bool) worker.WorkerResult {
	path, ok := args.GetString("path")
	if !ok || path == "" {
		return worker.WorkerResult{Success: false, Message: "path parameter is required and must be a string"}
	}
	content, ok := args.GetString("content")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "content parameter is required and must be a string"}
	}

	info, err := os.Stat(path)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("File not found: %s", path)}
	}
	if info.IsDir() {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path is not a file: %s", path)}
	}

	if dryRun {
		preview := content
		suffix := ""
		if len(content) > 200 {
			preview = content[:200]
			suffix = "..."
		}
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would append %d chars to %s\nContent to append:\n%s%s", len(content), path, preview, suffix),
			Simulated: true,
		}
	}

	if w.journal != nil {
		if _, err := w.journal.SnapshotFile(path, "append_to_file"); err != nil {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error appending to file: %s", err)}
		}
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		if os.IsPermission(err) {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Permission denied: %s", path)}
		}
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error appending to file: %s", err)}
	}
	defer f.Close()

	if _, err := f.WriteString(content); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error appending to file: %s", err)}
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          []worker.DataRow{{"path": path, "appended_size": strconv.Itoa(len(content))}},
		Message:       fmt.Sprintf("Successfully appended %d chars to %s", len(content), path),
		TaskCompleted: true,
	}
}

func (w *Worker) replaceInFile(args worker.Args, dryRun bool) worker.WorkerResult {
	path, ok := args.GetString("path")
	if !ok || path == "" {
		return worker.WorkerResult{Success: false, Message: "path parameter is required and must be a string"}
	}
	oldStr, ok := args.GetString("old")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "old parameter is required and must be a string"}
	}
	newStr, ok := args.GetString("new")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "new parameter is required and must be a string"}
	}
	useRegex := args.GetBool("regex", false)
	maxCount := args.GetInt("count", 0)

	info, err := os.Stat(path)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("File not found: %s", path)}
	}
	if info.IsDir() {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Path is not a file: %s", path)}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsPermission(err) {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Permission denied: %s", path)}
		}
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error reading file: %s", err)}
	}
	fileContent := string(data)

	var matchCount int
	var re *regexp.Regexp
	if useRegex {
		re, err = regexp.Compile(oldStr)
		if err != nil {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Invalid regex pattern: %s", err)}
		}
		matchCount = len(re.FindAllString(fileContent, -1))
	} else {
		matchCount = strings.Count(fileContent, oldStr)
	}

	if matchCount == 0 {
		return worker.WorkerResult{Success: true, Message: fmt.Sprintf("No matches found for '%s'", oldStr), TaskCompleted: true}
	}

	effectiveCount := matchCount
	if maxCount > 0 && maxCount < matchCount {
		effectiveCount = maxCount
	}

	if dryRun {
		return worker.WorkerResult{
			Success: true,
			Message: fmt.Sprintf(
				"[DRY-RUN] Would replace in %s\n  %q -> %q\n  Matches found: %d, would replace: %d",
				path, oldStr, newStr, matchCount, effectiveCount,
			),
			Simulated: true,
		}
	}

	var newContent string
	var actualCount int
	if useRegex {
		n := maxCount
		if n <= 0 {
			n = -1
		}
		newContent = replaceAllRegex(re, fileContent, newStr, n)
		actualCount = effectiveCount
	} else if maxCount > 0 {
		newContent = strings.Replace(fileContent, oldStr, newStr, maxCount)
		actualCount = effectiveCount
	} else {
		newContent = strings.ReplaceAll(fileContent, oldStr, newStr)
		actualCount = matchCount
	}

	if w.journal != nil {
		if _, err := w.journal.SnapshotFile(path, "replace_in_file"); err != nil {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error writing file: %s", err)}
		}
	}

	if err := os.WriteFile(path, []byte(newContent), 0o644); err != nil {
		if os.IsPermission(err) {
			return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Permission denied: %s", path)}
		}
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("Error writing file: %s", err)}
	}

	return worker.WorkerResult{
		Success:       true,
		Data:          []worker.DataRow{{"path": path, "replacements": strconv.Itoa(actualCount)}},
		Message:       fmt.Sprintf("Replaced %d occurrence(s) in %s", actualCount, path),
		TaskCompleted: true,
	}
}

// replaceAllRegex replaces up to n matches (all if n < 0), mirroring
// Python's re.subn(count=n) since regexp.ReplaceAll has no count parameter.
func replaceAllRegex(re *regexp.Regexp, s, replacement string, n int) string {
	if n < 0 {
		return re.ReplaceAllString(s, replacement)
	}
	count := 0
	return re.ReplaceAllStringFunc(s, func(match string) string {
		if count >= n {
			return match
		}
		count++
		return re.ReplaceAllString(match, replacement)
	})
}
