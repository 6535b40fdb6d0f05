// Package loganalyzer implements the "log_analyzer" worker: purely local
// log parsing, level counting, error/warning pattern deduplication, and
// 5-minute trend bucketing with spike detection — no LLM call. Ported from
// original_source/src/workers/log_analyzer.py, preserving its exact regex
// ordering and thresholds (spec §4.9).
package loganalyzer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/opsai/opsai/pkg/worker"
)

// levelPattern pairs a recognition regex with the level it maps to, checked
// in this order (FATAL before ERROR before the ERR abbreviation, etc.).
type levelPattern struct {
	re    *regexp.Regexp
	ci    *regexp.Regexp
	level string
}

func newLevelPattern(pattern, level string) levelPattern {
	return levelPattern{
		re:    regexp.MustCompile(pattern),
		ci:    regexp.MustCompile(`(?i)` + pattern),
		level: level,
	}
}

var levelPatterns = []levelPattern{
	newLevelPattern(`\bFATAL\b`, "FATAL"),
	newLevelPattern(`\bERROR\b`, "ERROR"),
	newLevelPattern(`\bERR\b`, "ERROR"),
	newLevelPattern(`\bWARN(?:ING)?\b`, "WARN"),
	newLevelPattern(`\bINFO\b`, "INFO"),
	newLevelPattern(`\bDEBUG\b`, "DEBUG"),
	newLevelPattern(`\bTRACE\b`, "TRACE"),
}

var timestampPatterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}(?:\.\d+)?(?:Z|[+-]\d{2}:?\d{2})?`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}\s+\d{2}:\d{2}:\d{2}(?:\.\d+)?`),
	regexp.MustCompile(`[A-Z][a-z]{2}\s+\d{1,2}\s+\d{2}:\d{2}:\d{2}`),
	regexp.MustCompile(`\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}\.\d+Z`),
	regexp.MustCompile(`\d{2}/[A-Z][a-z]{2}/\d{4}:\d{2}:\d{2}:\d{2}\s+[+-]\d{4}`),
	regexp.MustCompile(`\d{2}:\d{2}:\d{2}`),
}

type normalizeRule struct {
	re          *regexp.Regexp
	replacement string
}

// normalizeRules order matters: UUID before the generic HEX run, IP before
// the bare-integer rule, whitespace collapse last.
var normalizeRules = []normalizeRule{
	{regexp.MustCompile(`[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}`), "<UUID>"},
	{regexp.MustCompile(`\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}`), "<IP>"},
	{regexp.MustCompile(`\b[0-9a-f]{8,}\b`), "<HEX>"},
	{regexp.MustCompile(`\b\d+\b`), "<N>"},
	{regexp.MustCompile(`\s+`), " "},
}

var leadingSeparators = regexp.MustCompile(`^[\s\-\[\]|:]+`)
var trendTimePattern = regexp.MustCompile(`(\d{2}):(\d{2})`)

var errorLevels = map[string]bool{"ERROR": true, "FATAL": true}
var warnLevels = map[string]bool{"WARN": true}

// Entry is one parsed log line.
type Entry struct {
	Raw       string
	Timestamp string
	Level     string
	Message   string
}

// PatternCount is one deduplicated error/warning pattern with its sample.
type PatternCount struct {
	Pattern string
	Count   int
	Sample  string
	Level   string
}

// TrendPoint is one 5-minute bucket's totals.
type TrendPoint struct {
	Window string
	Total  int
	Errors int
	Warns  int
}

// Analysis is the full result of analyzing a corpus of log lines.
type Analysis struct {
	TotalLines  int
	LevelCounts map[string]int
	TopErrors   []PatternCount
	TopWarns    []PatternCount
	Trend       []TrendPoint
	DedupCount  int
	Source      string
}

// Worker implements analyze_lines/analyze_file/analyze_container.
type Worker struct {
	shell worker.Worker
}

// New builds a log analyzer Worker; shell is used only by analyze_container.
func New(shell worker.Worker) *Worker {
	return &Worker{shell: shell}
}

func (w *Worker) Name() string { return "log_analyzer" }

func (w *Worker) Capabilities() []string {
	return []string{"analyze_lines", "analyze_file", "analyze_container"}
}

func (w *Worker) Execute(ctx context.Context, action string, args worker.Args) worker.WorkerResult {
	switch action {
	case "analyze_lines", "analyze_file", "analyze_container":
	default:
		return worker.Unknown(action)
	}

	if args.GetBool("dry_run", false) {
		return worker.WorkerResult{
			Success:   true,
			Message:   fmt.Sprintf("[DRY-RUN] Would execute log_analyzer.%s", action),
			Simulated: true,
		}
	}

	switch action {
	case "analyze_lines":
		return w.analyzeLines(args)
	case "analyze_file":
		return w.analyzeFile(args)
	default:
		return w.analyzeContainer(ctx, args)
	}
}

func topN(args worker.Args) int {
	return args.GetInt("top_n", 10)
}

func (w *Worker) analyzeLines(args worker.Args) worker.WorkerResult {
	linesRaw, ok := args.GetString("lines")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "缺少参数: lines (日志文本)"}
	}
	source, ok := args.GetString("source")
	if !ok {
		source = "input"
	}

	lines := strings.Split(strings.TrimSpace(linesRaw), "\n")
	analysis := doAnalysis(lines, source, topN(args))
	return analysisResult(analysis)
}

func (w *Worker) analyzeFile(args worker.Args) worker.WorkerResult {
	pathRaw, ok := args.GetString("path")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "缺少参数: path (日志文件路径)"}
	}
	path := expandHome(pathRaw)
	if _, err := os.Stat(path); err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("文件不存在: %s", path)}
	}

	tailN := args.GetInt("tail", 1000)
	data, err := os.ReadFile(path)
	if err != nil {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("文件不存在: %s", path)}
	}
	all := strings.Split(string(data), "\n")
	lines := tail(all, tailN)

	analysis := doAnalysis(lines, path, topN(args))
	return analysisResult(analysis)
}

func (w *Worker) analyzeContainer(ctx context.Context, args worker.Args) worker.WorkerResult {
	container, ok := args.GetString("container")
	if !ok {
		return worker.WorkerResult{Success: false, Message: "缺少参数: container (容器名或ID)"}
	}
	tailN := args.GetInt("tail", 500)

	result := w.shell.Execute(ctx, "execute_command", worker.Args{
		"command": worker.String(fmt.Sprintf("docker logs --tail %d %s 2>&1", tailN, container)),
	})
	if !result.Success {
		return worker.WorkerResult{Success: false, Message: fmt.Sprintf("获取容器日志失败: %s", result.Message)}
	}

	rawOutput := result.RawOutput
	if rawOutput == "" {
		rawOutput = result.Message
	}
	lines := strings.Split(strings.TrimSpace(rawOutput), "\n")

	analysis := doAnalysis(lines, fmt.Sprintf("container:%s", container), topN(args))
	return analysisResult(analysis)
}

func expandHome(path string) string {
	if strings.HasPrefix(path, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			return home + strings.TrimPrefix(path, "~")
		}
	}
	return path
}

func tail(lines []string, n int) []string {
	if n <= 0 || len(lines) <= n {
		return lines
	}
	return lines[len(lines)-n:]
}

func analysisResult(a Analysis) worker.WorkerResult {
	return worker.WorkerResult{
		Success:       true,
		Data:          analysisToData(a),
		Message:       formatSummary(a),
		TaskCompleted: true,
	}
}

func doAnalysis(lines []string, source string, topN int) Analysis {
	var entries []Entry
	for _, line := range lines {
		trimmed := strings.TrimRight(line, "\n")
		if strings.TrimSpace(trimmed) == "" {
			continue
		}
		entries = append(entries, parseLine(trimmed))
	}

	levelCounts := map[string]int{}
	for _, e := range entries {
		levelCounts[e.Level]++
	}

	errorCounts := map[string]int{}
	warnCounts := map[string]int{}
	samples := map[string]string{}
	sampleLevels := map[string]string{}
	var errorOrder, warnOrder []string
	allPatterns := map[string]bool{}

	for _, e := range entries {
		normalized := normalizeMessage(e.Message)
		allPatterns[normalized] = true

		switch {
		case errorLevels[e.Level]:
			if errorCounts[normalized] == 0 {
				errorOrder = append(errorOrder, normalized)
			}
			errorCounts[normalized]++
			if _, ok := samples[normalized]; !ok {
				samples[normalized] = e.Raw
				sampleLevels[normalized] = e.Level
			}
		case warnLevels[e.Level]:
			if warnCounts[normalized] == 0 {
				warnOrder = append(warnOrder, normalized)
			}
			warnCounts[normalized]++
			if _, ok := samples[normalized]; !ok {
				samples[normalized] = e.Raw
				sampleLevels[normalized] = e.Level
			}
		}
	}

	topErrors := mostCommon(errorOrder, errorCounts, samples, sampleLevels, "ERROR", topN)
	topWarns := mostCommon(warnOrder, warnCounts, samples, sampleLevels, "WARN", topN)

	trend := computeTrend(entries)

	return Analysis{
		TotalLines:  len(entries),
		LevelCounts: levelCounts,
		TopErrors:   topErrors,
		TopWarns:    topWarns,
		Trend:       trend,
		DedupCount:  len(allPatterns),
		Source:      source,
	}
}

// mostCommon ranks patterns by count descending, using first-seen order as
// the tiebreak — matches Python Counter.most_common's stable-insertion-order
// tiebreak.
func mostCommon(order []string, counts map[string]int, samples, levels map[string]string, defaultLevel string, n int) []PatternCount {
	sorted := append([]string(nil), order...)
	sort.SliceStable(sorted, func(i, j int) bool { return counts[sorted[i]] > counts[sorted[j]] })
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	out := make([]PatternCount, 0, len(sorted))
	for _, pat := range sorted {
		level := levels[pat]
		if level == "" {
			level = defaultLevel
		}
		out = append(out, PatternCount{Pattern: pat, Count: counts[pat], Sample: samples[pat], Level: level})
	}
	return out
}

func parseLine(line string) Entry {
	timestamp := extractTimestamp(line)
	level := extractLevel(line)
	message := extractMessage(line, timestamp)
	return Entry{Raw: line, Timestamp: timestamp, Level: level, Message: message}
}

func extractTimestamp(line string) string {
	for _, pattern := range timestampPatterns {
		if m := pattern.FindString(line); m != "" {
			return m
		}
	}
	return ""
}

func extractLevel(line string) string {
	upper := strings.ToUpper(line)
	for _, lp := range levelPatterns {
		if lp.re.MatchString(upper) {
			return lp.level
		}
	}
	return "UNKNOWN"
}

func extractMessage(line, timestamp string) string {
	msg := line
	if timestamp != "" {
		if idx := strings.Index(msg, timestamp); idx >= 0 {
			msg = msg[idx+len(timestamp):]
		}
	}
	for _, lp := range levelPatterns {
		msg = lp.ci.ReplaceAllString(msg, "")
	}
	msg = leadingSeparators.ReplaceAllString(msg, "")
	return strings.TrimSpace(msg)
}

func normalizeMessage(message string) string {
	result := message
	for _, rule := range normalizeRules {
		result = rule.re.ReplaceAllString(result, rule.replacement)
	}
	return strings.TrimSpace(result)
}

func computeTrend(entries []Entry) []TrendPoint {
	type bucket struct{ total, errors, warns int }
	buckets := map[string]*bucket{}

	for _, e := range entries {
		if e.Timestamp == "" {
			continue
		}
		m := trendTimePattern.FindStringSubmatch(e.Timestamp)
		if m == nil {
			continue
		}
		hour := m[1]
		minute, _ := strconv.Atoi(m[2])
		bucketMin := (minute / 5) * 5
		key := fmt.Sprintf("%s:%02d", hour, bucketMin)

		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.total++
		switch {
		case errorLevels[e.Level]:
			b.errors++
		case warnLevels[e.Level]:
			b.warns++
		}
	}

	if len(buckets) == 0 {
		return nil
	}

	keys := make([]string, 0, len(buckets))
	for k := range buckets {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]TrendPoint, 0, len(keys))
	for _, k := range keys {
		b := buckets[k]
		out = append(out, TrendPoint{Window: k, Total: b.total, Errors: b.errors, Warns: b.warns})
	}
	return out
}

func formatSummary(a Analysis) string {
	var lines []string
	lines = append(lines, fmt.Sprintf("日志分析 (%s)", a.Source))
	lines = append(lines, fmt.Sprintf("  总行数: %d, 独立模式: %d", a.TotalLines, a.DedupCount))

	if len(a.LevelCounts) > 0 {
		var parts []string
		for _, level := range []string{"FATAL", "ERROR", "WARN", "INFO", "DEBUG", "UNKNOWN"} {
			count := a.LevelCounts[level]
			if count > 0 {
				total := a.TotalLines
				if total == 0 {
					total = 1
				}
				pct := float64(count) / float64(total) * 100
				parts = append(parts, fmt.Sprintf("%s: %d (%.1f%%)", level, count, pct))
			}
		}
		lines = append(lines, fmt.Sprintf("  级别分布: %s", strings.Join(parts, ", ")))
	}

	if len(a.TopErrors) > 0 {
		lines = append(lines, fmt.Sprintf("  Top %d 错误:", len(a.TopErrors)))
		for i, err := range truncateList(a.TopErrors, 5) {
			lines = append(lines, fmt.Sprintf("    %d. [%d次] %s", i+1, err.Count, truncateRunes(err.Pattern, 80)))
		}
	}

	if len(a.TopWarns) > 0 {
		lines = append(lines, fmt.Sprintf("  Top %d 警告:", len(a.TopWarns)))
		for i, warn := range truncateList(a.TopWarns, 3) {
			lines = append(lines, fmt.Sprintf("    %d. [%d次] %s", i+1, warn.Count, truncateRunes(warn.Pattern, 80)))
		}
	}

	if len(a.Trend) > 0 {
		total := 0
		for _, p := range a.Trend {
			total += p.Errors
		}
		avgErrors := float64(total) / float64(len(a.Trend))

		var spikes []TrendPoint
		for _, p := range a.Trend {
			if float64(p.Errors) > avgErrors*3 && p.Errors >= 3 {
				spikes = append(spikes, p)
			}
		}
		if len(spikes) > 0 {
			parts := make([]string, 0, len(spikes))
			for _, s := range truncateList(spikes, 3) {
				parts = append(parts, fmt.Sprintf("%s(%d次)", s.Window, s.Errors))
			}
			lines = append(lines, fmt.Sprintf("  异常峰值: %s", strings.Join(parts, ", ")))
		}
	}

	return strings.Join(lines, "\n")
}

func truncateList[T any](items []T, n int) []T {
	if len(items) <= n {
		return items
	}
	return items[:n]
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func analysisToData(a Analysis) []worker.DataRow {
	rows := []worker.DataRow{{
		"name":        "summary",
		"total_lines": strconv.Itoa(a.TotalLines),
		"dedup_count": strconv.Itoa(a.DedupCount),
		"source":      a.Source,
	}}

	for level, count := range a.LevelCounts {
		rows = append(rows, worker.DataRow{"name": "level_" + level, "count": strconv.Itoa(count)})
	}

	for i, err := range a.TopErrors {
		if i >= 10 {
			break
		}
		rows = append(rows, worker.DataRow{
			"name":    fmt.Sprintf("error_%d", i),
			"pattern": truncateRunes(err.Pattern, 100),
			"count":   strconv.Itoa(err.Count),
		})
	}

	return rows
}
