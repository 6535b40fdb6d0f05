// Package analyze implements the "analyze" worker: diagnosing an ops
// object (container, process, port, file, systemd unit, network
// interface) by running a small set of read-only shell commands and
// asking the LLM to summarize them (spec §4.8). This file is the
// template cache half, ported from
// original_source/src/workers/analyze_cache.py, following the same
// mutex-guarded JSON-file-singleton pattern as pkg/journal and
// pkg/memory.
package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// Template is a cached command list for one target type.
type Template struct {
	Commands  []string `json:"commands"`
	CreatedAt string   `json:"created_at"`
	HitCount  int      `json:"hit_count"`
}

// Cache maps target type to its cached Template, persisted as JSON.
// Unlike pkg/memory's lazy Recall, Get saves immediately on every hit
// (matches analyze_cache.py's get()).
type Cache struct {
	mu        sync.Mutex
	path      string
	templates map[string]Template
}

// DefaultPath returns ~/.opsai/cache/analyze_templates.json.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("analyze: resolving home dir: %w", err)
	}
	return filepath.Join(home, ".opsai", "cache", "analyze_templates.json"), nil
}

// Open loads the cache from path, tolerating a missing or corrupt file by
// starting empty (mirrors analyze_cache.py's _load()).
func Open(path string) (*Cache, error) {
	c := &Cache{path: path, templates: map[string]Template{}}

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("analyze: reading %s: %w", path, err)
	}

	var templates map[string]Template
	if err := json.Unmarshal(data, &templates); err != nil {
		return c, nil
	}
	c.templates = templates
	return c, nil
}

func (c *Cache) persist() error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("analyze: creating cache dir: %w", err)
	}
	data, err := json.MarshalIndent(c.templates, "", "  ")
	if err != nil {
		return fmt.Errorf("analyze: marshal cache: %w", err)
	}
	return os.WriteFile(c.path, data, 0o644)
}

// Get returns the cached command list for targetType, incrementing its hit
// count and saving immediately. Returns (nil, false) if absent.
func (c *Cache) Get(targetType string) ([]string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tmpl, ok := c.templates[targetType]
	if !ok || len(tmpl.Commands) == 0 {
		return nil, false
	}
	tmpl.HitCount++
	c.templates[targetType] = tmpl
	_ = c.persist()
	return tmpl.Commands, true
}

// Set overwrites the cached template for targetType with a fresh one
// (hit_count resets to 0 — matches analyze_cache.py's set(), no upsert).
func (c *Cache) Set(targetType string, commands []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.templates[targetType] = Template{
		Commands:  commands,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
		HitCount:  0,
	}
	return c.persist()
}

// Clear removes the cached template for targetType, returning 1 if one was
// removed, 0 otherwise.
func (c *Cache) Clear(targetType string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.templates[targetType]; !ok {
		return 0
	}
	delete(c.templates, targetType)
	_ = c.persist()
	return 1
}

// ClearAll removes every cached template, returning the count removed.
func (c *Cache) ClearAll() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.templates)
	c.templates = map[string]Template{}
	_ = c.persist()
	return n
}

// ListAll returns a copy of every cached template, keyed by target type.
func (c *Cache) ListAll() map[string]Template {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make(map[string]Template, len(c.templates))
	for k, v := range c.templates {
		out[k] = v
	}
	return out
}

// Exists reports whether a template is cached for targetType.
func (c *Cache) Exists(targetType string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.templates[targetType]
	return ok
}

// portCommands returns the OS-appropriate port-diagnosis command set.
// macOS lacks `ss`, so lsof carries the listening-socket query there;
// Linux prefers `ss` first since it's universally available and fast.
func portCommands() []string {
	if runtime.GOOS == "darwin" {
		return []string{
			"lsof -iTCP:{name} -sTCP:LISTEN -P -n",
			"lsof -i :{name} -P -n",
			"curl -sI http://localhost:{name} --max-time 3 || true",
		}
	}
	return []string{
		"ss -tlnp | grep :{name}",
		"lsof -i :{name} -P -n",
		"curl -sI http://localhost:{name} --max-time 3 || true",
	}
}

// DefaultAnalyzeCommands returns the built-in command set for each known
// target type, ported verbatim from analyze_cache.py's
// DEFAULT_ANALYZE_COMMANDS plus the OS-conditional port variant.
func DefaultAnalyzeCommands() map[string][]string {
	return map[string][]string{
		"port": portCommands(),
		"docker": {
			"docker inspect {name}",
			"docker logs --tail 50 {name}",
		},
		"process": {
			"ps aux | grep {name}",
			"lsof -p {name} 2>/dev/null | head -50",
			"cat /proc/{name}/cmdline 2>/dev/null | tr '\\0' ' '",
		},
		"file": {
			"file {name}",
			"ls -la {name}",
			"stat {name}",
			"head -20 {name} 2>/dev/null",
		},
		"systemd": {
			"systemctl status {name}",
			"journalctl -u {name} --no-pager -n 30",
			"systemctl cat {name} 2>/dev/null",
		},
		"network": {
			"ss -tlnp | grep {name}",
			"netstat -an 2>/dev/null | grep {name}",
			"ip addr show {name} 2>/dev/null",
		},
	}
}
