// Package runbook loads diagnostic runbooks from YAML files and matches
// them against a user request by keyword overlap, supplying the "matched
// runbook snippets" the prompt builder inlines (spec §4.3 step 1). Grounded
// on original_source/src/runbooks/loader.py.
package runbook

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Step is one suggested diagnostic command within a runbook.
type Step struct {
	Description string `yaml:"description"`
	Command     string `yaml:"command"`
	Risk        string `yaml:"risk"`
}

// Runbook is a single diagnostic reference document.
type Runbook struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Keywords    []string `yaml:"keywords"`
	Steps       []Step   `yaml:"steps"`
}

// Match is one runbook selected for a given request, rendered as a
// prompt-ready title/body pair.
type Match struct {
	Title string
	Body  string
}

func (r Runbook) toPromptBody() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s\n\nSuggested diagnostic steps (adapt as needed):\n", r.Description)
	for i, step := range r.Steps {
		fmt.Fprintf(&b, "%d. %s\n   Command: `%s`\n", i+1, step.Description, step.Command)
	}
	return strings.TrimRight(b.String(), "\n")
}

// Library holds the loaded runbook set, keyed by name.
type Library struct {
	dir      string
	runbooks map[string]Runbook
	order    []string
}

// DefaultDir returns ~/.opsai/runbooks.
func DefaultDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("runbook: resolving home dir: %w", err)
	}
	return filepath.Join(home, ".opsai", "runbooks"), nil
}

// Load reads every *.yaml file in dir into a Library. A missing directory
// yields an empty, usable Library rather than an error — runbooks are an
// optional enrichment.
func Load(dir string) (*Library, error) {
	lib := &Library{dir: dir, runbooks: make(map[string]Runbook)}

	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return lib, nil
	}
	if err != nil {
		return nil, fmt.Errorf("runbook: reading %s: %w", dir, err)
	}

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".yaml") {
			continue
		}
		rb, err := loadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			continue
		}
		if _, exists := lib.runbooks[rb.Name]; !exists {
			lib.order = append(lib.order, rb.Name)
		}
		lib.runbooks[rb.Name] = rb
	}
	return lib, nil
}

func loadFile(path string) (Runbook, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Runbook{}, err
	}
	var rb Runbook
	if err := yaml.Unmarshal(data, &rb); err != nil {
		return Runbook{}, err
	}
	if rb.Name == "" {
		rb.Name = strings.TrimSuffix(filepath.Base(path), ".yaml")
	}
	return rb, nil
}

// Get returns the named runbook, or false if absent.
func (l *Library) Get(name string) (Runbook, bool) {
	rb, ok := l.runbooks[name]
	return rb, ok
}

// List returns all loaded runbooks in load order.
func (l *Library) List() []Runbook {
	out := make([]Runbook, 0, len(l.order))
	for _, name := range l.order {
		out = append(out, l.runbooks[name])
	}
	return out
}

type scoredRunbook struct {
	score int
	rb    Runbook
}

// Match scores each runbook by keyword overlap against userInput
// (case-insensitive substring match per keyword) and returns the top 2
// with a nonzero score, ported from RunbookLoader.match's top_k=2 default.
func (l *Library) Match(userInput string) []Match {
	input := strings.ToLower(userInput)

	var scored []scoredRunbook
	for _, name := range l.order {
		rb := l.runbooks[name]
		score := 0
		for _, kw := range rb.Keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(input, strings.ToLower(kw)) {
				score++
			}
		}
		if score > 0 {
			scored = append(scored, scoredRunbook{score: score, rb: rb})
		}
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].score > scored[j].score })

	const topK = 2
	if len(scored) > topK {
		scored = scored[:topK]
	}

	matches := make([]Match, 0, len(scored))
	for _, s := range scored {
		matches = append(matches, Match{Title: fmt.Sprintf("Diagnostic reference: %s", s.rb.Name), Body: s.rb.toPromptBody()})
	}
	return matches
}
