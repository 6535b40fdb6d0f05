// Package host implements the concrete, terminal-backed capability bundle
// (pkg/deploy.Host) the deploy FSM calls into for progress reporting,
// destructive-action confirmation, and disambiguating questions. Grounded
// on the teacher's stdout-logging idiom (cmd/tarsy/main.go's log.Printf
// calls) generalized to an interactive CLI; the three-callback shape it
// replaces is original_source/src/workers/deploy/worker.py's
// set_progress_callback/set_confirmation_callback/set_ask_user_callback.
package host

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CLI is a Host backed by stdin/stdout, used by the interactive `opsai
// query` command. A nil *CLI is never passed; NonInteractive covers the
// unattended case.
type CLI struct {
	out    io.Writer
	in     *bufio.Reader
	AutoYes bool
}

// New builds a CLI host reading confirmations from stdin and writing
// progress to stdout.
func New() *CLI {
	return &CLI{out: os.Stdout, in: bufio.NewReader(os.Stdin)}
}

// Progress prints a single "[step] message" line.
func (c *CLI) Progress(step, message string) {
	fmt.Fprintf(c.out, "[%s] %s\n", step, message)
}

// Confirm asks the user to approve a destructive action. AutoYes bypasses
// the prompt for unattended runs (`opsai query --yes`); ctx cancellation is
// treated as a refusal.
func (c *CLI) Confirm(ctx context.Context, action, detail string) bool {
	if c.AutoYes {
		fmt.Fprintf(c.out, "⚠️  自动批准: %s (%s)\n", action, detail)
		return true
	}
	if ctx.Err() != nil {
		return false
	}

	fmt.Fprintf(c.out, "⚠️  即将执行: %s\n    %s\n确认执行吗？[y/N] ", action, detail)
	line, err := c.in.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}

// Approve satisfies pkg/orchestrator.Host, asking the user whether to
// proceed with a risk-gated instruction. It is a thin restatement of
// Confirm under the orchestrator's own naming, so one CLI instance serves
// both the deploy FSM and the ReAct loop's approval gate without
// duplicated prompting code.
func (c *CLI) Approve(ctx context.Context, summary string) bool {
	return c.Confirm(ctx, "execute", summary)
}

// AskUser presents a disambiguating question with optional numbered
// options and returns the user's choice, or "" if they decline to answer.
func (c *CLI) AskUser(ctx context.Context, question string, options []string, contextNote string) string {
	if ctx.Err() != nil {
		return ""
	}

	fmt.Fprintf(c.out, "❓ %s\n", question)
	if contextNote != "" {
		fmt.Fprintf(c.out, "   %s\n", contextNote)
	}
	for i, opt := range options {
		fmt.Fprintf(c.out, "   %d. %s\n", i+1, opt)
	}
	fmt.Fprint(c.out, "> ")

	line, err := c.in.ReadString('\n')
	if err != nil {
		return ""
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return ""
	}

	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(options) {
		return options[n-1]
	}
	return answer
}

// NonInteractive is a Host for unattended runs (cron, CI, `--dry-run`
// batches): progress is logged, confirmations default to refuse, and
// ask-user questions go unanswered. Mirrors the original's behavior when no
// callback was ever registered.
type NonInteractive struct {
	out io.Writer
}

// NewNonInteractive builds a Host that logs progress to out and refuses all
// confirmations/questions.
func NewNonInteractive(out io.Writer) *NonInteractive {
	if out == nil {
		out = os.Stdout
	}
	return &NonInteractive{out: out}
}

func (n *NonInteractive) Progress(step, message string) {
	fmt.Fprintf(n.out, "[%s] %s\n", step, message)
}

func (n *NonInteractive) Confirm(ctx context.Context, action, detail string) bool {
	fmt.Fprintf(n.out, "⚠️  跳过需要确认的操作: %s (%s)\n", action, detail)
	return false
}

func (n *NonInteractive) Approve(ctx context.Context, summary string) bool {
	fmt.Fprintf(n.out, "⚠️  跳过需要确认的操作: %s\n", summary)
	return false
}

func (n *NonInteractive) AskUser(ctx context.Context, question string, options []string, contextNote string) string {
	fmt.Fprintf(n.out, "❓ 无法在非交互模式下回答: %s\n", question)
	return ""
}
