package host

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func newTestCLI(input string, out *bytes.Buffer) *CLI {
	return &CLI{out: out, in: bufio.NewReader(strings.NewReader(input))}
}

func TestCLIConfirmAcceptsYes(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("y\n", &out)
	assert.True(t, cli.Confirm(context.Background(), "delete file", "/tmp/x"))
	assert.Contains(t, out.String(), "即将执行")
}

func TestCLIConfirmRejectsAnythingElse(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("n\n", &out)
	assert.False(t, cli.Confirm(context.Background(), "delete file", "/tmp/x"))
}

func TestCLIConfirmAutoYesBypassesPrompt(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("", &out)
	cli.AutoYes = true
	assert.True(t, cli.Confirm(context.Background(), "delete file", "/tmp/x"))
	assert.Contains(t, out.String(), "自动批准")
}

func TestCLIConfirmTreatsCancelledContextAsRefusal(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("y\n", &out)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, cli.Confirm(ctx, "delete file", "/tmp/x"))
}

func TestCLIApproveDelegatesToConfirm(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("yes\n", &out)
	assert.True(t, cli.Approve(context.Background(), "shell.execute_command(rm tmp.txt)"))
}

func TestCLIAskUserAcceptsNumericIndex(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("2\n", &out)
	answer := cli.AskUser(context.Background(), "which port?", []string{"8080", "9090"}, "")
	assert.Equal(t, "9090", answer)
}

func TestCLIAskUserAcceptsFreeformAnswer(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("8081\n", &out)
	answer := cli.AskUser(context.Background(), "which port?", []string{"8080", "9090"}, "")
	assert.Equal(t, "8081", answer)
}

func TestCLIAskUserEmptyAnswerReturnsEmpty(t *testing.T) {
	var out bytes.Buffer
	cli := newTestCLI("\n", &out)
	answer := cli.AskUser(context.Background(), "which port?", []string{"8080"}, "context note")
	assert.Equal(t, "", answer)
}

func TestNonInteractiveAlwaysRefuses(t *testing.T) {
	var out bytes.Buffer
	n := NewNonInteractive(&out)
	assert.False(t, n.Confirm(context.Background(), "delete file", "/tmp/x"))
	assert.False(t, n.Approve(context.Background(), "shell.execute_command(rm tmp.txt)"))
	assert.Equal(t, "", n.AskUser(context.Background(), "which port?", []string{"8080"}, ""))
}
