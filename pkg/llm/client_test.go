package llm_test

import (
	"context"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opsai/opsai/pkg/llm"
)

type stubChat struct {
	response string
	err      error
	lastReq  openai.ChatCompletionRequest
}

func (s *stubChat) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	s.lastReq = req
	if s.err != nil {
		return openai.ChatCompletionResponse{}, s.err
	}
	return openai.ChatCompletionResponse{
		Choices: []openai.ChatCompletionChoice{
			{Message: openai.ChatCompletionMessage{Content: s.response}},
		},
	}, nil
}

func TestBuildMessagesRendersHistory(t *testing.T) {
	stub := &stubChat{response: "ok"}
	c := llm.New(stub, llm.Options{Model: "gpt-test"})

	history := []llm.HistoryEntry{
		{UserInput: "list files", AssistantText: "Found 2 files", RawOutput: "a.txt\nb.txt"},
		{AssistantText: "truncated result", RawOutput: "...", OutputTruncated: true},
	}
	msgs := c.BuildMessages("system prompt", history, "what's next?")

	require.Len(t, msgs, 5) // system + user,assistant + assistant (no user input) + trailing user
	assert.Equal(t, openai.ChatMessageRoleSystem, msgs[0].Role)
	assert.Contains(t, msgs[2].Content, "Raw Output:\na.txt\nb.txt")
	assert.Contains(t, msgs[3].Content, "[OUTPUT TRUNCATED]")
	assert.Equal(t, "what's next?", msgs[len(msgs)-1].Content)
}

func TestGenerateReturnsContent(t *testing.T) {
	stub := &stubChat{response: "hello"}
	c := llm.New(stub, llm.Options{Model: "gpt-test"})

	out, err := c.Generate(context.Background(), "sys", nil, "user")
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, "gpt-test", stub.lastReq.Model)
}

func TestExtractJSONDirect(t *testing.T) {
	obj, ok := llm.ExtractJSON(`{"worker": "shell", "action": "execute_command"}`)
	require.True(t, ok)
	assert.JSONEq(t, `{"worker": "shell", "action": "execute_command"}`, obj)
}

func TestExtractJSONFromFencedBlock(t *testing.T) {
	resp := "Here is my plan:\n```json\n{\"worker\": \"shell\", \"action\": \"x\"}\n```\nThanks."
	obj, ok := llm.ExtractJSON(resp)
	require.True(t, ok)
	assert.JSONEq(t, `{"worker": "shell", "action": "x"}`, obj)
}

func TestExtractJSONWithTrailingGarbage(t *testing.T) {
	resp := `{"worker": "shell", "action": "x"} some trailing noise here`
	obj, ok := llm.ExtractJSON(resp)
	require.True(t, ok)
	assert.JSONEq(t, `{"worker": "shell", "action": "x"}`, obj)
}

func TestExtractJSONNoObjectFound(t *testing.T) {
	_, ok := llm.ExtractJSON("I cannot help with that.")
	assert.False(t, ok)
}

func TestExtractJSONMultipleObjectsTakesFirst(t *testing.T) {
	resp := `{"a": 1} followed by {"b": 2}`
	obj, ok := llm.ExtractJSON(resp)
	require.True(t, ok)
	assert.JSONEq(t, `{"a": 1}`, obj)
}
