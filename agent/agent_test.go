package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hapershtein/llamagent/llm"
	"github.com/hapershtein/llamagent/logging"
	"github.com/hapershtein/llamagent/session"
)

// fakeDispatcher records every dispatch and replays scripted results.
type fakeDispatcher struct {
	calls   []dispatchedCall
	results map[string]string
}

type dispatchedCall struct {
	name string
	args map[string]interface{}
}

func (d *fakeDispatcher) Dispatch(_ context.Context, name string, args map[string]interface{}) string {
	d.calls = append(d.calls, dispatchedCall{name: name, args: args})
	if r, ok := d.results[name]; ok {
		return r
	}
	return "ok"
}

func newTestAgent(t *testing.T, client *llm.ScriptedClient, dispatcher *fakeDispatcher, maxIter int) *Agent {
	t.Helper()
	t.Chdir(t.TempDir())
	sess, err := session.New("test")
	require.NoError(t, err)
	return New("test-model", client, sess, dispatcher, nil, maxIter, logging.Discard())
}

func TestRunPlainAnswer(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{
		{
			{Content: "Hello "},
			{Content: "world"},
			{Done: true, DoneReason: "stop"},
		},
	}}
	dispatcher := &fakeDispatcher{}
	a := newTestAgent(t, client, dispatcher, 20)

	var tokens string
	a.Hooks.OnToken = func(tok string) { tokens += tok }

	result, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	require.Equal(t, "Hello world", result)
	require.Equal(t, "Hello world", tokens)
	require.Empty(t, dispatcher.calls)

	msgs := a.Session().Messages
	require.Len(t, msgs, 2)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "hi", msgs[0].Content)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Equal(t, "Hello world", msgs[1].Content)
}

func TestRunToolRoundTrip(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{
		{
			{ToolCalls: []session.ToolCall{{
				ID:   "call_1",
				Name: "echo",
				Args: map[string]interface{}{"text": "hi"},
			}}},
			{Done: true, DoneReason: "tool_calls"},
		},
		{
			{Content: "done"},
			{Done: true, DoneReason: "stop"},
		},
	}}
	dispatcher := &fakeDispatcher{results: map[string]string{"echo": "echo: hi"}}
	a := newTestAgent(t, client, dispatcher, 20)

	result, err := a.Run(context.Background(), "say hi")
	require.NoError(t, err)
	require.Equal(t, "done", result)

	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, "echo", dispatcher.calls[0].name)
	require.Equal(t, map[string]interface{}{"text": "hi"}, dispatcher.calls[0].args)

	// History order: user, assistant(tool call), tool result, assistant.
	msgs := a.Session().Messages
	require.Len(t, msgs, 4)
	require.Equal(t, "user", msgs[0].Role)
	require.Equal(t, "assistant", msgs[1].Role)
	require.Len(t, msgs[1].ToolCalls, 1)
	require.Equal(t, "tool", msgs[2].Role)
	require.Equal(t, "echo: hi", msgs[2].Content)
	require.Equal(t, "call_1", msgs[2].ToolCalls[0].ID)
	require.Equal(t, "assistant", msgs[3].Role)
	require.Equal(t, "done", msgs[3].Content)

	// The second request must already contain the tool result.
	require.Len(t, client.Requests, 2)
	second := client.Requests[1]
	require.Equal(t, "tool", second[len(second)-1].Role)
}

func TestTokenSuppressionAfterToolCall(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{
		{
			{Content: "Let me check. "},
			{ToolCalls: []session.ToolCall{{ID: "call_1", Name: "echo", Args: map[string]interface{}{}}}},
			{Content: "Running the tool now..."},
			{Done: true, DoneReason: "tool_calls"},
		},
		{
			{Content: "all good"},
			{Done: true, DoneReason: "stop"},
		},
	}}
	dispatcher := &fakeDispatcher{}
	a := newTestAgent(t, client, dispatcher, 20)

	var tokens string
	a.Hooks.OnToken = func(tok string) { tokens += tok }

	result, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, "all good", result)
	// Text after the first tool-call delta is recorded but not surfaced.
	require.Equal(t, "Let me check. all good", tokens)
	require.Equal(t, "Let me check. Running the tool now...", a.Session().Messages[1].Content)
}

func TestRunMaxIterations(t *testing.T) {
	toolTurn := []llm.Chunk{
		{ToolCalls: []session.ToolCall{{ID: "c", Name: "echo", Args: map[string]interface{}{}}}},
		{Done: true, DoneReason: "tool_calls"},
	}
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{toolTurn, toolTurn, toolTurn, toolTurn}}
	dispatcher := &fakeDispatcher{}
	a := newTestAgent(t, client, dispatcher, 3)

	result, err := a.Run(context.Background(), "loop forever")
	require.NoError(t, err)
	require.Equal(t, MaxIterationsMessage, result)
	require.Len(t, dispatcher.calls, 3)
}

func TestRunPermissionDenied(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{
		{
			{ToolCalls: []session.ToolCall{{ID: "c", Name: "shell", Args: map[string]interface{}{"command": "rm -rf /"}}}},
			{Done: true, DoneReason: "tool_calls"},
		},
		{
			{Content: "understood"},
			{Done: true, DoneReason: "stop"},
		},
	}}
	dispatcher := &fakeDispatcher{}
	a := newTestAgent(t, client, dispatcher, 20)
	a.Auth = denyAll{}

	var results []string
	a.Hooks.OnToolResult = func(name, result string) { results = append(results, result) }

	result, err := a.Run(context.Background(), "wipe the disk")
	require.NoError(t, err)
	require.Equal(t, "understood", result)

	// The dispatcher must never see a denied call.
	require.Empty(t, dispatcher.calls)
	require.Equal(t, []string{deniedResult}, results)
	require.Equal(t, deniedResult, a.Session().Messages[2].Content)
}

type denyAll struct{}

func (denyAll) Authorize(string, map[string]interface{}) Decision { return Deny }

func TestRunTextEmbeddedToolCall(t *testing.T) {
	client := &llm.ScriptedClient{Turns: [][]llm.Chunk{
		{
			{Content: `<tool_call>{"name": "echo", "arguments": {"text": "hi"}}</tool_call>`},
			{Done: true, DoneReason: "stop"},
		},
		{
			{Content: "finished"},
			{Done: true, DoneReason: "stop"},
		},
	}}
	dispatcher := &fakeDispatcher{}
	a := newTestAgent(t, client, dispatcher, 20)

	result, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	require.Equal(t, "finished", result)
	require.Len(t, dispatcher.calls, 1)
	require.Equal(t, "echo", dispatcher.calls[0].name)
	require.Equal(t, map[string]interface{}{"text": "hi"}, dispatcher.calls[0].args)
}

func TestResolveArgsFromBlob(t *testing.T) {
	logger := logging.Discard()

	args := resolveArgs(session.ToolCall{Name: "t", ArgsJSON: `{"path": "x.txt", "n": 3}`}, logger)
	require.Equal(t, map[string]interface{}{"path": "x.txt", "n": float64(3)}, args)

	// A malformed blob resolves to empty arguments, never an error.
	args = resolveArgs(session.ToolCall{Name: "t", ArgsJSON: `{"path": `}, logger)
	require.Empty(t, args)

	// A decoded map wins over the blob.
	args = resolveArgs(session.ToolCall{
		Name:     "t",
		Args:     map[string]interface{}{"a": "b"},
		ArgsJSON: `{"ignored": true}`,
	}, logger)
	require.Equal(t, map[string]interface{}{"a": "b"}, args)
}

func TestSetSystemPromptOnlyOnFreshSession(t *testing.T) {
	client := &llm.ScriptedClient{}
	a := newTestAgent(t, client, &fakeDispatcher{}, 20)

	a.SetSystemPrompt("you are helpful")
	require.Len(t, a.Session().Messages, 1)
	require.Equal(t, "system", a.Session().Messages[0].Role)

	a.SetSystemPrompt("a different prompt")
	require.Len(t, a.Session().Messages, 1)
	require.Equal(t, "you are helpful", a.Session().Messages[0].Content)
}
