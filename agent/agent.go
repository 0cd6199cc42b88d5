package agent

import (
	"context"
	"encoding/json"
	"io"
	"strings"

	"github.com/charmbracelet/log"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/llm"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// MaxIterationsMessage is the sentinel final answer returned when the model
// keeps requesting tools and never settles on a text response.
const MaxIterationsMessage = "[max iterations reached]"

const deniedResult = "[permission denied] The user declined to run this tool."

// Dispatcher executes a named tool and returns its text result. It never
// fails; errors come back as error-prefixed text.
type Dispatcher interface {
	Dispatch(ctx context.Context, name string, args map[string]interface{}) string
}

// Hooks are observation callbacks for the UI layer. They are pure
// side-effect hooks and never affect control flow; authorization lives in
// the separate Authorizer.
type Hooks struct {
	// OnToken fires per displayable text delta while the model streams.
	OnToken func(token string)
	// OnToolCall fires once per tool call, after argument normalization and
	// before the authorization check.
	OnToolCall func(name string, args map[string]interface{})
	// OnToolResult fires once per tool call with its text result, including
	// denial results.
	OnToolResult func(name, result string)
}

// Agent drives the conversation: it streams model turns, interprets
// structured and text-embedded tool calls, executes them through the
// dispatcher under the authorizer, and loops until the model produces a
// final answer.
type Agent struct {
	Model string

	// Hooks and Auth may be swapped between turns; the terminal installs
	// its own before each Run.
	Hooks Hooks
	Auth  Authorizer

	client        llm.Client
	sess          *session.Session
	dispatcher    Dispatcher
	schemas       []tools.Schema
	maxIterations int
	logger        *log.Logger
}

// New creates an agent over a session. A systemPrompt, when non-empty, is
// installed as the leading message of a fresh session.
func New(model string, client llm.Client, sess *session.Session, dispatcher Dispatcher, schemas []tools.Schema, maxIterations int, logger *log.Logger) *Agent {
	if maxIterations <= 0 {
		maxIterations = 20
	}
	return &Agent{
		Model:         model,
		Auth:          AllowAll(),
		client:        client,
		sess:          sess,
		dispatcher:    dispatcher,
		schemas:       schemas,
		maxIterations: maxIterations,
		logger:        logger,
	}
}

// SetSystemPrompt installs the system prompt as the leading message of an
// empty session. Sessions resumed from disk keep their recorded prompt.
func (a *Agent) SetSystemPrompt(prompt string) {
	if prompt != "" && len(a.sess.Messages) == 0 {
		a.sess.AddMessage(session.Message{Role: "system", Content: prompt})
	}
}

// Session exposes the conversation history for the UI layer.
func (a *Agent) Session() *session.Session {
	return a.sess
}

// Clear resets the history, keeping the leading system message.
func (a *Agent) Clear() {
	a.sess.Clear()
}

// Run appends the user message and drives the agentic loop until the model
// answers in text or the iteration cap is hit.
//
// Tool failures, decode failures, and permission denials are absorbed into
// the conversation as text results; the only error Run returns is a
// transport failure from the model stream. Iteration exhaustion returns
// MaxIterationsMessage with a nil error.
func (a *Agent) Run(ctx context.Context, userInput string) (string, error) {
	a.sess.AddMessage(session.Message{Role: "user", Content: userInput})

	for i := 0; i < a.maxIterations; i++ {
		content, toolCalls, err := a.streamTurn(ctx)
		if err != nil {
			return "", err
		}

		msg := session.Message{Role: "assistant", Content: content}
		if len(toolCalls) > 0 {
			msg.ToolCalls = toolCalls
		}
		a.sess.AddMessage(msg)

		// Structured tool calls win; text extraction is a pure fallback for
		// models without native tool support.
		if len(toolCalls) > 0 {
			a.runToolCalls(ctx, toolCalls)
			continue
		}
		if content != "" {
			if textCalls := extractTextToolCalls(content); len(textCalls) > 0 {
				a.logger.Debug("recovered tool calls from text", "count", len(textCalls))
				a.runToolCalls(ctx, textCalls)
				continue
			}
		}

		return content, nil
	}

	a.logger.Warn("iteration cap reached", "max", a.maxIterations)
	return MaxIterationsMessage, nil
}

// streamTurn performs one full model streaming response, accumulating text
// and tool-call deltas. Text deltas are forwarded to OnToken only until the
// first tool-call delta arrives; after that the model is narrating around a
// tool call and the narration is recorded but not displayed.
func (a *Agent) streamTurn(ctx context.Context) (string, []session.ToolCall, error) {
	stream, err := a.client.ChatStream(ctx, a.Model, a.sess.Messages, a.schemas)
	if err != nil {
		return "", nil, errors.Wrapf(err, "chat stream failed")
	}
	defer stream.Close()

	var content strings.Builder
	var toolCalls []session.ToolCall

	for {
		chunk, err := stream.Recv()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", nil, errors.Wrapf(err, "stream read failed")
		}

		if chunk.Content != "" {
			content.WriteString(chunk.Content)
			if len(toolCalls) == 0 && a.Hooks.OnToken != nil {
				a.Hooks.OnToken(chunk.Content)
			}
		}
		if len(chunk.ToolCalls) > 0 {
			toolCalls = append(toolCalls, chunk.ToolCalls...)
		}
		if chunk.Done {
			a.logger.Debug("turn complete", "reason", chunk.DoneReason,
				"content_len", content.Len(), "tool_calls", len(toolCalls))
			break
		}
	}

	return content.String(), toolCalls, nil
}

// runToolCalls executes tool calls strictly in arrival order and appends
// one tool message per call. Order matters twice over: later calls may
// depend on earlier side effects, and some APIs correlate results to calls
// positionally.
func (a *Agent) runToolCalls(ctx context.Context, calls []session.ToolCall) {
	for _, tc := range calls {
		args := resolveArgs(tc, a.logger)
		args = normalizeArgs(args)

		if a.Hooks.OnToolCall != nil {
			a.Hooks.OnToolCall(tc.Name, args)
		}

		var result string
		if a.Auth.Authorize(tc.Name, args) == Deny {
			a.logger.Info("tool call denied", "tool", tc.Name)
			result = deniedResult
		} else {
			result = a.dispatcher.Dispatch(ctx, tc.Name, args)
		}

		if a.Hooks.OnToolResult != nil {
			a.Hooks.OnToolResult(tc.Name, result)
		}

		answered := tc
		answered.Args = args
		answered.ArgsJSON = ""
		a.sess.AddMessage(session.Message{
			Role:      "tool",
			Content:   result,
			ToolCalls: []session.ToolCall{answered},
		})
	}
}

// resolveArgs produces the argument map for a call, decoding a raw blob if
// that is how the arguments arrived. A malformed blob resolves to empty
// arguments rather than an error.
func resolveArgs(tc session.ToolCall, logger *log.Logger) map[string]interface{} {
	if tc.Args != nil {
		return tc.Args
	}
	args := map[string]interface{}{}
	if tc.ArgsJSON == "" {
		return args
	}
	if err := json.Unmarshal([]byte(tc.ArgsJSON), &args); err != nil {
		logger.Debug("malformed tool arguments, treating as empty", "tool", tc.Name, "error", err)
		return map[string]interface{}{}
	}
	return args
}
