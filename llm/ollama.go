package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// OllamaClient talks to a local Ollama server over its native API,
// streaming /api/chat responses as newline-delimited JSON.
type OllamaClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewOllamaClient creates a client for the given base URL
// (default http://localhost:11434).
func NewOllamaClient(baseURL string) *OllamaClient {
	return &OllamaClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		// Streaming turns have no sensible overall deadline; cancellation
		// comes from the request context.
		httpClient: &http.Client{},
	}
}

// ListModels returns the names of the locally available models. It doubles
// as the startup reachability check.
func (c *OllamaClient) ListModels(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/tags", nil)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Ollama URL")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot reach Ollama at %s", c.baseURL)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, errors.New("cannot reach Ollama at %s: HTTP %d", c.baseURL, resp.StatusCode)
	}

	var parsed struct {
		Models []struct {
			Name string `json:"name"`
		} `json:"models"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrapf(err, "could not parse model list")
	}
	names := make([]string, 0, len(parsed.Models))
	for _, m := range parsed.Models {
		names = append(names, m.Name)
	}
	return names, nil
}

// Wire types for /api/chat.

type ollamaMessage struct {
	Role      string           `json:"role"`
	Content   string           `json:"content"`
	ToolCalls []ollamaToolCall `json:"tool_calls,omitempty"`
}

type ollamaToolCall struct {
	Function ollamaFunction `json:"function"`
}

type ollamaFunction struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

type ollamaTool struct {
	Type     string           `json:"type"`
	Function ollamaToolSchema `json:"function"`
}

type ollamaToolSchema struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Parameters  tools.Parameters `json:"parameters"`
}

type ollamaChatRequest struct {
	Model    string          `json:"model"`
	Messages []ollamaMessage `json:"messages"`
	Stream   bool            `json:"stream"`
	Tools    []ollamaTool    `json:"tools,omitempty"`
}

type ollamaChunk struct {
	Message    ollamaMessage `json:"message"`
	Done       bool          `json:"done"`
	DoneReason string        `json:"done_reason"`
}

// ChatStream opens a streaming chat turn.
func (c *OllamaClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	payload := ollamaChatRequest{
		Model:    model,
		Messages: convertMessagesToOllama(messages),
		Stream:   true,
		Tools:    convertSchemasToOllama(schemas),
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "could not serialize chat request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/chat", bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "invalid Ollama URL")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "chat request to %s failed", c.baseURL)
	}
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, errors.New("Ollama returned HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	return &ollamaStream{body: resp.Body, scanner: scanner}, nil
}

type ollamaStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *ollamaStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		var raw ollamaChunk
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			// Ollama occasionally interleaves keep-alive noise; skip it.
			continue
		}
		chunk := Chunk{
			Content:    raw.Message.Content,
			ToolCalls:  convertOllamaToolCalls(raw.Message.ToolCalls),
			Done:       raw.Done,
			DoneReason: raw.DoneReason,
		}
		if raw.Done {
			s.done = true
			if chunk.DoneReason == "" {
				chunk.DoneReason = "stop"
			}
		}
		return chunk, nil
	}
	if err := s.scanner.Err(); err != nil {
		return Chunk{}, errors.Wrapf(err, "stream read failed")
	}
	// Stream ended without a done chunk; synthesize one so the consumer
	// always observes completion.
	s.done = true
	return Chunk{Done: true, DoneReason: "stop"}, nil
}

func (s *ollamaStream) Close() error {
	return s.body.Close()
}

func convertMessagesToOllama(messages []session.Message) []ollamaMessage {
	out := make([]ollamaMessage, 0, len(messages))
	for _, msg := range messages {
		om := ollamaMessage{Role: msg.Role, Content: msg.Content}
		if msg.Role == "assistant" {
			for _, tc := range msg.ToolCalls {
				args := json.RawMessage(tc.ArgsJSON)
				if tc.Args != nil {
					if b, err := json.Marshal(tc.Args); err == nil {
						args = b
					}
				}
				om.ToolCalls = append(om.ToolCalls, ollamaToolCall{
					Function: ollamaFunction{Name: tc.Name, Arguments: args},
				})
			}
		}
		out = append(out, om)
	}
	return out
}

func convertSchemasToOllama(schemas []tools.Schema) []ollamaTool {
	if len(schemas) == 0 {
		return nil
	}
	out := make([]ollamaTool, 0, len(schemas))
	for _, s := range schemas {
		out = append(out, ollamaTool{
			Type: "function",
			Function: ollamaToolSchema{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  s.Parameters,
			},
		})
	}
	return out
}

func convertOllamaToolCalls(calls []ollamaToolCall) []session.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]session.ToolCall, 0, len(calls))
	for _, tc := range calls {
		call := session.ToolCall{
			ID:   fmt.Sprintf("call_%s", uuid.NewString()),
			Name: tc.Function.Name,
		}
		// Arguments usually arrive as an object, but some models emit a
		// JSON-encoded string; keep the blob for the agent to resolve.
		var args map[string]any
		if err := json.Unmarshal(tc.Function.Arguments, &args); err == nil {
			call.Args = args
		} else {
			call.ArgsJSON = string(tc.Function.Arguments)
		}
		out = append(out, call)
	}
	return out
}
