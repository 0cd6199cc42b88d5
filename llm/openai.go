package llm

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/openai/openai-go/v2/packages/ssestream"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// OpenAIClient is a streaming client for the OpenAI Chat Completions API
// and any OpenAI-compatible endpoint (Ollama's /v1, vllm, etc).
type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient creates a new OpenAIClient. It reads OPENAI_API_KEY and
// OPENAI_BASE_URL from the environment; baseURL, when non-empty, overrides
// the latter. Compatible local endpoints accept any key, so the key is only
// mandatory when no custom base URL is configured.
func NewOpenAIClient(baseURL string) (*OpenAIClient, error) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if baseURL == "" {
		baseURL = os.Getenv("OPENAI_BASE_URL")
	}
	if apiKey == "" {
		if baseURL == "" {
			return nil, errors.New("OPENAI_API_KEY environment variable not set")
		}
		apiKey = "unused"
	}

	options := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		options = append(options, option.WithBaseURL(baseURL))
	}

	c := openai.NewClient(options...)
	return &OpenAIClient{client: &c}, nil
}

// ChatStream opens a streaming chat completion.
func (o *OpenAIClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(model),
		Messages: convertMessagesToOpenAI(messages),
		Tools:    convertSchemasToOpenAI(schemas),
	}
	inner := o.client.Chat.Completions.NewStreaming(ctx, params)
	return &openaiStream{inner: inner, pending: map[int64]*openaiToolCallAccum{}}, nil
}

// openaiToolCallAccum reassembles one tool call whose argument string
// arrives split across deltas.
type openaiToolCallAccum struct {
	id   string
	name string
	args string
}

type openaiStream struct {
	inner        *ssestream.Stream[openai.ChatCompletionChunk]
	pending      map[int64]*openaiToolCallAccum
	order        []int64
	finishReason string
	done         bool
}

func (s *openaiStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for s.inner.Next() {
		chunk := s.inner.Current()
		if len(chunk.Choices) == 0 {
			continue
		}
		choice := chunk.Choices[0]

		for _, delta := range choice.Delta.ToolCalls {
			acc, ok := s.pending[delta.Index]
			if !ok {
				acc = &openaiToolCallAccum{}
				s.pending[delta.Index] = acc
				s.order = append(s.order, delta.Index)
			}
			if delta.ID != "" {
				acc.id = delta.ID
			}
			if delta.Function.Name != "" {
				acc.name = delta.Function.Name
			}
			acc.args += delta.Function.Arguments
		}
		if choice.FinishReason != "" {
			s.finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			return Chunk{Content: choice.Delta.Content}, nil
		}
	}
	if err := s.inner.Err(); err != nil {
		return Chunk{}, errors.Wrapf(err, "OpenAI stream failed")
	}

	s.done = true
	reason := s.finishReason
	if reason == "" {
		reason = "stop"
	}
	return Chunk{ToolCalls: s.collectToolCalls(), Done: true, DoneReason: reason}, nil
}

func (s *openaiStream) collectToolCalls() []session.ToolCall {
	var calls []session.ToolCall
	for _, idx := range s.order {
		acc := s.pending[idx]
		if acc.name == "" {
			continue
		}
		// The argument blob stays undecoded here; the agent resolves it.
		calls = append(calls, session.ToolCall{
			ID:       acc.id,
			Name:     acc.name,
			ArgsJSON: acc.args,
		})
	}
	return calls
}

func (s *openaiStream) Close() error {
	return s.inner.Close()
}

// convertMessagesToOpenAI converts our internal message format to OpenAI's.
func convertMessagesToOpenAI(messages []session.Message) []openai.ChatCompletionMessageParamUnion {
	var chatMessages []openai.ChatCompletionMessageParamUnion
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			chatMessages = append(chatMessages, openai.SystemMessage(msg.Content))
		case "assistant":
			assistantMessage := openai.ChatCompletionMessage{
				Role:    "assistant",
				Content: msg.Content,
			}
			for _, tc := range msg.ToolCalls {
				args := tc.ArgsJSON
				if tc.Args != nil {
					if b, err := json.Marshal(tc.Args); err == nil {
						args = string(b)
					}
				}
				assistantMessage.ToolCalls = append(assistantMessage.ToolCalls, openai.ChatCompletionMessageToolCallUnion{
					ID:   tc.ID,
					Type: "function",
					Function: openai.ChatCompletionMessageFunctionToolCallFunction{
						Name:      tc.Name,
						Arguments: args,
					},
				})
			}
			chatMessages = append(chatMessages, assistantMessage.ToParam())
		case "tool":
			// The tool message carries the call it answers; OpenAI
			// correlates by that ID.
			if len(msg.ToolCalls) != 1 {
				continue
			}
			chatMessages = append(chatMessages, openai.ToolMessage(msg.Content, msg.ToolCalls[0].ID))
		default:
			chatMessages = append(chatMessages, openai.UserMessage(msg.Content))
		}
	}
	return chatMessages
}

// convertSchemasToOpenAI converts the tool catalog to OpenAI's format.
func convertSchemasToOpenAI(schemas []tools.Schema) []openai.ChatCompletionToolUnionParam {
	if len(schemas) == 0 {
		return nil
	}
	var out []openai.ChatCompletionToolUnionParam
	for _, s := range schemas {
		properties := map[string]any{}
		for name, p := range s.Parameters.Properties {
			properties[name] = map[string]any{
				"type":        p.Type,
				"description": p.Description,
			}
		}
		params := openai.FunctionParameters{
			"type":       "object",
			"properties": properties,
		}
		if len(s.Parameters.Required) > 0 {
			params["required"] = s.Parameters.Required
		}
		out = append(out, openai.ChatCompletionFunctionTool(openai.FunctionDefinitionParam{
			Name:        s.Name,
			Description: openai.String(s.Description),
			Parameters:  params,
		}))
	}
	return out
}
