package llm

import (
	"context"
	"encoding/json"
	"io"
	"os"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	anthropicstream "github.com/anthropics/anthropic-sdk-go/packages/ssestream"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// AnthropicClient is a streaming client for the Anthropic Messages API.
type AnthropicClient struct {
	client *anthropic.Client
}

// NewAnthropicClient creates a new AnthropicClient. It requires the
// ANTHROPIC_API_KEY environment variable to be set.
func NewAnthropicClient() (*AnthropicClient, error) {
	apiKey := os.Getenv("ANTHROPIC_API_KEY")
	if apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(option.WithAPIKey(apiKey))
	return &AnthropicClient{client: &client}, nil
}

// ChatStream opens a streaming message turn.
func (a *AnthropicClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	anthropicMessages, systemPrompt := convertMessagesToAnthropic(messages)

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: 4096,
		Messages:  anthropicMessages,
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	anthropicTools := convertSchemasToAnthropic(schemas)
	params.Tools = make([]anthropic.ToolUnionParam, len(anthropicTools))
	for i := range anthropicTools {
		params.Tools[i] = anthropic.ToolUnionParam{OfTool: &anthropicTools[i]}
	}

	inner := a.client.Messages.NewStreaming(ctx, params)
	return &anthropicStream{inner: inner}, nil
}

type anthropicStream struct {
	inner   *anthropicstream.Stream[anthropic.MessageStreamEventUnion]
	message anthropic.Message
	done    bool
}

func (s *anthropicStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for s.inner.Next() {
		event := s.inner.Current()
		// Accumulate everything so tool_use blocks are complete at the end
		// of the turn; only text deltas surface incrementally.
		if err := s.message.Accumulate(event); err != nil {
			return Chunk{}, errors.Wrapf(err, "could not accumulate stream event")
		}
		if deltaEvent, ok := event.AsAny().(anthropic.ContentBlockDeltaEvent); ok {
			if textDelta, ok := deltaEvent.Delta.AsAny().(anthropic.TextDelta); ok && textDelta.Text != "" {
				return Chunk{Content: textDelta.Text}, nil
			}
		}
	}
	if err := s.inner.Err(); err != nil {
		return Chunk{}, errors.Wrapf(err, "Anthropic stream failed")
	}

	s.done = true
	var calls []session.ToolCall
	for _, content := range s.message.Content {
		if block, ok := content.AsAny().(anthropic.ToolUseBlock); ok {
			calls = append(calls, session.ToolCall{
				ID:       block.ID,
				Name:     block.Name,
				ArgsJSON: string(block.Input),
			})
		}
	}
	reason := string(s.message.StopReason)
	if reason == "" {
		reason = "stop"
	}
	return Chunk{ToolCalls: calls, Done: true, DoneReason: reason}, nil
}

func (s *anthropicStream) Close() error {
	return s.inner.Close()
}

// convertMessagesToAnthropic converts our internal message format to
// Anthropic's. The system prompt travels outside the message list.
func convertMessagesToAnthropic(messages []session.Message) ([]anthropic.MessageParam, string) {
	var anthropicMessages []anthropic.MessageParam
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			anthropicMessages = append(anthropicMessages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Content),
			))
		case "assistant":
			var contentItems []anthropic.ContentBlockParamUnion
			if msg.Content != "" {
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfText: &anthropic.TextBlockParam{Text: msg.Content},
				})
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.ArgsJSON)
				if tc.Args != nil {
					if b, err := json.Marshal(tc.Args); err == nil {
						input = b
					}
				}
				contentItems = append(contentItems, anthropic.ContentBlockParamUnion{
					OfToolUse: &anthropic.ToolUseBlockParam{
						Type:  "tool_use",
						ID:    tc.ID,
						Name:  tc.Name,
						Input: input,
					},
				})
			}
			if len(contentItems) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role:    anthropic.MessageParamRoleAssistant,
				Content: contentItems,
			})
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			anthropicMessages = append(anthropicMessages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleUser,
				Content: []anthropic.ContentBlockParamUnion{{
					OfToolResult: &anthropic.ToolResultBlockParam{
						ToolUseID: msg.ToolCalls[0].ID,
						Content: []anthropic.ToolResultBlockParamContentUnion{{
							OfText: &anthropic.TextBlockParam{Text: msg.Content},
						}},
					},
				}},
			})
		}
	}

	return anthropicMessages, systemPrompt
}

// convertSchemasToAnthropic converts the tool catalog to Anthropic's tool
// format.
func convertSchemasToAnthropic(schemas []tools.Schema) []anthropic.ToolParam {
	if len(schemas) == 0 {
		return nil
	}
	var out []anthropic.ToolParam
	for _, s := range schemas {
		properties := map[string]interface{}{}
		for name, p := range s.Parameters.Properties {
			properties[name] = map[string]interface{}{
				"type":        p.Type,
				"description": p.Description,
			}
		}
		out = append(out, anthropic.ToolParam{
			Name:        s.Name,
			Description: anthropic.String(s.Description),
			InputSchema: anthropic.ToolInputSchemaParam{
				Properties: properties,
				Required:   s.Parameters.Required,
			},
		})
	}
	return out
}
