package llm

import (
	"context"
	"encoding/json"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime/types"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// BedrockClient streams Anthropic models hosted on AWS Bedrock.
type BedrockClient struct {
	client *bedrockruntime.Client
}

// NewBedrockClient creates a new BedrockClient. It requires AWS credentials
// to be configured in the environment.
func NewBedrockClient(ctx context.Context) (*BedrockClient, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load AWS config")
	}
	return &BedrockClient{client: bedrockruntime.NewFromConfig(cfg)}, nil
}

// ChatStream opens a streaming invocation of the model.
func (b *BedrockClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	anthropicMessages, systemPrompt := convertMessagesToBedrock(messages)
	body, err := createBedrockRequest(anthropicMessages, systemPrompt, schemas)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create Bedrock request")
	}

	out, err := b.client.InvokeModelWithResponseStream(ctx, &bedrockruntime.InvokeModelWithResponseStreamInput{
		ModelId:     aws.String(model),
		ContentType: aws.String("application/json"),
		Body:        body,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "failed to invoke Bedrock model")
	}
	return &bedrockStream{
		inner:   out.GetStream(),
		pending: map[int]*bedrockToolAccum{},
	}, nil
}

// bedrockEvent is the Anthropic streaming event carried inside each
// Bedrock payload part.
type bedrockEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index"`

	ContentBlock struct {
		Type string `json:"type"`
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"content_block"`

	Delta struct {
		Type        string `json:"type"`
		Text        string `json:"text"`
		PartialJSON string `json:"partial_json"`
		StopReason  string `json:"stop_reason"`
	} `json:"delta"`
}

type bedrockToolAccum struct {
	id   string
	name string
	args string
}

type bedrockStream struct {
	inner      *bedrockruntime.InvokeModelWithResponseStreamEventStream
	pending    map[int]*bedrockToolAccum
	order      []int
	stopReason string
	done       bool
}

func (s *bedrockStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for raw := range s.inner.Events() {
		part, ok := raw.(*types.ResponseStreamMemberChunk)
		if !ok {
			continue
		}
		var event bedrockEvent
		if err := json.Unmarshal(part.Value.Bytes, &event); err != nil {
			continue
		}

		switch event.Type {
		case "content_block_start":
			if event.ContentBlock.Type == "tool_use" {
				acc := &bedrockToolAccum{id: event.ContentBlock.ID, name: event.ContentBlock.Name}
				s.pending[event.Index] = acc
				s.order = append(s.order, event.Index)
			}
		case "content_block_delta":
			switch event.Delta.Type {
			case "text_delta":
				if event.Delta.Text != "" {
					return Chunk{Content: event.Delta.Text}, nil
				}
			case "input_json_delta":
				if acc, ok := s.pending[event.Index]; ok {
					acc.args += event.Delta.PartialJSON
				}
			}
		case "message_delta":
			if event.Delta.StopReason != "" {
				s.stopReason = event.Delta.StopReason
			}
		}
	}
	if err := s.inner.Err(); err != nil {
		return Chunk{}, errors.Wrapf(err, "Bedrock stream failed")
	}

	s.done = true
	var calls []session.ToolCall
	for _, idx := range s.order {
		acc := s.pending[idx]
		calls = append(calls, session.ToolCall{
			ID:       acc.id,
			Name:     acc.name,
			ArgsJSON: acc.args,
		})
	}
	reason := s.stopReason
	if reason == "" {
		reason = "stop"
	}
	return Chunk{ToolCalls: calls, Done: true, DoneReason: reason}, nil
}

func (s *bedrockStream) Close() error {
	return s.inner.Close()
}

// convertMessagesToBedrock converts our internal message format to the raw
// Anthropic-on-Bedrock shape.
func convertMessagesToBedrock(messages []session.Message) ([]map[string]interface{}, string) {
	var out []map[string]interface{}
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "user":
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{"type": "text", "text": msg.Content},
				},
			})
		case "assistant":
			var blocks []map[string]interface{}
			if msg.Content != "" {
				blocks = append(blocks, map[string]interface{}{"type": "text", "text": msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := tc.Args
				if input == nil {
					input = map[string]any{}
					_ = json.Unmarshal([]byte(tc.ArgsJSON), &input)
				}
				blocks = append(blocks, map[string]interface{}{
					"type":  "tool_use",
					"id":    tc.ID,
					"name":  tc.Name,
					"input": input,
				})
			}
			if len(blocks) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{"role": "assistant", "content": blocks})
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			out = append(out, map[string]interface{}{
				"role": "user",
				"content": []map[string]interface{}{
					{
						"type":        "tool_result",
						"tool_use_id": msg.ToolCalls[0].ID,
						"content":     msg.Content,
					},
				},
			})
		}
	}
	return out, systemPrompt
}

// createBedrockRequest builds the request body for Anthropic models on
// Bedrock.
func createBedrockRequest(messages []map[string]interface{}, systemPrompt string, schemas []tools.Schema) ([]byte, error) {
	request := map[string]interface{}{
		"anthropic_version": "bedrock-2023-05-31",
		"max_tokens":        4096,
		"messages":          messages,
	}
	if systemPrompt != "" {
		request["system"] = systemPrompt
	}
	if len(schemas) > 0 {
		var toolDefs []map[string]interface{}
		for _, s := range schemas {
			properties := map[string]interface{}{}
			for name, p := range s.Parameters.Properties {
				properties[name] = map[string]interface{}{
					"type":        p.Type,
					"description": p.Description,
				}
			}
			schema := map[string]interface{}{
				"type":       "object",
				"properties": properties,
			}
			if len(s.Parameters.Required) > 0 {
				schema["required"] = s.Parameters.Required
			}
			toolDefs = append(toolDefs, map[string]interface{}{
				"name":         s.Name,
				"description":  s.Description,
				"input_schema": schema,
			})
		}
		request["tools"] = toolDefs
	}
	return json.Marshal(request)
}
