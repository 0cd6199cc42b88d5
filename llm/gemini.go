package llm

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"github.com/google/uuid"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/hapershtein/llamagent/errors"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// GeminiClient is a streaming client for the Google Gemini API.
type GeminiClient struct {
	client *genai.Client
}

// NewGeminiClient creates a new GeminiClient. It requires the
// GEMINI_API_KEY environment variable to be set.
func NewGeminiClient(ctx context.Context) (*GeminiClient, error) {
	apiKey := os.Getenv("GEMINI_API_KEY")
	if apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY environment variable not set")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create genai client")
	}
	return &GeminiClient{client: client}, nil
}

// ChatStream opens a streaming chat turn.
func (g *GeminiClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	m := g.client.GenerativeModel(model)
	m.Tools = convertSchemasToGemini(schemas)

	history, systemPrompt := convertMessagesToGemini(messages)
	if systemPrompt != "" {
		m.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	}
	if len(history) == 0 {
		return nil, errors.New("no messages to send")
	}

	last := history[len(history)-1]
	cs := m.StartChat()
	cs.History = history[:len(history)-1]

	return &geminiStream{iter: cs.SendMessageStream(ctx, last.Parts...)}, nil
}

type geminiStream struct {
	iter  *genai.GenerateContentResponseIterator
	calls []session.ToolCall
	done  bool
}

func (s *geminiStream) Recv() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}
	for {
		resp, err := s.iter.Next()
		if err == iterator.Done {
			s.done = true
			return Chunk{ToolCalls: s.calls, Done: true, DoneReason: "stop"}, nil
		}
		if err != nil {
			return Chunk{}, errors.Wrapf(err, "Gemini stream failed")
		}
		if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
			continue
		}

		var text strings.Builder
		for _, part := range resp.Candidates[0].Content.Parts {
			switch v := part.(type) {
			case genai.Text:
				text.WriteString(string(v))
			case genai.FunctionCall:
				s.calls = append(s.calls, session.ToolCall{
					ID:   fmt.Sprintf("call_%s", uuid.NewString()),
					Name: v.Name,
					Args: v.Args,
				})
			}
		}
		if text.Len() > 0 {
			return Chunk{Content: text.String()}, nil
		}
	}
}

func (s *geminiStream) Close() error { return nil }

// convertMessagesToGemini converts our internal message format to Gemini's
// content history. The system prompt is returned separately for the
// model's system instruction.
func convertMessagesToGemini(messages []session.Message) ([]*genai.Content, string) {
	var contents []*genai.Content
	var systemPrompt string

	for _, msg := range messages {
		switch msg.Role {
		case "system":
			systemPrompt = msg.Content
		case "assistant":
			var parts []genai.Part
			if msg.Content != "" {
				parts = append(parts, genai.Text(msg.Content))
			}
			for _, tc := range msg.ToolCalls {
				parts = append(parts, genai.FunctionCall{Name: tc.Name, Args: tc.Args})
			}
			if len(parts) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{Role: "model", Parts: parts})
		case "tool":
			if len(msg.ToolCalls) == 0 {
				continue
			}
			contents = append(contents, &genai.Content{
				Role: "function",
				Parts: []genai.Part{genai.FunctionResponse{
					Name:     msg.ToolCalls[0].Name,
					Response: map[string]any{"output": msg.Content},
				}},
			})
		default:
			contents = append(contents, &genai.Content{
				Role:  "user",
				Parts: []genai.Part{genai.Text(msg.Content)},
			})
		}
	}
	return contents, systemPrompt
}

// convertSchemasToGemini converts the tool catalog to Gemini's
// FunctionDeclaration format.
func convertSchemasToGemini(schemas []tools.Schema) []*genai.Tool {
	if len(schemas) == 0 {
		return nil
	}
	var funcDecls []*genai.FunctionDeclaration
	for _, s := range schemas {
		properties := map[string]*genai.Schema{}
		for name, p := range s.Parameters.Properties {
			properties[name] = &genai.Schema{
				Type:        geminiType(p.Type),
				Description: p.Description,
			}
		}
		funcDecls = append(funcDecls, &genai.FunctionDeclaration{
			Name:        s.Name,
			Description: s.Description,
			Parameters: &genai.Schema{
				Type:       genai.TypeObject,
				Properties: properties,
				Required:   s.Parameters.Required,
			},
		})
	}
	return []*genai.Tool{{FunctionDeclarations: funcDecls}}
}

func geminiType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "object":
		return genai.TypeObject
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeString
	}
}
