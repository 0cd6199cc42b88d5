// Package llm provides streaming clients for the model backends the agent
// can talk to. Every provider is normalized to the same chunked stream:
// zero or more content-bearing chunks followed by a final chunk with the
// Done flag, a completion reason, and any tool calls the model requested.
package llm

import (
	"context"
	"io"

	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

// Chunk is one incremental fragment of a streamed model response.
//
// Providers that deliver tool-call arguments split across wire deltas
// reassemble them internally and attach whole ToolCalls; a ToolCall may
// still carry its arguments as an undecoded blob in ArgsJSON.
type Chunk struct {
	Content    string
	ToolCalls  []session.ToolCall
	Done       bool
	DoneReason string
}

// Stream is an in-progress model turn. Recv blocks for the next chunk and
// returns io.EOF once the chunk with Done set has been delivered.
type Stream interface {
	Recv() (Chunk, error)
	Close() error
}

// Client is the interface for a model backend.
type Client interface {
	ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error)
}

// ModelLister is implemented by backends that can enumerate their locally
// available models.
type ModelLister interface {
	ListModels(ctx context.Context) ([]string, error)
}

// ScriptedClient replays pre-recorded turns, one per ChatStream call. It
// backs the "mock" provider and the loop tests.
type ScriptedClient struct {
	Turns [][]Chunk
	// Requests records the message history passed to each ChatStream call.
	Requests [][]session.Message

	turn int
}

func (c *ScriptedClient) ChatStream(ctx context.Context, model string, messages []session.Message, schemas []tools.Schema) (Stream, error) {
	snapshot := make([]session.Message, len(messages))
	copy(snapshot, messages)
	c.Requests = append(c.Requests, snapshot)

	var chunks []Chunk
	if c.turn < len(c.Turns) {
		chunks = c.Turns[c.turn]
	} else {
		chunks = []Chunk{{Content: "(scripted client is out of turns)", Done: true, DoneReason: "stop"}}
	}
	c.turn++
	return &scriptedStream{chunks: chunks}, nil
}

type scriptedStream struct {
	chunks []Chunk
	pos    int
}

func (s *scriptedStream) Recv() (Chunk, error) {
	if s.pos >= len(s.chunks) {
		return Chunk{}, io.EOF
	}
	ch := s.chunks[s.pos]
	s.pos++
	return ch, nil
}

func (s *scriptedStream) Close() error { return nil }
