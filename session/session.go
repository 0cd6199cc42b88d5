// Package session holds the conversation history exchanged with the model
// and persists it to disk.
package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Message is one turn in the conversation.
type Message struct {
	Role      string     `json:"role"` // "system", "user", "assistant", "tool"
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is a model-issued request to execute a named tool.
//
// Arguments arrive in one of two shapes depending on the provider: a decoded
// map in Args, or a raw JSON blob in ArgsJSON that has not been decoded yet.
// The agent resolves ArgsJSON before dispatch; a tool message carries the
// call it answers so providers that correlate results by ID can do so.
type ToolCall struct {
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name"`
	Args     map[string]any `json:"args,omitempty"`
	ArgsJSON string         `json:"args_json,omitempty"`
}

// Session is a named, persistable conversation.
type Session struct {
	Name     string    `json:"name"`
	Messages []Message `json:"messages"`
	Model    string    `json:"model,omitempty"`
	path     string
}

// New creates a new session stored under .llamagent/sessions.
func New(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	return &Session{
		Name:     name,
		Messages: []Message{},
		path:     path,
	}, nil
}

// Load loads an existing session from disk by name.
func Load(name string) (*Session, error) {
	path, err := sessionPath(name)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read session file %s: %w", path, err)
	}

	var s Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("could not parse session file %s: %w", path, err)
	}
	s.path = path
	return &s, nil
}

// Save writes the current session state to disk.
func (s *Session) Save() error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize session: %w", err)
	}
	return os.WriteFile(s.path, data, 0644)
}

// SaveTo writes only the message history to an explicit path, for the
// /save REPL command.
func (s *Session) SaveTo(path string) error {
	data, err := json.MarshalIndent(s.Messages, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize history: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

// LoadFrom replaces the message history with one read from an explicit
// path, for the /load REPL command.
func (s *Session) LoadFrom(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("could not read %s: %w", path, err)
	}
	var msgs []Message
	if err := json.Unmarshal(data, &msgs); err != nil {
		return 0, fmt.Errorf("could not parse %s: %w", path, err)
	}
	s.Messages = msgs
	return len(msgs), nil
}

// AddMessage appends a message to the history.
func (s *Session) AddMessage(msg Message) {
	s.Messages = append(s.Messages, msg)
}

// Clear drops the history except for a leading system message. Idempotent.
func (s *Session) Clear() {
	if len(s.Messages) > 0 && s.Messages[0].Role == "system" {
		s.Messages = s.Messages[:1]
		return
	}
	s.Messages = s.Messages[:0]
}

func sessionPath(name string) (string, error) {
	sessionDir := filepath.Join(".llamagent", "sessions")
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return "", fmt.Errorf("could not create session directory: %w", err)
	}
	return filepath.Join(sessionDir, fmt.Sprintf("%s.json", name)), nil
}
