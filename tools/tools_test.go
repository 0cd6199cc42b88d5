package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hapershtein/llamagent/config"
	"github.com/hapershtein/llamagent/logging"
)

type failingTool struct{}

func (failingTool) Name() string        { return "failing" }
func (failingTool) Description() string { return "always fails" }
func (failingTool) Risk() Risk          { return RiskSafe }
func (failingTool) Schema() Parameters {
	return Parameters{Type: "object", Properties: map[string]Property{}}
}
func (failingTool) Execute(context.Context, map[string]interface{}) (string, error) {
	panic("unreachable")
}

type panickingTool struct{ failingTool }

func (panickingTool) Name() string { return "panicking" }
func (panickingTool) Execute(context.Context, map[string]interface{}) (string, error) {
	panic("boom")
}

func TestRegistryBuiltins(t *testing.T) {
	cfg := &config.Config{}
	r := NewRegistry(cfg, logging.Discard())
	defer r.Close()

	all, err := r.Active(nil)
	require.NoError(t, err)
	require.Len(t, all, 10)
	// Registration order is the catalog order the model sees.
	require.Equal(t, "shell", all[0].Name())
	require.Equal(t, "fetch_url", all[9].Name())

	_, ok := r.Get("read_file")
	require.True(t, ok)
	_, ok = r.Get("nonexistent")
	require.False(t, ok)
}

func TestRegistryActiveToolset(t *testing.T) {
	r := NewRegistry(&config.Config{}, logging.Discard())
	defer r.Close()

	active, err := r.Active(&config.Toolset{Name: "fs", Tools: []string{"read_file", "grep"}})
	require.NoError(t, err)
	require.Len(t, active, 2)
	require.Equal(t, "read_file", active[0].Name())

	_, err = r.Active(&config.Toolset{Name: "bad", Tools: []string{"no_such_tool"}})
	require.Error(t, err)
}

func TestSchemas(t *testing.T) {
	r := NewRegistry(&config.Config{}, logging.Discard())
	defer r.Close()
	all, err := r.Active(nil)
	require.NoError(t, err)

	schemas := Schemas(all)
	require.Len(t, schemas, len(all))
	for i, s := range schemas {
		require.Equal(t, all[i].Name(), s.Name)
		require.Equal(t, "object", s.Parameters.Type)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	r := NewRegistry(&config.Config{}, logging.Discard())
	defer r.Close()
	d := NewDispatcher(r, nil, logging.Discard())

	out := d.Dispatch(context.Background(), "no_such_tool", nil)
	require.Contains(t, out, ErrPrefix)
	require.Contains(t, out, "no_such_tool")
}

func TestDispatchToolError(t *testing.T) {
	r := &Registry{tools: map[string]Tool{}}
	grep := &GrepTool{fsAccess: &config.FilesystemAccess{}}
	d := NewDispatcher(r, []Tool{grep}, logging.Discard())

	// Missing required argument comes back as text, not an error.
	out := d.Dispatch(context.Background(), "grep", map[string]interface{}{})
	require.Contains(t, out, ErrPrefix)
}

func TestDispatchRecoversPanic(t *testing.T) {
	r := &Registry{tools: map[string]Tool{}}
	d := NewDispatcher(r, []Tool{panickingTool{}}, logging.Discard())

	out := d.Dispatch(context.Background(), "panicking", nil)
	require.Contains(t, out, ErrPrefix)
	require.Contains(t, out, "boom")
}

func TestCoerceTypes(t *testing.T) {
	in := map[string]interface{}{
		"flag":    "true",
		"off":     "False",
		"count":   "42",
		"ratio":   "2.5",
		"text":    "hello",
		"already": 7,
	}
	out := coerceTypes(in)
	require.Equal(t, true, out["flag"])
	require.Equal(t, false, out["off"])
	require.Equal(t, 42, out["count"])
	require.Equal(t, 2.5, out["ratio"])
	require.Equal(t, "hello", out["text"])
	require.Equal(t, 7, out["already"])
}

func TestIsCommandAllowed(t *testing.T) {
	require.True(t, isCommandAllowed("rm -rf /", nil))

	allowed := []string{`^git\b`, `^go (test|build)\b`}
	require.True(t, isCommandAllowed("git status", allowed))
	require.True(t, isCommandAllowed("go test ./...", allowed))
	require.False(t, isCommandAllowed("rm -rf /", allowed))
	require.False(t, isCommandAllowed("gimme", allowed))
}

func TestIsPathRestricted(t *testing.T) {
	patterns := []string{".llamagent", ".llamagent/**", "**/*.pem"}

	hidden, err := isPathRestricted(".llamagent/sessions/x.json", patterns)
	require.NoError(t, err)
	require.True(t, hidden)

	hidden, err = isPathRestricted("certs/server.pem", patterns)
	require.NoError(t, err)
	require.True(t, hidden)

	hidden, err = isPathRestricted("main.go", patterns)
	require.NoError(t, err)
	require.False(t, hidden)
}
