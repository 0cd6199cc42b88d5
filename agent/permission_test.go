package agent

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/hapershtein/llamagent/tools"
)

type stubTool struct {
	name string
	risk tools.Risk
}

func (t *stubTool) Name() string            { return t.name }
func (t *stubTool) Description() string     { return "stub" }
func (t *stubTool) Risk() tools.Risk        { return t.risk }
func (t *stubTool) Schema() tools.Parameters {
	return tools.Parameters{Type: "object", Properties: map[string]tools.Property{}}
}
func (t *stubTool) Execute(context.Context, map[string]interface{}) (string, error) {
	return "", nil
}

func gateTools() []tools.Tool {
	return []tools.Tool{
		&stubTool{name: "read_file", risk: tools.RiskSafe},
		&stubTool{name: "write_file", risk: tools.RiskConfirm},
		&stubTool{name: "shell", risk: tools.RiskDangerous},
	}
}

func TestGateSafeToolsSkipPrompt(t *testing.T) {
	gate := NewGate(gateTools(), func(string, map[string]interface{}, tools.Risk) (Decision, Grant) {
		t.Fatal("safe tools must not prompt")
		return Deny, GrantOnce
	})
	require.Equal(t, Allow, gate.Authorize("read_file", nil))
}

func TestGateConfirmToolPrompts(t *testing.T) {
	prompts := 0
	gate := NewGate(gateTools(), func(name string, _ map[string]interface{}, risk tools.Risk) (Decision, Grant) {
		prompts++
		require.Equal(t, "write_file", name)
		require.Equal(t, tools.RiskConfirm, risk)
		return Allow, GrantOnce
	})

	require.Equal(t, Allow, gate.Authorize("write_file", nil))
	require.Equal(t, Allow, gate.Authorize("write_file", nil))
	// GrantOnce does not persist.
	require.Equal(t, 2, prompts)
}

func TestGateGrantToolPersists(t *testing.T) {
	prompts := 0
	gate := NewGate(gateTools(), func(string, map[string]interface{}, tools.Risk) (Decision, Grant) {
		prompts++
		return Allow, GrantTool
	})

	require.Equal(t, Allow, gate.Authorize("shell", nil))
	require.Equal(t, Allow, gate.Authorize("shell", nil))
	require.Equal(t, 1, prompts)

	// The grant covers one tool, not the session.
	require.Equal(t, Allow, gate.Authorize("write_file", nil))
	require.Equal(t, 2, prompts)
}

func TestGateGrantAllPersists(t *testing.T) {
	prompts := 0
	gate := NewGate(gateTools(), func(string, map[string]interface{}, tools.Risk) (Decision, Grant) {
		prompts++
		return Allow, GrantAll
	})

	require.Equal(t, Allow, gate.Authorize("shell", nil))
	require.Equal(t, Allow, gate.Authorize("write_file", nil))
	require.Equal(t, Allow, gate.Authorize("unknown_tool", nil))
	require.Equal(t, 1, prompts)
}

func TestGateDenyNotRemembered(t *testing.T) {
	decisions := []Decision{Deny, Allow}
	gate := NewGate(gateTools(), func(string, map[string]interface{}, tools.Risk) (Decision, Grant) {
		d := decisions[0]
		decisions = decisions[1:]
		return d, GrantAll
	})

	require.Equal(t, Deny, gate.Authorize("shell", nil))
	// A denial never widens; the next call prompts again.
	require.Equal(t, Allow, gate.Authorize("shell", nil))
}

func TestGateUnknownToolDefaultsToConfirm(t *testing.T) {
	gate := NewGate(gateTools(), func(_ string, _ map[string]interface{}, risk tools.Risk) (Decision, Grant) {
		require.Equal(t, tools.RiskConfirm, risk)
		return Deny, GrantOnce
	})
	require.Equal(t, Deny, gate.Authorize("made_up", nil))
}

func TestAllowAll(t *testing.T) {
	require.Equal(t, Allow, AllowAll().Authorize("anything", nil))
}
