package agent

import (
	"github.com/hapershtein/llamagent/tools"
)

// Decision is the outcome of an authorization check.
type Decision int

const (
	Allow Decision = iota
	Deny
)

// Authorizer decides whether a requested tool call may execute. It may
// block on user interaction; the loop is single-threaded and waits.
type Authorizer interface {
	Authorize(name string, args map[string]interface{}) Decision
}

type allowAll struct{}

func (allowAll) Authorize(string, map[string]interface{}) Decision { return Allow }

// AllowAll returns the default authorizer, which approves everything.
func AllowAll() Authorizer { return allowAll{} }

// Grant is the scope a user attaches to an approval.
type Grant int

const (
	// GrantOnce approves only this call.
	GrantOnce Grant = iota
	// GrantTool approves this tool for the rest of the session.
	GrantTool
	// GrantAll approves every tool for the rest of the session.
	GrantAll
)

// PromptFunc asks the user about one tool call and returns the decision
// together with how far the approval should extend.
type PromptFunc func(name string, args map[string]interface{}, risk tools.Risk) (Decision, Grant)

// Gate is a risk-tiered interactive authorizer. Safe tools are approved
// without prompting; confirm and dangerous tools go through the prompt,
// with grants remembered for the session lifetime.
type Gate struct {
	risks        map[string]tools.Risk
	prompt       PromptFunc
	allowAll     bool
	allowedTools map[string]bool
}

// NewGate builds a gate over the active tools. Tools the model requests
// that are not in the set (unknown names still reach the dispatcher, which
// reports them) default to the confirm tier.
func NewGate(active []tools.Tool, prompt PromptFunc) *Gate {
	risks := make(map[string]tools.Risk, len(active))
	for _, t := range active {
		risks[t.Name()] = t.Risk()
	}
	return &Gate{
		risks:        risks,
		prompt:       prompt,
		allowedTools: make(map[string]bool),
	}
}

func (g *Gate) Authorize(name string, args map[string]interface{}) Decision {
	risk, known := g.risks[name]
	if !known {
		risk = tools.RiskConfirm
	}
	if risk == tools.RiskSafe || g.allowAll || g.allowedTools[name] {
		return Allow
	}

	decision, grant := g.prompt(name, args, risk)
	if decision == Allow {
		switch grant {
		case GrantTool:
			g.allowedTools[name] = true
		case GrantAll:
			g.allowAll = true
		}
	}
	return decision
}
