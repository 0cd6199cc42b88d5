// Package tools implements the agent's tool catalog: the Tool interface,
// the registry the agent draws its schema catalog from, and the dispatcher
// that executes a named tool without ever raising.
package tools

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/charmbracelet/log"

	"github.com/hapershtein/llamagent/config"
	"github.com/hapershtein/llamagent/tools/mcp"
)

// Risk classifies how much damage a tool can do. Safe tools are
// auto-approved by the interactive gate, confirm tools prompt, and
// dangerous tools prompt with a strong warning.
type Risk int

const (
	RiskSafe Risk = iota
	RiskConfirm
	RiskDangerous
)

func (r Risk) String() string {
	switch r {
	case RiskSafe:
		return "safe"
	case RiskConfirm:
		return "confirm"
	case RiskDangerous:
		return "dangerous"
	}
	return "unknown"
}

// Property describes one tool parameter.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Parameters is the JSON-schema-shaped parameter block advertised to the
// model for one tool.
type Parameters struct {
	Type       string              `json:"type"`
	Properties map[string]Property `json:"properties"`
	Required   []string            `json:"required,omitempty"`
}

// Schema is one entry of the tool catalog passed to the model layer.
type Schema struct {
	Name        string
	Description string
	Parameters  Parameters
}

// Tool defines the interface for any action the agent can take.
type Tool interface {
	Name() string
	Description() string
	Schema() Parameters
	Risk() Risk
	Execute(ctx context.Context, args map[string]interface{}) (string, error)
}

// Registry holds all available tools in registration order.
type Registry struct {
	tools      map[string]Tool
	order      []string
	mcpClients []*mcp.Client
}

// NewRegistry registers the builtin tools wired to the configuration, then
// connects any configured MCP servers and registers their tools.
func NewRegistry(cfg *config.Config, logger *log.Logger) *Registry {
	r := &Registry{tools: make(map[string]Tool)}

	fs := &cfg.FilesystemAccess
	r.Register(&ShellTool{allowedCommands: cfg.AllowedCommands})
	r.Register(&ReadFileTool{fsAccess: fs})
	r.Register(&WriteFileTool{fsAccess: fs})
	r.Register(&EditFileTool{fsAccess: fs})
	r.Register(&ListDirTool{fsAccess: fs})
	r.Register(&FindFilesTool{fsAccess: fs})
	r.Register(&GrepTool{fsAccess: fs})
	r.Register(&PythonEvalTool{})
	r.Register(&RunTestsTool{allowedCommands: cfg.AllowedCommands})
	r.Register(&FetchURLTool{})

	for _, server := range cfg.AdditionalMCPServers {
		client, err := mcp.NewClient(server.Name, server.Command, server.Args)
		if err != nil {
			logger.Warn("could not start MCP server", "name", server.Name, "error", err)
			continue
		}
		r.mcpClients = append(r.mcpClients, client)
		for _, t := range client.Tools() {
			r.Register(&mcpTool{server: t})
		}
		logger.Info("MCP server connected", "name", server.Name, "tools", len(client.Tools()))
	}

	return r
}

// Register adds a tool. A tool registered twice keeps its first position.
func (r *Registry) Register(t Tool) {
	if _, ok := r.tools[t.Name()]; !ok {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (Tool, bool) {
	t, ok := r.tools[name]
	return t, ok
}

// Active returns the tool instances for a toolset. A nil toolset selects
// every registered tool.
func (r *Registry) Active(ts *config.Toolset) ([]Tool, error) {
	if ts == nil {
		all := make([]Tool, 0, len(r.order))
		for _, name := range r.order {
			all = append(all, r.tools[name])
		}
		return all, nil
	}
	var active []Tool
	for _, name := range ts.Tools {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("tool '%s' from toolset '%s' is not registered", name, ts.Name)
		}
		active = append(active, t)
	}
	return active, nil
}

// Close stops any MCP server subprocesses.
func (r *Registry) Close() {
	for _, c := range r.mcpClients {
		_ = c.Stop()
	}
}

// Schemas builds the catalog for a set of tools, preserving order.
func Schemas(ts []Tool) []Schema {
	schemas := make([]Schema, 0, len(ts))
	for _, t := range ts {
		schemas = append(schemas, Schema{
			Name:        t.Name(),
			Description: t.Description(),
			Parameters:  t.Schema(),
		})
	}
	return schemas
}

// mcpTool adapts a tool discovered on an MCP server to the Tool interface.
// MCP servers do not declare risk, so their tools always prompt.
type mcpTool struct {
	server *mcp.ServerTool
}

func (t *mcpTool) Name() string        { return t.server.ToolName }
func (t *mcpTool) Description() string { return t.server.Description }
func (t *mcpTool) Risk() Risk          { return RiskConfirm }
func (t *mcpTool) Schema() Parameters {
	return Parameters{Type: "object", Properties: map[string]Property{}}
}

func (t *mcpTool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	return t.server.Call(ctx, args)
}

// ErrPrefix marks a tool result that reports a failure instead of output.
const ErrPrefix = "[error]"

// Dispatcher executes tool calls by name. Dispatch never fails: unknown
// tools, bad arguments, tool errors, and even panics inside a tool come
// back as error-prefixed text so the model can adapt.
type Dispatcher struct {
	registry *Registry
	active   map[string]Tool
	logger   *log.Logger
}

// NewDispatcher restricts dispatch to the given active tools.
func NewDispatcher(registry *Registry, active []Tool, logger *log.Logger) *Dispatcher {
	m := make(map[string]Tool, len(active))
	for _, t := range active {
		m[t.Name()] = t
	}
	return &Dispatcher{registry: registry, active: m, logger: logger}
}

// Dispatch runs the named tool with the given arguments and returns its
// text result.
func (d *Dispatcher) Dispatch(ctx context.Context, name string, args map[string]interface{}) (result string) {
	defer func() {
		if rec := recover(); rec != nil {
			d.logger.Error("tool panicked", "tool", name, "panic", rec)
			result = fmt.Sprintf("%s tool %s panicked: %v", ErrPrefix, name, rec)
		}
	}()

	t, ok := d.active[name]
	if !ok {
		return fmt.Sprintf("%s Unknown tool: %s", ErrPrefix, name)
	}

	out, err := t.Execute(ctx, coerceTypes(args))
	if err != nil {
		d.logger.Debug("tool failed", "tool", name, "error", err)
		return fmt.Sprintf("%s %v", ErrPrefix, err)
	}
	return out
}

// coerceTypes converts string "true"/"false" to bool and numeric strings to
// numbers. Some models send every argument as a string regardless of the
// advertised schema.
func coerceTypes(args map[string]interface{}) map[string]interface{} {
	result := make(map[string]interface{}, len(args))
	for k, v := range args {
		s, ok := v.(string)
		if !ok {
			result[k] = v
			continue
		}
		switch strings.ToLower(s) {
		case "true":
			result[k] = true
		case "false":
			result[k] = false
		default:
			if n, err := strconv.Atoi(s); err == nil {
				result[k] = n
			} else if f, err := strconv.ParseFloat(s, 64); err == nil {
				result[k] = f
			} else {
				result[k] = s
			}
		}
	}
	return result
}

// isPathRestricted checks whether a path matches any of the glob patterns.
func isPathRestricted(path string, patterns []string) (bool, error) {
	for _, pattern := range patterns {
		match, err := doublestar.PathMatch(pattern, path)
		if err != nil {
			return false, fmt.Errorf("invalid glob pattern '%s': %w", pattern, err)
		}
		if match {
			return true, nil
		}
	}
	return false, nil
}

// isCommandAllowed checks a command against the allowlist. Patterns are
// regexes; an empty allowlist allows everything (the interactive gate still
// applies). Invalid patterns fall back to exact string comparison.
func isCommandAllowed(command string, allowed []string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, pattern := range allowed {
		re, err := regexp.Compile(pattern)
		if err != nil {
			if command == pattern {
				return true
			}
			continue
		}
		if re.MatchString(command) {
			return true
		}
	}
	return false
}
