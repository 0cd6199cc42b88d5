// Package agent implements the agentic control loop at the heart of
// llamagent.
//
// The Agent owns the conversation history and drives streaming turns with
// the model. Each round it accumulates text and tool-call deltas, appends
// the assistant message, and then decides: structured tool calls are
// executed first; failing those, tool calls embedded in free text are
// recovered and executed; failing both, the accumulated text is the final
// answer. Rounds are bounded by a configurable iteration cap, the only
// give-up condition, reported as a sentinel answer rather than an error.
//
// # Collaborators
//
// Tool execution goes through a Dispatcher, which never fails: unknown
// tools and tool errors come back as error-prefixed text that is fed to
// the model as an ordinary tool result. Authorization is a separate
// concern from observation: Hooks notify the UI layer of tokens, tool
// calls and results, while the Authorizer returns an Allow/Deny decision
// per call. The Gate authorizer implements the interactive policy: safe
// tools pass, riskier ones prompt, and approvals can be widened to a tool
// or the whole session.
//
// # Argument handling
//
// Tool arguments arrive in inconsistent encodings. A raw JSON blob is
// decoded (failure means empty arguments, not an error), then
// normalizeArgs unwraps the double-serialized single-parameter shape some
// models produce. Both repairs are silent no-ops when the input is
// already well-formed.
//
// The terminal subpackage (agent/terminal) provides the interactive REPL
// over this core.
package agent
