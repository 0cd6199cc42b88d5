// Package terminal implements the interactive command-line front end for
// the llamagent agent.
//
// It provides the REPL (prompted conversation, slash commands, streaming
// token display) and the one-shot mode used for command-line queries and
// piped stdin. Tool calls and their results are rendered in bordered
// panels, and non-safe tools go through an interactive permission prompt
// whose approvals can be widened to a tool or the whole session.
//
// The terminal owns presentation and permission interaction only; all
// conversation and tool-execution logic lives in the parent agent package.
package terminal
