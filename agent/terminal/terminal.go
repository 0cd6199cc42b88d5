package terminal

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/hapershtein/llamagent/agent"
	"github.com/hapershtein/llamagent/llm"
	"github.com/hapershtein/llamagent/tools"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	dimStyle    = lipgloss.NewStyle().Faint(true)
	errorStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	toolStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("11")).
			Padding(0, 1)
	resultStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("10")).
			Padding(0, 1)
)

const maxResultDisplay = 2000

const helpText = `Commands:

  /help            Show this help
  /tools           List available tools
  /clear           Clear conversation history
  /model <name>    Switch model
  /models          List available models
  /history         Show conversation history
  /save [file]     Save conversation to JSON file
  /load <file>     Load conversation from JSON file
  /exit            Exit (also: /quit, Ctrl+C, Ctrl+D)

Tips:
  - Pipe input:  echo "what files are here?" | llamagent
  - One-shot:    llamagent "write me a hello world in Rust"
  - Pick model:  llamagent -m llama3.2`

// Terminal is the interactive CLI front end over the agent.
type Terminal struct {
	agent     *agent.Agent
	models    llm.ModelLister // nil when the backend cannot enumerate models
	active    []tools.Tool
	streaming bool
}

// New creates a Terminal. The active tool set backs both the /tools
// listing and the interactive permission gate.
func New(a *agent.Agent, models llm.ModelLister, active []tools.Tool) *Terminal {
	return &Terminal{agent: a, models: models, active: active}
}

// RunOnce processes a single query non-interactively, streaming tokens to
// stdout. Used for one-shot and piped invocations; tool calls are gated
// the same way as in the REPL.
func (t *Terminal) RunOnce(ctx context.Context, query string) error {
	tokensPrinted := false
	t.agent.Hooks = agent.Hooks{
		OnToken: func(tok string) {
			tokensPrinted = true
			fmt.Print(tok)
		},
		OnToolCall:   t.printToolCall,
		OnToolResult: t.printToolResult,
	}
	t.agent.Auth = agent.NewGate(t.active, t.promptPermission)

	result, err := t.agent.Run(ctx, query)
	if err != nil {
		return err
	}
	if tokensPrinted {
		fmt.Println()
	} else {
		fmt.Println(result)
	}
	return nil
}

// Run starts the interactive REPL.
func (t *Terminal) Run(ctx context.Context) error {
	gate := agent.NewGate(t.active, t.promptPermission)
	t.agent.Auth = gate
	t.agent.Hooks = agent.Hooks{
		OnToken:      t.streamToken,
		OnToolCall:   func(name string, args map[string]interface{}) { t.finishStream(); t.printToolCall(name, args) },
		OnToolResult: t.printToolResult,
	}

	fmt.Println(headerStyle.Render("llamagent") + "  " +
		dimStyle.Render(fmt.Sprintf("model: %s, tools: %d — /help for commands, /exit to quit", t.agent.Model, len(t.active))))

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\nYou: ")
		if !scanner.Scan() {
			// EOF or read error ends the session
			fmt.Println(dimStyle.Render("\nGoodbye."))
			break
		}
		userInput := strings.TrimSpace(scanner.Text())
		if userInput == "" {
			continue
		}

		if strings.HasPrefix(userInput, "/") {
			if quit := t.handleCommand(ctx, userInput); quit {
				break
			}
			continue
		}

		t.streaming = false
		result, err := t.agent.Run(ctx, userInput)
		t.finishStream()
		if err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
			continue
		}
		// When the model never streamed (pure tool workflow), print the
		// final answer explicitly.
		if result != "" && !t.streaming {
			fmt.Println("\n" + result)
		}
	}

	return scanner.Err()
}

// handleCommand executes one slash command; returns true to exit the REPL.
func (t *Terminal) handleCommand(ctx context.Context, input string) bool {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/exit", "/quit":
		fmt.Println(dimStyle.Render("Goodbye."))
		return true

	case "/help":
		fmt.Println(helpText)

	case "/clear":
		t.agent.Clear()
		fmt.Println(dimStyle.Render("Conversation cleared."))

	case "/tools":
		for _, tool := range t.active {
			desc := tool.Description()
			if len(desc) > 80 {
				desc = desc[:80]
			}
			fmt.Printf("  %-12s [%s] %s\n", tool.Name(), tool.Risk(), desc)
		}

	case "/models":
		t.listModels()

	case "/model":
		if arg == "" {
			fmt.Printf("Current model: %s\n", t.agent.Model)
		} else {
			t.agent.Model = arg
			fmt.Printf("Switched to %s\n", arg)
		}

	case "/history":
		for i, msg := range t.agent.Session().Messages {
			content := msg.Content
			if len(content) > 200 {
				content = content[:200]
			}
			fmt.Printf("%s %s: %s\n", dimStyle.Render(fmt.Sprintf("%d", i)), strings.ToUpper(msg.Role), content)
		}

	case "/save":
		path := arg
		if path == "" {
			path = "conversation.json"
		}
		if err := t.agent.Session().SaveTo(path); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		} else {
			fmt.Printf("Saved to %s\n", path)
		}

	case "/load":
		if arg == "" {
			fmt.Println(errorStyle.Render("Usage: /load <file>"))
		} else if n, err := t.agent.Session().LoadFrom(arg); err != nil {
			fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		} else {
			fmt.Printf("Loaded %d messages from %s\n", n, arg)
		}

	default:
		fmt.Println(errorStyle.Render(fmt.Sprintf("Unknown command: %s. Type /help.", cmd)))
	}
	return false
}

func (t *Terminal) listModels() {
	if t.models == nil {
		fmt.Println(dimStyle.Render("The current backend cannot list models."))
		return
	}
	models, err := t.models.ListModels(context.Background())
	if err != nil {
		fmt.Println(errorStyle.Render(fmt.Sprintf("Error: %v", err)))
		return
	}
	for _, m := range models {
		marker := " "
		if m == t.agent.Model {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, m)
	}
}

func (t *Terminal) streamToken(tok string) {
	if !t.streaming {
		fmt.Println()
		fmt.Print(headerStyle.Render("Assistant") + " ")
		t.streaming = true
	}
	fmt.Print(tok)
}

func (t *Terminal) finishStream() {
	if t.streaming {
		fmt.Println()
	}
}

func (t *Terminal) printToolCall(name string, args map[string]interface{}) {
	argsStr := "{}"
	if len(args) > 0 {
		if b, err := json.MarshalIndent(args, "", "  "); err == nil {
			argsStr = string(b)
		}
	}
	fmt.Println(toolStyle.Render(fmt.Sprintf("tool: %s\n%s", name, argsStr)))
}

func (t *Terminal) printToolResult(name, result string) {
	suffix := ""
	if len(result) > maxResultDisplay {
		suffix = fmt.Sprintf("\n... (%d chars truncated)", len(result)-maxResultDisplay)
		result = result[:maxResultDisplay]
	}
	fmt.Println(resultStyle.Render(fmt.Sprintf("result: %s\n%s%s", name, result, suffix)))
}

// promptPermission asks the user about one non-safe tool call. Answers:
// y (once), a (this tool for the session), all (everything), anything
// else denies.
func (t *Terminal) promptPermission(name string, args map[string]interface{}, risk tools.Risk) (agent.Decision, agent.Grant) {
	t.finishStream()
	if risk == tools.RiskDangerous {
		fmt.Println(warnStyle.Render(fmt.Sprintf("⚠ %s executes arbitrary shell commands.", name)))
	}
	fmt.Printf("Allow %s? [y]es / [n]o / [a]lways this tool / all: ", name)

	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return agent.Deny, agent.GrantOnce
	}
	switch strings.TrimSpace(strings.ToLower(answer)) {
	case "y", "yes":
		return agent.Allow, agent.GrantOnce
	case "a", "always":
		return agent.Allow, agent.GrantTool
	case "all":
		return agent.Allow, agent.GrantAll
	default:
		return agent.Deny, agent.GrantOnce
	}
}
