package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hapershtein/llamagent/agent"
	"github.com/hapershtein/llamagent/agent/terminal"
	"github.com/hapershtein/llamagent/config"
	"github.com/hapershtein/llamagent/llm"
	"github.com/hapershtein/llamagent/logging"
	"github.com/hapershtein/llamagent/session"
	"github.com/hapershtein/llamagent/tools"
)

const systemPromptTemplate = `You are a highly capable local AI agent. You have access to tools that let you:
- Run shell commands
- Read, write, and search files
- Execute Python code
- Fetch URLs

Always use the minimum tools necessary. Think step-by-step.
When writing code or files, verify the result. Be concise but thorough.
If a task is ambiguous, clarify before acting.
Current working directory: %s
`

func main() {
	modelFlag := flag.String("m", "", "Model to use")
	providerFlag := flag.String("provider", "", "Model backend: 'ollama', 'openai', 'anthropic', 'gemini', 'bedrock' or 'mock'")
	urlFlag := flag.String("url", "", "Model server base URL (Ollama and OpenAI-compatible backends)")
	maxIterFlag := flag.Int("max-iter", 0, "Max agentic iterations (default 20)")
	noToolsFlag := flag.Bool("no-tools", false, "Disable all tools")
	listModelsFlag := flag.Bool("list-models", false, "List available models and exit")
	sessionFlag := flag.String("s", "", "Session name to create or use")
	resumeFlag := flag.String("r", "", "Resume a session by name")
	toolsetFlag := flag.String("t", "", "Toolset to use (defaults to 'default')")
	logLevelFlag := flag.String("log-level", "info", "Log level: debug, info, warn, error")
	logFileFlag := flag.String("log-file", "", "Log file path (default: ~/.local/share/llamagent/logs)")
	logConsoleFlag := flag.Bool("log-console", false, "Also emit log records to stderr")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %+v\n", err)
		os.Exit(1)
	}
	if *modelFlag != "" {
		cfg.Model = *modelFlag
	}
	if *providerFlag != "" {
		cfg.Provider = *providerFlag
	}
	if *urlFlag != "" {
		cfg.BaseURL = *urlFlag
	}
	if *maxIterFlag > 0 {
		cfg.MaxIterations = *maxIterFlag
	}

	logger, logCloser, err := logging.New(logging.Options{
		File:    *logFileFlag,
		Level:   *logLevelFlag,
		Console: *logConsoleFlag,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing logging: %+v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx := context.Background()

	// Initialize the model client.
	var client llm.Client
	switch cfg.Provider {
	case "ollama":
		client = llm.NewOllamaClient(cfg.BaseURL)
	case "openai":
		client, err = llm.NewOpenAIClient(*urlFlag)
	case "anthropic":
		client, err = llm.NewAnthropicClient()
	case "gemini":
		client, err = llm.NewGeminiClient(ctx)
	case "bedrock":
		client, err = llm.NewBedrockClient(ctx)
	case "mock":
		client = &llm.ScriptedClient{}
	default:
		fmt.Fprintf(os.Stderr, "Unknown provider '%s'.\n", cfg.Provider)
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error initializing %s client: %+v\n", cfg.Provider, err)
		os.Exit(1)
	}

	// For the local backend, verify the server is reachable before
	// entering the loop, and warn when the chosen model is absent.
	if lister, ok := client.(llm.ModelLister); ok {
		available, err := lister.ListModels(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			os.Exit(1)
		}
		if *listModelsFlag {
			for _, m := range available {
				marker := " "
				if m == cfg.Model {
					marker = "*"
				}
				fmt.Printf("  %s %s\n", marker, m)
			}
			return
		}
		found := false
		for _, m := range available {
			if m == cfg.Model {
				found = true
				break
			}
		}
		if !found {
			fmt.Fprintf(os.Stderr, "Warning: model %s not found locally. The server may try to pull it.\nAvailable: %s\n",
				cfg.Model, strings.Join(available, ", "))
		}
	} else if *listModelsFlag {
		fmt.Fprintf(os.Stderr, "Provider '%s' cannot list models.\n", cfg.Provider)
		os.Exit(1)
	}

	// Session: resume by name or start a new one.
	var sess *session.Session
	if *resumeFlag != "" {
		sess, err = session.Load(*resumeFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resuming session '%s': %+v\n", *resumeFlag, err)
			os.Exit(1)
		}
		if sess.Model != "" && *modelFlag == "" {
			cfg.Model = sess.Model
		}
		logger.Info("resumed session", "name", sess.Name, "messages", len(sess.Messages))
	} else {
		name := *sessionFlag
		if name == "" {
			name = defaultSessionName()
		}
		sess, err = session.New(name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating session '%s': %+v\n", name, err)
			os.Exit(1)
		}
	}

	// Tools.
	registry := tools.NewRegistry(cfg, logger)
	defer registry.Close()

	var active []tools.Tool
	if !*noToolsFlag {
		ts, err := cfg.GetToolset(*toolsetFlag)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving toolset: %+v\n", err)
			os.Exit(1)
		}
		active, err = registry.Active(ts)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error resolving toolset: %+v\n", err)
			os.Exit(1)
		}
	}
	dispatcher := tools.NewDispatcher(registry, active, logger)

	// Agent.
	wd, _ := os.Getwd()
	systemPrompt := cfg.SystemPrompt
	if systemPrompt == "" {
		systemPrompt = fmt.Sprintf(systemPromptTemplate, wd)
	}
	ag := agent.New(cfg.Model, client, sess, dispatcher, tools.Schemas(active), cfg.MaxIterations, logger)
	ag.SetSystemPrompt(systemPrompt)

	term := terminal.New(ag, clientLister(client), active)

	// One-shot mode: a query argument or piped stdin.
	query := strings.Join(flag.Args(), " ")
	if piped := stdinIsPiped(); piped || query != "" {
		if piped {
			stdin, _ := io.ReadAll(os.Stdin)
			query = combineQuery(query, strings.TrimSpace(string(stdin)))
		}
		if err := term.RunOnce(ctx, query); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %+v\n", err)
			os.Exit(1)
		}
		sess.Model = ag.Model
		if err := sess.Save(); err != nil {
			logger.Warn("failed to save session", "error", err)
		}
		return
	}

	// Interactive REPL.
	if err := term.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Agent stopped with an error: %+v\n", err)
		os.Exit(1)
	}

	sess.Model = ag.Model
	if err := sess.Save(); err != nil {
		logger.Warn("failed to save session", "error", err)
	}
	if err := config.SaveDefaultModel(ag.Model); err != nil {
		logger.Warn("failed to persist default model", "error", err)
	}
}

// clientLister exposes the backend's model listing when it has one.
func clientLister(c llm.Client) llm.ModelLister {
	if l, ok := c.(llm.ModelLister); ok {
		return l
	}
	return nil
}

func stdinIsPiped() bool {
	fi, err := os.Stdin.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice == 0
}

// combineQuery merges a command-line query with piped stdin text.
func combineQuery(query, stdin string) string {
	switch {
	case query == "":
		return stdin
	case stdin == "":
		return query
	default:
		return query + "\n\n" + stdin
	}
}

func defaultSessionName() string {
	wd, err := os.Getwd()
	if err != nil {
		wd = "llamagent"
	}
	return fmt.Sprintf("%s_%s", filepath.Base(wd), time.Now().Format("2006-01-02_15-04-05"))
}
