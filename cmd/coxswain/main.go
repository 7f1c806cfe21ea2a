// Command coxswain runs LLM agent tasks from the terminal.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/dtessler/coxswain/agent"
	"github.com/dtessler/coxswain/config"
	"github.com/dtessler/coxswain/history"
	"github.com/dtessler/coxswain/llm"
	"github.com/dtessler/coxswain/tool"
	"github.com/dtessler/coxswain/workspace"
)

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "coxswain",
		Short: "coxswain — step-loop LLM agent with tool dispatch",
		Long: "Runs user tasks through an LLM step loop: each step calls the model,\n" +
			"extracts tool intents from the reply, dispatches tools into a sandboxed\n" +
			"workspace, and feeds results back until the task completes.",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "Config file path (default: search coxswain.yaml, ~/.config/coxswain, /etc/coxswain)")

	root.AddCommand(
		runCmd(&configPath),
		toolsCmd(&configPath),
		sessionsCmd(&configPath),
	)

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func runCmd(configPath *string) *cobra.Command {
	var (
		sessionID string
		maxSteps  int
		model     string
		stream    bool
		userID    string
	)

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run a task through the agent loop",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.close()

			opts := agent.Options{
				MaxSteps: maxSteps,
				Model:    model,
				UserID:   userID,
			}
			if stream {
				opts.Stream = func(delta string) {
					fmt.Print(delta)
				}
			}

			result := app.service.ExecuteTask(cmd.Context(), sessionID, args[0], opts)
			if stream {
				fmt.Println()
			}

			for _, step := range result.Steps {
				fmt.Println(step)
			}
			fmt.Println()
			if result.Err != "" {
				return fmt.Errorf("task aborted: %s", result.Err)
			}
			if result.Completed {
				fmt.Printf("Completed: %s\n", result.FinalResult)
			} else {
				fmt.Printf("Not completed: %s\n", result.FinalResult)
			}
			if result.Usage != nil {
				fmt.Printf("Tokens: %d prompt, %d completion, %d total\n",
					result.Usage.PromptTokens, result.Usage.CompletionTokens, result.Usage.TotalTokens)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "default", "Session ID; reuse to continue a conversation")
	cmd.Flags().IntVar(&maxSteps, "max-steps", 0, "Step budget for this task (0 = config default)")
	cmd.Flags().StringVar(&model, "model", "", "Model override for this task")
	cmd.Flags().BoolVar(&stream, "stream", false, "Stream model output as it arrives")
	cmd.Flags().StringVar(&userID, "user", "", "User ID recorded with the session history")
	return cmd
}

func toolsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List registered tools",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.close()

			for _, t := range app.registry.All() {
				fmt.Printf("%-16s %s\n", t.Name(), t.Description())
			}
			return nil
		},
	}
}

func sessionsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "sessions",
		Short: "List persisted sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer app.close()

			infos, err := app.store.ListSessions(cmd.Context())
			if err != nil {
				return err
			}
			if len(infos) == 0 {
				fmt.Println("no sessions")
				return nil
			}
			for _, info := range infos {
				fmt.Printf("%-24s %4d messages  updated %s", info.ID, info.Messages,
					info.UpdatedAt.Format(time.RFC3339))
				if info.UserID != "" {
					fmt.Printf("  (%s)", info.UserID)
				}
				fmt.Println()
			}
			return nil
		},
	}
}

// app holds the wired components for one CLI invocation.
type app struct {
	service  *agent.Service
	registry *tool.Registry
	store    history.Store
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "history close: %v\n", err)
	}
}

func bootstrap(configPath string) (*app, error) {
	path, err := config.FindConfig(configPath)
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	logger := config.NewLogger(level)

	fs, err := workspace.New(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("workspace: %w", err)
	}

	registry := tool.NewRegistry()
	registry.Register(tool.NewFileTool(fs))
	registry.Register(tool.NewPythonTool(
		tool.WithInterpreter(cfg.Python.Interpreter),
		tool.WithDefaultTimeout(time.Duration(cfg.Python.TimeoutMS)*time.Millisecond),
		tool.WithPythonLogger(logger),
	))
	registry.Register(tool.NewSearchTool(nil))
	registry.Register(tool.NewTerminateTool())

	client, err := buildLLMClient(cfg, logger)
	if err != nil {
		return nil, err
	}

	var store history.Store = history.NopStore{}
	if cfg.History.DBPath != "" {
		store, err = history.NewSQLiteStore(cfg.History.DBPath,
			history.WithFlushInterval(cfg.FlushInterval()),
			history.WithQueueSize(cfg.History.QueueSize),
			history.WithLogger(logger),
		)
		if err != nil {
			return nil, fmt.Errorf("history: %w", err)
		}
	}

	svcOpts := []agent.ServiceOption{
		agent.WithHistory(store),
		agent.WithServiceLogger(logger),
		agent.WithDefaultMaxSteps(cfg.Agent.MaxSteps),
		agent.WithDefaultModel(cfg.LLM.Model),
		agent.WithLanguage(cfg.Agent.Language),
		agent.WithMaxTokens(cfg.LLM.MaxTokens),
	}
	if cfg.LLM.Temperature != nil {
		svcOpts = append(svcOpts, agent.WithTemperature(*cfg.LLM.Temperature))
	}

	return &app{
		service:  agent.NewService(client, registry, svcOpts...),
		registry: registry,
		store:    store,
	}, nil
}

func buildLLMClient(cfg *config.Config, logger *slog.Logger) (*llm.Client, error) {
	switch cfg.LLM.Provider {
	case "gollm":
		adapter, err := llm.NewGollmAdapter("openai", cfg.LLM.APIKey,
			llm.WithGollmModel(cfg.LLM.Model))
		if err != nil {
			return nil, fmt.Errorf("gollm adapter: %w", err)
		}
		return llm.NewClient(
			llm.WithProvider("gollm", adapter),
			llm.WithMiddleware(llm.LoggingMiddleware(logger)),
		), nil
	default:
		adapter := llm.NewOpenAIAdapter(cfg.LLM.APIKey,
			llm.WithBaseURL(cfg.LLM.BaseURL),
			llm.WithLogger(logger),
		)
		return llm.NewClient(
			llm.WithProvider("openai", adapter),
			llm.WithMiddleware(llm.LoggingMiddleware(logger)),
		), nil
	}
}
