package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hupe1980/agentdesk"
	"github.com/hupe1980/agentdesk/config"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var (
	cfgFile    string
	agentsFile string
	storePath  string
	provider   string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "agentdesk",
	Short: "Supervisor-routed assistant for Google Tasks and Calendar",
	Long: `agentdesk answers requests about your tasks and calendar. A supervisor
model breaks each request into subtasks, hands them one at a time to the
google_tasks and google_calendar workers and replies once everything is done.

Workers are declared in agents.yaml. Settings come from agentdesk.yaml,
AGENTDESK_* environment variables and .env files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFiles()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ./agentdesk.yaml or ~/.config/agentdesk/agentdesk.yaml)")
	rootCmd.PersistentFlags().StringVar(&agentsFile, "agents", "", "worker definitions file (overrides agents_file)")
	rootCmd.PersistentFlags().StringVar(&storePath, "store", "", "sqlite transcript database (overrides store.path)")
	rootCmd.PersistentFlags().StringVar(&provider, "provider", "", "model provider: gemini, openai or anthropic")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn or error")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadEnvFiles loads .env.local then .env; variables already set win.
func loadEnvFiles() error {
	for _, file := range []string{".env.local", ".env"} {
		if err := godotenv.Load(file); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("load %s: %w", file, err)
		}
	}
	return nil
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}
	if agentsFile != "" {
		cfg.AgentsFile = agentsFile
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if provider != "" {
		cfg.Model.Provider = provider
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	return cfg, nil
}

func openDesk(ctx context.Context) (*agentdesk.Desk, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	desk, err := agentdesk.FromConfig(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	return desk, cfg, nil
}
