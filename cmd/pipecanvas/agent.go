package main

import (
	"context"
	"fmt"
	"log"
	"os/signal"
	"syscall"

	"github.com/jamie/pipecanvas/internal/agent"
	"github.com/jamie/pipecanvas/internal/config"
	"github.com/jamie/pipecanvas/internal/db"
	"github.com/jamie/pipecanvas/internal/llm"
	"github.com/spf13/cobra"
)

var agentCommand = &cobra.Command{
	Use:   "agent",
	Short: "Start the background agent worker",
	Long:  "Runs a pool of workers that claim jobs from the agent queue and process them (marketing campaigns, churn checks, weekly digests).",
	RunE:  runAgent,
}

func init() {
	rootCmd.AddCommand(agentCommand)
}

func runAgent(cmd *cobra.Command, args []string) error {
	cfg, err := config.NewAgentConfig()
	if err != nil {
		return fmt.Errorf("agent config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.Close()

	var llmClient llm.Client
	if cfg.GeminiAPIKey != "" {
		llmClient, err = llm.NewClient(ctx, nil, cfg.GeminiAPIKey)
		if err != nil {
			return fmt.Errorf("llm client: %w", err)
		}
		defer llmClient.Close()
	} else {
		log.Printf("GEMINI_API_KEY not set; LLM-backed job types will fail with an explanatory error")
	}

	worker := agent.New(database, llmClient, cfg)
	if err := worker.Run(ctx); err != nil {
		return fmt.Errorf("agent: %w", err)
	}
	log.Printf("agent stopped")
	return nil
}
