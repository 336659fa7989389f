// Package main provides the entry point for the PipeCanvas backend.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "pipecanvas",
	Short: "PipeCanvas backend",
	Long:  "PipeCanvas is the backend for a node-based AI media pipeline editor: credit accounting, inference runs, a background agent job queue, support tickets, and workflow document storage over a REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
