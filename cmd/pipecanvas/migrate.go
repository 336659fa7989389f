package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jamie/pipecanvas/internal/db"
	"github.com/spf13/cobra"
)

var migrateCommand = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema",
	Long:  "Creates or updates the PipeCanvas tables and indexes. The schema uses IF NOT EXISTS guards, so running migrate repeatedly is safe.",
	RunE:  runMigrate,
}

func init() {
	rootCmd.AddCommand(migrateCommand)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required but not set")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, databaseURL)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	log.Printf("schema applied")
	return nil
}
