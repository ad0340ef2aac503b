// Package main is the entry point for pdfctl, the operator CLI for api keys,
// stuck jobs and the tool catalog.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/cuongbtq/pdf-gateway/cmd/pdfctl/internal/commands"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	// Load .env file if it exists
	_ = godotenv.Load()

	defaultConfigPath := os.Getenv("API_SERVICE_CONFIG_PATH")
	if defaultConfigPath == "" {
		defaultConfigPath = "configs/api-service/config.yaml"
	}

	rootCmd := &cobra.Command{
		Use:   "pdfctl",
		Short: "Operator tool for the PDF gateway",
		Long: `pdfctl manages api keys, requeues stuck jobs and prints the tool catalog.
Commands that touch the database or queue read the api-service config file.`,
		SilenceUsage: true,
	}
	configPath := rootCmd.PersistentFlags().String("config", defaultConfigPath, "Path to configuration file")

	open := func() (*commands.Env, error) {
		return commands.OpenEnv(*configPath)
	}

	commands.InitKeyCommands(rootCmd, open)
	commands.InitJobCommands(rootCmd, open)
	commands.InitToolCommands(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		return fmt.Errorf("command execution failed: %w", err)
	}
	return nil
}
