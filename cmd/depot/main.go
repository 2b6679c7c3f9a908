// Depot — workspace-scoped record engine for development artifacts.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "depot",
	Short: "Depot — workspace-scoped store for env vars, prompts, and doc links.",
	Long: `Depot is a small record engine for development teams: environment
variables, reusable prompts, and documentation links live in owner-scoped
workspaces, split across enabled environments, with every secret disclosure
rate limited and written to an append-only access log.`,
	RunE:          runServer, // Default to server mode.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serverCmd, versionCmd)
	_ = godotenv.Load()
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}
