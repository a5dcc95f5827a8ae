package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd represents the base command for the calcompanion application
var rootCmd = &cobra.Command{
	Use:   "calcompanion",
	Short: "Chat assistant that manages your Google Calendar",
	Long: `calcompanion is a chat assistant that creates, lists and deletes
Google Calendar events on your behalf, driven by a Gemini language model.

It can run as:
  - An HTTP chat API with persistent chat sessions (default)
  - An MCP (Model Context Protocol) server exposing the calendar tools`,
	SilenceUsage: true,
}

// version will be set by main
var version = "dev"

// configFile is the optional YAML config path shared by all commands.
var configFile string

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "calcompanion version %s\n" .Version}}`)

	// If no subcommand is provided, run the API server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Path to a YAML config file. Every setting can also be set with CALCOMPANION_* env vars, e.g. CALCOMPANION_LLM_API_KEY.")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newMCPCmd())
	rootCmd.AddCommand(newGenerateDocsCmd())
	rootCmd.AddCommand(newVersionCmd())
}
