// Package cmd implements the command-line interface for calcompanion.
//
// This package provides the following commands:
//   - serve: Start the chat API server and the metrics server
//   - mcp: Serve the calendar tools to an MCP client over stdio
//   - version: Display version information
//   - generate-docs: Generate markdown documentation for the calendar tools
//
// The serve command is the default command when no subcommand is specified.
package cmd
