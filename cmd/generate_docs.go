package cmd

import (
	"bytes"
	"cmp"
	"fmt"
	"io"
	"maps"
	"os"
	"slices"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/spf13/cobra"

	"github.com/teemow/calcompanion/internal/tools"
)

func newGenerateDocsCmd() *cobra.Command {
	var outputFile string

	cmd := &cobra.Command{
		Use:   "generate-docs",
		Short: "Generate calendar tool documentation",
		Long: `Generate markdown documentation for the calendar tools.
The documentation is rendered from the same tool definitions the language
model and MCP clients receive, so it always matches the implementation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runGenerateDocs(cmd.OutOrStdout(), outputFile)
		},
	}

	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file (default: stdout)")

	return cmd
}

func runGenerateDocs(stdout io.Writer, outputFile string) error {
	var mcpTools []mcp.Tool
	for _, d := range tools.Descriptors() {
		mcpTools = append(mcpTools, d.Tool())
	}

	var buf bytes.Buffer
	writeToolsMarkdown(&buf, mcpTools)

	if outputFile == "" {
		_, err := buf.WriteTo(stdout)
		return err
	}
	if err := os.WriteFile(outputFile, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(stdout, "Documentation written to %s\n", outputFile)
	return nil
}

// writeToolsMarkdown renders a reference page with one section per tool
// category, tools sorted by name.
func writeToolsMarkdown(w io.Writer, mcpTools []mcp.Tool) {
	byCategory := make(map[string][]mcp.Tool)
	for _, tool := range mcpTools {
		category := toolCategory(tool.Name)
		byCategory[category] = append(byCategory[category], tool)
	}
	categories := slices.Sorted(maps.Keys(byCategory))

	fmt.Fprint(w, "# Calendar Tools Reference\n\n")
	fmt.Fprint(w, "The tools the assistant can call, both from the chat API and when calcompanion runs as an MCP server. ")
	fmt.Fprint(w, "This page is generated from the tool definitions.\n\n")

	fmt.Fprint(w, "## Table of Contents\n\n")
	for _, category := range categories {
		fmt.Fprintf(w, "- [%s](#%s)\n", category, strings.ToLower(strings.ReplaceAll(category, " ", "-")))
	}

	fmt.Fprint(w, "\n## Time Format\n\n")
	fmt.Fprint(w, "Times are RFC 3339 timestamps, e.g. `2025-05-28T17:00:00+02:00`. Without an offset they are read in the caller's time zone. ")
	fmt.Fprintf(w, "Listed events are rendered in the caller's time zone and carry their event id, which `%s` expects.\n\n", tools.DeleteEventTool)

	for _, category := range categories {
		fmt.Fprintf(w, "## %s\n\n", category)
		section := byCategory[category]
		slices.SortFunc(section, func(a, b mcp.Tool) int { return cmp.Compare(a.Name, b.Name) })
		for _, tool := range section {
			writeToolMarkdown(w, tool)
		}
	}
}

func toolCategory(name string) string {
	if prefix, _, _ := strings.Cut(name, "_"); prefix == "calendar" {
		return "Google Calendar Tools"
	}
	return "Other"
}

func writeToolMarkdown(w io.Writer, tool mcp.Tool) {
	fmt.Fprintf(w, "### %s\n\n", tool.Name)
	if tool.Description != "" {
		fmt.Fprintf(w, "%s\n\n", tool.Description)
	}

	props := tool.InputSchema.Properties
	if len(props) == 0 {
		fmt.Fprint(w, "**Arguments:** none\n\n")
		return
	}

	fmt.Fprint(w, "**Arguments:**\n")
	for _, name := range slices.Sorted(maps.Keys(props)) {
		prop, ok := props[name].(map[string]any)
		if !ok {
			continue
		}
		typ, _ := prop["type"].(string)
		if typ == "" {
			typ = "any"
		}
		presence := "optional"
		if slices.Contains(tool.InputSchema.Required, name) {
			presence = "required"
		}
		desc, _ := prop["description"].(string)
		fmt.Fprintf(w, "- `%s` (%s, %s): %s\n", name, typ, presence, desc)
	}
	fmt.Fprint(w, "\n")
}
