package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/calcompanion/internal/config"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools/calendar_tools"
)

// accessTokenEnv holds the Google access token used by the mcp command.
const accessTokenEnv = "GOOGLE_ACCESS_TOKEN"

func newMCPCmd() *cobra.Command {
	var (
		userID   string
		timeZone string
	)

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the calendar tools over MCP stdio",
		Long: `Serve the calendar tools to an MCP client (Claude Desktop, Cursor, ...)
over standard input/output.

The tools act on the calendar of the Google account whose access token is
set in the GOOGLE_ACCESS_TOKEN environment variable. Without it every tool
asks the user to sign in.

Logs go to stderr; stdout carries the MCP protocol.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runMCP(cfg, userID, timeZone)
		},
	}

	cmd.Flags().StringVar(&userID, "user-id", "local", "User id recorded in logs and audit entries")
	cmd.Flags().StringVar(&timeZone, "time-zone", "", "IANA time zone for created and listed events (default: calendar.default_time_zone)")
	cmd.Flags().String("log.level", "info", "Log level: debug, info, warn or error")

	return cmd
}

func runMCP(cfg *config.Config, userID, timeZone string) error {
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	user, err := mcpUser(logger, userID, timeZone, os.Getenv(accessTokenEnv))
	if err != nil {
		return err
	}

	// Metrics have no scrape endpoint over stdio; only the audit log is kept.
	audit := instrumentation.NewAuditLogger(logging.WithComponent(logger, "audit"),
		cfg.Instrumentation.ToInstrumentation(version).AuditLogging)
	dispatcher := newDispatcher(cfg, logger, nil, audit)

	mcpSrv := mcpserver.NewMCPServer("calcompanion", version,
		mcpserver.WithToolCapabilities(true),
	)
	calendar_tools.RegisterCalendarTools(mcpSrv, dispatcher, user)

	return runStdioServer(mcpSrv)
}

// mcpUser builds the single user the stdio server acts for. The token is
// only ever logged masked.
func mcpUser(logger *slog.Logger, userID, timeZone, token string) (identity.User, error) {
	user := identity.User{
		ID:         userID,
		Credential: strings.TrimSpace(token),
		TimeZone:   timeZone,
	}
	if err := user.Validate(); err != nil {
		return identity.User{}, fmt.Errorf("invalid --user-id: %w", err)
	}
	if !user.HasCredential() {
		logger.Warn("no Google access token set, calendar tools will ask to sign in", "env", accessTokenEnv)
		return user, nil
	}
	logger.Debug("using Google access token", "env", accessTokenEnv, "token", logging.SanitizeToken(user.Credential))
	return user, nil
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}
