// Package calendar_tools executes the calendar tools against Google Calendar.
//
// Handler implements tools.Handler: it connects with the caller's bearer
// credential, performs the create, delete or list call and renders the
// outcome as text the chat can show. RegisterCalendarTools exposes the same
// tools over MCP through a tools.Dispatcher.
package calendar_tools
