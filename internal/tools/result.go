package tools

import (
	"github.com/teemow/calcompanion/internal/calendar"
)

// Status classifies the outcome of a dispatched tool call.
type Status string

const (
	StatusOK               Status = "ok"
	StatusUnauthenticated  Status = "unauthenticated"
	StatusRemoteError      Status = "remote_error"
	StatusInvalidArguments Status = "invalid_arguments"
	StatusUnknownTool      Status = "unknown_tool"
)

// Fixed texts shown to the user.
const (
	SignInText         = "🔒 Please sign in with Google first"
	UnknownToolText    = "Unknown function requested"
	DeletedText        = "Event deleted successfully."
	DeleteFailedText   = "Failed to delete event."
	CreateFailedText   = "Failed to create event."
	NoEventsText       = "📅 No upcoming events found"
	FetchFailedText    = "❌ Error fetching events"
	CreatedTextFormat  = "Event %q created successfully!"
	InvalidArgsFormat  = "I couldn't run %s: %s"
	DefaultDescription = "No description provided"
)

// Result is the outcome of one tool call. Text is always set and is what
// the conversation shows for the call.
type Result struct {
	Tool   string
	CallID string
	Status Status
	Text   string

	// Err is the failure cause for non-ok results.
	Err error

	// Event is the created event for a successful create.
	Event *calendar.EventSummary

	// Events is the listed agenda for a successful list.
	Events []calendar.EventSummary
}

// OK reports whether the call succeeded.
func (r Result) OK() bool {
	return r.Status == StatusOK
}

// Unauthenticated builds the result for a call made without a credential.
func Unauthenticated(tool string) Result {
	return Result{Tool: tool, Status: StatusUnauthenticated, Text: SignInText, Err: ErrUnauthenticated}
}
