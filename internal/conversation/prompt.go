package conversation

import (
	"fmt"
	"time"
)

// SystemPromptMarker is the fixed opening of every system prompt. Any turn
// embedding it is treated as a system prompt by the display projection.
const SystemPromptMarker = "You are an A.I Calendar Companion"

// Fixed assistant texts.
const (
	GreetingText   = "New chat started. How can I help you with your calendar today?"
	ChatLoadedText = "Chat loaded. How can I help you today?"
)

// SystemPrompt renders the instruction prompt for a conversation started at now.
func SystemPrompt(now time.Time) string {
	return fmt.Sprintf(`%s. The user can talk to you and you have the ability to create, list and delete google calendar events.
Every time the user wants to create an event you need to call the calendar_create_event function. Use any information that the user provides as parameters and fill a description based on the context.
If no date is given try to set a date and duration that is most appropriate based on the context. The current date is %s.
The time always has to be in this format 2015-05-28T17:00:00-00:00 (only used as an example).
To delete an event you first have to call the calendar_list_events function, which returns the upcoming events with their title, start and end date, location and event ID.
Find the matching event in that output and call calendar_delete_event with its event ID. Never invent an event ID.
If no events match the description of the user input then return a message informing the user.
After you finish running the functions return a brief message about the output.`,
		SystemPromptMarker, now.UTC().Format(time.RFC3339))
}

// SystemTurn builds the single system turn that opens every conversation.
func SystemTurn(now time.Time) Turn {
	return Turn{
		Role:           RoleSystem,
		Content:        SystemPrompt(now),
		IsSystemPrompt: true,
	}
}

// NewConversation returns the initial turns of a fresh session: the system
// prompt followed by one greeting from the model.
func NewConversation(now time.Time) []Turn {
	return []Turn{
		SystemTurn(now),
		ModelTurn(GreetingText),
	}
}
