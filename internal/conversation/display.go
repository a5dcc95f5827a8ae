package conversation

import "strings"

// Sender is the author of a display message as seen by the UI.
type Sender string

const (
	SenderUser Sender = "user"
	SenderBot  Sender = "bot"
)

// DisplayMessage is the UI-facing projection of a turn.
type DisplayMessage struct {
	Text   string `json:"text"`
	Sender Sender `json:"sender"`
}

// IsHidden reports whether a turn must never reach the UI.
func IsHidden(t Turn) bool {
	if t.IsSystemPrompt || t.Role == RoleSystem {
		return true
	}
	return strings.Contains(t.Content, SystemPromptMarker)
}

// Display projects turns into display messages, dropping system prompts
// and turns without text.
func Display(turns []Turn) []DisplayMessage {
	msgs := make([]DisplayMessage, 0, len(turns))
	for _, t := range turns {
		if IsHidden(t) || t.Content == "" {
			continue
		}
		sender := SenderBot
		if t.Role == RoleUser {
			sender = SenderUser
		}
		msgs = append(msgs, DisplayMessage{Text: t.Content, Sender: sender})
	}
	return msgs
}

// DisplayOrDefault is Display with a fallback message for conversations
// that have nothing visible yet.
func DisplayOrDefault(turns []Turn) []DisplayMessage {
	msgs := Display(turns)
	if len(msgs) == 0 {
		return []DisplayMessage{{Text: ChatLoadedText, Sender: SenderBot}}
	}
	return msgs
}
