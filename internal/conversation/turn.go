package conversation

import (
	"errors"
	"fmt"
)

// Role identifies who produced a turn.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
	RoleModel  Role = "model"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleSystem, RoleUser, RoleModel:
		return true
	}
	return false
}

// ToolCall is an action requested by the model.
type ToolCall struct {
	ID   string         `json:"id,omitempty"`
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolResult links a model turn to the tool call it answers.
type ToolResult struct {
	CallID string `json:"callId,omitempty"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// Turn is one entry of a conversation. Turns are never mutated after they
// are appended; a conversation only grows by replacing the whole sequence.
type Turn struct {
	Role           Role        `json:"role"`
	Content        string      `json:"content"`
	ToolCall       *ToolCall   `json:"toolCall,omitempty"`
	ToolResult     *ToolResult `json:"toolResult,omitempty"`
	IsSystemPrompt bool        `json:"isSystemPrompt,omitempty"`
}

// UserTurn builds a turn carrying user input.
func UserTurn(text string) Turn {
	return Turn{Role: RoleUser, Content: text}
}

// ModelTurn builds a plain model turn.
func ModelTurn(text string) Turn {
	return Turn{Role: RoleModel, Content: text}
}

// Validation errors returned by Validate.
var (
	ErrEmptyConversation = errors.New("conversation has no turns")
	ErrMissingSystemTurn = errors.New("first turn is not the system prompt")
	ErrStraySystemTurn   = errors.New("system prompt found after the first turn")
	ErrUnknownRole       = errors.New("unknown turn role")
)

// Validate checks the structural invariants of a turn sequence: the first
// turn is the only system prompt and every role is known.
func Validate(turns []Turn) error {
	if len(turns) == 0 {
		return ErrEmptyConversation
	}
	if turns[0].Role != RoleSystem || !turns[0].IsSystemPrompt {
		return ErrMissingSystemTurn
	}
	for i, t := range turns {
		if !t.Role.Valid() {
			return fmt.Errorf("turn %d: %w %q", i, ErrUnknownRole, t.Role)
		}
		if i > 0 && (t.IsSystemPrompt || t.Role == RoleSystem) {
			return fmt.Errorf("turn %d: %w", i, ErrStraySystemTurn)
		}
	}
	return nil
}

// Append returns a new sequence with extra turns added. The input slice is
// never written to, so callers holding the previous sequence keep a stable
// view of it.
func Append(turns []Turn, extra ...Turn) []Turn {
	out := make([]Turn, 0, len(turns)+len(extra))
	out = append(out, turns...)
	return append(out, extra...)
}

// Clone returns a copy of turns that shares no backing array with the input.
func Clone(turns []Turn) []Turn {
	if turns == nil {
		return nil
	}
	return Append(turns)
}
