package llm

import (
	"context"
	"errors"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/tools"
)

// ErrModel wraps every failure reported by a language model.
var ErrModel = errors.New("language model request failed")

// Response is one model reply. Text and ToolCalls may both be empty.
type Response struct {
	Text      string
	ToolCalls []tools.Call
}

// HasToolCall reports whether the model asked for a tool.
func (r Response) HasToolCall() bool {
	return len(r.ToolCalls) > 0
}

// Model generates the next reply for a conversation.
type Model interface {
	Generate(ctx context.Context, turns []conversation.Turn, descriptors []tools.Descriptor) (Response, error)
}
