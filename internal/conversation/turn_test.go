package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConversation(t *testing.T) {
	now := time.Date(2025, 5, 28, 17, 0, 0, 0, time.UTC)
	turns := NewConversation(now)

	require.Len(t, turns, 2)
	assert.True(t, turns[0].IsSystemPrompt)
	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, SystemPromptMarker)
	assert.Contains(t, turns[0].Content, "2025-05-28T17:00:00Z")
	assert.Equal(t, ModelTurn(GreetingText), turns[1])
	assert.NoError(t, Validate(turns))
}

func TestValidate(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name    string
		turns   []Turn
		wantErr error
	}{
		{
			name:    "empty",
			turns:   nil,
			wantErr: ErrEmptyConversation,
		},
		{
			name:    "missing system turn",
			turns:   []Turn{UserTurn("hi")},
			wantErr: ErrMissingSystemTurn,
		},
		{
			name:    "system role without flag",
			turns:   []Turn{{Role: RoleSystem, Content: "x"}},
			wantErr: ErrMissingSystemTurn,
		},
		{
			name:    "second system prompt",
			turns:   []Turn{SystemTurn(now), UserTurn("hi"), SystemTurn(now)},
			wantErr: ErrStraySystemTurn,
		},
		{
			name:    "flag on a user turn",
			turns:   []Turn{SystemTurn(now), {Role: RoleUser, Content: "hi", IsSystemPrompt: true}},
			wantErr: ErrStraySystemTurn,
		},
		{
			name:    "unknown role",
			turns:   []Turn{SystemTurn(now), {Role: "assistant", Content: "hi"}},
			wantErr: ErrUnknownRole,
		},
		{
			name:  "valid with tool call",
			turns: Append(NewConversation(now), UserTurn("list"), Turn{Role: RoleModel, Content: "none", ToolCall: &ToolCall{Name: "calendar_list_events"}}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.turns)
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
		})
	}
}

func TestAppendDoesNotAlias(t *testing.T) {
	base := make([]Turn, 1, 4)
	base[0] = SystemTurn(time.Now())

	a := Append(base, UserTurn("a"))
	b := Append(base, UserTurn("b"))

	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
	assert.Len(t, base, 1)
}

func TestDisplay(t *testing.T) {
	now := time.Now()
	turns := Append(NewConversation(now),
		UserTurn("Schedule lunch"),
		ModelTurn(`Event "Lunch" created successfully!`),
		ModelTurn("quoting: "+SystemPromptMarker),
		ModelTurn(""),
	)

	msgs := Display(turns)

	assert.Equal(t, []DisplayMessage{
		{Text: GreetingText, Sender: SenderBot},
		{Text: "Schedule lunch", Sender: SenderUser},
		{Text: `Event "Lunch" created successfully!`, Sender: SenderBot},
	}, msgs)
}

func TestDisplayNeverShowsSystemPrompt(t *testing.T) {
	histories := [][]Turn{
		NewConversation(time.Now()),
		{SystemTurn(time.Now())},
		{SystemTurn(time.Now()), {Role: RoleUser, Content: "x", IsSystemPrompt: true}},
	}
	for _, h := range histories {
		for _, m := range Display(h) {
			assert.NotContains(t, m.Text, SystemPromptMarker)
		}
	}
}

func TestDisplayOrDefault(t *testing.T) {
	msgs := DisplayOrDefault([]Turn{SystemTurn(time.Now())})
	assert.Equal(t, []DisplayMessage{{Text: ChatLoadedText, Sender: SenderBot}}, msgs)
}
