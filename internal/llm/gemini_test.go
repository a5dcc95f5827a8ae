package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/tools"
)

type capturedRequest struct {
	Contents []struct {
		Role  string `json:"role"`
		Parts []struct {
			Text string `json:"text"`
		} `json:"parts"`
	} `json:"contents"`
	Tools []struct {
		FunctionDeclarations []struct {
			Name string `json:"name"`
		} `json:"functionDeclarations"`
	} `json:"tools"`
}

type fakeGemini struct {
	mu       sync.Mutex
	requests []capturedRequest
	paths    []string
	status   int
	reply    map[string]any
}

func (f *fakeGemini) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req capturedRequest
	_ = json.NewDecoder(r.Body).Decode(&req)

	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.paths = append(f.paths, r.URL.Path)
	status, reply := f.status, f.reply
	f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(reply)
}

func newTestGemini(t *testing.T, fake *fakeGemini) *Gemini {
	t.Helper()

	srv := httptest.NewServer(fake)
	t.Cleanup(srv.Close)

	g, err := NewGemini(context.Background(), GeminiConfig{
		APIKey:  "test-key",
		BaseURL: srv.URL,
		Timeout: 5 * time.Second,
	})
	require.NoError(t, err)
	return g
}

func textReply(text string) map[string]any {
	return map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{
				"role":  "model",
				"parts": []any{map[string]any{"text": text}},
			}},
		},
	}
}

func history() []conversation.Turn {
	turns := conversation.NewConversation(time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC))
	return conversation.Append(turns, conversation.UserTurn("What's on my calendar?"))
}

func TestNewGemini_RequiresAPIKey(t *testing.T) {
	_, err := NewGemini(context.Background(), GeminiConfig{})
	assert.Error(t, err)
}

func TestGemini_GenerateText(t *testing.T) {
	fake := &fakeGemini{reply: textReply("You have two meetings.")}
	g := newTestGemini(t, fake)

	resp, err := g.Generate(context.Background(), history(), tools.Descriptors())
	require.NoError(t, err)
	assert.Equal(t, "You have two meetings.", resp.Text)
	assert.False(t, resp.HasToolCall())

	require.Len(t, fake.requests, 1)
	assert.True(t, strings.HasSuffix(fake.paths[0], "models/"+DefaultModel+":generateContent"), fake.paths[0])

	req := fake.requests[0]
	require.Len(t, req.Contents, 3)
	assert.Equal(t, "user", req.Contents[0].Role)
	assert.Contains(t, req.Contents[0].Parts[0].Text, conversation.SystemPromptMarker)
	assert.Equal(t, "model", req.Contents[1].Role)
	assert.Equal(t, "user", req.Contents[2].Role)

	require.Len(t, req.Tools, 1)
	var names []string
	for _, fd := range req.Tools[0].FunctionDeclarations {
		names = append(names, fd.Name)
	}
	assert.Equal(t, []string{tools.CreateEventTool, tools.DeleteEventTool, tools.ListEventsTool}, names)
}

func TestGemini_GenerateFunctionCall(t *testing.T) {
	fake := &fakeGemini{reply: map[string]any{
		"candidates": []any{
			map[string]any{"content": map[string]any{
				"role": "model",
				"parts": []any{
					map[string]any{"functionCall": map[string]any{
						"name": tools.DeleteEventTool,
						"args": map[string]any{"eventId": "evt-1"},
					}},
					map[string]any{"functionCall": map[string]any{
						"name": tools.ListEventsTool,
						"args": map[string]any{},
					}},
				},
			}},
		},
	}}
	g := newTestGemini(t, fake)

	resp, err := g.Generate(context.Background(), history(), tools.Descriptors())
	require.NoError(t, err)
	require.Len(t, resp.ToolCalls, 2)
	assert.Equal(t, tools.DeleteEventTool, resp.ToolCalls[0].Name)
	assert.Equal(t, "evt-1", resp.ToolCalls[0].Args["eventId"])
	assert.NotEmpty(t, resp.ToolCalls[0].ID)
}

func TestGemini_GenerateError(t *testing.T) {
	fake := &fakeGemini{
		status: http.StatusInternalServerError,
		reply: map[string]any{"error": map[string]any{
			"code": 500, "message": "internal", "status": "INTERNAL",
		}},
	}
	g := newTestGemini(t, fake)

	_, err := g.Generate(context.Background(), history(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrModel)
}

func TestGemini_EmptyCandidates(t *testing.T) {
	fake := &fakeGemini{reply: map[string]any{"candidates": []any{}}}
	g := newTestGemini(t, fake)

	resp, err := g.Generate(context.Background(), history(), nil)
	require.NoError(t, err)
	assert.Empty(t, resp.Text)
	assert.False(t, resp.HasToolCall())
}

func TestToContents_SkipsEmptyTurns(t *testing.T) {
	turns := conversation.Append(history(), conversation.ModelTurn("  "))
	assert.Len(t, toContents(turns), 3)
}

func TestToFunctionDeclarations(t *testing.T) {
	decls := toFunctionDeclarations(tools.Descriptors())
	require.Len(t, decls, 3)

	create := decls[0]
	assert.Equal(t, tools.CreateEventTool, create.Name)
	assert.Len(t, create.Parameters.Properties, 5)
	assert.Equal(t, []string{"name", "start", "end"}, create.Parameters.Required)

	list := decls[2]
	assert.Empty(t, list.Parameters.Properties)
}
