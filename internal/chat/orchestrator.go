package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/llm"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools"
)

// Fixed assistant texts.
const (
	SaveErrorText  = "Error saving message"
	NoResponseText = "I couldn't generate a response."
	ModelErrorText = "Sorry, I encountered an error."
)

// Reasons a submission is rejected.
var (
	ErrEmptyMessage    = errors.New("message is empty")
	ErrNoActiveSession = errors.New("no active session")
	ErrBusy            = errors.New("session is still processing the previous message")
)

// State is the processing state of one session.
type State string

const (
	StateIdle            State = "idle"
	StateAwaitingModel   State = "awaiting_model"
	StateDispatchingTool State = "dispatching_tool"
)

// Conversation is the session handle the orchestrator works on.
// *session.Manager implements it.
type Conversation interface {
	UserID() string
	ActiveConversation() (string, []conversation.Turn, error)
	Commit(ctx context.Context, id string, turns []conversation.Turn) error
	DisplayMessages() []conversation.DisplayMessage
}

// Dispatcher executes tool calls. *tools.Dispatcher implements it.
type Dispatcher interface {
	Descriptors() []tools.Descriptor
	Dispatch(ctx context.Context, inv tools.Invocation) tools.Result
}

// Result reports what happened to one submission.
type Result struct {
	// Accepted is false when the message was rejected before anything was
	// recorded. Reason says why.
	Accepted bool
	Reason   error

	SessionID string

	// Reply is the text of the appended model turn.
	Reply string

	// Tool is set when the model requested a tool.
	Tool *tools.Result

	// Notice is a transient message for the user that is not part of the
	// conversation, such as a failed save.
	Notice string

	// Messages is the display list after the submission.
	Messages []conversation.DisplayMessage
}

// Orchestrator runs the submit loop: record the user turn, ask the model,
// run at most one tool and record the reply.
type Orchestrator struct {
	model      llm.Model
	dispatcher Dispatcher
	logger     *slog.Logger
	metrics    *instrumentation.Metrics

	mu     sync.Mutex
	states map[string]State
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithLogger sets the orchestrator logger.
func WithLogger(logger *slog.Logger) Option {
	return func(o *Orchestrator) {
		o.logger = logger
	}
}

// WithMetrics records chat turn outcomes.
func WithMetrics(metrics *instrumentation.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = metrics
	}
}

// New creates an Orchestrator.
func New(model llm.Model, dispatcher Dispatcher, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		model:      model,
		dispatcher: dispatcher,
		logger:     slog.Default(),
		states:     make(map[string]State),
	}
	for _, opt := range opts {
		opt(o)
	}
	o.logger = logging.WithComponent(o.logger, "chat")
	return o
}

func stateKey(userID, sessionID string) string {
	return userID + "/" + sessionID
}

// State returns the processing state of a session.
func (o *Orchestrator) State(userID, sessionID string) State {
	o.mu.Lock()
	defer o.mu.Unlock()

	if s, ok := o.states[stateKey(userID, sessionID)]; ok {
		return s
	}
	return StateIdle
}

// acquire moves an idle session to AwaitingModel.
func (o *Orchestrator) acquire(key string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, busy := o.states[key]; busy {
		return false
	}
	o.states[key] = StateAwaitingModel
	return true
}

func (o *Orchestrator) set(key string, s State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.states[key] = s
}

func (o *Orchestrator) release(key string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.states, key)
}

// Submit processes one user message on the active session of conv.
//
// Once accepted, the submission runs to completion even if ctx is
// cancelled; the model, calendar and storage enforce their own timeouts.
func (o *Orchestrator) Submit(ctx context.Context, conv Conversation, user identity.User, text string) Result {
	text = strings.TrimSpace(text)
	if text == "" {
		return o.reject(ctx, conv, ErrEmptyMessage)
	}

	sessionID, turns, err := o.begin(conv)
	if err != nil {
		return o.reject(ctx, conv, err)
	}
	key := stateKey(conv.UserID(), sessionID)
	defer o.release(key)

	ctx = context.WithoutCancel(ctx)
	logger := logging.WithSession(o.logger, conv.UserID(), sessionID)
	result := Result{Accepted: true, SessionID: sessionID}

	turns = conversation.Append(turns, conversation.UserTurn(text))
	if err := conv.Commit(ctx, sessionID, turns); err != nil {
		logger.Warn("failed to save user message", logging.Err(err))
		o.metrics.RecordChatTurn(ctx, instrumentation.OutcomeSaveFailed)
		result.Notice = SaveErrorText
		result.Messages = append(conv.DisplayMessages(),
			conversation.DisplayMessage{Text: SaveErrorText, Sender: conversation.SenderBot})
		return result
	}

	reply, outcome := o.respond(ctx, logger, key, user, sessionID, turns, &result)
	result.Reply = reply.Content

	turns = conversation.Append(turns, reply)
	if err := conv.Commit(ctx, sessionID, turns); err != nil {
		logger.Warn("failed to save reply", logging.Err(err))
		result.Notice = SaveErrorText
	}

	o.metrics.RecordChatTurn(ctx, outcome)
	result.Messages = conv.DisplayMessages()
	return result
}

// begin takes the gate of the active session and only then reads its
// turns, so the history cannot change under an accepted submission. When
// the active session moves between the two reads the gate is released and
// the lookup repeated.
func (o *Orchestrator) begin(conv Conversation) (string, []conversation.Turn, error) {
	for range 3 {
		sessionID, _, err := conv.ActiveConversation()
		if err != nil {
			return "", nil, ErrNoActiveSession
		}
		key := stateKey(conv.UserID(), sessionID)
		if !o.acquire(key) {
			return "", nil, ErrBusy
		}

		current, turns, err := conv.ActiveConversation()
		if err == nil && current == sessionID {
			return sessionID, turns, nil
		}
		o.release(key)
		if err != nil {
			return "", nil, ErrNoActiveSession
		}
	}
	return "", nil, ErrBusy
}

// respond asks the model and builds the model turn to append.
func (o *Orchestrator) respond(ctx context.Context, logger *slog.Logger, key string, user identity.User, sessionID string, turns []conversation.Turn, result *Result) (conversation.Turn, string) {
	resp, err := o.model.Generate(ctx, turns, o.dispatcher.Descriptors())
	if err != nil {
		logger.Error("model request failed", logging.Err(err))
		return conversation.ModelTurn(ModelErrorText), instrumentation.OutcomeModelError
	}

	if !resp.HasToolCall() {
		text := resp.Text
		if strings.TrimSpace(text) == "" {
			text = NoResponseText
		}
		return conversation.ModelTurn(text), instrumentation.OutcomeReplied
	}

	// Only the first call of a turn is executed.
	call := resp.ToolCalls[0]
	if extra := len(resp.ToolCalls) - 1; extra > 0 {
		ignored := make([]string, 0, extra)
		for _, c := range resp.ToolCalls[1:] {
			ignored = append(ignored, c.Name)
		}
		logger.Warn("model requested several tool calls, running the first only",
			logging.Tool(call.Name), slog.Any("ignored", ignored))
	}

	o.set(key, StateDispatchingTool)
	toolResult := o.dispatcher.Dispatch(ctx, tools.Invocation{
		Call:      call,
		User:      user,
		SessionID: sessionID,
	})
	result.Tool = &toolResult

	turn := conversation.ModelTurn(toolResult.Text)
	turn.ToolCall = &conversation.ToolCall{ID: call.ID, Name: call.Name, Args: call.Args}
	turn.ToolResult = &conversation.ToolResult{CallID: call.ID, Name: call.Name, Status: string(toolResult.Status)}
	return turn, instrumentation.OutcomeToolExecuted
}

func (o *Orchestrator) reject(ctx context.Context, conv Conversation, reason error) Result {
	o.metrics.RecordChatTurn(ctx, instrumentation.OutcomeRejected)
	return Result{
		Accepted: false,
		Reason:   reason,
		Messages: conv.DisplayMessages(),
	}
}
