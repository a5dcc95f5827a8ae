package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"google.golang.org/genai"

	"github.com/teemow/calcompanion/internal/conversation"
	"github.com/teemow/calcompanion/internal/instrumentation"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools"
)

// DefaultModel is the Gemini model used when none is configured.
const DefaultModel = "gemini-2.0-flash"

// GeminiConfig configures the Gemini adapter.
type GeminiConfig struct {
	APIKey string
	Model  string

	// Temperature is passed through when set.
	Temperature *float32

	// Timeout bounds each request. Zero means no extra deadline.
	Timeout time.Duration

	// BaseURL overrides the API endpoint. Used by tests.
	BaseURL    string
	HTTPClient *http.Client

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// Gemini is a Model backed by the Gemini API.
type Gemini struct {
	client      *genai.Client
	model       string
	temperature *float32
	timeout     time.Duration
	metrics     *instrumentation.Metrics
	logger      *slog.Logger
}

// NewGemini creates a Gemini model client.
func NewGemini(ctx context.Context, config GeminiConfig) (*Gemini, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	clientConfig := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: config.HTTPClient,
	}
	if config.BaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &Gemini{
		client:      client,
		model:       config.Model,
		temperature: config.Temperature,
		timeout:     config.Timeout,
		metrics:     config.Metrics,
		logger:      logging.WithComponent(config.Logger, "llm"),
	}, nil
}

// Name returns the model name.
func (g *Gemini) Name() string {
	return g.model
}

// Generate sends the whole conversation and the tool declarations and
// returns the reply text and any function calls.
func (g *Gemini) Generate(ctx context.Context, turns []conversation.Turn, descriptors []tools.Descriptor) (Response, error) {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	ctx, span := instrumentation.StartModelSpan(ctx, g.model)
	defer span.End()

	contents := toContents(turns)
	config := &genai.GenerateContentConfig{
		Temperature: g.temperature,
	}
	if len(descriptors) > 0 {
		config.Tools = []*genai.Tool{{FunctionDeclarations: toFunctionDeclarations(descriptors)}}
	}

	start := time.Now()
	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, config)
	duration := time.Since(start)
	if err != nil {
		instrumentation.SetSpanError(span, err)
		g.metrics.RecordModelRequest(ctx, g.model, instrumentation.StatusError, duration)
		return Response{}, fmt.Errorf("%w: %w", ErrModel, err)
	}
	instrumentation.SetSpanSuccess(span)
	g.metrics.RecordModelRequest(ctx, g.model, instrumentation.StatusSuccess, duration)

	out := fromResponse(resp)
	g.logger.Debug("model replied",
		slog.String(logging.KeyModel, g.model),
		slog.Int("tool_calls", len(out.ToolCalls)),
		slog.Duration(logging.KeyDuration, duration),
	)
	return out, nil
}

// toContents converts turns to Gemini contents. The system prompt is sent
// as a user message at the head of the history.
func toContents(turns []conversation.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, t := range turns {
		if strings.TrimSpace(t.Content) == "" {
			continue
		}
		role := genai.RoleUser
		if t.Role == conversation.RoleModel {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(t.Content, genai.Role(role)))
	}
	return contents
}

func toFunctionDeclarations(descriptors []tools.Descriptor) []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(descriptors))
	for _, d := range descriptors {
		schema := &genai.Schema{Type: genai.TypeObject}
		if len(d.Parameters) > 0 {
			schema.Properties = make(map[string]*genai.Schema, len(d.Parameters))
			for _, p := range d.Parameters {
				schema.Properties[p.Name] = &genai.Schema{
					Type:        schemaType(p.Type),
					Description: p.Description,
				}
			}
			schema.Required = d.RequiredParameters()
		}
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        d.Name,
			Description: d.Description,
			Parameters:  schema,
		})
	}
	return decls
}

func schemaType(t string) genai.Type {
	switch t {
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	default:
		return genai.TypeString
	}
}

func fromResponse(resp *genai.GenerateContentResponse) Response {
	if resp == nil {
		return Response{}
	}

	var out Response
	for _, fc := range resp.FunctionCalls() {
		if fc == nil {
			continue
		}
		id := fc.ID
		if id == "" {
			id = uuid.NewString()
		}
		out.ToolCalls = append(out.ToolCalls, tools.Call{ID: id, Name: fc.Name, Args: fc.Args})
	}
	if len(resp.Candidates) > 0 {
		out.Text = resp.Text()
	}
	return out
}
