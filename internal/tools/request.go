package tools

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Call is a tool invocation issued by the model.
type Call struct {
	ID   string
	Name string
	Args map[string]any
}

// Request is a decoded tool call. It is one of CreateEvent, DeleteEvent,
// ListEvents or UnknownTool.
type Request interface {
	ToolName() string
	isRequest()
}

// CreateEvent asks for a new calendar event.
type CreateEvent struct {
	Name        string
	Description string
	Location    string
	Start       time.Time
	End         time.Time

	// WallClock is set when the model sent times without an offset. Start
	// and End then hold the wall-clock reading in UTC; use In to place
	// them in the caller's zone.
	WallClock bool
}

// In returns the request with wall-clock times placed in loc. Requests
// whose times carried an offset are returned unchanged.
func (c CreateEvent) In(loc *time.Location) CreateEvent {
	if !c.WallClock || loc == nil {
		return c
	}
	c.Start = inLocation(c.Start, loc)
	c.End = inLocation(c.End, loc)
	c.WallClock = false
	return c
}

func inLocation(t time.Time, loc *time.Location) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), loc)
}

// DeleteEvent asks for an event to be removed.
type DeleteEvent struct {
	EventID string
}

// ListEvents asks for the upcoming agenda.
type ListEvents struct{}

// UnknownTool is a call naming a tool that is not registered.
type UnknownTool struct {
	Name string
}

func (CreateEvent) ToolName() string   { return CreateEventTool }
func (DeleteEvent) ToolName() string   { return DeleteEventTool }
func (ListEvents) ToolName() string    { return ListEventsTool }
func (u UnknownTool) ToolName() string { return u.Name }

func (CreateEvent) isRequest() {}
func (DeleteEvent) isRequest() {}
func (ListEvents) isRequest()  {}
func (UnknownTool) isRequest() {}

// Decode validates the call arguments against the tool schema and returns
// the typed request. Unknown tool names decode to UnknownTool without error.
func Decode(call Call) (Request, error) {
	desc, ok := Lookup(call.Name)
	if !ok {
		return UnknownTool{Name: call.Name}, nil
	}
	if err := validateArgs(desc, call.Args); err != nil {
		return nil, err
	}

	switch call.Name {
	case CreateEventTool:
		start, startWall, err := parseTime(call.Args, "start")
		if err != nil {
			return nil, err
		}
		end, endWall, err := parseTime(call.Args, "end")
		if err != nil {
			return nil, err
		}
		if startWall != endWall {
			return nil, &ArgumentError{Tool: call.Name, Reason: "start and end must both carry an offset or both omit it"}
		}
		if end.Before(start) {
			return nil, &ArgumentError{Tool: call.Name, Reason: "end is before start"}
		}
		return CreateEvent{
			Name:        stringArg(call.Args, "name"),
			Description: stringArg(call.Args, "description"),
			Location:    stringArg(call.Args, "location"),
			Start:       start,
			End:         end,
			WallClock:   startWall,
		}, nil
	case DeleteEventTool:
		id := strings.TrimSpace(stringArg(call.Args, "eventId"))
		if id == "" {
			return nil, &ArgumentError{Tool: call.Name, Reason: "eventId is empty"}
		}
		return DeleteEvent{EventID: id}, nil
	default:
		return ListEvents{}, nil
	}
}

func validateArgs(desc Descriptor, args map[string]any) error {
	schema, err := desc.JSONSchema()
	if err != nil {
		return err
	}
	if args == nil {
		args = map[string]any{}
	}
	doc, err := json.Marshal(args)
	if err != nil {
		return &ArgumentError{Tool: desc.Name, Reason: fmt.Sprintf("arguments are not JSON: %v", err)}
	}

	result, err := gojsonschema.Validate(gojsonschema.NewBytesLoader(schema), gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return fmt.Errorf("schema validation failed: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return &ArgumentError{Tool: desc.Name, Reason: strings.Join(problems, "; ")}
	}
	return nil
}

func stringArg(args map[string]any, name string) string {
	s, _ := args[name].(string)
	return s
}

// wallClockLayouts are accepted for times sent without an offset.
var wallClockLayouts = []string{"2006-01-02T15:04:05", "2006-01-02T15:04"}

// parseTime reads an RFC3339 time or an offset-less wall-clock time. The
// second return value reports the latter.
func parseTime(args map[string]any, name string) (time.Time, bool, error) {
	raw := strings.TrimSpace(stringArg(args, name))
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, false, nil
	}
	for _, layout := range wallClockLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true, nil
		}
	}
	return time.Time{}, false, &ArgumentError{Tool: CreateEventTool, Reason: fmt.Sprintf("invalid %s time %q, expected RFC3339", name, raw)}
}
