package tools

import (
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Tool names offered to the language model.
const (
	CreateEventTool = "calendar_create_event"
	DeleteEventTool = "calendar_delete_event"
	ListEventsTool  = "calendar_list_events"
)

// Parameter describes one named tool argument.
type Parameter struct {
	Name        string
	Type        string
	Description string
	Required    bool
}

// Descriptor is the static definition of a tool.
type Descriptor struct {
	Name        string
	Description string
	Parameters  []Parameter
}

var descriptors = []Descriptor{
	{
		Name:        CreateEventTool,
		Description: "Creates a google calendar event and inserts it into the primary calendar",
		Parameters: []Parameter{
			{Name: "name", Type: "string", Description: "Name of the event", Required: true},
			{Name: "description", Type: "string", Description: "Description of the event"},
			{Name: "location", Type: "string", Description: "Location of the event"},
			{Name: "start", Type: "string", Description: "Starting time of the event in this format 2015-05-28T17:00:00-00:00", Required: true},
			{Name: "end", Type: "string", Description: "Ending time of the event in this format 2015-05-28T17:00:00-00:00", Required: true},
		},
	},
	{
		Name:        DeleteEventTool,
		Description: "Deletes a google calendar event from the primary calendar",
		Parameters: []Parameter{
			{Name: "eventId", Type: "string", Description: "Event identifier as returned by calendar_list_events", Required: true},
		},
	},
	{
		Name:        ListEventsTool,
		Description: "Lists the next upcoming events of the primary calendar with their IDs",
	},
}

// Descriptors returns the tools offered to the model, in a fixed order.
func Descriptors() []Descriptor {
	out := make([]Descriptor, len(descriptors))
	copy(out, descriptors)
	return out
}

// Lookup returns the descriptor registered under name.
func Lookup(name string) (Descriptor, bool) {
	for _, d := range descriptors {
		if d.Name == name {
			return d, true
		}
	}
	return Descriptor{}, false
}

// Tool renders the descriptor as an MCP tool definition.
func (d Descriptor) Tool() mcp.Tool {
	opts := []mcp.ToolOption{mcp.WithDescription(d.Description)}
	for _, p := range d.Parameters {
		propOpts := []mcp.PropertyOption{mcp.Description(p.Description)}
		if p.Required {
			propOpts = append(propOpts, mcp.Required())
		}
		opts = append(opts, mcp.WithString(p.Name, propOpts...))
	}
	return mcp.NewTool(d.Name, opts...)
}

// JSONSchema returns the JSON schema of the tool arguments.
func (d Descriptor) JSONSchema() ([]byte, error) {
	schema, err := json.Marshal(d.Tool().InputSchema)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal schema for %s: %w", d.Name, err)
	}
	return schema, nil
}

// RequiredParameters returns the names of the required parameters.
func (d Descriptor) RequiredParameters() []string {
	var names []string
	for _, p := range d.Parameters {
		if p.Required {
			names = append(names, p.Name)
		}
	}
	return names
}
