package calendar_tools

import (
	"context"
	"errors"
	"fmt"

	"github.com/teemow/calcompanion/internal/calendar"
	"github.com/teemow/calcompanion/internal/identity"
	"github.com/teemow/calcompanion/internal/logging"
	"github.com/teemow/calcompanion/internal/tools"
)

// CreateEvent inserts the requested event with the user's time zone on
// both ends.
func (h *Handler) CreateEvent(ctx context.Context, user identity.User, req tools.CreateEvent) tools.Result {
	client, err := h.getCalendarClient(ctx, user)
	if err != nil {
		return h.connectFailure(tools.CreateEventTool, err)
	}

	loc := h.location(user)
	req = req.In(loc)

	description := req.Description
	if description == "" {
		description = tools.DefaultDescription
	}

	created, err := client.CreateEvent(ctx, h.calendarID, calendar.EventInput{
		Summary:     req.Name,
		Description: description,
		Location:    req.Location,
		Start:       req.Start,
		End:         req.End,
		TimeZone:    loc.String(),
	})
	if err != nil {
		remote := &tools.RemoteError{Message: calendar.ErrorMessage(err), Err: err}
		return tools.Result{
			Status: tools.StatusRemoteError,
			Text:   withMessage(tools.CreateFailedText, remote.Message),
			Err:    remote,
		}
	}

	name := created.Summary
	if name == "" {
		name = req.Name
	}
	return tools.Result{
		Status: tools.StatusOK,
		Text:   fmt.Sprintf(tools.CreatedTextFormat, name),
		Event:  created,
	}
}

// DeleteEvent removes an event by ID.
func (h *Handler) DeleteEvent(ctx context.Context, user identity.User, req tools.DeleteEvent) tools.Result {
	client, err := h.getCalendarClient(ctx, user)
	if err != nil {
		return h.connectFailure(tools.DeleteEventTool, err)
	}

	if err := client.DeleteEvent(ctx, h.calendarID, req.EventID); err != nil {
		remote := &tools.RemoteError{Message: calendar.ErrorMessage(err), Err: err}
		return tools.Result{
			Status: tools.StatusRemoteError,
			Text:   withMessage(tools.DeleteFailedText, remote.Message),
			Err:    remote,
		}
	}

	return tools.Result{Status: tools.StatusOK, Text: tools.DeletedText}
}

// ListEvents renders the upcoming agenda starting now.
func (h *Handler) ListEvents(ctx context.Context, user identity.User, _ tools.ListEvents) tools.Result {
	client, err := h.getCalendarClient(ctx, user)
	if err != nil {
		result := h.connectFailure(tools.ListEventsTool, err)
		if result.Status == tools.StatusRemoteError {
			result.Text = tools.FetchFailedText
		}
		return result
	}

	events, err := client.ListUpcoming(ctx, h.calendarID, h.now(), h.maxResults)
	if err != nil {
		h.logger.Warn("failed to list events", logging.Operation("list"), logging.Err(err))
		return tools.Result{
			Status: tools.StatusRemoteError,
			Text:   tools.FetchFailedText,
			Err:    &tools.RemoteError{Message: calendar.ErrorMessage(err), Err: err},
		}
	}

	return tools.Result{
		Status: tools.StatusOK,
		Text:   FormatAgenda(events, h.location(user)),
		Events: events,
	}
}

func (h *Handler) connectFailure(tool string, err error) tools.Result {
	if errors.Is(err, tools.ErrUnauthenticated) || errors.Is(err, calendar.ErrNoCredential) {
		return tools.Unauthenticated(tool)
	}
	h.logger.Error("calendar client unavailable", logging.Tool(tool), logging.Err(err))
	failed := tools.CreateFailedText
	if tool == tools.DeleteEventTool {
		failed = tools.DeleteFailedText
	}
	return tools.Result{
		Status: tools.StatusRemoteError,
		Text:   failed,
		Err:    &tools.RemoteError{Err: err},
	}
}

func withMessage(text, message string) string {
	if message == "" {
		return text
	}
	return text + " " + message
}
