package calendar_tools

import (
	"fmt"
	"strings"
	"time"

	"github.com/teemow/calcompanion/internal/calendar"
	"github.com/teemow/calcompanion/internal/tools"
)

// Layouts used in the agenda.
const (
	dateTimeLayout = "Jan 2, 2006, 3:04 PM"
	dateLayout     = "Jan 2, 2006"
)

// FormatAgenda renders events as a numbered list in loc. All-day events
// show dates only. An empty list renders the no-events message.
func FormatAgenda(events []calendar.EventSummary, loc *time.Location) string {
	if len(events) == 0 {
		return tools.NoEventsText
	}

	var b strings.Builder
	for i, ev := range events {
		if i > 0 {
			b.WriteString("\n\n")
		}

		title := ev.Summary
		if title == "" {
			title = "Untitled Event"
		}
		location := ev.Location
		if location == "" {
			location = "No location"
		}

		fmt.Fprintf(&b, "%d. %s\n", i+1, title)
		fmt.Fprintf(&b, "   🕒 %s - %s\n", formatEventTime(ev.Start, ev.AllDay, loc), formatEventTime(ev.End, ev.AllDay, loc))
		fmt.Fprintf(&b, "   📍 %s\n", location)
		fmt.Fprintf(&b, "   🆔 %s", ev.ID)
	}
	return b.String()
}

func formatEventTime(t time.Time, allDay bool, loc *time.Location) string {
	if t.IsZero() {
		return "?"
	}
	if allDay {
		// All-day dates carry no zone; converting would shift the day.
		return t.Format(dateLayout)
	}
	return t.In(loc).Format(dateTimeLayout)
}
