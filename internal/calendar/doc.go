// Package calendar talks to the Google Calendar API on behalf of a signed-in
// user.
//
// A Connector turns the user's bearer credential into an Events client that
// can create, delete and list events on one calendar. Clients are cheap and
// built per tool call, so a credential is never cached beyond the call that
// used it.
//
// Example usage:
//
//	connector := calendar.NewGoogleConnector(calendar.ConnectorConfig{Timeout: 10 * time.Second})
//	events, err := connector.Connect(ctx, accessToken)
//	if err != nil {
//	    return err
//	}
//	upcoming, err := events.ListUpcoming(ctx, "primary", time.Now(), 10)
package calendar
