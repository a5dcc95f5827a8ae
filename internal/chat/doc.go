// Package chat runs the conversation loop between the user, the language
// model and the calendar tools.
//
// Each session moves Idle -> AwaitingModel -> (DispatchingTool) -> Idle for
// every submitted message. A second message on a busy session is rejected
// rather than queued. Sessions of different users, and different sessions
// of one user, proceed independently.
package chat
