// Package conversation defines the turn model shared by the session store,
// the orchestrator and the language-model adapter.
//
// A conversation is an append-only sequence of turns. The first turn is
// always the system prompt, marked with IsSystemPrompt, and it is the only
// such turn. Display projects a conversation into the messages the UI
// renders, filtering every system prompt out.
package conversation
