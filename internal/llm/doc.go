// Package llm is the port to the language model that drives the chat.
//
// Model is the narrow interface the orchestrator depends on. Gemini
// implements it with the Gemini API: the conversation is sent in full on
// every request together with the calendar tool declarations, and the
// reply is reduced to text plus any function calls.
package llm
