// Package session persists chat conversations and tracks each user's
// session list and active session.
//
// Store maps conversations onto a storage.BlobStore under keys of the form
// user-{userId}/chat-{sessionId}. Manager holds one user's in-memory view
// and heals missing or corrupt state by starting a new session rather than
// surfacing the error.
package session
