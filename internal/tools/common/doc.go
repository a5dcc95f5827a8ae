// Package common provides helpers shared by the tool dispatcher and the
// tool transports: instrumentation of a single call and caller resolution.
package common
