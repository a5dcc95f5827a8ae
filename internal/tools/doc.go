// Package tools defines the calendar tools offered to the language model and
// dispatches the calls the model makes.
//
// A model-issued Call is validated against the tool's JSON schema and
// decoded into one of the Request variants. The Dispatcher hands decoded
// requests to a Handler (see calendar_tools) and turns every outcome,
// including failures, into a Result whose Text can be shown to the user.
package tools
