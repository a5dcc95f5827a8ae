// Package instrumentation provides OpenTelemetry metrics, tracing and audit
// logging for calcompanion.
//
// # Metrics
//
// Server/HTTP Metrics:
//   - http_requests_total, http_request_duration_seconds: by method, route and status
//   - active_sessions: users with a live chat session manager
//
// Chat Metrics:
//   - chat_turns_total: submitted messages by outcome
//   - model_requests_total, model_request_duration_seconds: language model round trips
//   - tool_invocations_total, tool_duration_seconds: dispatched tool calls by tool and status
//
// Backend Metrics:
//   - calendar_api_operations_total, calendar_api_operation_duration_seconds
//   - storage_operations_total, storage_operation_duration_seconds: by backend and operation
//
// # Tracing
//
// Spans are created for tool dispatch (tool.<name>), calendar calls
// (calendar.<operation>), model requests (llm.generate) and blob store
// operations (storage.<operation>).
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordChatTurn(ctx, instrumentation.OutcomeReplied)
package instrumentation
