// Package server provides the HTTP surface of calcompanion: the chat API,
// health probes and the Prometheus metrics server.
//
// # Key Components
//
// Server mounts the /v1 chat routes behind the identity middleware. Each
// request resolves the caller's session.Manager through the
// SessionRegistry and hands message submissions to the chat orchestrator.
//
// SessionRegistry keeps one session manager per signed-in user, created
// and bootstrapped on first use. Users idle for longer than the configured
// timeout are evicted from memory; their stored conversations remain.
//
// HealthChecker serves /healthz, /readyz and /healthz/detailed for
// Kubernetes probes. Readiness is withdrawn as soon as shutdown starts.
//
// MetricsServer exposes /metrics on a dedicated port so operational
// metrics are not reachable through the chat API.
//
// # Routes
//
//	GET    /v1/sessions               list sessions, most recent first
//	POST   /v1/sessions               start a new session
//	POST   /v1/sessions/:id/activate  switch to a session
//	DELETE /v1/sessions/:id           delete a session
//	GET    /v1/messages               messages of the active session
//	POST   /v1/messages               submit a message
//	POST   /v1/signout                forget the in-memory session state
package server
