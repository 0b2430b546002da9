// Package session runs one realtime conversation: it owns the transcript,
// the active agent pointer and the pending tool calls of a single connection.
//
// A Session processes inbound events on one goroutine in provider order.
// Tool calls, handoff requests and operator agent selects are handed,
// together with the agent that was active when they arrived, to a single
// FIFO worker so the event loop
// keeps consuming transport events (for example a disconnect) while an
// escalation is in flight. Guardrail checks run as tracked background tasks.
// Disconnect cancels the worker and the guardrail checks; their late
// results are dropped. An optional opening message lets the agent speak
// first, and an optional maximum duration ends the session on its own.
//
// The Registry type tracks live sessions by id for operator access.
package session
