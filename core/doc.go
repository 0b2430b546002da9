// Package core provides the shared domain types of realtimemesh:
//
//   - Transcript items (messages and breadcrumbs) and guardrail verdicts
//   - The closed set of inbound events decoded from the realtime transport
//   - The closed set of outbound commands sent back to it
//   - Tool calls, tool specs and the per-agent session configuration
//   - RunContext / ToolContext, the scoped surfaces handed to tools
//
// The package has no dependencies on the orchestration packages so that
// history, agent, tool, flow, guardrail and session can all share it.
package core
