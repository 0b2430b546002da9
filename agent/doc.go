// Package agent defines the static side of a realtimemesh conversation:
// immutable agent definitions, the validated handoff Graph that connects
// them and the HandoffController that tracks which agent is live.
//
// The package concerns itself with three things:
//
//  1. Agent definitions (name, purpose, instruction template, tools, edges)
//  2. Graph validation, re-rooting and per-agent tool registries
//  3. Handoff bookkeeping for model and operator initiated switches
//
// Execution of tools and delivery of commands to the live model live in the
// flow and session packages; this package never talks to a transport.
package agent
