// Package observability defines the event stream emitted by sessions,
// the mediator, the guardrail pipeline and the escalation loop.
//
// Observers are plain sinks. SlogObserver writes events as structured log
// records, PrometheusObserver turns them into counters and MultiObserver fans
// out to several sinks at once.
package observability
