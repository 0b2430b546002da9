// Package history reconciles the stream of partial conversation updates sent
// by the realtime transport into a stable transcript.
//
// Items are stored per id, never positionally. Messages are inserted
// idempotently, grow by deltas or are replaced wholesale while in progress and
// become immutable once completed, except for guardrail verdicts which may be
// attached afterwards. Anomalies (unknown ids, duplicates, updates to finished
// items) are returned as *AnomalyError values and are never fatal.
package history
