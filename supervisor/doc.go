// Package supervisor implements the escalation tool: a constrained front
// agent hands the conversation so far plus a short summary to a more capable
// out-of-band reasoning model, which may call its own tools before producing
// the next response for the front agent to speak.
//
// The nested loop is bounded by an iteration budget and a total timeout.
// Every failure mode (provider error, exhausted budget, timeout) fails
// closed with a uniform fallback message.
package supervisor
