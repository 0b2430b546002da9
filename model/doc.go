// Package model defines the provider-agnostic reasoning call used by the
// escalation loop and the guardrail classifier.
//
// A Request carries a model identifier, ordered role-tagged messages
// (optionally prior tool-call / tool-result pairs), an optional tool list and
// an optional structured-output schema. A Response carries message content,
// a parsed structured object or requested tool calls. Providers (OpenAI,
// Anthropic) implement Model in sub-packages; MockModel scripts responses for
// tests.
package model
