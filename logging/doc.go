// Package logging provides the minimal logging interface used throughout
// realtimemesh plus adapters for log/slog.
//
// The Logger interface defines the standard leveled methods (Debug, Info,
// Warn, Error) taking a message key followed by alternating key/value pairs.
// This package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping a *slog.Logger
//   - MeshLogger with session/component scoping and domain helpers for tool
//     calls, reasoning calls and handoffs
//   - NoOpLogger for silent operation (testing, minimal setups)
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	mesh, err := realtimemesh.New(graph, func(o *realtimemesh.Options) { o.Logger = logger })
package logging
