// Package engine admits realtime connections and runs one session per
// connection.
//
// The Engine is the process wide coordination point in front of the session
// package. It owns the immutable agent graph shared by all sessions, bounds
// the number of concurrently running sessions and keeps a registry of live
// sessions so operators can inspect or stop them by id.
//
// # Core Responsibilities
//
// Admission:
//   - Bounded concurrency with a configurable session limit
//   - Per-session option overrides (id, caller values, initial agent)
//   - Lifecycle callbacks before a session starts and after it ended
//
// Session Management:
//   - Thread-safe registry with id based lookup
//   - Stop by id and graceful shutdown of every live session
//
// # Usage Patterns
//
//	eng, err := engine.New(graph, func(o *engine.Options) {
//	    o.Config.MaxConcurrentSessions = 50
//	    o.Logger = logger
//	})
//	if err != nil {
//	    return err
//	}
//
//	s, err := eng.Start(ctx, conn)
//	if err != nil {
//	    return err
//	}
//	<-s.Done()
//
// # Concurrency Model
//
// Start never blocks on a full engine; it returns ErrCapacity so the caller
// can reject the connection. Each admitted session runs on its own goroutine
// and releases its slot once fully shut down. Callbacks run synchronously on
// the goroutine that triggered them.
package engine
