package engine

import (
	"context"
	"fmt"
	"sync"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Available callback types:
//   - BeforeSession: after admission, before the session starts; an error
//     rejects the connection
//   - AfterSession: once the session fully shut down
//   - OnError: when a session fails to start or run
type CallbackType string

const (
	// CallbackBeforeSession is triggered before a session starts running.
	CallbackBeforeSession CallbackType = "before_session"

	// CallbackAfterSession is triggered after a session has shut down.
	CallbackAfterSession CallbackType = "after_session"

	// CallbackOnError is triggered when a session fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext carries the information a callback may need.
type CallbackContext struct {
	// SessionID identifies the session.
	SessionID string

	// Agent is the active agent at the time of the callback.
	Agent string

	// Reason is the close reason (AfterSession only).
	Reason string

	// Err is the failure that triggered an OnError callback.
	Err error

	// Metadata is free form data shared between callbacks of one invocation.
	Metadata map[string]any
}

// Callback defines the interface for lifecycle hooks.
//
// Callbacks returning an error from CallbackBeforeSession reject the
// session. Errors from other callback types are logged.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(
//	    CallbackAfterSession,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("session %s closed: %s", cc.SessionID, cc.Reason)
//	        return nil
//	    },
//	)
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager routes lifecycle callbacks by type.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops execution of the remaining callbacks of that type.
// Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates a new callback manager instance.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback to the manager for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return fmt.Errorf("%s callback: %w", callbackType, err)
		}
	}

	return nil
}

// LoggingCallback forwards lifecycle events to a logging function.
//
// Example:
//
//	callback := NewLoggingCallback(CallbackAfterSession, func(m string) {
//	    log.Printf("[ENGINE] %s", m)
//	})
type LoggingCallback struct {
	callbackType CallbackType
	logger       func(message string)
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger func(message string)) *LoggingCallback {
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the lifecycle event. Without a logger function the callback
// silently succeeds.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.logger == nil {
		return nil
	}
	message := fmt.Sprintf("[%s] Session: %s, Agent: %s", c.callbackType, callbackCtx.SessionID, callbackCtx.Agent)
	if callbackCtx.Reason != "" {
		message += ", Reason: " + callbackCtx.Reason
	}
	if callbackCtx.Err != nil {
		message += ", Error: " + callbackCtx.Err.Error()
	}
	c.logger(message)
	return nil
}
