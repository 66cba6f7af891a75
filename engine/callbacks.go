package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/hupe1980/supervisor/core"
)

// CallbackType identifies a lifecycle point of a run.
//
// Callbacks execute synchronously on the run goroutine. A callback that
// returns an error fails the run exactly like a failing worker would: an
// error event is emitted and no further checkpoints are written.
type CallbackType string

const (
	// CallbackBeforeRoute fires before the Controller is asked for a decision.
	CallbackBeforeRoute CallbackType = "before_route"
	// CallbackAfterRoute fires once a decision is available.
	CallbackAfterRoute CallbackType = "after_route"
	// CallbackBeforeWorker fires before the chosen worker is invoked.
	CallbackBeforeWorker CallbackType = "before_worker"
	// CallbackAfterWorker fires after a worker update has been merged.
	CallbackAfterWorker CallbackType = "after_worker"
	// CallbackOnCheckpoint fires after every persisted checkpoint.
	CallbackOnCheckpoint CallbackType = "on_checkpoint"
	// CallbackOnError fires when a run fails. Its own error is ignored.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext describes the lifecycle point a callback runs at.
// State is a copy; mutating it has no effect on the run.
type CallbackContext struct {
	ThreadID string
	State    core.TaskState
	Worker   string
	Decision *core.Decision
	Sequence int64
	Err      error
	Type     CallbackType
}

// Callback is a lifecycle hook.
type Callback interface {
	Type() CallbackType
	Execute(ctx context.Context, cc *CallbackContext) error
}

// FunctionCallback adapts a function to the Callback interface.
//
//	logRoute := NewFunctionCallback(CallbackAfterRoute,
//	    func(ctx context.Context, cc *CallbackContext) error {
//	        log.Printf("%s -> %s", cc.ThreadID, cc.Decision.Next)
//	        return nil
//	    })
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, cc *CallbackContext) error
}

// NewFunctionCallback creates a function based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, cc *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{callbackType: callbackType, fn: fn}
}

// Type returns the lifecycle point this callback is registered for.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute runs the wrapped function.
func (c *FunctionCallback) Execute(ctx context.Context, cc *CallbackContext) error {
	return c.fn(ctx, cc)
}

// CallbackManager holds callbacks per type and runs them in registration
// order. It is safe for concurrent use since one manager serves every
// thread of an Executor.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{callbacks: make(map[CallbackType][]Callback)}
}

// RegisterCallback adds callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.callbacks[callback.Type()] = append(cm.callbacks[callback.Type()], callback)
}

// ExecuteCallbacks runs every callback of callbackType and stops at the
// first error.
func (cm *CallbackManager) ExecuteCallbacks(ctx context.Context, callbackType CallbackType, cc *CallbackContext) error {
	if cm == nil {
		return nil
	}

	cm.mu.RLock()
	callbacks := append([]Callback(nil), cm.callbacks[callbackType]...)
	cm.mu.RUnlock()

	cc.Type = callbackType
	for _, cb := range callbacks {
		if err := cb.Execute(ctx, cc); err != nil {
			return fmt.Errorf("%s callback failed: %w", callbackType, err)
		}
	}

	return nil
}

// HasCallbacks reports whether any callback is registered for callbackType.
func (cm *CallbackManager) HasCallbacks(callbackType CallbackType) bool {
	if cm == nil {
		return false
	}
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return len(cm.callbacks[callbackType]) > 0
}
