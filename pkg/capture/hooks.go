package capture

import (
	"sync"

	"github.com/provtools/provtrace/pkg/provgraph"
)

// Hooks receives capture lifecycle events. The per-statement notification
// runs to completion between statements, before the next statement begins.
// Running statements from inside the notification fails with a
// SESSION_ACTIVE error.
//
// Hooks enable interactive front ends (step displays, progress UIs)
// without coupling the engine to any of them. Register implementations at
// startup with [SetHooks]; the default is a no-op.
type Hooks interface {
	// OnStatement fires after each instrumented statement closes.
	// Err is the statement's execution error, nil on success.
	OnStatement(span provgraph.Span, label string, err error)

	// OnSave fires after the interchange document is written.
	OnSave(path string)

	// OnFinalize fires once the session deactivates.
	OnFinalize(nodes, edges int)
}

// NoopHooks is the default no-op implementation of Hooks.
type NoopHooks struct{}

func (NoopHooks) OnStatement(provgraph.Span, string, error) {}
func (NoopHooks) OnSave(string)                             {}
func (NoopHooks) OnFinalize(int, int)                       {}

var (
	hooksMu sync.RWMutex
	hooks   Hooks = NoopHooks{}
)

// SetHooks registers custom hooks. Call once at application startup,
// before any session is initialized.
func SetHooks(h Hooks) {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	if h != nil {
		hooks = h
	}
}

// ActiveHooks returns the registered hooks.
func ActiveHooks() Hooks {
	hooksMu.RLock()
	defer hooksMu.RUnlock()
	return hooks
}

// ResetHooks restores the no-op default. Primarily useful for testing.
func ResetHooks() {
	hooksMu.Lock()
	defer hooksMu.Unlock()
	hooks = NoopHooks{}
}
