package internal

import "fmt"

// ScopeManager tracks the active retrieval scope and inserts context
// boundaries when it changes
type ScopeManager struct {
	active Scope
}

// NewScopeManager creates a manager starting at the given scope
func NewScopeManager(initial Scope) *ScopeManager {
	return &ScopeManager{active: initial}
}

// Active returns the current scope
func (m *ScopeManager) Active() Scope {
	return m.active
}

// BoundaryLabel is the text of the system message inserted when switching to scope
func BoundaryLabel(scope Scope) string {
	if scope.IsAll() {
		return "Switched to all documents; new conversation below"
	}
	return fmt.Sprintf("Switched to %q; new conversation below", scope.String())
}

// SetScope switches to next. When next names the same document as the active
// scope nothing happens. Otherwise stop is invoked to end any stream started
// under the old scope, a boundary is appended to store if the conversation is
// non-empty, and next becomes active. Returns whether the scope changed.
func (m *ScopeManager) SetScope(next Scope, stop func(), store *MessageStore) bool {
	if next.Same(m.active) {
		return false
	}

	if stop != nil {
		stop()
	}

	if store.ConversationLen() > 0 {
		store.Append(Message{
			Role:    RoleSystem,
			Content: BoundaryLabel(next),
		})
	}

	m.active = next
	return true
}
