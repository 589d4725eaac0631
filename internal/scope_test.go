package internal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScopeManagerSameScopeIsNoop(t *testing.T) {
	store := NewMessageStore()
	store.Append(Message{Role: RoleUser, Content: "q"})
	m := NewScopeManager(Scope{DocID: "a", DocName: "a.pdf"})

	stopped := false
	changed := m.SetScope(Scope{DocID: "a", DocName: "renamed.pdf"}, func() { stopped = true }, store)

	assert.False(t, changed)
	assert.False(t, stopped)
	assert.Equal(t, 1, store.Len())
}

func TestScopeManagerSetScope(t *testing.T) {
	tests := []struct {
		name         string
		conversation []Message
		next         Scope
		wantBoundary bool
		wantLabel    string
	}{
		{
			name: "empty conversation adds no boundary",
			next: Scope{DocID: "a", DocName: "a.pdf"},
		},
		{
			name:         "switch to document",
			conversation: []Message{{Role: RoleUser, Content: "q"}, {Role: RoleAssistant, Content: "a"}},
			next:         Scope{DocID: "a", DocName: "a.pdf"},
			wantBoundary: true,
			wantLabel:    `Switched to "a.pdf"; new conversation below`,
		},
		{
			name:         "only boundaries counts as empty",
			conversation: []Message{{Role: RoleSystem, Content: "old boundary"}},
			next:         Scope{DocID: "a", DocName: "a.pdf"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := NewMessageStore()
			for _, msg := range tt.conversation {
				store.Append(msg)
			}
			before := store.Len()
			m := NewScopeManager(AllDocuments)

			stops := 0
			changed := m.SetScope(tt.next, func() { stops++ }, store)

			require.True(t, changed)
			assert.Equal(t, 1, stops)
			assert.Equal(t, tt.next, m.Active())
			if !tt.wantBoundary {
				assert.Equal(t, before, store.Len())
				return
			}
			msgs := store.Messages()
			require.Len(t, msgs, before+1)
			last := msgs[len(msgs)-1]
			assert.Equal(t, RoleSystem, last.Role)
			assert.Equal(t, tt.wantLabel, last.Content)
			assert.Empty(t, store.ContextWindow())
		})
	}
}

func TestScopeManagerBackToAll(t *testing.T) {
	store := NewMessageStore()
	store.Append(Message{Role: RoleUser, Content: "q"})
	m := NewScopeManager(Scope{DocID: "a", DocName: "a.pdf"})

	require.True(t, m.SetScope(AllDocuments, nil, store))
	assert.True(t, m.Active().IsAll())

	msgs := store.Messages()
	assert.Equal(t, "Switched to all documents; new conversation below", msgs[len(msgs)-1].Content)
}

func TestBoundaryLabelFallsBackToID(t *testing.T) {
	assert.Equal(t, `Switched to "x9"; new conversation below`, BoundaryLabel(Scope{DocID: "x9"}))
}
