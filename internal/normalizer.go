package internal

import (
	"fmt"
	"time"
)

// Normalizer converts controller snapshots to exportable sessions
type Normalizer struct {
	now       func() time.Time
	createdAt time.Time
	server    string
}

// NewNormalizer creates a Normalizer for a session that started at createdAt
func NewNormalizer(createdAt time.Time, server string) *Normalizer {
	return &Normalizer{now: time.Now, createdAt: createdAt, server: server}
}

// NormalizeSnapshot converts a snapshot to a Session. Streaming flags are
// dropped; boundaries are kept as system entries.
func (n *Normalizer) NormalizeSnapshot(snap Snapshot) (*Session, error) {
	if snap.SessionID == "" {
		return nil, fmt.Errorf("snapshot has no session id")
	}

	messages := make([]Message, 0, len(snap.Messages))
	turns := 0
	for _, msg := range snap.Messages {
		messages = append(messages, n.normalizeMessage(msg))
		if msg.Role == RoleUser {
			turns++
		}
	}

	metadata := Metadata{
		MessageCount: len(messages),
		TurnCount:    turns,
		ExportedAt:   formatTime(n.now()),
		Server:       n.server,
	}
	if !n.createdAt.IsZero() {
		metadata.CreatedAt = formatTime(n.createdAt)
	}

	return &Session{
		ID:       snap.SessionID,
		Scope:    snap.Scope,
		Messages: messages,
		Metadata: metadata,
	}, nil
}

func (n *Normalizer) normalizeMessage(msg Message) Message {
	out := msg.clone()
	out.Streaming = false
	return out
}

// formatTime renders a time as RFC3339 in UTC
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}
