package internal

// MessageStore is the ordered conversation log. It is not safe for
// concurrent use; SessionController serializes access.
type MessageStore struct {
	messages []Message
	nextID   uint64
}

// NewMessageStore creates an empty store with its own id sequence
func NewMessageStore() *MessageStore {
	return &MessageStore{}
}

// NewID allocates the next message id. Ids are never reused, even after Clear.
func (s *MessageStore) NewID() MessageID {
	s.nextID++
	return formatMessageID(s.nextID)
}

// Append adds a message to the end of the log, assigning an id if it has none
func (s *MessageStore) Append(msg Message) MessageID {
	if msg.ID == "" {
		msg.ID = s.NewID()
	}
	s.messages = append(s.messages, msg.clone())
	return msg.ID
}

// UpdateByID applies patch to the message with the given id.
// Returns false and does nothing when the id is not present.
func (s *MessageStore) UpdateByID(id MessageID, patch func(*Message)) bool {
	for i := range s.messages {
		if s.messages[i].ID == id {
			patch(&s.messages[i])
			return true
		}
	}
	return false
}

// LastBoundaryIndex returns the index of the most recent system message, or -1
func (s *MessageStore) LastBoundaryIndex() int {
	for i := len(s.messages) - 1; i >= 0; i-- {
		if s.messages[i].IsBoundary() {
			return i
		}
	}
	return -1
}

// ContextWindow returns the messages after the last boundary, system entries excluded
func (s *MessageStore) ContextWindow() []Message {
	start := s.LastBoundaryIndex() + 1
	window := make([]Message, 0, len(s.messages)-start)
	for _, m := range s.messages[start:] {
		if m.Role == RoleSystem {
			continue
		}
		window = append(window, m.clone())
	}
	return window
}

// Clear drops every message
func (s *MessageStore) Clear() {
	s.messages = nil
}

// Len returns the number of messages, boundaries included
func (s *MessageStore) Len() int {
	return len(s.messages)
}

// ConversationLen counts non-system messages
func (s *MessageStore) ConversationLen() int {
	n := 0
	for _, m := range s.messages {
		if m.Role != RoleSystem {
			n++
		}
	}
	return n
}

// StreamingCount counts messages flagged as streaming
func (s *MessageStore) StreamingCount() int {
	n := 0
	for _, m := range s.messages {
		if m.Streaming {
			n++
		}
	}
	return n
}

// ClearStreaming unsets the streaming flag wherever it is set
func (s *MessageStore) ClearStreaming() {
	for i := range s.messages {
		s.messages[i].Streaming = false
	}
}

// Messages returns a deep copy of the log
func (s *MessageStore) Messages() []Message {
	out := make([]Message, len(s.messages))
	for i, m := range s.messages {
		out[i] = m.clone()
	}
	return out
}
