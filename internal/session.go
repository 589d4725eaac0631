package internal

// Session is an exported conversation transcript
type Session struct {
	ID       string    `json:"id" yaml:"id"`
	Scope    Scope     `json:"scope" yaml:"scope"`
	Messages []Message `json:"messages" yaml:"messages"`
	Metadata Metadata  `json:"metadata" yaml:"metadata"`
}

// Metadata contains additional session information
type Metadata struct {
	CreatedAt    string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	ExportedAt   string `json:"exported_at,omitempty" yaml:"exported_at,omitempty"`
	MessageCount int    `json:"message_count" yaml:"message_count"`
	TurnCount    int    `json:"turn_count" yaml:"turn_count"`
	Server       string `json:"server,omitempty" yaml:"server,omitempty"`
}

// Title returns a short human-readable name for the session
func (s *Session) Title() string {
	for _, m := range s.Messages {
		if m.Role == RoleUser {
			return truncate(m.Content, 60)
		}
	}
	return s.ID
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
