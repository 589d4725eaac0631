package internal

import (
	"fmt"
	"time"
)

// Role identifies who authored a message
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// MessageID is an opaque per-session message identifier
type MessageID string

// Message is one turn in the conversation log
type Message struct {
	ID        MessageID   `json:"id" yaml:"id"`
	Role      Role        `json:"role" yaml:"role"`
	Content   string      `json:"content" yaml:"content"`
	Sources   []SourceRef `json:"sources,omitempty" yaml:"sources,omitempty"`
	Streaming bool        `json:"streaming,omitempty" yaml:"streaming,omitempty"`
	Error     string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// IsBoundary reports whether the message is a scope boundary marker
func (m Message) IsBoundary() bool {
	return m.Role == RoleSystem
}

func (m Message) clone() Message {
	out := m
	if m.Sources != nil {
		out.Sources = make([]SourceRef, len(m.Sources))
		copy(out.Sources, m.Sources)
	}
	return out
}

// SourceRef is a retrieved snippet the answer is attributed to
type SourceRef struct {
	DocName string  `json:"doc_name" yaml:"doc_name"`
	Content string  `json:"content" yaml:"content"`
	Score   float64 `json:"score" yaml:"score"`
}

// Scope restricts retrieval to one document. An empty DocID means the whole corpus.
type Scope struct {
	DocID   string `json:"doc_id,omitempty" yaml:"doc_id,omitempty"`
	DocName string `json:"doc_name,omitempty" yaml:"doc_name,omitempty"`
}

// AllDocuments is the corpus-wide scope
var AllDocuments = Scope{}

// IsAll reports whether the scope covers the entire corpus
func (s Scope) IsAll() bool {
	return s.DocID == ""
}

// Same compares scopes by document identity
func (s Scope) Same(other Scope) bool {
	return s.DocID == other.DocID
}

// String returns a display name for the scope
func (s Scope) String() string {
	if s.IsAll() {
		return "all documents"
	}
	if s.DocName != "" {
		return s.DocName
	}
	return s.DocID
}

// Snapshot is an immutable copy of session state handed to observers
type Snapshot struct {
	SessionID string    `json:"session_id"`
	Messages  []Message `json:"messages"`
	Scope     Scope     `json:"scope"`
	Loading   bool      `json:"loading"`
}

// Streaming returns the message currently being streamed, if any
func (s Snapshot) Streaming() (Message, bool) {
	for _, m := range s.Messages {
		if m.Streaming {
			return m, true
		}
	}
	return Message{}, false
}

// Find returns the message with the given id
func (s Snapshot) Find(id MessageID) (Message, bool) {
	for _, m := range s.Messages {
		if m.ID == id {
			return m, true
		}
	}
	return Message{}, false
}

// ChatTurn is the wire form of a context message
type ChatTurn struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a streaming chat request
type ChatRequest struct {
	Messages []ChatTurn `json:"messages"`
	TopK     int        `json:"top_k"`
	Stream   bool       `json:"stream"`
	DocID    *string    `json:"doc_id"`
}

// NewChatRequest builds a request from a context window
func NewChatRequest(window []Message, topK int, scope Scope) ChatRequest {
	turns := make([]ChatTurn, 0, len(window))
	for _, m := range window {
		turns = append(turns, ChatTurn{Role: m.Role, Content: m.Content})
	}
	req := ChatRequest{
		Messages: turns,
		TopK:     topK,
		Stream:   true,
	}
	if !scope.IsAll() {
		id := scope.DocID
		req.DocID = &id
	}
	return req
}

// DocumentInfo describes a document in the knowledge base
type DocumentInfo struct {
	DocID      string `json:"doc_id" yaml:"doc_id"`
	DocName    string `json:"doc_name" yaml:"doc_name"`
	DocType    string `json:"doc_type" yaml:"doc_type"`
	ChunkCount int    `json:"chunk_count" yaml:"chunk_count"`
	CreatedAt  string `json:"created_at" yaml:"created_at"`
}

// Scope returns a retrieval scope restricted to this document
func (d DocumentInfo) Scope() Scope {
	return Scope{DocID: d.DocID, DocName: d.DocName}
}

// GetCreatedAt parses the server timestamp, returning the zero time when absent
func (d DocumentInfo) GetCreatedAt() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, d.CreatedAt); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DocumentChunk is one indexed chunk of a document
type DocumentChunk struct {
	ChunkIndex int    `json:"chunk_index"`
	Content    string `json:"content"`
}

// DocumentPreview holds all chunks of a document
type DocumentPreview struct {
	DocID      string          `json:"doc_id"`
	DocName    string          `json:"doc_name"`
	DocType    string          `json:"doc_type"`
	ChunkCount int             `json:"chunk_count"`
	Chunks     []DocumentChunk `json:"chunks"`
}

// UploadResponse is returned after a document is indexed
type UploadResponse struct {
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	ChunkCount int    `json:"chunk_count"`
	Message    string `json:"message"`
}

// formatMessageID renders a store-local sequence number as a message id
func formatMessageID(n uint64) MessageID {
	return MessageID(fmt.Sprintf("msg_%d", n))
}
