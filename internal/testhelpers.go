package internal

import (
	"context"
	"io"
	"sync"
	"time"
)

// CreateTestSession creates a test session with sample data
func CreateTestSession(id string) *Session {
	messages := []Message{
		{ID: "msg_1", Role: RoleUser, Content: "What is the refund policy?"},
		{
			ID:      "msg_2",
			Role:    RoleAssistant,
			Content: "Refunds are issued within **30 days**.",
			Sources: []SourceRef{
				{DocName: "handbook.pdf", Content: "Refunds are processed within 30 days of purchase.", Score: 0.91},
			},
		},
	}
	return CreateTestSessionWithMessages(id, messages)
}

// CreateTestSessionWithMessages creates a test session with custom messages
func CreateTestSessionWithMessages(id string, messages []Message) *Session {
	turns := 0
	for _, m := range messages {
		if m.Role == RoleUser {
			turns++
		}
	}
	return &Session{
		ID:       id,
		Scope:    Scope{DocID: "a1b2c3", DocName: "handbook.pdf"},
		Messages: messages,
		Metadata: Metadata{
			CreatedAt:    time.Now().UTC().Format(time.RFC3339),
			MessageCount: len(messages),
			TurnCount:    turns,
		},
	}
}

// StreamFunc produces the response body for one chat request
type StreamFunc func(ctx context.Context, req ChatRequest) (io.ReadCloser, error)

// FakeStreamer is a ChatStreamer that records requests and answers them
// with a scripted function
type FakeStreamer struct {
	mu       sync.Mutex
	requests []ChatRequest
	respond  StreamFunc
}

// NewFakeStreamer creates a streamer answering with respond
func NewFakeStreamer(respond StreamFunc) *FakeStreamer {
	return &FakeStreamer{respond: respond}
}

// StreamChat implements ChatStreamer
func (f *FakeStreamer) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	respond := f.respond
	f.mu.Unlock()
	return respond(ctx, req)
}

// Requests returns every request received so far
func (f *FakeStreamer) Requests() []ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ChatRequest(nil), f.requests...)
}

// LastRequest returns the most recent request
func (f *FakeStreamer) LastRequest() (ChatRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		return ChatRequest{}, false
	}
	return f.requests[len(f.requests)-1], true
}
