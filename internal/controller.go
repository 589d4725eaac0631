package internal

import (
	"context"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTopK is the number of snippets requested per question
const DefaultTopK = 5

// FailurePrefix starts the content of an assistant message whose stream failed
const FailurePrefix = "request failed: "

// ChatStreamer opens a streaming chat response
type ChatStreamer interface {
	StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error)
}

// ControllerOption configures a SessionController
type ControllerOption func(*SessionController)

// WithTopK sets the number of snippets requested per question
func WithTopK(k int) ControllerOption {
	return func(c *SessionController) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithInitialScope starts the session restricted to scope
func WithInitialScope(scope Scope) ControllerOption {
	return func(c *SessionController) {
		c.scopes = NewScopeManager(scope)
	}
}

// WithLogger sets the structured logger
func WithLogger(l *zap.Logger) ControllerOption {
	return func(c *SessionController) {
		if l != nil {
			c.log = l
		}
	}
}

// activeStream is the handle of the one stream allowed in flight
type activeStream struct {
	id      MessageID
	decoder *StreamDecoder
	cancel  context.CancelFunc
}

// SessionController owns one conversation: it sends questions, applies
// streamed answers, and handles stop, clear and scope changes. All state
// changes happen under mu, so stream events and API calls are serialized.
type SessionController struct {
	mu       sync.Mutex
	id       string
	store    *MessageStore
	scopes   *ScopeManager
	streamer ChatStreamer
	topK     int
	loading  bool
	active   *activeStream
	streams  sync.WaitGroup
	subs     map[uint64]chan Snapshot
	nextSub  uint64
	log      *zap.Logger
}

// NewSessionController creates a controller with an empty conversation
func NewSessionController(streamer ChatStreamer, opts ...ControllerOption) *SessionController {
	c := &SessionController{
		id:       uuid.NewString(),
		store:    NewMessageStore(),
		scopes:   NewScopeManager(AllDocuments),
		streamer: streamer,
		topK:     DefaultTopK,
		subs:     make(map[uint64]chan Snapshot),
		log:      Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.With(zap.String("session", c.id))
	return c
}

// ID returns the session identifier
func (c *SessionController) ID() string {
	return c.id
}

// Loading reports whether a stream is in flight
func (c *SessionController) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Scope returns the active retrieval scope
func (c *SessionController) Scope() Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scopes.Active()
}

// Send submits a question. It returns false without touching any state when
// the trimmed text is empty or a stream is already in flight.
func (c *SessionController) Send(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.loading {
		return false
	}

	c.store.Append(Message{Role: RoleUser, Content: text})
	window := c.store.ContextWindow()
	assistantID := c.store.Append(Message{
		Role:      RoleAssistant,
		Sources:   []SourceRef{},
		Streaming: true,
	})
	c.loading = true

	scope := c.scopes.Active()
	req := NewChatRequest(window, c.topK, scope)

	streamCtx, cancel := context.WithCancel(ctx)
	stream := &activeStream{
		id:      assistantID,
		decoder: NewStreamDecoder(),
		cancel:  cancel,
	}
	stream.decoder.Begin()
	c.active = stream

	c.log.Debug("stream opening",
		zap.String("message_id", string(assistantID)),
		zap.String("doc_id", scope.DocID),
		zap.Int("context", len(window)),
	)

	c.streams.Add(1)
	go c.run(streamCtx, stream, req)

	c.publishLocked()
	return true
}

// run performs the request and feeds the body through the decoder
func (c *SessionController) run(ctx context.Context, s *activeStream, req ChatRequest) {
	defer c.streams.Done()
	defer s.cancel()

	body, err := c.streamer.StreamChat(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			s.decoder.Cancel()
			c.finish(s, StateCancelled, nil)
			return
		}
		s.decoder.Fail()
		c.finish(s, StateErrored, err)
		return
	}
	defer func() { _ = body.Close() }()

	state, err := s.decoder.Run(ctx, body, func(ev Event) {
		c.apply(s, ev)
	})
	c.finish(s, state, err)
}

// apply folds one decoded event into the assistant message
func (c *SessionController) apply(s *activeStream, ev Event) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != s || s.decoder.Cancelled() {
		return
	}

	switch e := ev.(type) {
	case SourcesEvent:
		c.store.UpdateByID(s.id, func(m *Message) {
			m.Sources = append([]SourceRef{}, e.Sources...)
		})
	case ContentEvent:
		c.store.UpdateByID(s.id, func(m *Message) {
			m.Content += e.Delta
		})
	case DoneEvent:
		c.store.UpdateByID(s.id, func(m *Message) {
			m.Streaming = false
		})
		c.releaseLocked()
		c.log.Debug("stream done", zap.String("message_id", string(s.id)))
	case ErrorEvent:
		c.failLocked(s, e.Message)
	}
	c.publishLocked()
}

// finish handles stream endings that did not arrive as a terminal frame
func (c *SessionController) finish(s *activeStream, state StreamState, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.active != s {
		return
	}

	switch {
	case s.decoder.Cancelled() || state == StateCancelled:
		// request context was cancelled by the caller rather than Stop
		c.store.ClearStreaming()
		c.releaseLocked()
	case err != nil:
		c.failLocked(s, StreamFailureMessage(err))
	default:
		c.store.UpdateByID(s.id, func(m *Message) {
			m.Streaming = false
		})
		c.releaseLocked()
	}
	c.publishLocked()
}

func (c *SessionController) failLocked(s *activeStream, msg string) {
	c.store.UpdateByID(s.id, func(m *Message) {
		m.Error = msg
		m.Content = FailurePrefix + msg
		m.Streaming = false
	})
	c.releaseLocked()
	c.log.Warn("stream failed", zap.String("message_id", string(s.id)), zap.String("error", msg))
}

func (c *SessionController) releaseLocked() {
	c.loading = false
	c.active = nil
}

// Stop cancels the stream in flight. Message content is left as received.
// Returns false when there was nothing to stop.
func (c *SessionController) Stop() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	stopped := c.stopLocked()
	if stopped {
		c.publishLocked()
	}
	return stopped
}

func (c *SessionController) stopLocked() bool {
	s := c.active
	if s == nil {
		return false
	}
	s.decoder.Cancel()
	s.cancel()
	c.store.ClearStreaming()
	c.releaseLocked()
	c.log.Debug("stream stopped", zap.String("message_id", string(s.id)))
	return true
}

// Clear empties the conversation. Callers stop an active stream first.
func (c *SessionController) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.store.Clear()
	c.publishLocked()
}

// SetScope changes the retrieval scope, stopping any active stream and
// inserting a boundary so later requests only carry the new conversation.
func (c *SessionController) SetScope(scope Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	changed := c.scopes.SetScope(scope, func() { c.stopLocked() }, c.store)
	if changed {
		c.log.Debug("scope changed", zap.String("doc_id", scope.DocID), zap.String("doc_name", scope.DocName))
		c.publishLocked()
	}
	return changed
}

// ContextWindow returns the turns the next request would carry, before the new question
func (c *SessionController) ContextWindow() []Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.ContextWindow()
}

// Wait blocks until every stream goroutine has exited
func (c *SessionController) Wait() {
	c.streams.Wait()
}

// Close stops any stream, waits for it, and closes all subscriptions
func (c *SessionController) Close() {
	c.Stop()
	c.Wait()

	c.mu.Lock()
	defer c.mu.Unlock()
	for key, ch := range c.subs {
		delete(c.subs, key)
		close(ch)
	}
}

// Snapshot returns a copy of the current session state
func (c *SessionController) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *SessionController) snapshotLocked() Snapshot {
	return Snapshot{
		SessionID: c.id,
		Messages:  c.store.Messages(),
		Scope:     c.scopes.Active(),
		Loading:   c.loading,
	}
}

// Subscribe registers an observer. The channel always holds the latest
// snapshot; a slow reader skips intermediate states but never misses the last.
// The returned func unsubscribes and closes the channel.
func (c *SessionController) Subscribe() (<-chan Snapshot, func()) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ch := make(chan Snapshot, 1)
	ch <- c.snapshotLocked()
	key := c.nextSub
	c.nextSub++
	c.subs[key] = ch

	return ch, func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		if sub, ok := c.subs[key]; ok {
			delete(c.subs, key)
			close(sub)
		}
	}
}

func (c *SessionController) publishLocked() {
	if len(c.subs) == 0 {
		return
	}
	snap := c.snapshotLocked()
	for _, ch := range c.subs {
		select {
		case ch <- snap:
		default:
			// replace the stale pending snapshot
			select {
			case <-ch:
			default:
			}
			ch <- snap
		}
	}
}
