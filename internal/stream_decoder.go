package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
)

const framePrefix = "data: "

// StreamState is the lifecycle state of one chat stream
type StreamState int

const (
	StateIdle StreamState = iota
	StateRequesting
	StateStreaming
	StateDone
	StateErrored
	StateCancelled
)

var streamStateNames = map[StreamState]string{
	StateIdle:       "idle",
	StateRequesting: "requesting",
	StateStreaming:  "streaming",
	StateDone:       "done",
	StateErrored:    "errored",
	StateCancelled:  "cancelled",
}

func (s StreamState) String() string {
	if name, ok := streamStateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether the state ends the stream's lifetime
func (s StreamState) Terminal() bool {
	return s == StateDone || s == StateErrored || s == StateCancelled
}

// Event is a decoded protocol frame. The set of implementations is closed.
type Event interface {
	eventType() string
}

// SourcesEvent carries the retrieved snippets for the answer
type SourcesEvent struct {
	Sources []SourceRef
}

// ContentEvent carries a text delta to append to the answer
type ContentEvent struct {
	Delta string
}

// DoneEvent signals successful completion
type DoneEvent struct{}

// ErrorEvent signals a server-reported failure
type ErrorEvent struct {
	Message string
}

func (SourcesEvent) eventType() string { return "sources" }
func (ContentEvent) eventType() string { return "content" }
func (DoneEvent) eventType() string    { return "done" }
func (ErrorEvent) eventType() string   { return "error" }

// EventHandler consumes decoded events in arrival order
type EventHandler func(Event)

// wireFrame is the JSON shape carried after the "data: " prefix
type wireFrame struct {
	Type    string      `json:"type"`
	Content *string     `json:"content"`
	Sources []SourceRef `json:"sources"`
	Message string      `json:"message"`
}

// StreamDecoder turns a chunked response body into protocol events.
// One decoder serves exactly one stream.
type StreamDecoder struct {
	mu        sync.Mutex
	buf       []byte
	state     StreamState
	cancelled bool
}

// NewStreamDecoder creates a decoder in the Idle state
func NewStreamDecoder() *StreamDecoder {
	return &StreamDecoder{state: StateIdle}
}

// State returns the current lifecycle state
func (d *StreamDecoder) State() StreamState {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Begin marks the request as sent and awaiting a response body
func (d *StreamDecoder) Begin() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == StateIdle {
		d.state = StateRequesting
	}
}

// Cancel sets the cancellation token. Once set, no further events are yielded.
func (d *StreamDecoder) Cancel() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cancelled = true
	d.buf = nil
	if !d.state.Terminal() {
		d.state = StateCancelled
	}
}

// Cancelled reports whether the cancellation token is set
func (d *StreamDecoder) Cancelled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cancelled
}

// Fail moves a live stream to Errored, e.g. when the request itself failed
func (d *StreamDecoder) Fail() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.state.Terminal() {
		d.state = StateErrored
	}
}

// Feed appends a chunk and returns the events of every complete line in it.
// A trailing partial line stays buffered until the next chunk.
func (d *StreamDecoder) Feed(chunk []byte) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelled || d.state.Terminal() {
		return nil
	}
	if len(chunk) == 0 {
		return nil
	}
	if d.state == StateIdle || d.state == StateRequesting {
		d.state = StateStreaming
	}

	d.buf = append(d.buf, chunk...)

	var events []Event
	for {
		i := bytes.IndexByte(d.buf, '\n')
		if i < 0 {
			break
		}
		line := string(d.buf[:i])
		d.buf = d.buf[i+1:]

		ev, ok := decodeLine(line)
		if !ok {
			continue
		}
		events = append(events, ev)
		if d.applyTerminal(ev) {
			d.buf = nil
			break
		}
	}
	if len(d.buf) == 0 {
		d.buf = nil
	}
	return events
}

// Flush decodes whatever partial line is left once the body has ended
func (d *StreamDecoder) Flush() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.cancelled || d.state.Terminal() || len(d.buf) == 0 {
		d.buf = nil
		return nil
	}
	line := string(d.buf)
	d.buf = nil
	ev, ok := decodeLine(line)
	if !ok {
		return nil
	}
	d.applyTerminal(ev)
	return []Event{ev}
}

// applyTerminal records terminal frames; d.mu must be held
func (d *StreamDecoder) applyTerminal(ev Event) bool {
	switch ev.(type) {
	case DoneEvent:
		d.state = StateDone
		return true
	case ErrorEvent:
		d.state = StateErrored
		return true
	}
	return false
}

// Run reads r until a terminal frame, a read failure, or cancellation, handing
// each event to h. It returns the terminal state reached.
func (d *StreamDecoder) Run(ctx context.Context, r io.Reader, h EventHandler) (StreamState, error) {
	d.Begin()
	chunk := make([]byte, 4096)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			if st, done := d.dispatch(d.Feed(chunk[:n]), h); done {
				return st, nil
			}
		}
		if err == nil {
			continue
		}
		if d.Cancelled() {
			return StateCancelled, nil
		}
		if errors.Is(err, io.EOF) {
			if st, done := d.dispatch(d.Flush(), h); done {
				return st, nil
			}
			d.Fail()
			return StateErrored, ErrStreamClosed
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			d.Cancel()
			return StateCancelled, nil
		}
		d.Fail()
		return StateErrored, fmt.Errorf("read stream: %w", err)
	}
}

// dispatch delivers events, consulting the cancellation token before each one
func (d *StreamDecoder) dispatch(events []Event, h EventHandler) (StreamState, bool) {
	for _, ev := range events {
		if d.Cancelled() {
			return StateCancelled, true
		}
		h(ev)
	}
	if d.Cancelled() {
		return StateCancelled, true
	}
	st := d.State()
	return st, st.Terminal()
}

// decodeLine parses one line of the body. Lines that are not well-formed
// frames are dropped.
func decodeLine(line string) (Event, bool) {
	line = strings.TrimRight(line, "\r")
	if !strings.HasPrefix(line, framePrefix) {
		return nil, false
	}
	payload := strings.TrimSpace(line[len(framePrefix):])
	if payload == "" {
		return nil, false
	}

	var f wireFrame
	if err := json.Unmarshal([]byte(payload), &f); err != nil {
		LogDebug("%v", &FrameError{Line: payload, Err: err})
		return nil, false
	}

	switch f.Type {
	case "sources":
		sources := f.Sources
		if sources == nil {
			sources = []SourceRef{}
		}
		return SourcesEvent{Sources: sources}, true
	case "content":
		if f.Content == nil {
			return ContentEvent{}, true
		}
		return ContentEvent{Delta: *f.Content}, true
	case "done":
		return DoneEvent{}, true
	case "error":
		msg := f.Message
		if msg == "" {
			msg = "unknown error"
		}
		return ErrorEvent{Message: msg}, true
	default:
		LogDebug("%v", &FrameError{Line: payload, Err: fmt.Errorf("unknown frame type %q", f.Type)})
		return nil, false
	}
}
