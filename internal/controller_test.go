package internal

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/kbchat/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"
)

const eventually = 2 * time.Second

func staticStreamer(frames ...string) *FakeStreamer {
	return NewFakeStreamer(func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
		return testutil.BodyReader(frames...), nil
	})
}

// pipeStreamer hands each request a PipeBody the test drives by hand
type pipeStreamer struct {
	*FakeStreamer
	bodies chan *testutil.PipeBody
}

func newPipeStreamer() *pipeStreamer {
	p := &pipeStreamer{bodies: make(chan *testutil.PipeBody, 4)}
	p.FakeStreamer = NewFakeStreamer(func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
		body := testutil.NewPipeBody()
		p.bodies <- body
		return body, nil
	})
	return p
}

func (p *pipeStreamer) next(t *testing.T) *testutil.PipeBody {
	t.Helper()
	select {
	case b := <-p.bodies:
		return b
	case <-time.After(eventually):
		t.Fatal("no stream was opened")
		return nil
	}
}

func newTestController(t *testing.T, streamer ChatStreamer, opts ...ControllerOption) *SessionController {
	t.Helper()
	opts = append([]ControllerOption{WithLogger(zaptest.NewLogger(t))}, opts...)
	c := NewSessionController(streamer, opts...)
	t.Cleanup(c.Close)
	return c
}

func lastMessage(t *testing.T, c *SessionController) Message {
	t.Helper()
	msgs := c.Snapshot().Messages
	require.NotEmpty(t, msgs)
	return msgs[len(msgs)-1]
}

func assertAtMostOneStreaming(t *testing.T, snap Snapshot) {
	t.Helper()
	n := 0
	for _, m := range snap.Messages {
		if m.Streaming {
			n++
		}
	}
	if n > 1 {
		t.Errorf("%d messages streaming at once", n)
	}
}

func TestSendEndToEnd(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	streamer := staticStreamer(
		testutil.SourcesFrame(testutil.Source{DocName: "A.pdf", Content: "...", Score: 0.9}),
		testutil.ContentFrame("Hi"),
		testutil.ContentFrame(" there"),
		testutil.DoneFrame(),
	)
	c := NewSessionController(streamer, WithLogger(zaptest.NewLogger(t)))

	require.True(t, c.Send(context.Background(), "hello"))
	c.Wait()

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, RoleUser, snap.Messages[0].Role)
	assert.Equal(t, "hello", snap.Messages[0].Content)

	answer := snap.Messages[1]
	assert.Equal(t, RoleAssistant, answer.Role)
	assert.Equal(t, "Hi there", answer.Content)
	assert.Len(t, answer.Sources, 1)
	assert.Equal(t, "A.pdf", answer.Sources[0].DocName)
	assert.False(t, answer.Streaming)
	assert.Empty(t, answer.Error)
	assert.False(t, snap.Loading)

	req, ok := streamer.LastRequest()
	require.True(t, ok)
	assert.Equal(t, []ChatTurn{{Role: RoleUser, Content: "hello"}}, req.Messages)
	assert.Equal(t, DefaultTopK, req.TopK)
	assert.True(t, req.Stream)
	assert.Nil(t, req.DocID)

	c.Close()
}

func TestSendConcatenatesDeltasInOrder(t *testing.T) {
	deltas := []string{"The ", "quick ", "brown ", "", "fox ", "jumps", "\n", "🙂"}
	frames := []string{testutil.SourcesFrame()}
	want := ""
	for _, d := range deltas {
		frames = append(frames, testutil.ContentFrame(d))
		want += d
	}
	frames = append(frames, testutil.DoneFrame())

	c := newTestController(t, staticStreamer(frames...))
	require.True(t, c.Send(context.Background(), "go"))
	c.Wait()

	assert.Equal(t, want, lastMessage(t, c).Content)
}

func TestSendRejectsBlankInput(t *testing.T) {
	streamer := staticStreamer(testutil.DoneFrame())
	c := newTestController(t, streamer)

	for _, text := range []string{"", "   ", "\t\n"} {
		assert.False(t, c.Send(context.Background(), text), "Send(%q)", text)
	}
	c.Wait()

	snap := c.Snapshot()
	assert.Empty(t, snap.Messages)
	assert.False(t, snap.Loading)
	assert.Empty(t, streamer.Requests())
}

func TestSendRejectedWhileLoading(t *testing.T) {
	streamer := newPipeStreamer()
	c := newTestController(t, streamer)

	require.True(t, c.Send(context.Background(), "first"))
	body := streamer.next(t)

	assert.True(t, c.Loading())
	assert.False(t, c.Send(context.Background(), "second"))
	assert.Len(t, c.Snapshot().Messages, 2)

	require.True(t, body.Send(testutil.ContentFrame("ok"), testutil.DoneFrame()))
	body.End()
	c.Wait()

	assert.False(t, c.Loading())
	assert.True(t, c.Send(context.Background(), "second"))
	body = streamer.next(t)
	body.Send(testutil.DoneFrame())
	body.End()
	c.Wait()
	assert.Len(t, c.Snapshot().Messages, 4)
}

func TestSendPlaceholderWhileStreaming(t *testing.T) {
	streamer := newPipeStreamer()
	c := newTestController(t, streamer)

	require.True(t, c.Send(context.Background(), "  padded question  "))
	body := streamer.next(t)

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 2)
	assert.Equal(t, "padded question", snap.Messages[0].Content)
	placeholder := snap.Messages[1]
	assert.True(t, placeholder.Streaming)
	assert.Empty(t, placeholder.Content)
	assert.NotNil(t, placeholder.Sources)
	assert.Empty(t, placeholder.Sources)
	assert.True(t, snap.Loading)

	streaming, ok := snap.Streaming()
	require.True(t, ok)
	assert.Equal(t, placeholder.ID, streaming.ID)

	body.Send(testutil.ContentFrame("partial"))
	require.Eventually(t, func() bool {
		return lastMessage(t, c).Content == "partial"
	}, eventually, 5*time.Millisecond)

	body.Send(testutil.DoneFrame())
	body.End()
	c.Wait()
}

func TestSourcesLastWriteWins(t *testing.T) {
	c := newTestController(t, staticStreamer(
		testutil.SourcesFrame(testutil.Source{DocName: "a.pdf"}, testutil.Source{DocName: "b.pdf"}),
		testutil.SourcesFrame(testutil.Source{DocName: "c.pdf", Score: 0.4}),
		testutil.DoneFrame(),
	))
	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()

	sources := lastMessage(t, c).Sources
	require.Len(t, sources, 1)
	assert.Equal(t, "c.pdf", sources[0].DocName)
}

func TestServerErrorFrame(t *testing.T) {
	c := newTestController(t, staticStreamer(
		testutil.ContentFrame("partial answer"),
		testutil.ErrorFrame("model overloaded"),
	))
	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()

	msg := lastMessage(t, c)
	assert.Equal(t, "model overloaded", msg.Error)
	assert.Equal(t, "request failed: model overloaded", msg.Content)
	assert.False(t, msg.Streaming)
	assert.False(t, c.Loading())
}

func TestTransportFailures(t *testing.T) {
	tests := []struct {
		name      string
		respond   StreamFunc
		wantError string
	}{
		{
			name: "non-2xx status",
			respond: func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
				return nil, &StatusError{Op: "chat", StatusCode: 500, Body: "internal"}
			},
			wantError: "HTTP 500",
		},
		{
			name: "dial failure",
			respond: func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
				return nil, &TransportError{Op: "POST", URL: "http://x", Err: errors.New("connection refused")}
			},
			wantError: "connection refused",
		},
		{
			name: "body ends without done",
			respond: func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
				return testutil.BodyReader(testutil.ContentFrame("cut off")), nil
			},
			wantError: ErrStreamClosed.Error(),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestController(t, NewFakeStreamer(tt.respond))
			require.True(t, c.Send(context.Background(), "q"))
			c.Wait()

			msg := lastMessage(t, c)
			assert.Equal(t, tt.wantError, msg.Error)
			assert.Equal(t, FailurePrefix+tt.wantError, msg.Content)
			assert.False(t, msg.Streaming)
			assert.False(t, c.Loading())

			// session stays usable
			assert.True(t, c.Send(context.Background(), "again"))
			c.Wait()
		})
	}
}

func TestStopBlocksLateEvents(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	streamer := newPipeStreamer()
	c := NewSessionController(streamer, WithLogger(zaptest.NewLogger(t)))

	require.True(t, c.Send(context.Background(), "q"))
	body := streamer.next(t)

	require.True(t, body.Send(
		testutil.SourcesFrame(testutil.Source{DocName: "a.pdf"}),
		testutil.ContentFrame("Hel"),
	))
	require.Eventually(t, func() bool {
		return lastMessage(t, c).Content == "Hel"
	}, eventually, 5*time.Millisecond)

	require.True(t, c.Stop())
	stopped := c.Snapshot()
	assert.False(t, stopped.Loading)
	msg := stopped.Messages[len(stopped.Messages)-1]
	assert.Equal(t, "Hel", msg.Content)
	assert.False(t, msg.Streaming)

	// the body ignores cancellation, so these bytes still reach the decoder
	body.Send(
		testutil.ContentFrame("lo"),
		testutil.SourcesFrame(testutil.Source{DocName: "late.pdf"}),
		testutil.ErrorFrame("late failure"),
		testutil.DoneFrame(),
	)
	body.End()
	c.Wait()

	assert.Equal(t, stopped, c.Snapshot())
	assert.False(t, c.Stop(), "second Stop should be a no-op")

	c.Close()
}

func TestStopWithoutStream(t *testing.T) {
	c := newTestController(t, staticStreamer(testutil.DoneFrame()))
	assert.False(t, c.Stop())

	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()
	before := c.Snapshot()
	assert.False(t, c.Stop())
	assert.Equal(t, before, c.Snapshot())
}

func TestStopCancelsRequestContext(t *testing.T) {
	streamer := NewFakeStreamer(func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newTestController(t, streamer)

	require.True(t, c.Send(context.Background(), "q"))
	require.Eventually(t, func() bool { return len(streamer.Requests()) == 1 }, eventually, 5*time.Millisecond)

	require.True(t, c.Stop())
	c.Wait()

	msg := lastMessage(t, c)
	assert.Empty(t, msg.Error)
	assert.Empty(t, msg.Content)
	assert.False(t, msg.Streaming)
}

func TestCallerContextCancellation(t *testing.T) {
	streamer := NewFakeStreamer(func(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	c := newTestController(t, streamer)

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, c.Send(ctx, "q"))
	cancel()
	c.Wait()

	snap := c.Snapshot()
	assert.False(t, snap.Loading)
	msg := snap.Messages[len(snap.Messages)-1]
	assert.Empty(t, msg.Error)
	assert.False(t, msg.Streaming)
}

func TestSetScopeSameIsNoop(t *testing.T) {
	c := newTestController(t, staticStreamer(testutil.ContentFrame("a"), testutil.DoneFrame()),
		WithInitialScope(Scope{DocID: "r1", DocName: "Report.pdf"}))

	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()
	before := c.Snapshot()

	assert.False(t, c.SetScope(Scope{DocID: "r1", DocName: "Report.pdf"}))
	after := c.Snapshot()
	assert.Equal(t, before.Messages, after.Messages)
	assert.Equal(t, before.Loading, after.Loading)
}

func TestSetScopeResetsContext(t *testing.T) {
	streamer := staticStreamer(testutil.ContentFrame("answer"), testutil.DoneFrame())
	c := newTestController(t, streamer)

	require.True(t, c.Send(context.Background(), "first"))
	c.Wait()
	require.True(t, c.Send(context.Background(), "second"))
	c.Wait()
	require.Len(t, c.Snapshot().Messages, 4)

	report := Scope{DocID: "r1", DocName: "Report.pdf"}
	require.True(t, c.SetScope(report))

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 5)
	boundary := snap.Messages[4]
	assert.Equal(t, RoleSystem, boundary.Role)
	assert.Contains(t, boundary.Content, "Report.pdf")
	assert.Equal(t, report, snap.Scope)

	require.True(t, c.Send(context.Background(), "summary"))
	c.Wait()

	req, ok := streamer.LastRequest()
	require.True(t, ok)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, ChatTurn{Role: RoleUser, Content: "summary"}, req.Messages[0])
	require.NotNil(t, req.DocID)
	assert.Equal(t, "r1", *req.DocID)

	boundaries := 0
	for _, m := range c.Snapshot().Messages {
		if m.Role == RoleSystem {
			boundaries++
		}
	}
	assert.Equal(t, 1, boundaries)
}

func TestSetScopeStopsActiveStream(t *testing.T) {
	streamer := newPipeStreamer()
	c := newTestController(t, streamer)

	require.True(t, c.Send(context.Background(), "q"))
	body := streamer.next(t)
	body.Send(testutil.ContentFrame("old scope"))
	require.Eventually(t, func() bool {
		return lastMessage(t, c).Content == "old scope"
	}, eventually, 5*time.Millisecond)

	require.True(t, c.SetScope(Scope{DocID: "x", DocName: "x.md"}))
	assert.False(t, c.Loading())

	body.Send(testutil.ContentFrame(" leaked"), testutil.DoneFrame())
	body.End()
	c.Wait()

	snap := c.Snapshot()
	require.Len(t, snap.Messages, 3)
	assert.Equal(t, "old scope", snap.Messages[1].Content)
	assert.False(t, snap.Messages[1].Streaming)
	assert.Equal(t, RoleSystem, snap.Messages[2].Role)
	assertAtMostOneStreaming(t, snap)
}

func TestClear(t *testing.T) {
	c := newTestController(t, staticStreamer(testutil.ContentFrame("a"), testutil.DoneFrame()))
	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()
	c.SetScope(Scope{DocID: "d"})

	c.Clear()
	assert.Empty(t, c.Snapshot().Messages)
	assert.Empty(t, c.ContextWindow())
	assert.Equal(t, "d", c.Scope().DocID)
}

func TestAtMostOneStreamingMessage(t *testing.T) {
	streamer := newPipeStreamer()
	c := newTestController(t, streamer)
	updates, unsubscribe := c.Subscribe()
	defer unsubscribe()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for snap := range updates {
			assertAtMostOneStreaming(t, snap)
		}
	}()

	for i := 0; i < 5; i++ {
		require.True(t, c.Send(context.Background(), "q"))
		body := streamer.next(t)
		body.Send(testutil.ContentFrame("x"))
		switch i % 3 {
		case 0:
			c.Stop()
		case 1:
			c.SetScope(Scope{DocID: string(rune('a' + i))})
		default:
			body.Send(testutil.DoneFrame())
		}
		body.End()
		c.Wait()
		assertAtMostOneStreaming(t, c.Snapshot())
	}

	unsubscribe()
	wg.Wait()
}

func TestSubscribeLatestWins(t *testing.T) {
	c := newTestController(t, staticStreamer(
		testutil.ContentFrame("a"),
		testutil.ContentFrame("b"),
		testutil.ContentFrame("c"),
		testutil.DoneFrame(),
	))

	updates, unsubscribe := c.Subscribe()
	initial := <-updates
	assert.Empty(t, initial.Messages)
	assert.Equal(t, c.ID(), initial.SessionID)

	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()

	// only the newest state is pending
	latest := <-updates
	assert.False(t, latest.Loading)
	assert.Equal(t, "abc", latest.Messages[1].Content)
	select {
	case extra := <-updates:
		t.Errorf("unexpected extra snapshot: %+v", extra)
	default:
	}

	unsubscribe()
	_, open := <-updates
	assert.False(t, open)
	unsubscribe()
}

func TestCloseClosesSubscriptions(t *testing.T) {
	c := NewSessionController(staticStreamer(testutil.DoneFrame()), WithLogger(zaptest.NewLogger(t)))
	updates, _ := c.Subscribe()
	<-updates
	c.Close()
	_, open := <-updates
	assert.False(t, open)
}

func TestControllerOptions(t *testing.T) {
	streamer := staticStreamer(testutil.DoneFrame())
	c := newTestController(t, streamer, WithTopK(9), WithTopK(0), WithInitialScope(Scope{DocID: "z", DocName: "z.txt"}))

	assert.Equal(t, "z", c.Scope().DocID)
	require.True(t, c.Send(context.Background(), "q"))
	c.Wait()

	req, _ := streamer.LastRequest()
	assert.Equal(t, 9, req.TopK)
	require.NotNil(t, req.DocID)
	assert.Equal(t, "z", *req.DocID)
}

func TestSessionsAreIndependent(t *testing.T) {
	a := newTestController(t, staticStreamer(testutil.DoneFrame()))
	b := newTestController(t, staticStreamer(testutil.DoneFrame()))

	require.True(t, a.Send(context.Background(), "one"))
	a.Wait()

	assert.NotEqual(t, a.ID(), b.ID())
	assert.Empty(t, b.Snapshot().Messages)

	require.True(t, b.Send(context.Background(), "two"))
	b.Wait()
	assert.Equal(t, a.Snapshot().Messages[0].ID, b.Snapshot().Messages[0].ID, "each store numbers from the start")
}
