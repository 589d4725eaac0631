package testutil

import (
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// Source is the wire shape of one retrieved snippet
type Source struct {
	DocName string  `json:"doc_name"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

func frame(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return "data: " + string(data) + "\n\n"
}

// SourcesFrame builds a sources frame
func SourcesFrame(sources ...Source) string {
	if sources == nil {
		sources = []Source{}
	}
	return frame(map[string]interface{}{"type": "sources", "sources": sources})
}

// ContentFrame builds a content frame carrying delta
func ContentFrame(delta string) string {
	return frame(map[string]interface{}{"type": "content", "content": delta})
}

// DoneFrame builds a done frame
func DoneFrame() string {
	return frame(map[string]string{"type": "done"})
}

// ErrorFrame builds an error frame
func ErrorFrame(message string) string {
	return frame(map[string]string{"type": "error", "message": message})
}

// Body joins frames into a complete response body
func Body(frames ...string) string {
	return strings.Join(frames, "")
}

// BodyReader returns a response body that yields frames and then EOF
func BodyReader(frames ...string) io.ReadCloser {
	return io.NopCloser(strings.NewReader(Body(frames...)))
}

// ChunkedReader yields data in pieces of at most size bytes, splitting
// frames at arbitrary points
type ChunkedReader struct {
	data []byte
	size int
}

// NewChunkedReader splits data into chunks of size bytes
func NewChunkedReader(data string, size int) *ChunkedReader {
	if size <= 0 {
		size = 1
	}
	return &ChunkedReader{data: []byte(data), size: size}
}

func (r *ChunkedReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.size
	if n > len(p) {
		n = len(p)
	}
	if n > len(r.data) {
		n = len(r.data)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

// Close is a no-op
func (r *ChunkedReader) Close() error {
	return nil
}

// PipeBody is a response body the test writes frames into while the reader
// consumes them. Reads ignore request cancellation, like a body whose
// connection has not noticed the cancel yet.
type PipeBody struct {
	r      *io.PipeReader
	w      *io.PipeWriter
	once   sync.Once
	closed chan struct{}
}

// NewPipeBody creates an open body
func NewPipeBody() *PipeBody {
	r, w := io.Pipe()
	return &PipeBody{r: r, w: w, closed: make(chan struct{})}
}

// Send writes frames to the body. It blocks until the reader has taken them
// and returns false if the reader has gone away.
func (b *PipeBody) Send(frames ...string) bool {
	_, err := b.w.Write([]byte(Body(frames...)))
	return err == nil
}

// End closes the writer side; the reader sees EOF
func (b *PipeBody) End() {
	_ = b.w.Close()
}

// Read implements io.Reader
func (b *PipeBody) Read(p []byte) (int, error) {
	return b.r.Read(p)
}

// Close implements io.Closer for the reader side
func (b *PipeBody) Close() error {
	b.once.Do(func() { close(b.closed) })
	return b.r.Close()
}

// Closed is closed once the reader side has closed the body
func (b *PipeBody) Closed() <-chan struct{} {
	return b.closed
}
