package cmd

import (
	"bytes"
	"strings"
	"testing"

	"github.com/iksnae/kbchat/internal"
	"github.com/stretchr/testify/assert"
)

func TestAnswerViewStreamsDeltas(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)
	view := newAnswerView(r, "msg_2", false)

	snap := func(content string, streaming bool, sources ...internal.SourceRef) internal.Snapshot {
		return internal.Snapshot{Messages: []internal.Message{
			{ID: "msg_1", Role: internal.RoleUser, Content: "Q"},
			{ID: "msg_2", Role: internal.RoleAssistant, Content: content, Streaming: streaming, Sources: sources},
		}}
	}

	assert.False(t, view.Update(snap("", true)))
	assert.False(t, view.Update(snap("Refunds are", true)))
	assert.False(t, view.Update(snap("Refunds are", true)))
	assert.False(t, view.Update(snap("Refunds are issued.", true)))
	assert.True(t, view.Update(snap("Refunds are issued.", false,
		internal.SourceRef{DocName: "handbook.pdf", Content: "Refunds\n  are   issued", Score: 0.876})))

	assert.Equal(t, "Refunds are issued.\nSources:\n  1. handbook.pdf (88%) Refunds are issued\n", buf.String())
}

func TestAnswerViewEndings(t *testing.T) {
	tests := []struct {
		name     string
		markdown bool
		msg      *internal.Message
		want     string
	}{
		{
			name: "failure replaces partial text",
			msg:  &internal.Message{ID: "msg_2", Content: internal.FailurePrefix + "HTTP 500", Error: "HTTP 500"},
			want: internal.FailurePrefix + "HTTP 500\n",
		},
		{
			name: "message cleared",
			msg:  nil,
			want: "",
		},
		{
			name:     "markdown rendered at the end",
			markdown: true,
			msg:      &internal.Message{ID: "msg_2", Content: "**bold** answer"},
			want:     "**bold** answer\n",
		},
		{
			name: "stopped before any text",
			msg:  &internal.Message{ID: "msg_2"},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			view := newAnswerView(newRenderer(&buf), "msg_2", tt.markdown)

			var snap internal.Snapshot
			if tt.msg != nil {
				snap.Messages = []internal.Message{*tt.msg}
			}
			assert.True(t, view.Update(snap))
			assert.Equal(t, tt.want, buf.String())
		})
	}
}

func TestRendererDocuments(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Documents(nil, internal.AllDocuments)
	assert.Equal(t, "No documents indexed.\n", buf.String())

	buf.Reset()
	docs := []internal.DocumentInfo{
		{DocID: "a1b2c3", DocName: "handbook.pdf", DocType: "pdf", ChunkCount: 12},
		{DocID: "d4e5f6", DocName: "release-notes.md", DocType: "md", ChunkCount: 4},
	}
	r.Documents(docs, internal.Scope{DocID: "d4e5f6"})

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	assert.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[1], "  handbook.pdf"))
	assert.True(t, strings.HasPrefix(lines[2], "* release-notes.md"), "active scope is marked")
	assert.Contains(t, lines[1], "unknown")
}

func TestRendererPromptAndBoundary(t *testing.T) {
	var buf bytes.Buffer
	r := newRenderer(&buf)

	r.Prompt(internal.AllDocuments)
	r.Prompt(internal.Scope{DocID: "a1b2c3", DocName: "handbook.pdf"})
	r.Boundary("Switched")

	assert.Equal(t, "kb> handbook.pdf> ── Switched ──\n", buf.String())
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{in: "short", n: 10, want: "short"},
		{in: "  spaced \n\t out  ", n: 20, want: "spaced out"},
		{in: "abcdefghij", n: 4, want: "abcd..."},
		{in: "héllo wörld", n: 5, want: "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, snippet(tt.in, tt.n))
		})
	}
}
