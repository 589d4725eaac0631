package testutil

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// Document is the wire shape of a listed document
type Document struct {
	DocID      string `json:"doc_id"`
	DocName    string `json:"doc_name"`
	DocType    string `json:"doc_type"`
	ChunkCount int    `json:"chunk_count"`
	CreatedAt  string `json:"created_at"`
}

// MockServer is an httptest knowledge-base backend. Handlers can be replaced
// per test; every request body sent to /chat/stream is recorded.
type MockServer struct {
	*httptest.Server

	mu        sync.Mutex
	documents []Document
	chats     []map[string]interface{}
	uploads   []string
	deleted   []string
	listCalls int

	// ChatFrames is the body served for every chat request
	ChatFrames []string
	// ChatStatus, when non-zero, makes chat requests fail with that status
	ChatStatus int
	// ListStatus, when non-zero, makes document listing fail with that status
	ListStatus int
}

// NewMockServer starts a backend serving docs under /api
func NewMockServer(t *testing.T, docs ...Document) *MockServer {
	t.Helper()
	m := &MockServer{
		documents:  append([]Document(nil), docs...),
		ChatFrames: []string{SourcesFrame(), ContentFrame("ok"), DoneFrame()},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/health", m.handleHealth)
	mux.HandleFunc("/api/chat/stream", m.handleChat)
	mux.HandleFunc("/api/documents/list", m.handleList)
	mux.HandleFunc("/api/documents/upload", m.handleUpload)
	mux.HandleFunc("/api/documents/", m.handleDocument)

	m.Server = httptest.NewServer(mux)
	t.Cleanup(m.Close)
	return m
}

// BaseURL is the API root clients should be pointed at
func (m *MockServer) BaseURL() string {
	return m.URL + "/api"
}

// ChatRequests returns the decoded chat request bodies received so far
func (m *MockServer) ChatRequests() []map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]map[string]interface{}(nil), m.chats...)
}

// Uploads returns the filenames uploaded so far
func (m *MockServer) Uploads() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.uploads...)
}

// Deleted returns the document ids deleted so far
func (m *MockServer) Deleted() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.deleted...)
}

// ListCalls returns how many times the document list was fetched
func (m *MockServer) ListCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listCalls
}

// SetChat replaces the chat response under the server lock
func (m *MockServer) SetChat(status int, frames ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ChatStatus = status
	m.ChatFrames = frames
}

// SetListStatus makes listing fail with status, or succeed when status is zero
func (m *MockServer) SetListStatus(status int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ListStatus = status
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func (m *MockServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "running"})
}

func (m *MockServer) handleChat(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	var body map[string]interface{}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeDetail(w, http.StatusUnprocessableEntity, err.Error())
		return
	}

	m.mu.Lock()
	m.chats = append(m.chats, body)
	status := m.ChatStatus
	frames := append([]string(nil), m.ChatFrames...)
	m.mu.Unlock()

	if status != 0 {
		writeDetail(w, status, "chat failed")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	for _, f := range frames {
		_, _ = io.WriteString(w, f)
		if flusher != nil {
			flusher.Flush()
		}
	}
}

func (m *MockServer) handleList(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	m.listCalls++
	status := m.ListStatus
	docs := append([]Document{}, m.documents...)
	m.mu.Unlock()

	if status != 0 {
		writeDetail(w, status, "list failed")
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (m *MockServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeDetail(w, http.StatusBadRequest, err.Error())
		return
	}
	defer func() { _ = file.Close() }()
	data, _ := io.ReadAll(file)

	doc := Document{
		DocID:      "doc-" + header.Filename,
		DocName:    header.Filename,
		DocType:    strings.TrimPrefix(filepath.Ext(header.Filename), "."),
		ChunkCount: 1 + len(data)/500,
	}

	m.mu.Lock()
	m.uploads = append(m.uploads, header.Filename)
	m.documents = append(m.documents, doc)
	m.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id":      doc.DocID,
		"doc_name":    doc.DocName,
		"chunk_count": doc.ChunkCount,
		"message":     "uploaded",
	})
}

func (m *MockServer) find(id string) (Document, bool) {
	for _, d := range m.documents {
		if d.DocID == id {
			return d, true
		}
	}
	return Document{}, false
}

func (m *MockServer) handleDocument(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	id, preview := strings.CutSuffix(rest, "/preview")

	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.find(id)
	if !ok {
		writeDetail(w, http.StatusNotFound, "document not found")
		return
	}

	switch {
	case preview && r.Method == http.MethodGet:
		chunks := make([]map[string]interface{}, 0, doc.ChunkCount)
		for i := 0; i < doc.ChunkCount; i++ {
			chunks = append(chunks, map[string]interface{}{
				"chunk_index": i,
				"content":     doc.DocName + " chunk",
			})
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"doc_id":      doc.DocID,
			"doc_name":    doc.DocName,
			"doc_type":    doc.DocType,
			"chunk_count": doc.ChunkCount,
			"chunks":      chunks,
		})
	case !preview && r.Method == http.MethodDelete:
		kept := m.documents[:0]
		for _, d := range m.documents {
			if d.DocID != id {
				kept = append(kept, d)
			}
		}
		m.documents = kept
		m.deleted = append(m.deleted, id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "deleted", "doc_id": id})
	default:
		writeDetail(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}
