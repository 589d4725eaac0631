package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// MaxUploadSize is the largest document the backend accepts
const MaxUploadSize = 20 << 20

// AllowedExtensions lists the document types the backend can index
var AllowedExtensions = []string{".pdf", ".docx", ".doc", ".txt", ".md"}

// ErrUnsupportedType is returned for uploads with an extension the backend rejects
var ErrUnsupportedType = errors.New("unsupported file type")

// ErrFileTooLarge is returned for uploads over MaxUploadSize
var ErrFileTooLarge = errors.New("file too large")

// HealthStatus is the backend health response
type HealthStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// OK reports whether the backend declared itself healthy
func (h HealthStatus) OK() bool {
	return h.Status == "ok"
}

// Client talks to the knowledge-base backend
type Client struct {
	baseURL    string
	http       *http.Client
	streamHTTP *http.Client
}

// NewClient creates a client for baseURL. Timeout bounds non-streaming calls;
// streams are bounded only by their context.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		http:       &http.Client{Timeout: timeout},
		streamHTTP: &http.Client{},
	}
}

// BaseURL returns the API root
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) endpoint(parts ...string) string {
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	return c.baseURL + "/" + strings.Join(escaped, "/")
}

// StreamChat opens a chat stream. The caller closes the returned body.
func (c *Client) StreamChat(ctx context.Context, req ChatRequest) (io.ReadCloser, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w", err)
	}

	target := c.endpoint("chat", "stream")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := c.streamHTTP.Do(httpReq)
	if err != nil {
		return nil, &TransportError{Op: "stream", URL: target, Err: unwrapURLError(err)}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer func() { _ = resp.Body.Close() }()
		return nil, statusError("stream", resp)
	}
	return resp.Body, nil
}

// ListDocuments returns every document in the knowledge base
func (c *Client) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	var docs []DocumentInfo
	if err := c.doJSON(ctx, "list", http.MethodGet, c.endpoint("documents", "list"), &docs); err != nil {
		return nil, err
	}
	if docs == nil {
		docs = []DocumentInfo{}
	}
	return docs, nil
}

// PreviewDocument returns the indexed chunks of one document
func (c *Client) PreviewDocument(ctx context.Context, docID string) (*DocumentPreview, error) {
	var preview DocumentPreview
	if err := c.doJSON(ctx, "preview", http.MethodGet, c.endpoint("documents", docID, "preview"), &preview); err != nil {
		return nil, err
	}
	return &preview, nil
}

// DeleteDocument removes a document from the knowledge base
func (c *Client) DeleteDocument(ctx context.Context, docID string) error {
	return c.doJSON(ctx, "delete", http.MethodDelete, c.endpoint("documents", docID), nil)
}

// Health checks that the backend is up
func (c *Client) Health(ctx context.Context) (*HealthStatus, error) {
	var status HealthStatus
	if err := c.doJSON(ctx, "health", http.MethodGet, c.endpoint("health"), &status); err != nil {
		return nil, err
	}
	return &status, nil
}

// ValidateUpload checks a local file against the backend's upload rules
func ValidateUpload(path string) (os.FileInfo, error) {
	ext := strings.ToLower(filepath.Ext(path))
	allowed := false
	for _, a := range AllowedExtensions {
		if ext == a {
			allowed = true
			break
		}
	}
	if !allowed {
		return nil, fmt.Errorf("%w %q, supported: %s", ErrUnsupportedType, ext, strings.Join(AllowedExtensions, ", "))
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() > MaxUploadSize {
		return nil, fmt.Errorf("%w: %d bytes, limit is %d MiB", ErrFileTooLarge, info.Size(), MaxUploadSize>>20)
	}
	return info, nil
}

// UploadDocument sends a local file to be parsed and indexed
func (c *Client) UploadDocument(ctx context.Context, path string) (*UploadResponse, error) {
	if _, err := ValidateUpload(path); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	var body bytes.Buffer
	form := multipart.NewWriter(&body)
	part, err := form.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if err := form.Close(); err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}

	target := c.endpoint("documents", "upload")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, &body)
	if err != nil {
		return nil, fmt.Errorf("build upload: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	// indexing can take far longer than an ordinary call
	resp, err := c.streamHTTP.Do(req)
	if err != nil {
		return nil, &TransportError{Op: "upload", URL: target, Err: unwrapURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, statusError("upload", resp)
	}
	var out UploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	return &out, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, target string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, target, nil)
	if err != nil {
		return fmt.Errorf("build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{Op: op, URL: target, Err: unwrapURLError(err)}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return statusError(op, resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", op, err)
	}
	return nil
}

// statusError reads the FastAPI-style {"detail": ...} body when present
func statusError(op string, resp *http.Response) *StatusError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(data))

	var body struct {
		Detail interface{} `json:"detail"`
	}
	if json.Unmarshal(data, &body) == nil && body.Detail != nil {
		if s, ok := body.Detail.(string); ok {
			detail = s
		} else if b, err := json.Marshal(body.Detail); err == nil {
			detail = string(b)
		}
	}
	return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: detail}
}

func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
