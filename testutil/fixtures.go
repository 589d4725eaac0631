package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"gopkg.in/yaml.v3"
)

// SampleDocuments is a small knowledge base used across tests
var SampleDocuments = []Document{
	{DocID: "a1b2c3", DocName: "handbook.pdf", DocType: "pdf", ChunkCount: 12, CreatedAt: "2025-01-10T09:00:00"},
	{DocID: "d4e5f6", DocName: "release-notes.md", DocType: "md", ChunkCount: 4, CreatedAt: "2025-02-01T12:30:00"},
	{DocID: "g7h8i9", DocName: "release-plan.docx", DocType: "docx", ChunkCount: 7, CreatedAt: "2025-02-03T08:15:00"},
}

// CreateFileFixture writes data to path, creating parent directories
func CreateFileFixture(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create fixture directory: %v", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		t.Fatalf("Failed to write fixture %s: %v", path, err)
	}
}

// CreateConfigFixture writes a config.yaml with the given keys and returns its path
func CreateConfigFixture(t *testing.T, dir string, values map[string]interface{}) string {
	t.Helper()
	data, err := yaml.Marshal(values)
	if err != nil {
		t.Fatalf("Failed to marshal config: %v", err)
	}
	path := filepath.Join(dir, "config.yaml")
	CreateFileFixture(t, path, data)
	return path
}

// CreateUploadFixture writes a document of size bytes named name and returns its path
func CreateUploadFixture(t *testing.T, dir, name string, size int) string {
	t.Helper()
	data := make([]byte, size)
	for i := range data {
		data[i] = 'a' + byte(i%26)
	}
	path := filepath.Join(dir, name)
	CreateFileFixture(t, path, data)
	return path
}
