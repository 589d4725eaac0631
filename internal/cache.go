package internal

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CacheVersion is bumped whenever the on-disk layout changes
const CacheVersion = "1.0"

// CacheManager persists the last document listing so scope selection keeps
// working while the backend is unreachable
type CacheManager struct {
	cacheDir string
}

// CacheMetadata stores metadata about the cache
type CacheMetadata struct {
	ServerURL    string    `json:"server_url" yaml:"server_url"`
	CacheVersion string    `json:"cache_version" yaml:"cache_version"`
	FetchedAt    time.Time `json:"fetched_at" yaml:"fetched_at"`
}

// DocumentIndex is the YAML file holding a cached listing
type DocumentIndex struct {
	Documents []DocumentInfo `yaml:"documents"`
	Metadata  CacheMetadata  `yaml:"metadata"`
}

// NewCacheManager creates a new cache manager
func NewCacheManager(cacheDir string) *CacheManager {
	return &CacheManager{
		cacheDir: cacheDir,
	}
}

// EnsureCacheDir ensures the cache directory exists
func (cm *CacheManager) EnsureCacheDir() error {
	return os.MkdirAll(cm.cacheDir, 0755)
}

// GetCacheDir returns the cache directory path
func (cm *CacheManager) GetCacheDir() string {
	return cm.cacheDir
}

// GetIndexPath returns the path to the document index YAML file
func (cm *CacheManager) GetIndexPath() string {
	return filepath.Join(cm.cacheDir, "documents.yaml")
}

// IsCacheValid reports whether the stored listing came from serverURL and is
// no older than maxAge. A zero maxAge accepts any age.
func (cm *CacheManager) IsCacheValid(serverURL string, maxAge time.Duration) (bool, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if index.Metadata.CacheVersion != CacheVersion {
		return false, nil
	}
	if index.Metadata.ServerURL != serverURL {
		return false, nil
	}
	if maxAge > 0 && time.Since(index.Metadata.FetchedAt) > maxAge {
		return false, nil
	}
	return true, nil
}

// LoadIndex loads the document index
func (cm *CacheManager) LoadIndex() (*DocumentIndex, error) {
	data, err := os.ReadFile(cm.GetIndexPath())
	if err != nil {
		return nil, err
	}

	var index DocumentIndex
	if err := yaml.Unmarshal(data, &index); err != nil {
		return nil, fmt.Errorf("failed to unmarshal index: %w", err)
	}
	return &index, nil
}

// SaveDocuments writes a listing fetched from serverURL
func (cm *CacheManager) SaveDocuments(serverURL string, docs []DocumentInfo) error {
	if err := cm.EnsureCacheDir(); err != nil {
		return err
	}

	index := DocumentIndex{
		Documents: docs,
		Metadata: CacheMetadata{
			ServerURL:    serverURL,
			CacheVersion: CacheVersion,
			FetchedAt:    time.Now().UTC(),
		},
	}
	data, err := yaml.Marshal(&index)
	if err != nil {
		return fmt.Errorf("failed to marshal index: %w", err)
	}

	// write then rename so a crash never leaves a truncated index
	tmp := cm.GetIndexPath() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, cm.GetIndexPath())
}

// LoadDocuments returns the cached listing for serverURL
func (cm *CacheManager) LoadDocuments(serverURL string) ([]DocumentInfo, time.Time, error) {
	index, err := cm.LoadIndex()
	if err != nil {
		return nil, time.Time{}, err
	}
	if index.Metadata.ServerURL != serverURL {
		return nil, time.Time{}, fmt.Errorf("cached listing belongs to %s", index.Metadata.ServerURL)
	}
	return index.Documents, index.Metadata.FetchedAt, nil
}

// ClearCache removes the stored listing
func (cm *CacheManager) ClearCache() error {
	if err := os.Remove(cm.GetIndexPath()); err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
