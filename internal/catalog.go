package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

const documentsKey = "documents"

// ErrDocumentNotFound is returned when no document matches a query
var ErrDocumentNotFound = errors.New("document not found")

// AmbiguousDocumentError is returned when a prefix matches several documents
type AmbiguousDocumentError struct {
	Query   string
	Matches []string
}

func (e *AmbiguousDocumentError) Error() string {
	return fmt.Sprintf("%q matches %d documents: %s", e.Query, len(e.Matches), strings.Join(e.Matches, ", "))
}

// DocumentLister fetches the live document listing
type DocumentLister interface {
	ListDocuments(ctx context.Context) ([]DocumentInfo, error)
}

// ListingSource tells where a listing came from
type ListingSource string

const (
	SourceMemory ListingSource = "memory"
	SourceServer ListingSource = "server"
	SourceDisk   ListingSource = "disk"
)

// Listing is a set of documents and its provenance
type Listing struct {
	Documents []DocumentInfo
	Source    ListingSource
	FetchedAt time.Time
	// Err is the server error that forced a fallback to disk
	Err error
}

// Stale reports whether the listing is a fallback copy
func (l Listing) Stale() bool {
	return l.Source == SourceDisk
}

// Catalog lists documents for scope selection. It serves from memory for
// ttl, then asks the server, and falls back to the last listing on disk when
// the server cannot be reached.
type Catalog struct {
	lister DocumentLister
	server string
	mem    *cache.Cache
	disk   *CacheManager
	mu     sync.Mutex
}

// NewCatalog creates a catalog. disk may be nil to disable the fallback.
func NewCatalog(lister DocumentLister, server string, disk *CacheManager, ttl time.Duration) *Catalog {
	if ttl <= 0 {
		ttl = cache.NoExpiration
	}
	return &Catalog{
		lister: lister,
		server: server,
		// expired entries are dropped on read, so no janitor goroutine is needed
		mem:  cache.New(ttl, 0),
		disk: disk,
	}
}

// Documents returns the current listing sorted by name
func (c *Catalog) Documents(ctx context.Context) (Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if x, found := c.mem.Get(documentsKey); found {
		listing := x.(Listing)
		listing.Source = SourceMemory
		listing.Documents = append([]DocumentInfo(nil), listing.Documents...)
		return listing, nil
	}
	return c.fetchLocked(ctx)
}

// Refresh bypasses the memory cache
func (c *Catalog) Refresh(ctx context.Context) (Listing, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mem.Delete(documentsKey)
	return c.fetchLocked(ctx)
}

func (c *Catalog) fetchLocked(ctx context.Context) (Listing, error) {
	docs, err := c.lister.ListDocuments(ctx)
	if err == nil {
		sortDocuments(docs)
		listing := Listing{Documents: docs, Source: SourceServer, FetchedAt: time.Now().UTC()}
		c.mem.Set(documentsKey, listing, cache.DefaultExpiration)
		if c.disk != nil {
			if saveErr := c.disk.SaveDocuments(c.server, docs); saveErr != nil {
				LogWarn("Failed to cache document listing: %v", saveErr)
			}
		}
		return listing, nil
	}

	if c.disk == nil || ctx.Err() != nil {
		return Listing{}, err
	}
	cached, fetchedAt, diskErr := c.disk.LoadDocuments(c.server)
	if diskErr != nil {
		LogDebug("No cached document listing: %v", diskErr)
		return Listing{}, err
	}
	LogWarn("Server unavailable, using document listing from %s", fetchedAt.Local().Format(time.RFC822))
	sortDocuments(cached)
	return Listing{Documents: cached, Source: SourceDisk, FetchedAt: fetchedAt, Err: err}, nil
}

// Invalidate forgets the in-memory listing, e.g. after an upload or delete
func (c *Catalog) Invalidate() {
	c.mem.Delete(documentsKey)
}

// Resolve turns user input into a scope. "all" or empty selects every
// document; otherwise the query is matched against ids, exact names and
// finally unique case-insensitive name prefixes.
func (c *Catalog) Resolve(ctx context.Context, query string) (Scope, error) {
	query = strings.TrimSpace(query)
	if query == "" || strings.EqualFold(query, "all") {
		return AllDocuments, nil
	}

	listing, err := c.Documents(ctx)
	if err != nil {
		return Scope{}, err
	}
	doc, err := MatchDocument(listing.Documents, query)
	if err != nil {
		return Scope{}, err
	}
	return doc.Scope(), nil
}

// MatchDocument finds the document query refers to
func MatchDocument(docs []DocumentInfo, query string) (DocumentInfo, error) {
	for _, d := range docs {
		if d.DocID == query {
			return d, nil
		}
	}
	for _, d := range docs {
		if d.DocName == query {
			return d, nil
		}
	}

	lower := strings.ToLower(query)
	var matches []DocumentInfo
	for _, d := range docs {
		if strings.EqualFold(d.DocName, query) {
			return d, nil
		}
		if strings.HasPrefix(strings.ToLower(d.DocName), lower) {
			matches = append(matches, d)
		}
	}

	switch len(matches) {
	case 0:
		return DocumentInfo{}, fmt.Errorf("%w: %q", ErrDocumentNotFound, query)
	case 1:
		return matches[0], nil
	default:
		names := make([]string, len(matches))
		for i, m := range matches {
			names[i] = m.DocName
		}
		return DocumentInfo{}, &AmbiguousDocumentError{Query: query, Matches: names}
	}
}

func sortDocuments(docs []DocumentInfo) {
	sort.SliceStable(docs, func(i, j int) bool {
		return strings.ToLower(docs[i].DocName) < strings.ToLower(docs[j].DocName)
	})
}
