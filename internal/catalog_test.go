package internal

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/iksnae/kbchat/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLister struct {
	mu    sync.Mutex
	docs  []DocumentInfo
	err   error
	calls int
}

func (f *fakeLister) ListDocuments(ctx context.Context) ([]DocumentInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return append([]DocumentInfo(nil), f.docs...), nil
}

func (f *fakeLister) set(docs []DocumentInfo, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.docs, f.err = docs, err
}

func catalogDocs() []DocumentInfo {
	return []DocumentInfo{
		{DocID: "g7h8i9", DocName: "release-plan.docx"},
		{DocID: "a1b2c3", DocName: "Handbook.pdf"},
		{DocID: "d4e5f6", DocName: "release-notes.md"},
		{DocID: "x0", DocName: "handbook.pdf.bak"},
	}
}

func TestCatalogDocumentsCachesInMemory(t *testing.T) {
	lister := &fakeLister{docs: catalogDocs()}
	catalog := NewCatalog(lister, testServer, nil, time.Minute)
	ctx := context.Background()

	first, err := catalog.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceServer, first.Source)
	require.Len(t, first.Documents, 4)
	assert.Equal(t, "Handbook.pdf", first.Documents[0].DocName, "sorted by name")

	second, err := catalog.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceMemory, second.Source)
	assert.Equal(t, first.Documents, second.Documents)
	assert.Equal(t, 1, lister.calls)

	catalog.Invalidate()
	_, err = catalog.Documents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, lister.calls)

	_, err = catalog.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, lister.calls)
}

func TestCatalogFallsBackToDisk(t *testing.T) {
	disk := NewCacheManager(testutil.CreateTempDir(t))
	lister := &fakeLister{docs: catalogDocs()}
	catalog := NewCatalog(lister, testServer, disk, time.Minute)
	ctx := context.Background()

	_, err := catalog.Documents(ctx)
	require.NoError(t, err)

	down := &TransportError{Op: "list", URL: testServer, Err: errors.New("connection refused")}
	lister.set(nil, down)

	listing, err := catalog.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, SourceDisk, listing.Source)
	assert.True(t, listing.Stale())
	assert.ErrorIs(t, listing.Err, down)
	assert.Len(t, listing.Documents, 4)
}

func TestCatalogNoFallbackAvailable(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name string
		disk *CacheManager
	}{
		{name: "no disk cache", disk: nil},
		{name: "empty disk cache", disk: NewCacheManager(testutil.CreateTempDir(t))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			catalog := NewCatalog(&fakeLister{err: boom}, testServer, tt.disk, time.Minute)
			_, err := catalog.Documents(context.Background())
			assert.ErrorIs(t, err, boom)
		})
	}
}

func TestCatalogResolve(t *testing.T) {
	catalog := NewCatalog(&fakeLister{docs: catalogDocs()}, testServer, nil, 0)
	ctx := context.Background()

	tests := []struct {
		query     string
		want      Scope
		wantErr   error
		ambiguous bool
	}{
		{query: "", want: AllDocuments},
		{query: "ALL", want: AllDocuments},
		{query: "d4e5f6", want: Scope{DocID: "d4e5f6", DocName: "release-notes.md"}},
		{query: "Handbook.pdf", want: Scope{DocID: "a1b2c3", DocName: "Handbook.pdf"}},
		{query: "handbook.PDF", want: Scope{DocID: "a1b2c3", DocName: "Handbook.pdf"}},
		{query: "release-n", want: Scope{DocID: "d4e5f6", DocName: "release-notes.md"}},
		{query: "release", ambiguous: true},
		{query: "minutes", wantErr: ErrDocumentNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			got, err := catalog.Resolve(ctx, tt.query)
			switch {
			case tt.ambiguous:
				var ambiguous *AmbiguousDocumentError
				require.ErrorAs(t, err, &ambiguous)
				assert.ElementsMatch(t, []string{"release-notes.md", "release-plan.docx"}, ambiguous.Matches)
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			}
		})
	}
}
