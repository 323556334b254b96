package resolver

import (
	"context"
	"errors"
	"testing"
	"time"

	"previewarr/internal/database"
	"previewarr/models"
	"previewarr/services/catalog"
	"previewarr/services/metadata"
)

type fakeMetadata struct {
	meta  *models.Metadata
	err   error
	calls int
}

func (f *fakeMetadata) Resolve(ctx context.Context, externalID string, kind models.MediaKind) (*models.Metadata, error) {
	f.calls++
	return f.meta, f.err
}

type fakeCatalog struct {
	match *models.CatalogMatch
	err   error
	calls int
}

func (f *fakeCatalog) Match(ctx context.Context, meta *models.Metadata) (*models.CatalogMatch, error) {
	f.calls++
	return f.match, f.err
}

type fakeLocator struct {
	url   string
	relay string
	err   error
	calls int
	keys  []string
}

func (f *fakeLocator) Locate(ctx context.Context, videoKey string) (string, string, error) {
	f.calls++
	f.keys = append(f.keys, videoKey)
	return f.url, f.relay, f.err
}

type fakeCache struct {
	entries map[string]*database.PreviewCacheEntry
	getErr  error
	putErr  error
	puts    []*database.PreviewCacheEntry
}

func newFakeCache() *fakeCache {
	return &fakeCache{entries: make(map[string]*database.PreviewCacheEntry)}
}

func (f *fakeCache) GetPreview(externalID, mediaKind string, ttl time.Duration) (*database.PreviewCacheEntry, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	return f.entries[externalID+"/"+mediaKind], nil
}

func (f *fakeCache) UpsertPreview(entry *database.PreviewCacheEntry) error {
	if f.putErr != nil {
		return f.putErr
	}
	f.puts = append(f.puts, entry)
	f.entries[entry.ExternalID+"/"+entry.MediaKind] = entry
	return nil
}

func (f *fakeCache) GetPreviewStats() (*database.CacheStats, error) {
	stats := &database.CacheStats{}
	for _, e := range f.entries {
		stats.Total++
		switch {
		case !e.Found:
			stats.Negative++
		case e.Source == database.PreviewSourceCatalog:
			stats.Catalog++
		case e.Source == database.PreviewSourceRelay:
			stats.Relay++
		}
	}
	return stats, nil
}

var matrixIdentity = models.ContentIdentity{ExternalID: "tt0133093", MediaKind: models.MediaKindMovie}

func matrixMetadata() *models.Metadata {
	return &models.Metadata{
		CanonicalTitle: "The Matrix",
		ReleaseYear:    1999,
		RuntimeMinutes: 136,
		MediaKind:      models.MediaKindMovie,
		TrailerKey:     "vKQi3bBA1y8",
	}
}

func TestResolveCatalogMatch(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{match: &models.CatalogMatch{
		Score:  0.95,
		Region: "us",
		Candidate: models.CatalogCandidate{
			DisplayName: "The Matrix",
			PreviewURL:  "https://video.example/matrix.m4v",
		},
	}}
	loc := &fakeLocator{}
	cache := newFakeCache()

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found || result.Source != models.SourceCatalog {
		t.Fatalf("expected catalog result, got %+v", result)
	}
	if result.PlayableURL != "https://video.example/matrix.m4v" || result.Region != "us" {
		t.Errorf("unexpected result fields: %+v", result)
	}
	if loc.calls != 0 {
		t.Errorf("locator must not run when the catalog matches")
	}

	if len(cache.puts) != 1 {
		t.Fatalf("expected 1 cache write, got %d", len(cache.puts))
	}
	stored := cache.puts[0]
	if stored.Source != database.PreviewSourceCatalog || stored.PreviewURL == "" || stored.RelayKey != "" {
		t.Errorf("unexpected stored shape: %+v", stored)
	}
}

func TestResolveRelayFallback(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{err: catalog.ErrNoMatch}
	loc := &fakeLocator{url: "https://relay.example/stream.mp4", relay: "piped"}
	cache := newFakeCache()

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found || result.Source != models.SourceRelay {
		t.Fatalf("expected relay result, got %+v", result)
	}
	if result.PlayableURL != "https://relay.example/stream.mp4" {
		t.Errorf("unexpected url %q", result.PlayableURL)
	}
	if result.RelayKey != "vKQi3bBA1y8" {
		t.Errorf("unexpected relay key %q", result.RelayKey)
	}

	stored := cache.entries["tt0133093/movie"]
	if stored == nil || stored.Source != database.PreviewSourceRelay {
		t.Fatalf("expected relay cache entry, got %+v", stored)
	}
	if stored.PreviewURL != "" {
		t.Errorf("relay cache entry must not persist the stream url, got %q", stored.PreviewURL)
	}
}

func TestResolveMetadataFailureCachesNegative(t *testing.T) {
	meta := &fakeMetadata{err: metadata.ErrNotFound}
	cat := &fakeCatalog{}
	loc := &fakeLocator{}
	cache := newFakeCache()

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Found {
		t.Fatal("expected not-found result")
	}
	if cat.calls != 0 || loc.calls != 0 {
		t.Errorf("pipeline must stop after metadata failure")
	}

	stored := cache.entries["tt0133093/movie"]
	if stored == nil || stored.Found {
		t.Fatalf("expected negative cache entry, got %+v", stored)
	}
}

func TestResolveFullMissCachesNegative(t *testing.T) {
	m := matrixMetadata()
	m.TrailerKey = ""
	meta := &fakeMetadata{meta: m}
	cat := &fakeCatalog{err: catalog.ErrNoMatch}
	loc := &fakeLocator{}
	cache := newFakeCache()

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Found {
		t.Fatal("expected not-found result")
	}
	if loc.calls != 0 {
		t.Errorf("locator must not run without a trailer key")
	}
	stored := cache.entries["tt0133093/movie"]
	if stored == nil || stored.Found {
		t.Fatalf("expected negative cache entry, got %+v", stored)
	}
}

func TestResolveRelayExhaustionCachesNegative(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{err: catalog.ErrNoMatch}
	loc := &fakeLocator{url: ""}
	cache := newFakeCache()

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Found {
		t.Fatal("expected not-found result")
	}
	if loc.calls != 1 {
		t.Errorf("expected one locate attempt, got %d", loc.calls)
	}
	stored := cache.entries["tt0133093/movie"]
	if stored == nil || stored.Found {
		t.Fatalf("expected negative cache entry, got %+v", stored)
	}
}

func TestResolveCachedCatalogHit(t *testing.T) {
	meta := &fakeMetadata{}
	cat := &fakeCatalog{}
	loc := &fakeLocator{}
	cache := newFakeCache()
	cache.entries["tt0133093/movie"] = &database.PreviewCacheEntry{
		ExternalID: "tt0133093",
		MediaKind:  "movie",
		Found:      true,
		Source:     database.PreviewSourceCatalog,
		PreviewURL: "https://video.example/matrix.m4v",
		Region:     "gb",
	}

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found || result.PlayableURL != "https://video.example/matrix.m4v" || result.Region != "gb" {
		t.Fatalf("expected cached catalog result, got %+v", result)
	}
	if meta.calls != 0 || cat.calls != 0 || loc.calls != 0 {
		t.Errorf("cached catalog hit must not touch providers")
	}
}

func TestResolveCachedNegativeHit(t *testing.T) {
	meta := &fakeMetadata{}
	cache := newFakeCache()
	cache.entries["tt0133093/movie"] = &database.PreviewCacheEntry{
		ExternalID: "tt0133093",
		MediaKind:  "movie",
		Found:      false,
	}

	svc := NewService(meta, &fakeCatalog{}, &fakeLocator{}, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if result.Found {
		t.Fatal("expected cached not-found result")
	}
	if meta.calls != 0 {
		t.Errorf("cached negative must not rerun the pipeline")
	}
}

func TestResolveCachedRelayHitRelocates(t *testing.T) {
	meta := &fakeMetadata{}
	loc := &fakeLocator{url: "https://relay.example/fresh.mp4", relay: "invidious"}
	cache := newFakeCache()
	cache.entries["tt0133093/movie"] = &database.PreviewCacheEntry{
		ExternalID: "tt0133093",
		MediaKind:  "movie",
		Found:      true,
		Source:     database.PreviewSourceRelay,
		RelayKey:   "vKQi3bBA1y8",
	}

	svc := NewService(meta, &fakeCatalog{}, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found || result.PlayableURL != "https://relay.example/fresh.mp4" {
		t.Fatalf("expected fresh relay url, got %+v", result)
	}
	if len(loc.keys) != 1 || loc.keys[0] != "vKQi3bBA1y8" {
		t.Errorf("expected re-location with stored key, got %v", loc.keys)
	}
	if meta.calls != 0 {
		t.Errorf("cached relay hit must not rerun metadata")
	}
	if len(cache.puts) != 1 || cache.puts[0].RelayKey != "vKQi3bBA1y8" {
		t.Errorf("expected refreshed relay entry, got %+v", cache.puts)
	}
}

func TestResolveCachedRelayFailureRerunsPipeline(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{match: &models.CatalogMatch{
		Score:  0.9,
		Region: "us",
		Candidate: models.CatalogCandidate{
			DisplayName: "The Matrix",
			PreviewURL:  "https://video.example/matrix.m4v",
		},
	}}
	loc := &fakeLocator{url: ""}
	cache := newFakeCache()
	cache.entries["tt0133093/movie"] = &database.PreviewCacheEntry{
		ExternalID: "tt0133093",
		MediaKind:  "movie",
		Found:      true,
		Source:     database.PreviewSourceRelay,
		RelayKey:   "deadkey",
	}

	svc := NewService(meta, cat, loc, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found || result.Source != models.SourceCatalog {
		t.Fatalf("expected pipeline rerun to find catalog match, got %+v", result)
	}
	if meta.calls != 1 || cat.calls != 1 {
		t.Errorf("expected full pipeline rerun, metadata=%d catalog=%d", meta.calls, cat.calls)
	}
}

func TestResolveCacheReadFailureFallsThrough(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{match: &models.CatalogMatch{
		Region:    "us",
		Candidate: models.CatalogCandidate{PreviewURL: "https://video.example/matrix.m4v"},
	}}
	cache := newFakeCache()
	cache.getErr = errors.New("disk error")

	svc := NewService(meta, cat, &fakeLocator{}, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found {
		t.Fatal("expected live resolution despite cache failure")
	}
}

func TestResolveCacheWriteFailureStillAnswers(t *testing.T) {
	meta := &fakeMetadata{meta: matrixMetadata()}
	cat := &fakeCatalog{match: &models.CatalogMatch{
		Region:    "us",
		Candidate: models.CatalogCandidate{PreviewURL: "https://video.example/matrix.m4v"},
	}}
	cache := newFakeCache()
	cache.putErr = errors.New("disk full")

	svc := NewService(meta, cat, &fakeLocator{}, cache, time.Hour)
	result, err := svc.Resolve(context.Background(), matrixIdentity)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if !result.Found {
		t.Fatal("expected result despite cache write failure")
	}
}

func TestStats(t *testing.T) {
	cache := newFakeCache()
	cache.entries["a/movie"] = &database.PreviewCacheEntry{Found: true, Source: database.PreviewSourceCatalog}
	cache.entries["b/movie"] = &database.PreviewCacheEntry{Found: false}

	svc := NewService(&fakeMetadata{}, &fakeCatalog{}, &fakeLocator{}, cache, time.Hour)
	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.Total != 2 || stats.Catalog != 1 || stats.Negative != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
