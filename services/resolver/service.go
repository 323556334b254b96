package resolver

import (
	"context"
	"log"
	"time"

	"previewarr/internal/database"
	"previewarr/models"
)

// MetadataResolver turns an external id into title metadata.
type MetadataResolver interface {
	Resolve(ctx context.Context, externalID string, kind models.MediaKind) (*models.Metadata, error)
}

// CatalogMatcher finds a licensed preview for resolved metadata.
type CatalogMatcher interface {
	Match(ctx context.Context, meta *models.Metadata) (*models.CatalogMatch, error)
}

// VideoLocator turns a trailer key into a playable stream URL.
type VideoLocator interface {
	Locate(ctx context.Context, videoKey string) (url, relay string, err error)
}

// PreviewCache stores resolution outcomes between requests.
type PreviewCache interface {
	GetPreview(externalID, mediaKind string, ttl time.Duration) (*database.PreviewCacheEntry, error)
	UpsertPreview(entry *database.PreviewCacheEntry) error
	GetPreviewStats() (*database.CacheStats, error)
}

// Service runs the resolution pipeline: cache, then metadata, then the
// catalog, then the relay chain. A miss at every stage is itself an
// answer and gets cached so the pipeline does not rerun per request.
type Service struct {
	metadata MetadataResolver
	catalog  CatalogMatcher
	locator  VideoLocator
	cache    PreviewCache
	cacheTTL time.Duration
}

func NewService(metadata MetadataResolver, catalog CatalogMatcher, locator VideoLocator, cache PreviewCache, cacheTTL time.Duration) *Service {
	if cacheTTL <= 0 {
		cacheTTL = 30 * 24 * time.Hour
	}
	return &Service{
		metadata: metadata,
		catalog:  catalog,
		locator:  locator,
		cache:    cache,
		cacheTTL: cacheTTL,
	}
}

// Resolve returns the playable preview for an identity. An unresolvable
// title is a normal outcome, not an error; the error return is reserved
// for cancellation.
func (s *Service) Resolve(ctx context.Context, identity models.ContentIdentity) (models.ResolutionResult, error) {
	if cached := s.fromCache(ctx, identity); cached != nil {
		return *cached, nil
	}
	if ctx.Err() != nil {
		return models.ResolutionResult{}, ctx.Err()
	}
	return s.resolveLive(ctx, identity)
}

// fromCache serves a prior outcome when one is fresh. A relay entry is
// re-located on every hit since stream URLs from relay instances expire;
// when re-location fails the entry no longer answers the request and the
// full pipeline reruns.
func (s *Service) fromCache(ctx context.Context, identity models.ContentIdentity) *models.ResolutionResult {
	entry, err := s.cache.GetPreview(identity.ExternalID, string(identity.MediaKind), s.cacheTTL)
	if err != nil {
		log.Printf("[resolver] cache read failed for %s/%s: %v", identity.MediaKind, identity.ExternalID, err)
		return nil
	}
	if entry == nil {
		return nil
	}

	if !entry.Found {
		return &models.ResolutionResult{Found: false}
	}

	switch entry.Source {
	case database.PreviewSourceCatalog:
		return &models.ResolutionResult{
			Found:       true,
			Source:      models.SourceCatalog,
			PlayableURL: entry.PreviewURL,
			Region:      entry.Region,
		}
	case database.PreviewSourceRelay:
		url, _, err := s.locator.Locate(ctx, entry.RelayKey)
		if err != nil || url == "" {
			log.Printf("[resolver] cached relay key %s no longer resolves, rerunning pipeline", entry.RelayKey)
			return nil
		}
		s.store(&database.PreviewCacheEntry{
			ExternalID: identity.ExternalID,
			MediaKind:  string(identity.MediaKind),
			Found:      true,
			Source:     database.PreviewSourceRelay,
			RelayKey:   entry.RelayKey,
		})
		return &models.ResolutionResult{
			Found:       true,
			Source:      models.SourceRelay,
			PlayableURL: url,
			RelayKey:    entry.RelayKey,
		}
	}

	log.Printf("[resolver] unknown cached source %q for %s, rerunning pipeline", entry.Source, identity.ExternalID)
	return nil
}

func (s *Service) resolveLive(ctx context.Context, identity models.ContentIdentity) (models.ResolutionResult, error) {
	meta, err := s.metadata.Resolve(ctx, identity.ExternalID, identity.MediaKind)
	if err != nil {
		if ctx.Err() != nil {
			return models.ResolutionResult{}, ctx.Err()
		}
		log.Printf("[resolver] metadata lookup failed for %s/%s: %v", identity.MediaKind, identity.ExternalID, err)
		s.storeNegative(identity)
		return models.ResolutionResult{Found: false}, nil
	}

	match, err := s.catalog.Match(ctx, meta)
	if err == nil && match != nil {
		s.store(&database.PreviewCacheEntry{
			ExternalID: identity.ExternalID,
			MediaKind:  string(identity.MediaKind),
			Found:      true,
			Source:     database.PreviewSourceCatalog,
			PreviewURL: match.Candidate.PreviewURL,
			Region:     match.Region,
		})
		return models.ResolutionResult{
			Found:       true,
			Source:      models.SourceCatalog,
			PlayableURL: match.Candidate.PreviewURL,
			Region:      match.Region,
		}, nil
	}
	if ctx.Err() != nil {
		return models.ResolutionResult{}, ctx.Err()
	}

	if meta.TrailerKey != "" {
		url, relay, err := s.locator.Locate(ctx, meta.TrailerKey)
		if err != nil && ctx.Err() != nil {
			return models.ResolutionResult{}, ctx.Err()
		}
		if url != "" {
			log.Printf("[resolver] %s/%s falls back to %s relay", identity.MediaKind, identity.ExternalID, relay)
			s.store(&database.PreviewCacheEntry{
				ExternalID: identity.ExternalID,
				MediaKind:  string(identity.MediaKind),
				Found:      true,
				Source:     database.PreviewSourceRelay,
				RelayKey:   meta.TrailerKey,
			})
			return models.ResolutionResult{
				Found:       true,
				Source:      models.SourceRelay,
				PlayableURL: url,
				RelayKey:    meta.TrailerKey,
			}, nil
		}
	}

	s.storeNegative(identity)
	return models.ResolutionResult{Found: false}, nil
}

func (s *Service) storeNegative(identity models.ContentIdentity) {
	s.store(&database.PreviewCacheEntry{
		ExternalID: identity.ExternalID,
		MediaKind:  string(identity.MediaKind),
		Found:      false,
	})
}

// store writes an outcome, logging rather than failing the request when
// the cache is unavailable.
func (s *Service) store(entry *database.PreviewCacheEntry) {
	if err := s.cache.UpsertPreview(entry); err != nil {
		log.Printf("[resolver] cache write failed for %s/%s: %v", entry.MediaKind, entry.ExternalID, err)
	}
}

// Stats summarizes cached outcomes.
func (s *Service) Stats() (*database.CacheStats, error) {
	return s.cache.GetPreviewStats()
}
