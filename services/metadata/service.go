package metadata

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"sync"

	"previewarr/models"
	"previewarr/utils/similarity"
)

var (
	// ErrNotFound means the metadata provider has no record for the id.
	ErrNotFound = errors.New("metadata: no record for external id")
	// ErrNoMetadata means the provider knows the id but detail data could
	// not be retrieved.
	ErrNoMetadata = errors.New("metadata: detail lookup failed")
)

// alternateTitleTerritories limits alternate titles to English-speaking
// storefront territories; titles from other regions only add noise to the
// catalog search.
var alternateTitleTerritories = map[string]struct{}{
	"US": {},
	"GB": {},
	"CA": {},
	"AU": {},
	"IE": {},
	"NZ": {},
}

// Service resolves external catalog ids into canonical title metadata.
type Service struct {
	tmdb *tmdbClient
}

func NewService(tmdbAPIKey, language string, httpc *http.Client) *Service {
	return &Service{tmdb: newTMDBClient(tmdbAPIKey, language, httpc)}
}

func (s *Service) IsConfigured() bool {
	return s.tmdb.isConfigured()
}

// Resolve looks up an external id and returns canonical title metadata.
// The media kind hint may be wrong: the id is checked for both kinds and
// the kind that actually has a record wins, hinted kind first, movie
// before series otherwise.
func (s *Service) Resolve(ctx context.Context, externalID string, kindHint models.MediaKind) (*models.Metadata, error) {
	found, err := s.tmdb.findByExternalID(ctx, externalID)
	if err != nil {
		log.Printf("[metadata] find failed for %s: %v", externalID, err)
		return nil, ErrNotFound
	}

	kind, tmdbID, ok := pickFindResult(found, kindHint)
	if !ok {
		return nil, ErrNotFound
	}

	apiMediaType := "movie"
	if kind == models.MediaKindSeries {
		apiMediaType = "tv"
	}

	// Detail and alternate titles are independent requests; issue both at once.
	var (
		wg        sync.WaitGroup
		detail    *tmdbDetail
		detailErr error
		altTitles []tmdbAlternativeTitle
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		detail, detailErr = s.tmdb.detail(ctx, apiMediaType, tmdbID)
	}()
	go func() {
		defer wg.Done()
		titles, err := s.tmdb.alternativeTitles(ctx, apiMediaType, tmdbID)
		if err != nil {
			// Non-fatal: a missing alternate-title listing only narrows the search.
			log.Printf("[metadata] alternative titles failed for %s/%d: %v", apiMediaType, tmdbID, err)
			return
		}
		altTitles = titles
	}()
	wg.Wait()

	if detailErr != nil {
		log.Printf("[metadata] detail failed for %s/%d: %v", apiMediaType, tmdbID, detailErr)
		return nil, ErrNoMetadata
	}

	canonical := strings.TrimSpace(detail.Title)
	if canonical == "" {
		canonical = strings.TrimSpace(detail.Name)
	}
	if canonical == "" {
		return nil, ErrNoMetadata
	}

	original := strings.TrimSpace(detail.OriginalTitle)
	if original == "" {
		original = strings.TrimSpace(detail.OriginalName)
	}

	runtime := detail.Runtime
	if runtime == 0 && len(detail.EpisodeRunTime) > 0 {
		runtime = detail.EpisodeRunTime[0]
	}

	meta := &models.Metadata{
		CanonicalTitle:  canonical,
		OriginalTitle:   original,
		AlternateTitles: filterAlternateTitles(altTitles, canonical, original),
		ReleaseYear:     parseTMDBYear(detail.ReleaseDate, detail.FirstAirDate),
		RuntimeMinutes:  runtime,
		MediaKind:       kind,
		TrailerKey:      pickTrailerKey(detail.Videos.Results),
	}
	return meta, nil
}

// pickFindResult chooses the media kind that actually has a record.
func pickFindResult(found *tmdbFindResponse, hint models.MediaKind) (models.MediaKind, int64, bool) {
	movie := len(found.MovieResults) > 0
	series := len(found.TVResults) > 0

	if hint == models.MediaKindSeries && series {
		return models.MediaKindSeries, found.TVResults[0].ID, true
	}
	if movie {
		return models.MediaKindMovie, found.MovieResults[0].ID, true
	}
	if series {
		return models.MediaKindSeries, found.TVResults[0].ID, true
	}
	return "", 0, false
}

// trailerTypePriority orders official video types; lower is better.
var trailerTypePriority = []string{"Trailer", "Teaser", "Clip"}

// pickTrailerKey selects the video key to hand to the relay chain.
// Official trailers beat official teasers beat official clips; when
// nothing official exists, the first YouTube-hosted video of any type
// is better than none.
func pickTrailerKey(videos []tmdbVideo) string {
	for _, wantType := range trailerTypePriority {
		for _, v := range videos {
			if !v.Official {
				continue
			}
			if !strings.EqualFold(v.Site, "youtube") {
				continue
			}
			if strings.EqualFold(strings.TrimSpace(v.Type), wantType) {
				return strings.TrimSpace(v.Key)
			}
		}
	}

	for _, v := range videos {
		if strings.EqualFold(v.Site, "youtube") && strings.TrimSpace(v.Key) != "" {
			return strings.TrimSpace(v.Key)
		}
	}
	return ""
}

// filterAlternateTitles keeps titles from English-speaking territories,
// deduped by normalized form with insertion order preserved. The canonical
// and original titles never appear in the result.
func filterAlternateTitles(titles []tmdbAlternativeTitle, canonical, original string) []string {
	if len(titles) == 0 {
		return nil
	}

	seen := map[string]struct{}{}
	if n := similarity.Normalize(canonical); n != "" {
		seen[n] = struct{}{}
	}
	if n := similarity.Normalize(original); n != "" {
		seen[n] = struct{}{}
	}

	var out []string
	for _, t := range titles {
		if _, ok := alternateTitleTerritories[strings.ToUpper(strings.TrimSpace(t.Country))]; !ok {
			continue
		}
		title := strings.TrimSpace(t.Title)
		if title == "" {
			continue
		}
		norm := similarity.Normalize(title)
		if norm == "" {
			continue
		}
		if _, dup := seen[norm]; dup {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, title)
	}
	return out
}
