package catalog

import (
	"context"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/sourcegraph/conc/pool"

	"previewarr/models"
	"previewarr/utils/similarity"
)

// ErrNoMatch indicates no storefront candidate scored above the
// acceptance threshold for any title variant.
var ErrNoMatch = errors.New("no catalog match")

const maxTitleVariants = 3

type Service struct {
	client      *itunesClient
	storefronts []string
	threshold   float64
	timeout     time.Duration
}

func NewService(storefronts []string, threshold float64, timeout time.Duration, httpc *http.Client) *Service {
	if threshold <= 0 {
		threshold = 0.6
	}
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Service{
		client:      newITunesClient(httpc),
		storefronts: storefronts,
		threshold:   threshold,
		timeout:     timeout,
	}
}

// Match searches every configured storefront for the first title variant
// that produces an acceptable candidate. Later variants are only tried
// when the previous one came up empty across all regions.
func (s *Service) Match(ctx context.Context, meta *models.Metadata) (*models.CatalogMatch, error) {
	if meta == nil || meta.CanonicalTitle == "" {
		return nil, ErrNoMatch
	}

	variants := buildTitleVariants(meta)
	for _, variant := range variants {
		match := s.matchVariant(ctx, meta, variant)
		if match != nil {
			log.Printf("[catalog] matched %q via %q in %s (score %.2f)",
				meta.CanonicalTitle, variant, match.Region, match.Score)
			return match, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}

	log.Printf("[catalog] no acceptable match for %q across %d variants", meta.CanonicalTitle, len(variants))
	return nil, ErrNoMatch
}

type regionResult struct {
	region     string
	candidates []models.CatalogCandidate
}

// matchVariant fans the variant out to every storefront at once and
// waits for all regions before scoring, so the winner is the best
// candidate overall rather than the fastest storefront.
func (s *Service) matchVariant(ctx context.Context, meta *models.Metadata, variant string) *models.CatalogMatch {
	results := make([]regionResult, len(s.storefronts))

	p := pool.New().WithMaxGoroutines(len(s.storefronts))
	for i, region := range s.storefronts {
		i, region := i, region
		p.Go(func() {
			regionCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			candidates, err := s.client.search(regionCtx, variant, region, meta.MediaKind)
			if err != nil {
				log.Printf("[catalog] storefront %s search failed for %q: %v", region, variant, err)
				return
			}
			results[i] = regionResult{region: region, candidates: candidates}
		})
	}
	p.Wait()

	var best *models.CatalogMatch
	for _, rr := range results {
		for _, c := range rr.candidates {
			score := scoreCandidate(meta, c)
			if score < s.threshold {
				continue
			}
			if best == nil || score > best.Score {
				best = &models.CatalogMatch{Score: score, Candidate: c, Region: rr.region}
			}
		}
	}
	return best
}

// buildTitleVariants returns up to three distinct search terms: the
// canonical title, the original title when it differs, and the first
// alternate not already covered.
func buildTitleVariants(meta *models.Metadata) []string {
	variants := make([]string, 0, maxTitleVariants)
	seen := make(map[string]bool)

	add := func(title string) {
		if len(variants) >= maxTitleVariants {
			return
		}
		key := similarity.Normalize(title)
		if key == "" || seen[key] {
			return
		}
		seen[key] = true
		variants = append(variants, title)
	}

	add(meta.CanonicalTitle)
	add(meta.OriginalTitle)
	for _, alt := range meta.AlternateTitles {
		if len(variants) >= maxTitleVariants {
			break
		}
		add(alt)
	}
	return variants
}
