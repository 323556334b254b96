package models

// Core structures shared by the preview resolution pipeline.

// MediaKind distinguishes movies from series throughout the pipeline.
type MediaKind string

const (
	MediaKindMovie  MediaKind = "movie"
	MediaKindSeries MediaKind = "series"
)

// ParseMediaKind maps loose client input onto a MediaKind.
// Anything series-shaped ("series", "show", "tv") collapses to series,
// mirroring how the metadata provider splits its API surface.
func ParseMediaKind(value string) (MediaKind, bool) {
	switch value {
	case "movie":
		return MediaKindMovie, true
	case "series", "show", "tv":
		return MediaKindSeries, true
	default:
		return "", false
	}
}

// ContentIdentity is the immutable cache key for a resolution request.
type ContentIdentity struct {
	ExternalID string    `json:"externalId"`
	MediaKind  MediaKind `json:"mediaKind"`
}

// Metadata holds canonical title information for one resolution attempt.
// It is never persisted on its own; only the final outcome is cached.
type Metadata struct {
	CanonicalTitle  string    `json:"canonicalTitle"`
	OriginalTitle   string    `json:"originalTitle,omitempty"`
	AlternateTitles []string  `json:"alternateTitles,omitempty"`
	ReleaseYear     int       `json:"releaseYear,omitempty"`
	RuntimeMinutes  int       `json:"runtimeMinutes,omitempty"`
	MediaKind       MediaKind `json:"mediaKind"`
	TrailerKey      string    `json:"trailerKey,omitempty"`
}

// CatalogCandidate is a single storefront search result.
type CatalogCandidate struct {
	DisplayName    string `json:"displayName"`
	ReleaseYear    int    `json:"releaseYear,omitempty"`
	RuntimeMinutes int    `json:"runtimeMinutes,omitempty"`
	PreviewURL     string `json:"previewUrl,omitempty"`
	ID             string `json:"id"`
}

// CatalogMatch is an accepted candidate together with where it was found.
type CatalogMatch struct {
	Score     float64          `json:"score"`
	Candidate CatalogCandidate `json:"candidate"`
	Region    string           `json:"region"`
}

// SourceKind records which provider family produced a playable URL.
type SourceKind string

const (
	SourceCatalog SourceKind = "catalog"
	SourceRelay   SourceKind = "relay"
)

// ResolutionResult is what the orchestrator hands back to the request layer.
// Found is false for both "confirmed absent" and "all providers down"; the
// negative cache makes the two indistinguishable on purpose.
type ResolutionResult struct {
	Found       bool       `json:"found"`
	Source      SourceKind `json:"source,omitempty"`
	PlayableURL string     `json:"playableUrl,omitempty"`
	RelayKey    string     `json:"relayKey,omitempty"`
	Region      string     `json:"region,omitempty"`
}
