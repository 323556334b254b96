package database

import (
	"database/sql"
	"fmt"
	"time"
)

type PreviewSource string

const (
	PreviewSourceCatalog PreviewSource = "catalog"
	PreviewSourceRelay   PreviewSource = "relay"
)

// PreviewCacheEntry is one remembered resolution outcome. Exactly one
// of three shapes is stored: a catalog hit carries the preview URL and
// region, a relay hit carries only the trailer key, and a negative
// entry carries neither.
type PreviewCacheEntry struct {
	ID            int64
	ExternalID    string
	MediaKind     string
	Found         bool
	Source        PreviewSource
	PreviewURL    string
	Region        string
	RelayKey      string
	CreatedAt     time.Time
	LastCheckedAt time.Time
}

type CacheStats struct {
	Total    int `json:"total"`
	Catalog  int `json:"catalog"`
	Relay    int `json:"relay"`
	Negative int `json:"negative"`
}

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// GetPreview returns the cached entry for the identity, or nil when no
// entry exists or the entry is older than ttl. Stale entries are left
// in place; the next upsert overwrites them.
func (r *Repository) GetPreview(externalID, mediaKind string, ttl time.Duration) (*PreviewCacheEntry, error) {
	row := r.db.QueryRow(`
		SELECT id, external_id, media_kind, found, source, preview_url, region, relay_key, created_at, last_checked_at
		FROM preview_cache
		WHERE external_id = ? AND media_kind = ?`,
		externalID, mediaKind)

	var entry PreviewCacheEntry
	var source, previewURL, region, relayKey sql.NullString
	err := row.Scan(&entry.ID, &entry.ExternalID, &entry.MediaKind, &entry.Found,
		&source, &previewURL, &region, &relayKey, &entry.CreatedAt, &entry.LastCheckedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read preview cache: %w", err)
	}

	entry.Source = PreviewSource(source.String)
	entry.PreviewURL = previewURL.String
	entry.Region = region.String
	entry.RelayKey = relayKey.String

	if isStale(entry.LastCheckedAt, time.Now(), ttl) {
		return nil, nil
	}
	return &entry, nil
}

// isStale reports whether an entry must be re-resolved. An entry is
// stale the moment it is exactly ttl old.
func isStale(lastChecked, now time.Time, ttl time.Duration) bool {
	return ttl > 0 && now.Sub(lastChecked) >= ttl
}

// UpsertPreview stores an outcome, replacing any previous entry for the
// same identity and refreshing last_checked_at. The shape invariant is
// enforced here so a malformed entry can never reach disk.
func (r *Repository) UpsertPreview(entry *PreviewCacheEntry) error {
	if err := validateShape(entry); err != nil {
		return err
	}

	now := time.Now().UTC()
	_, err := r.db.Exec(`
		INSERT INTO preview_cache (external_id, media_kind, found, source, preview_url, region, relay_key, created_at, last_checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id, media_kind) DO UPDATE SET
			found = excluded.found,
			source = excluded.source,
			preview_url = excluded.preview_url,
			region = excluded.region,
			relay_key = excluded.relay_key,
			last_checked_at = excluded.last_checked_at`,
		entry.ExternalID, entry.MediaKind, entry.Found,
		nullable(string(entry.Source)), nullable(entry.PreviewURL), nullable(entry.Region), nullable(entry.RelayKey),
		now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert preview cache: %w", err)
	}
	return nil
}

func validateShape(entry *PreviewCacheEntry) error {
	if entry.ExternalID == "" || entry.MediaKind == "" {
		return fmt.Errorf("cache entry missing identity")
	}

	if !entry.Found {
		if entry.Source != "" || entry.PreviewURL != "" || entry.RelayKey != "" {
			return fmt.Errorf("negative cache entry must not carry resolution data")
		}
		return nil
	}

	switch entry.Source {
	case PreviewSourceCatalog:
		if entry.PreviewURL == "" {
			return fmt.Errorf("catalog cache entry requires a preview url")
		}
		if entry.RelayKey != "" {
			return fmt.Errorf("catalog cache entry must not carry a relay key")
		}
	case PreviewSourceRelay:
		if entry.RelayKey == "" {
			return fmt.Errorf("relay cache entry requires a trailer key")
		}
		if entry.PreviewURL != "" {
			return fmt.Errorf("relay cache entry must not persist a stream url")
		}
	default:
		return fmt.Errorf("unknown cache entry source %q", entry.Source)
	}
	return nil
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// GetPreviewStats counts cached outcomes by shape.
func (r *Repository) GetPreviewStats() (*CacheStats, error) {
	row := r.db.QueryRow(`
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN found = 1 AND source = 'catalog' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN found = 1 AND source = 'relay' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN found = 0 THEN 1 ELSE 0 END), 0)
		FROM preview_cache`)

	var stats CacheStats
	if err := row.Scan(&stats.Total, &stats.Catalog, &stats.Relay, &stats.Negative); err != nil {
		return nil, fmt.Errorf("failed to read preview cache stats: %w", err)
	}
	return &stats, nil
}

// PurgeStale deletes entries not checked within ttl. Returns the number
// of rows removed.
func (r *Repository) PurgeStale(ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, nil
	}
	cutoff := time.Now().UTC().Add(-ttl)
	res, err := r.db.Exec(`DELETE FROM preview_cache WHERE last_checked_at <= ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge preview cache: %w", err)
	}
	return res.RowsAffected()
}
