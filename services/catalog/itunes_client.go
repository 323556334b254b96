package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"previewarr/models"
)

const itunesBaseURL = "https://itunes.apple.com/search"

type itunesClient struct {
	httpc *http.Client
}

func newITunesClient(httpc *http.Client) *itunesClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &itunesClient{httpc: httpc}
}

type itunesResult struct {
	WrapperType     string `json:"wrapperType"`
	Kind            string `json:"kind"`
	CollectionType  string `json:"collectionType"`
	TrackID         int64  `json:"trackId"`
	CollectionID    int64  `json:"collectionId"`
	TrackName       string `json:"trackName"`
	CollectionName  string `json:"collectionName"`
	ReleaseDate     string `json:"releaseDate"`
	TrackTimeMillis int64  `json:"trackTimeMillis"`
	PreviewURL      string `json:"previewUrl"`
}

type itunesSearchResponse struct {
	ResultCount int            `json:"resultCount"`
	Results     []itunesResult `json:"results"`
}

// search queries one storefront for a term. The strict entity/attribute
// query is tried first; only when it returns zero results is the broader
// media query issued and filtered client-side by result kind.
func (c *itunesClient) search(ctx context.Context, term, country string, kind models.MediaKind) ([]models.CatalogCandidate, error) {
	strict := c.buildQuery(term, country, kind, true)
	results, err := c.doSearch(ctx, strict)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		broad := c.buildQuery(term, country, kind, false)
		results, err = c.doSearch(ctx, broad)
		if err != nil {
			return nil, err
		}
	}

	candidates := make([]models.CatalogCandidate, 0, len(results))
	for _, r := range results {
		if !matchesKind(r, kind) {
			continue
		}
		candidates = append(candidates, toCandidate(r))
	}
	return candidates, nil
}

func (c *itunesClient) buildQuery(term, country string, kind models.MediaKind, strict bool) url.Values {
	q := url.Values{}
	q.Set("term", term)
	q.Set("country", country)
	q.Set("limit", "25")

	if kind == models.MediaKindMovie {
		if strict {
			q.Set("entity", "movie")
			q.Set("attribute", "movieTerm")
		} else {
			q.Set("media", "movie")
		}
	} else {
		if strict {
			q.Set("entity", "tvSeason")
			q.Set("attribute", "tvSeasonTerm")
		} else {
			q.Set("media", "tvShow")
		}
	}
	return q
}

func (c *itunesClient) doSearch(ctx context.Context, params url.Values) ([]itunesResult, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, itunesBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("itunes search failed: %s", resp.Status)
	}

	var payload itunesSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return payload.Results, nil
}

// matchesKind drops results of the wrong shape from the broad query.
func matchesKind(r itunesResult, kind models.MediaKind) bool {
	if kind == models.MediaKindMovie {
		return r.Kind == "feature-movie" || r.Kind == ""
	}
	return r.CollectionType == "TV Season" || r.WrapperType == "collection" || r.Kind == ""
}

func toCandidate(r itunesResult) models.CatalogCandidate {
	name := strings.TrimSpace(r.TrackName)
	if name == "" {
		name = strings.TrimSpace(r.CollectionName)
	}

	id := r.TrackID
	if id == 0 {
		id = r.CollectionID
	}

	return models.CatalogCandidate{
		DisplayName:    name,
		ReleaseYear:    parseReleaseYear(r.ReleaseDate),
		RuntimeMinutes: int(r.TrackTimeMillis / 60000),
		PreviewURL:     strings.TrimSpace(r.PreviewURL),
		ID:             strconv.FormatInt(id, 10),
	}
}

func parseReleaseYear(date string) int {
	date = strings.TrimSpace(date)
	if date == "" {
		return 0
	}
	if t, err := time.Parse(time.RFC3339, date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}
