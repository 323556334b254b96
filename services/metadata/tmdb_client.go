package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const tmdbBaseURL = "https://api.themoviedb.org/3"

type tmdbClient struct {
	apiKey   string
	language string
	httpc    *http.Client

	// Rate limiting
	throttleMu  sync.Mutex
	lastRequest time.Time
	minInterval time.Duration
}

func newTMDBClient(apiKey, language string, httpc *http.Client) *tmdbClient {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	return &tmdbClient{
		apiKey:      strings.TrimSpace(apiKey),
		language:    language,
		httpc:       httpc,
		minInterval: 20 * time.Millisecond, // TMDB has generous rate limits
	}
}

func (c *tmdbClient) isConfigured() bool {
	return c != nil && c.apiKey != ""
}

// doGET performs an HTTP GET with rate limiting and retry with exponential backoff
func (c *tmdbClient) doGET(ctx context.Context, endpoint string, params url.Values, v any) error {
	if !c.isConfigured() {
		return errors.New("tmdb api key not configured")
	}

	if params == nil {
		params = url.Values{}
	}
	params.Set("api_key", c.apiKey)
	full := endpoint + "?" + params.Encode()

	var lastErr error
	backoff := 300 * time.Millisecond

	for attempt := 0; attempt < 3; attempt++ {
		// Rate limiting
		c.throttleMu.Lock()
		since := time.Since(c.lastRequest)
		if since < c.minInterval {
			time.Sleep(c.minInterval - since)
		}
		c.lastRequest = time.Now()
		c.throttleMu.Unlock()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if err != nil {
			return err
		}

		resp, err := c.httpc.Do(req)
		if err != nil {
			lastErr = err
			log.Printf("[tmdb] http error (attempt %d/3): %v", attempt+1, err)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		// Handle rate limiting and server errors
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			resp.Body.Close()
			log.Printf("[tmdb] rate limited or server error (attempt %d/3): status %d", attempt+1, resp.StatusCode)
			lastErr = fmt.Errorf("tmdb request failed: %s", resp.Status)
			time.Sleep(backoff)
			backoff *= 2
			continue
		}

		if resp.StatusCode >= 400 {
			resp.Body.Close()
			return fmt.Errorf("tmdb request failed: %s", resp.Status)
		}

		err = json.NewDecoder(resp.Body).Decode(v)
		resp.Body.Close()
		if err != nil {
			return err
		}
		return nil
	}

	return lastErr
}

type tmdbFindResult struct {
	ID int64 `json:"id"`
}

type tmdbFindResponse struct {
	MovieResults []tmdbFindResult `json:"movie_results"`
	TVResults    []tmdbFindResult `json:"tv_results"`
}

// findByExternalID resolves an IMDB-style external id into TMDB ids for
// both media kinds in a single call.
func (c *tmdbClient) findByExternalID(ctx context.Context, externalID string) (*tmdbFindResponse, error) {
	id := strings.TrimSpace(externalID)
	if id == "" {
		return nil, errors.New("external id required")
	}
	if !strings.HasPrefix(id, "tt") {
		id = "tt" + id
	}

	params := url.Values{}
	params.Set("external_source", "imdb_id")

	var payload tmdbFindResponse
	if err := c.doGET(ctx, tmdbBaseURL+"/find/"+url.PathEscape(id), params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

type tmdbVideo struct {
	Name     string `json:"name"`
	Key      string `json:"key"`
	Site     string `json:"site"`
	Type     string `json:"type"`
	Official bool   `json:"official"`
}

type tmdbVideosBlock struct {
	Results []tmdbVideo `json:"results"`
}

type tmdbDetail struct {
	ID             int64           `json:"id"`
	Title          string          `json:"title"`
	Name           string          `json:"name"`
	OriginalTitle  string          `json:"original_title"`
	OriginalName   string          `json:"original_name"`
	ReleaseDate    string          `json:"release_date"`
	FirstAirDate   string          `json:"first_air_date"`
	Runtime        int             `json:"runtime"`
	EpisodeRunTime []int           `json:"episode_run_time"`
	Videos         tmdbVideosBlock `json:"videos"`
}

// detail fetches title, original title, release date, runtime and the
// trailer-video listing in one call via append_to_response.
func (c *tmdbClient) detail(ctx context.Context, apiMediaType string, tmdbID int64) (*tmdbDetail, error) {
	params := url.Values{}
	if lang := strings.TrimSpace(c.language); lang != "" {
		params.Set("language", lang)
	}
	params.Set("append_to_response", "videos")

	endpoint := fmt.Sprintf("%s/%s/%d", tmdbBaseURL, apiMediaType, tmdbID)
	var payload tmdbDetail
	if err := c.doGET(ctx, endpoint, params, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

type tmdbAlternativeTitle struct {
	Country string `json:"iso_3166_1"`
	Title   string `json:"title"`
}

type tmdbAlternativeTitlesResponse struct {
	// Movies return "titles", TV returns "results"; both carry the same shape.
	Titles  []tmdbAlternativeTitle `json:"titles"`
	Results []tmdbAlternativeTitle `json:"results"`
}

func (c *tmdbClient) alternativeTitles(ctx context.Context, apiMediaType string, tmdbID int64) ([]tmdbAlternativeTitle, error) {
	endpoint := fmt.Sprintf("%s/%s/%d/alternative_titles", tmdbBaseURL, apiMediaType, tmdbID)
	var payload tmdbAlternativeTitlesResponse
	if err := c.doGET(ctx, endpoint, nil, &payload); err != nil {
		return nil, err
	}
	if len(payload.Titles) > 0 {
		return payload.Titles, nil
	}
	return payload.Results, nil
}

func parseTMDBYear(movieDate, seriesDate string) int {
	date := movieDate
	if date == "" {
		date = seriesDate
	}
	if date == "" {
		return 0
	}
	if t, err := time.Parse("2006-01-02", date); err == nil {
		return t.Year()
	}
	if len(date) >= 4 {
		if y, err := strconv.Atoi(date[:4]); err == nil {
			return y
		}
	}
	return 0
}
