package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// pipedRelay resolves trailer keys through the Piped API.
type pipedRelay struct {
	httpc *http.Client
	pool  *instancePool
}

func newPipedRelay(directoryURL string, static []string, ttl time.Duration, timeout time.Duration, httpc *http.Client) *pipedRelay {
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	r := &pipedRelay{httpc: httpc}
	var discover func(ctx context.Context) ([]string, error)
	if directoryURL != "" {
		discover = func(ctx context.Context) ([]string, error) {
			return fetchPipedDirectory(ctx, httpc, directoryURL)
		}
	}
	r.pool = newInstancePool("piped", static, ttl, discover)
	return r
}

func (r *pipedRelay) name() string { return "piped" }

func (r *pipedRelay) instances(ctx context.Context) []string {
	return r.pool.instances(ctx)
}

func (r *pipedRelay) strategies() []strategy {
	return []strategy{
		{name: "streams", run: r.fetchStreams},
		{name: "hls", run: r.fetchHLS},
	}
}

type pipedStream struct {
	URL       string `json:"url"`
	Quality   string `json:"quality"`
	MimeType  string `json:"mimeType"`
	Codec     string `json:"codec"`
	VideoOnly bool   `json:"videoOnly"`
	Height    int    `json:"height"`
}

type pipedStreamsResponse struct {
	HLS          string        `json:"hls"`
	VideoStreams []pipedStream `json:"videoStreams"`
}

func (r *pipedRelay) fetchStreamsResponse(ctx context.Context, instance, videoKey string) (*pipedStreamsResponse, error) {
	endpoint := strings.TrimSuffix(instance, "/") + "/streams/" + videoKey
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piped streams returned %s", resp.Status)
	}

	var payload pipedStreamsResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (r *pipedRelay) fetchStreams(ctx context.Context, instance, videoKey string) (string, error) {
	payload, err := r.fetchStreamsResponse(ctx, instance, videoKey)
	if err != nil {
		return "", err
	}

	options := make([]streamOption, 0, len(payload.VideoStreams))
	for _, s := range payload.VideoStreams {
		height := s.Height
		if height == 0 {
			height = parseQualityLabel(s.Quality)
		}
		options = append(options, streamOption{
			URL:    s.URL,
			Height: height,
			Muxed:  !s.VideoOnly,
			Codec:  s.Codec,
			Mime:   s.MimeType,
		})
	}

	url := pickBestStream(options)
	if url == "" {
		return "", fmt.Errorf("no usable video stream from %s", instance)
	}
	return url, nil
}

func (r *pipedRelay) fetchHLS(ctx context.Context, instance, videoKey string) (string, error) {
	payload, err := r.fetchStreamsResponse(ctx, instance, videoKey)
	if err != nil {
		return "", err
	}
	if payload.HLS == "" {
		return "", fmt.Errorf("no hls manifest from %s", instance)
	}
	return payload.HLS, nil
}

type pipedDirectoryEntry struct {
	Name      string  `json:"name"`
	APIURL    string  `json:"api_url"`
	Uptime24h float64 `json:"uptime_24h"`
}

// Directory entries below this 24h uptime are flapping and waste race
// slots. Entries without uptime data are kept.
const pipedMinUptime = 90.0

func fetchPipedDirectory(ctx context.Context, httpc *http.Client, directoryURL string) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directoryURL, nil)
	if err != nil {
		return nil, err
	}

	resp, err := httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("piped directory returned %s", resp.Status)
	}

	var entries []pipedDirectoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	instances := make([]string, 0, len(entries))
	for _, e := range entries {
		api := strings.TrimSpace(e.APIURL)
		if api == "" || !strings.HasPrefix(api, "https://") {
			continue
		}
		if e.Uptime24h > 0 && e.Uptime24h < pipedMinUptime {
			continue
		}
		instances = append(instances, strings.TrimSuffix(api, "/"))
	}
	return instances, nil
}
