package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// cobaltRelay resolves trailer keys through cobalt's media API. Only
// direct redirect responses are usable; tunnel responses proxy the
// stream through the instance and are discarded.
type cobaltRelay struct {
	httpc *http.Client
	pool  *instancePool
}

func newCobaltRelay(directoryURL string, static []string, ttl time.Duration, timeout time.Duration, httpc *http.Client) *cobaltRelay {
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	r := &cobaltRelay{httpc: httpc}
	var discover func(ctx context.Context) ([]string, error)
	if directoryURL != "" {
		discover = func(ctx context.Context) ([]string, error) {
			return fetchCobaltDirectory(ctx, httpc, directoryURL)
		}
	}
	r.pool = newInstancePool("cobalt", static, ttl, discover)
	return r
}

func (r *cobaltRelay) name() string { return "cobalt" }

func (r *cobaltRelay) instances(ctx context.Context) []string {
	return r.pool.instances(ctx)
}

func (r *cobaltRelay) strategies() []strategy {
	return []strategy{
		{name: "1080", run: r.resolve1080},
		{name: "720", run: r.resolve720},
	}
}

func (r *cobaltRelay) resolve1080(ctx context.Context, instance, videoKey string) (string, error) {
	return r.resolve(ctx, instance, videoKey, "1080")
}

func (r *cobaltRelay) resolve720(ctx context.Context, instance, videoKey string) (string, error) {
	return r.resolve(ctx, instance, videoKey, "720")
}

type cobaltRequest struct {
	URL           string `json:"url"`
	VideoQuality  string `json:"videoQuality"`
	FilenameStyle string `json:"filenameStyle"`
}

type cobaltResponse struct {
	Status string `json:"status"`
	URL    string `json:"url"`
}

func (r *cobaltRelay) resolve(ctx context.Context, instance, videoKey, quality string) (string, error) {
	payload, err := json.Marshal(cobaltRequest{
		URL:           "https://www.youtube.com/watch?v=" + videoKey,
		VideoQuality:  quality,
		FilenameStyle: "basic",
	})
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimSuffix(instance, "/")+"/", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cobalt returned %s", resp.Status)
	}

	var body cobaltResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}

	if body.Status != "redirect" || body.URL == "" {
		return "", fmt.Errorf("cobalt response not usable (status %q)", body.Status)
	}
	return body.URL, nil
}

type cobaltDirectoryEntry struct {
	API      string `json:"api"`
	Protocol string `json:"protocol"`
	Online   bool   `json:"api_online"`
	Score    int    `json:"score"`
}

// Instances scoring below this on the community tracker tend to be
// rate-limited or missing platform support.
const cobaltMinScore = 50

func fetchCobaltDirectory(ctx context.Context, httpc *http.Client, directoryURL string) ([]string, error) {
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
		return nil, fmt.Errorf("cobalt directory returned %s", resp.Status)
	}

	var entries []cobaltDirectoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	instances := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Protocol != "https" || e.API == "" || !e.Online || e.Score < cobaltMinScore {
			continue
		}
		instances = append(instances, "https://"+strings.TrimSuffix(e.API, "/"))
	}
	return instances, nil
}
