package locator

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// invidiousRelay resolves trailer keys through the Invidious API.
type invidiousRelay struct {
	httpc *http.Client
	pool  *instancePool
}

func newInvidiousRelay(directoryURL string, static []string, ttl time.Duration, timeout time.Duration, httpc *http.Client) *invidiousRelay {
	if httpc == nil {
		httpc = &http.Client{Timeout: timeout}
	}
	r := &invidiousRelay{httpc: httpc}
	var discover func(ctx context.Context) ([]string, error)
	if directoryURL != "" {
		discover = func(ctx context.Context) ([]string, error) {
			return fetchInvidiousDirectory(ctx, httpc, directoryURL)
		}
	}
	r.pool = newInstancePool("invidious", static, ttl, discover)
	return r
}

func (r *invidiousRelay) name() string { return "invidious" }

func (r *invidiousRelay) instances(ctx context.Context) []string {
	return r.pool.instances(ctx)
}

func (r *invidiousRelay) strategies() []strategy {
	return []strategy{
		{name: "api", run: r.fetchVideo},
		{name: "latest_version", run: r.latestVersion},
	}
}

type invidiousFormat struct {
	URL          string `json:"url"`
	Resolution   string `json:"resolution"`
	QualityLabel string `json:"qualityLabel"`
	Type         string `json:"type"`
	Encoding     string `json:"encoding"`
}

type invidiousVideoResponse struct {
	FormatStreams   []invidiousFormat `json:"formatStreams"`
	AdaptiveFormats []invidiousFormat `json:"adaptiveFormats"`
}

func (r *invidiousRelay) fetchVideo(ctx context.Context, instance, videoKey string) (string, error) {
	endpoint := strings.TrimSuffix(instance, "/") + "/api/v1/videos/" + videoKey +
		"?fields=formatStreams,adaptiveFormats"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("invidious video returned %s", resp.Status)
	}

	var payload invidiousVideoResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}

	options := make([]streamOption, 0, len(payload.FormatStreams)+len(payload.AdaptiveFormats))
	for _, f := range payload.FormatStreams {
		options = append(options, toStreamOption(f, true))
	}
	for _, f := range payload.AdaptiveFormats {
		if !strings.HasPrefix(f.Type, "video/") {
			continue
		}
		options = append(options, toStreamOption(f, false))
	}

	best := pickBestStream(options)
	if best == "" {
		return "", fmt.Errorf("no usable video stream from %s", instance)
	}
	return best, nil
}

func toStreamOption(f invidiousFormat, muxed bool) streamOption {
	height := parseQualityLabel(f.Resolution)
	if height == 0 {
		height = parseQualityLabel(f.QualityLabel)
	}
	return streamOption{
		URL:    f.URL,
		Height: height,
		Muxed:  muxed,
		HDR:    strings.Contains(strings.ToLower(f.QualityLabel), "hdr"),
		Codec:  f.Encoding,
		Mime:   f.Type,
	}
}

// latestVersion builds the instance's muxed mp4 redirect URL without
// hitting the API. It is a last resort when the API strategy fails.
func (r *invidiousRelay) latestVersion(ctx context.Context, instance, videoKey string) (string, error) {
	endpoint := strings.TrimSuffix(instance, "/") + "/latest_version?id=" + url.QueryEscape(videoKey) + "&itag=22"
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, endpoint, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return "", fmt.Errorf("invidious latest_version returned %s", resp.Status)
	}
	return endpoint, nil
}

// The directory feed is an array of [name, details] pairs.
type invidiousDirectoryDetails struct {
	Type    string            `json:"type"`
	URI     string            `json:"uri"`
	API     *bool             `json:"api"`
	Monitor *invidiousMonitor `json:"monitor"`
}

type invidiousMonitor struct {
	Ratio90d struct {
		Ratio string `json:"ratio"`
	} `json:"90dRatio"`
}

// Instances whose 90-day uptime ratio sits below this are skipped.
// Entries without monitor data are kept.
const invidiousMinUptime = 90.0

func (m *invidiousMonitor) healthy() bool {
	if m == nil || m.Ratio90d.Ratio == "" {
		return true
	}
	ratio, err := strconv.ParseFloat(m.Ratio90d.Ratio, 64)
	if err != nil {
		return true
	}
	return ratio >= invidiousMinUptime
}

func fetchInvidiousDirectory(ctx context.Context, httpc *http.Client, directoryURL string) ([]string, error) {
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
		return nil, fmt.Errorf("invidious directory returned %s", resp.Status)
	}

	var entries [][]json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, err
	}

	instances := make([]string, 0, len(entries))
	for _, pair := range entries {
		if len(pair) < 2 {
			continue
		}
		var details invidiousDirectoryDetails
		if err := json.Unmarshal(pair[1], &details); err != nil {
			continue
		}
		if details.Type != "https" || details.URI == "" {
			continue
		}
		if details.API != nil && !*details.API {
			continue
		}
		if !details.Monitor.healthy() {
			continue
		}
		instances = append(instances, strings.TrimSuffix(details.URI, "/"))
	}
	return instances, nil
}
