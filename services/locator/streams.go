package locator

import "strings"

// streamOption is one playable rendition offered by a relay instance.
type streamOption struct {
	URL    string
	Height int
	Muxed  bool
	HDR    bool
	Codec  string
	Mime   string
}

var qualityLadder = []int{2160, 1440, 1080, 720, 480, 360}

// ladderRank maps a height onto the quality ladder. Anything above the
// top rung counts as the top rung; anything below the bottom (or with an
// unknown height) ranks last but stays playable.
func ladderRank(height int) int {
	for i, rung := range qualityLadder {
		if height >= rung {
			return i
		}
	}
	return len(qualityLadder)
}

// pickBestStream applies the selection order: muxed audio+video always
// beats video-only, then the higher ladder rung, HDR over SDR, then
// h264/mp4 for broadest playback. Earlier options win remaining ties.
func pickBestStream(options []streamOption) string {
	var best *streamOption
	bestRank := 0

	for i := range options {
		opt := &options[i]
		if opt.URL == "" {
			continue
		}
		rank := ladderRank(opt.Height)
		if best == nil {
			best, bestRank = opt, rank
			continue
		}
		if opt.Muxed != best.Muxed {
			if opt.Muxed {
				best, bestRank = opt, rank
			}
			continue
		}
		if rank != bestRank {
			if rank < bestRank {
				best, bestRank = opt, rank
			}
			continue
		}
		if opt.HDR != best.HDR {
			if opt.HDR {
				best = opt
			}
			continue
		}
		if isH264(*opt) && !isH264(*best) {
			best = opt
		}
	}

	if best == nil {
		return ""
	}
	return best.URL
}

func isH264(opt streamOption) bool {
	codec := strings.ToLower(opt.Codec)
	mime := strings.ToLower(opt.Mime)
	return strings.HasPrefix(codec, "avc") || strings.HasPrefix(codec, "h264") ||
		strings.Contains(mime, "avc") || strings.Contains(mime, "mp4")
}

// parseQualityLabel turns labels like "1080p" or "720p60" into a height.
func parseQualityLabel(label string) int {
	label = strings.TrimSpace(strings.ToLower(label))
	if label == "" {
		return 0
	}
	digits := 0
	for _, r := range label {
		if r < '0' || r > '9' {
			break
		}
		digits = digits*10 + int(r-'0')
	}
	return digits
}
