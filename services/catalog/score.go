package catalog

import (
	"previewarr/models"
	"previewarr/utils/similarity"
)

// scoreCandidate rates how well a storefront result matches the resolved
// metadata. Only the single best title signal counts; year and runtime
// adjust on top of it. A result with no preview asset is unusable no
// matter how well it matches.
func scoreCandidate(meta *models.Metadata, c models.CatalogCandidate) float64 {
	score := titleScore(meta, c.DisplayName)
	score += yearScore(meta, c.ReleaseYear)
	score += runtimeScore(meta, c.RuntimeMinutes)

	if c.PreviewURL == "" {
		score -= 1.0
	}
	return score
}

func titleScore(meta *models.Metadata, displayName string) float64 {
	name := similarity.Normalize(displayName)
	if name == "" {
		return 0
	}

	canonical := similarity.Normalize(meta.CanonicalTitle)
	if name == canonical {
		return 0.5
	}

	if name == similarity.Normalize(meta.OriginalTitle) {
		return 0.4
	}
	for _, alt := range meta.AlternateTitles {
		if name == similarity.Normalize(alt) {
			return 0.4
		}
	}

	best := similarity.Fuzzy(name, canonical)
	if f := similarity.Fuzzy(name, similarity.Normalize(meta.OriginalTitle)); f > best {
		best = f
	}
	switch {
	case best > 0.8:
		return 0.3
	case best > 0.6:
		return 0.15
	}
	return 0
}

func yearScore(meta *models.Metadata, candidateYear int) float64 {
	if meta.ReleaseYear == 0 || candidateYear == 0 {
		return 0
	}

	diff := meta.ReleaseYear - candidateYear
	if diff < 0 {
		diff = -diff
	}

	if meta.MediaKind == models.MediaKindSeries {
		// Storefronts list individual seasons, so a series keeps
		// earning partial credit years after its premiere.
		switch {
		case diff == 0:
			return 0.35
		case diff <= 2:
			return 0.25
		case diff <= 5:
			return 0.15
		case diff <= 10:
			return 0.05
		}
		return 0
	}

	switch {
	case diff == 0:
		return 0.35
	case diff == 1:
		return 0.2
	case diff == 2:
		return 0
	}
	return -0.5
}

func runtimeScore(meta *models.Metadata, candidateMinutes int) float64 {
	if meta.MediaKind != models.MediaKindMovie {
		return 0
	}
	if meta.RuntimeMinutes == 0 || candidateMinutes == 0 {
		return 0
	}

	diff := meta.RuntimeMinutes - candidateMinutes
	if diff < 0 {
		diff = -diff
	}
	switch {
	case diff <= 5:
		return 0.15
	case diff > 15:
		return -0.2
	}
	return 0
}
