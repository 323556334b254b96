package handlers

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"previewarr/internal/database"
	"previewarr/models"
	resolverpkg "previewarr/services/resolver"
)

type resolverService interface {
	Resolve(context.Context, models.ContentIdentity) (models.ResolutionResult, error)
	Stats() (*database.CacheStats, error)
}

var _ resolverService = (*resolverpkg.Service)(nil)

type PreviewHandler struct {
	Service resolverService
}

func NewPreviewHandler(s resolverService) *PreviewHandler {
	return &PreviewHandler{Service: s}
}

// PreviewResponse is the wire shape for a resolution outcome.
type PreviewResponse struct {
	Found    bool   `json:"found"`
	Source   string `json:"source,omitempty"`
	URL      string `json:"url,omitempty"`
	RelayKey string `json:"relayKey,omitempty"`
	Region   string `json:"region,omitempty"`
}

func (h *PreviewHandler) GetPreview(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	kind, ok := models.ParseMediaKind(vars["mediaKind"])
	if !ok {
		writeError(w, http.StatusBadRequest, "unknown media kind")
		return
	}

	externalID := strings.TrimSpace(vars["externalId"])
	if !validExternalID(externalID) {
		writeError(w, http.StatusBadRequest, "invalid external id")
		return
	}

	result, err := h.Service.Resolve(r.Context(), models.ContentIdentity{
		ExternalID: externalID,
		MediaKind:  kind,
	})
	if err != nil {
		// Only cancellation reaches here; the client has already left.
		log.Printf("[handlers] preview resolution aborted for %s/%s: %v", kind, externalID, err)
		writeError(w, http.StatusServiceUnavailable, "resolution aborted")
		return
	}

	if !result.Found {
		writeJSON(w, http.StatusNotFound, PreviewResponse{Found: false})
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Found:    true,
		Source:   string(result.Source),
		URL:      result.PlayableURL,
		RelayKey: result.RelayKey,
		Region:   result.Region,
	})
}

func (h *PreviewHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Service.Stats()
	if err != nil {
		log.Printf("[handlers] preview stats failed: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to read stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// validExternalID accepts IMDb-style ids: tt followed by digits.
func validExternalID(id string) bool {
	if !strings.HasPrefix(id, "tt") || len(id) < 4 {
		return false
	}
	for _, r := range id[2:] {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[handlers] failed to encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
