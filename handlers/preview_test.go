package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"previewarr/internal/database"
	"previewarr/models"
)

type fakeResolver struct {
	result   models.ResolutionResult
	err      error
	stats    *database.CacheStats
	requests []models.ContentIdentity
}

func (f *fakeResolver) Resolve(ctx context.Context, identity models.ContentIdentity) (models.ResolutionResult, error) {
	f.requests = append(f.requests, identity)
	return f.result, f.err
}

func (f *fakeResolver) Stats() (*database.CacheStats, error) {
	return f.stats, nil
}

func newTestRouter(h *PreviewHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/api/preview/stats", h.GetStats).Methods(http.MethodGet)
	r.HandleFunc("/api/preview/{mediaKind}/{externalId}", h.GetPreview).Methods(http.MethodGet)
	return r
}

func TestGetPreviewFound(t *testing.T) {
	svc := &fakeResolver{result: models.ResolutionResult{
		Found:       true,
		Source:      models.SourceCatalog,
		PlayableURL: "https://video.example/matrix.m4v",
		Region:      "us",
	}}
	router := newTestRouter(NewPreviewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/api/preview/movie/tt0133093", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp PreviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Found || resp.URL != "https://video.example/matrix.m4v" || resp.Source != "catalog" {
		t.Errorf("unexpected response: %+v", resp)
	}

	if len(svc.requests) != 1 {
		t.Fatalf("expected 1 resolve call, got %d", len(svc.requests))
	}
	if svc.requests[0].ExternalID != "tt0133093" || svc.requests[0].MediaKind != models.MediaKindMovie {
		t.Errorf("unexpected identity: %+v", svc.requests[0])
	}
}

func TestGetPreviewNotFound(t *testing.T) {
	svc := &fakeResolver{result: models.ResolutionResult{Found: false}}
	router := newTestRouter(NewPreviewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/api/preview/movie/tt0000404", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var resp PreviewResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Found {
		t.Error("expected found=false body")
	}
}

func TestGetPreviewSeriesKindAliases(t *testing.T) {
	for _, alias := range []string{"series", "show", "tv"} {
		svc := &fakeResolver{result: models.ResolutionResult{Found: false}}
		router := newTestRouter(NewPreviewHandler(svc))

		req := httptest.NewRequest(http.MethodGet, "/api/preview/"+alias+"/tt0944947", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)

		if rec.Code == http.StatusBadRequest {
			t.Errorf("alias %q rejected", alias)
			continue
		}
		if len(svc.requests) != 1 || svc.requests[0].MediaKind != models.MediaKindSeries {
			t.Errorf("alias %q resolved to %+v", alias, svc.requests)
		}
	}
}

func TestGetPreviewBadRequests(t *testing.T) {
	tests := []struct {
		name string
		path string
	}{
		{"unknown kind", "/api/preview/podcast/tt0133093"},
		{"malformed id", "/api/preview/movie/133093"},
		{"non-numeric id", "/api/preview/movie/ttabcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeResolver{}
			router := newTestRouter(NewPreviewHandler(svc))

			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)

			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
			if len(svc.requests) != 0 {
				t.Errorf("resolver must not run for invalid input")
			}
		})
	}
}

func TestGetStats(t *testing.T) {
	svc := &fakeResolver{stats: &database.CacheStats{Total: 5, Catalog: 2, Relay: 1, Negative: 2}}
	router := newTestRouter(NewPreviewHandler(svc))

	req := httptest.NewRequest(http.MethodGet, "/api/preview/stats", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var stats database.CacheStats
	if err := json.NewDecoder(rec.Body).Decode(&stats); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if stats.Total != 5 || stats.Catalog != 2 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
