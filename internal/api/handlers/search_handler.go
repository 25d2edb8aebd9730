package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/docsift/internal/core/search_engine"
	"github.com/markdave123-py/docsift/internal/models"
)

const maxSearchBody = 1 << 20

type Searcher interface {
	Search(ctx context.Context, req search_engine.SearchRequest) ([]models.SearchResult, error)
}

type SearchHandler struct {
	search Searcher
}

func NewSearchHandler(s Searcher) *SearchHandler {
	return &SearchHandler{search: s}
}

type searchResponse struct {
	OK      bool                  `json:"ok"`
	Results []models.SearchResult `json:"results"`
}

func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var req search_engine.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxSearchBody)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	results, err := h.search.Search(r.Context(), req)
	if err != nil {
		writeKindError(w, err)
		return
	}
	if results == nil {
		results = []models.SearchResult{}
	}
	writeJSON(w, http.StatusOK, searchResponse{OK: true, Results: results})
}
