package search_engine

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/metrics"
	"github.com/markdave123-py/docsift/internal/models"
)

// QueryLogWriter appends search queries to the query log.
type QueryLogWriter interface {
	InsertQueryLog(ctx context.Context, entry *models.QueryLog) error
}

type SearchRequest struct {
	ProjectID string `json:"project_id"`
	Query     string `json:"query"`
	K         *int   `json:"k,omitempty"`
}

// SearchConfig holds the candidate and result limits. FetchK and ResultK
// apply when the request has no k; an explicit k is used for both.
type SearchConfig struct {
	FetchK   int // 20
	ResultK  int // 8
	MaxK     int // 100
	EmbedDim int // 0 skips the dimension check
}

type SearchService struct {
	index    core.VectorIndex
	embedder core.EmbeddingProvider
	cache    *QueryEmbeddingCache
	logs     QueryLogWriter
	metrics  *metrics.Metrics
	cfg      SearchConfig
}

func NewSearchService(index core.VectorIndex, embedder core.EmbeddingProvider, cache *QueryEmbeddingCache, logs QueryLogWriter, m *metrics.Metrics, cfg SearchConfig) *SearchService {
	if cfg.FetchK <= 0 {
		cfg.FetchK = 20
	}
	if cfg.ResultK <= 0 {
		cfg.ResultK = 8
	}
	if cfg.MaxK <= 0 {
		cfg.MaxK = 100
	}
	if cache == nil {
		cache = NewQueryEmbeddingCache(0, time.Hour, m)
	}
	return &SearchService{index: index, embedder: embedder, cache: cache, logs: logs, metrics: m, cfg: cfg}
}

// Search embeds the sanitized query, fetches nearest chunks of the project
// and returns them re-ranked by hybrid score.
func (s *SearchService) Search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	results, err := s.search(ctx, req)
	switch {
	case err == nil:
		s.metrics.Search("ok")
	case errors.Is(err, core.ErrValidation):
		s.metrics.Search("invalid")
	default:
		s.metrics.Search("error")
	}
	return results, err
}

func (s *SearchService) search(ctx context.Context, req SearchRequest) ([]models.SearchResult, error) {
	if strings.TrimSpace(req.ProjectID) == "" || req.Query == "" {
		return nil, core.Errorf(core.ErrValidation, "Missing project_id or query")
	}
	fetchK, resultK := s.cfg.FetchK, s.cfg.ResultK
	if req.K != nil {
		if *req.K < 1 || *req.K > s.cfg.MaxK {
			return nil, core.Errorf(core.ErrValidation, "k must be between 1 and %d", s.cfg.MaxK)
		}
		fetchK, resultK = *req.K, *req.K
	}

	query := SanitizeQuery(req.Query)
	if strings.TrimSpace(query) == "" || query == "undefined" {
		return nil, core.Errorf(core.ErrValidation, "Query must be a non-empty string")
	}

	vec, err := s.cache.Resolve(ctx, query, func(ctx context.Context) ([]float32, error) {
		return s.embedQuery(ctx, query)
	})
	if err != nil {
		return nil, err
	}

	candidates, err := s.index.MatchChunks(ctx, req.ProjectID, vec, fetchK)
	if err != nil {
		return nil, core.Errorf(core.ErrVectorIndex, "match chunks: %w", err)
	}

	results := Rank(candidates, query, resultK)

	entry := &models.QueryLog{ID: uuid.NewString(), ProjectID: req.ProjectID, Query: query}
	if err := s.logs.InsertQueryLog(ctx, entry); err != nil {
		applog.Warn("query log append failed", "project_id", req.ProjectID, "error", core.Wrap(core.ErrQueryLog, err))
	}

	applog.Debug("search served", "project_id", req.ProjectID, "candidates", len(candidates), "results", len(results))
	return results, nil
}

func (s *SearchService) embedQuery(ctx context.Context, query string) ([]float32, error) {
	vecs, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, core.Errorf(core.ErrEmbeddingProvider, "embed query: %w", err)
	}
	if len(vecs) != 1 || len(vecs[0]) == 0 {
		return nil, core.Errorf(core.ErrEmbeddingProvider, "embed query: got %d vectors for 1 input", len(vecs))
	}
	if s.cfg.EmbedDim > 0 && len(vecs[0]) != s.cfg.EmbedDim {
		return nil, core.Errorf(core.ErrEmbeddingProvider, "embed query: dimension %d, want %d", len(vecs[0]), s.cfg.EmbedDim)
	}
	return vecs[0], nil
}
