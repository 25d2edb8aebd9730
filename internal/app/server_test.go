package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
	"github.com/markdave123-py/docsift/internal/core/search_engine"
	"github.com/markdave123-py/docsift/internal/metrics"
	"github.com/markdave123-py/docsift/internal/models"
	"github.com/markdave123-py/docsift/internal/services"
)

type pingFunc func(context.Context) error

func (f pingFunc) Ping(ctx context.Context) error { return f(ctx) }

type stubIngest struct{}

func (stubIngest) ProcessOne(context.Context, string) (*ingestion_engine.IngestResult, error) {
	return &ingestion_engine.IngestResult{Pages: 1, Chunks: 1}, nil
}

type stubSearch struct{}

func (stubSearch) Search(context.Context, search_engine.SearchRequest) ([]models.SearchResult, error) {
	return nil, nil
}

type stubDocs struct{}

func (stubDocs) UploadAndCreate(context.Context, services.UploadInput) (*models.Document, error) {
	return &models.Document{}, nil
}
func (stubDocs) Get(context.Context, string) (*models.Document, error) {
	return &models.Document{}, nil
}
func (stubDocs) ListPages(context.Context, string) ([]models.Page, error) {
	return nil, nil
}

type stubProjects struct{}

func (stubProjects) Create(_ context.Context, name string) (*models.Project, error) {
	return &models.Project{ID: "p1", Name: name}, nil
}
func (stubProjects) List(context.Context) ([]models.Project, error) { return nil, nil }

func testRouter(ping pingFunc, m *metrics.Metrics) http.Handler {
	return NewRouter(RouterDeps{
		Health:      ping,
		Metrics:     m,
		Ingest:      stubIngest{},
		Search:      stubSearch{},
		Documents:   stubDocs{},
		Projects:    stubProjects{},
		CorsOrigins: []string{"http://localhost:3000"},
	})
}

func TestHealthz(t *testing.T) {
	ok := testRouter(func(context.Context) error { return nil }, metrics.New())
	rr := httptest.NewRecorder()
	ok.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	down := testRouter(func(context.Context) error { return errors.New("refused") }, metrics.New())
	rr = httptest.NewRecorder()
	down.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	m.Search("ok")
	h := testRouter(func(context.Context) error { return nil }, m)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "docsift_search_requests_total")
}

func TestRoutesAreWired(t *testing.T) {
	h := testRouter(func(context.Context) error { return nil }, metrics.New())

	tests := []struct {
		method, path, body string
		status             int
	}{
		{http.MethodPost, "/documents/d1/ingest", "", http.StatusOK},
		{http.MethodPost, "/search", `{"project_id":"p","query":"q"}`, http.StatusOK},
		{http.MethodGet, "/documents/d1", "", http.StatusOK},
		{http.MethodGet, "/documents/d1/pages", "", http.StatusOK},
		{http.MethodPost, "/projects", `{"name":"Handbook"}`, http.StatusCreated},
		{http.MethodGet, "/projects", "", http.StatusOK},
		{http.MethodGet, "/search", "", http.StatusMethodNotAllowed},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.ServeHTTP(rr, httptest.NewRequest(tt.method, tt.path, strings.NewReader(tt.body)))
			assert.Equal(t, tt.status, rr.Code)
		})
	}
}

func TestCORSPreflight(t *testing.T) {
	h := testRouter(func(context.Context) error { return nil }, metrics.New())

	req := httptest.NewRequest(http.MethodOptions, "/search", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	assert.Equal(t, "http://localhost:3000", rr.Header().Get("Access-Control-Allow-Origin"))
}
