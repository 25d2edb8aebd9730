package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/models"
)

type memDB struct {
	mu     sync.Mutex
	docs   map[string]*models.Document
	pages  map[string][]models.Page
	chunks map[string][]models.DocumentChunk

	beginCalls    int
	deleteErr     error
	onChunkInsert func(db *memDB, docID string, call int)
	chunkInserts  int
}

func newMemDB(docs ...models.Document) *memDB {
	db := &memDB{
		docs:   map[string]*models.Document{},
		pages:  map[string][]models.Page{},
		chunks: map[string][]models.DocumentChunk{},
	}
	for k := range docs {
		d := docs[k]
		if d.Status == "" {
			d.Status = models.StatusPending
		}
		db.docs[d.ID] = &d
	}
	return db
}

func (m *memDB) doc(id string) models.Document {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.docs[id]
}

// bump simulates a competing run taking over the document.
func (m *memDB) bump(id string) {
	m.docs[id].IngestGeneration++
	m.docs[id].Status = models.StatusProcessing
}

func (m *memDB) CreateDocument(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := *doc
	m.docs[d.ID] = &d
	return nil
}

func (m *memDB) GetDocumentByID(_ context.Context, id string) (*models.Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}

func (m *memDB) BeginIngestion(_ context.Context, id string) (int64, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.beginCalls++
	d, ok := m.docs[id]
	if !ok {
		return 0, false, nil
	}
	d.Status = models.StatusProcessing
	d.Error = nil
	d.IngestGeneration++
	return d.IngestGeneration, true, nil
}

func (m *memDB) FinishIngestion(_ context.Context, id string, gen int64, status models.DocumentStatus, errMsg *string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.docs[id]
	if !ok || d.IngestGeneration != gen {
		return false, nil
	}
	d.Status = status
	d.Error = errMsg
	return true, nil
}

// isCurrent must be called with m.mu held.
func (m *memDB) isCurrent(id string, gen int64) bool {
	d, ok := m.docs[id]
	return ok && d.IngestGeneration == gen
}

func (m *memDB) DeletePages(_ context.Context, id string, gen int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return false, m.deleteErr
	}
	if !m.isCurrent(id, gen) {
		return false, nil
	}
	delete(m.pages, id)
	return true, nil
}

func (m *memDB) DeleteChunks(_ context.Context, id string, gen int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrent(id, gen) {
		return false, nil
	}
	delete(m.chunks, id)
	return true, nil
}

func (m *memDB) InsertPages(_ context.Context, id string, gen int64, pages []models.Page) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.isCurrent(id, gen) {
		return false, nil
	}
	for _, p := range pages {
		m.pages[p.DocumentID] = append(m.pages[p.DocumentID], p)
	}
	return true, nil
}

func (m *memDB) InsertDocumentChunks(_ context.Context, id string, gen int64, chunks []models.DocumentChunk) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.chunkInserts++
	if !m.isCurrent(id, gen) {
		return false, nil
	}
	for _, c := range chunks {
		m.chunks[c.DocumentID] = append(m.chunks[c.DocumentID], c)
	}
	if m.onChunkInsert != nil && len(chunks) > 0 {
		m.onChunkInsert(m, id, m.chunkInserts)
	}
	return true, nil
}

func (m *memDB) GetPagesByDocument(_ context.Context, id string) ([]models.Page, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]models.Page(nil), m.pages[id]...)
	sort.Slice(out, func(a, b int) bool { return out[a].PageNum < out[b].PageNum })
	return out, nil
}

func (m *memDB) InsertQueryLog(context.Context, *models.QueryLog) error { return nil }
func (m *memDB) Close() error                                           { return nil }

func (m *memDB) chunkRows(id string) []models.DocumentChunk {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DocumentChunk(nil), m.chunks[id]...)
}

func (m *memDB) pageRows(id string) []models.Page {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Page(nil), m.pages[id]...)
}

type memObjects struct {
	files map[string][]byte // "bucket/key"
}

func (o *memObjects) UploadFile(_ context.Context, bucket, key string, data io.Reader, _ string) (string, error) {
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	o.files[bucket+"/"+key] = b
	return "s3://" + bucket + "/" + key, nil
}

func (o *memObjects) DeleteFile(_ context.Context, bucket, key string) error {
	delete(o.files, bucket+"/"+key)
	return nil
}

func (o *memObjects) GetFile(_ context.Context, bucket, key string) ([]byte, error) {
	b, ok := o.files[bucket+"/"+key]
	if !ok {
		return nil, fmt.Errorf("s3 get %s/%s failed: NoSuchKey", bucket, key)
	}
	return b, nil
}

// stubEmbedder returns [len(text), call, 0] per text and fails on call failOn.
type stubEmbedder struct {
	mu     sync.Mutex
	calls  int
	sizes  []int
	failOn int
}

func (e *stubEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	e.sizes = append(e.sizes, len(texts))
	if e.failOn == e.calls {
		return nil, errors.New("provider returned 503")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), float32(e.calls), 0}
	}
	return out, nil
}

type stubExtractor struct {
	pages []string
	err   error
}

func (s stubExtractor) Extract(context.Context, []byte, string, string) ([]string, error) {
	return s.pages, s.err
}

var (
	_ core.DbClient          = (*memDB)(nil)
	_ core.ObjectClient      = (*memObjects)(nil)
	_ core.EmbeddingProvider = (*stubEmbedder)(nil)
	_ core.TextExtractor     = stubExtractor{}
)
