package ingestion_engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/metrics"
	"github.com/markdave123-py/docsift/internal/models"
)

var testCfg = IngestConfig{
	ChunkSize:    10,
	ChunkOverlap: 2,
	BatchSize:    2,
	EmbedDim:     3,
	Bucket:       "docs",
	LeaseTTL:     time.Minute,
}

type fixture struct {
	db      *memDB
	objects *memObjects
	emb     *stubEmbedder
	locker  *LocalLocker
	ing     *DocumentIngestor
}

func newFixture(t *testing.T, ext core.TextExtractor) *fixture {
	t.Helper()
	f := &fixture{
		db: newMemDB(models.Document{
			ID:          "doc-1",
			ProjectID:   "proj-1",
			Title:       "notes.txt",
			StoragePath: "proj-1/doc-1.txt",
			MimeType:    "text/plain",
		}),
		objects: &memObjects{files: map[string][]byte{"docs/proj-1/doc-1.txt": []byte("raw bytes")}},
		emb:     &stubEmbedder{},
		locker:  NewLocalLocker(),
	}
	f.ing = NewDocumentIngestor(f.db, f.objects, f.emb, ext, f.locker, metrics.New(), testCfg)
	return f
}

func TestProcessOneStoresPagesAndChunks(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"alpha page text", "beta page"}})

	res, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Equal(t, 2, res.Pages)
	assert.Equal(t, 3, res.Chunks)
	assert.Equal(t, int64(1), res.Generation)

	doc := f.db.doc("doc-1")
	assert.Equal(t, models.StatusReady, doc.Status)
	assert.Nil(t, doc.Error)

	pages := f.db.pageRows("doc-1")
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].PageNum)
	assert.Equal(t, "beta page", pages[1].Text)

	chunks := f.db.chunkRows("doc-1")
	require.Len(t, chunks, 3)
	for i, ch := range chunks {
		assert.Equal(t, i, ch.ChunkIndex, "chunk_index is contiguous from 0")
		assert.Len(t, ch.Embedding, 3)
	}
	assert.Equal(t, "alpha page", chunks[0].Content)
	assert.Equal(t, [2]int{1, 1}, [2]int{chunks[0].PageStart, chunks[0].PageEnd})
	assert.Equal(t, [2]int{2, 2}, [2]int{chunks[2].PageStart, chunks[2].PageEnd})
	assert.Equal(t, []int{2, 1}, f.emb.sizes)
}

func TestReingestReplacesRows(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"alpha page text", "beta page"}})
	ctx := context.Background()

	_, err := f.ing.ProcessOne(ctx, "doc-1")
	require.NoError(t, err)
	firstPages, firstChunks := f.db.pageRows("doc-1"), f.db.chunkRows("doc-1")

	res, err := f.ing.ProcessOne(ctx, "doc-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), res.Generation)

	secondPages, secondChunks := f.db.pageRows("doc-1"), f.db.chunkRows("doc-1")
	assert.Equal(t, firstPages, secondPages)
	require.Len(t, secondChunks, len(firstChunks))
	for i := range firstChunks {
		assert.Equal(t, firstChunks[i].Content, secondChunks[i].Content)
		assert.Equal(t, firstChunks[i].ChunkIndex, secondChunks[i].ChunkIndex)
	}
	assert.Equal(t, models.StatusReady, f.db.doc("doc-1").Status)
}

func TestSecondBatchFailureLeavesEarlierBatches(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{strings.Repeat("x", 50)}})
	f.emb.failOn = 2

	_, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmbeddingProvider)

	assert.Len(t, f.db.pageRows("doc-1"), 1, "pages are committed before embedding")
	chunks := f.db.chunkRows("doc-1")
	require.Len(t, chunks, 2, "only the first batch is persisted")
	assert.Equal(t, 0, chunks[0].ChunkIndex)
	assert.Equal(t, 1, chunks[1].ChunkIndex)

	doc := f.db.doc("doc-1")
	assert.Equal(t, models.StatusFailed, doc.Status)
	require.NotNil(t, doc.Error)
	assert.Equal(t, err.Error(), *doc.Error)
	assert.Contains(t, *doc.Error, "embedding batch 2 failed")
}

func TestEmptyExtraction(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"  ", "\x00\n"}})

	_, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrEmptyExtraction)

	doc := f.db.doc("doc-1")
	assert.Equal(t, models.StatusFailed, doc.Status)
	require.NotNil(t, doc.Error)
	assert.Empty(t, f.db.pageRows("doc-1"))
	assert.Zero(t, f.emb.calls)
}

func TestFailureKinds(t *testing.T) {
	cases := []struct {
		name  string
		setup func(f *fixture)
		kind  error
		msg   string
	}{
		{
			name:  "download",
			setup: func(f *fixture) { delete(f.objects.files, "docs/proj-1/doc-1.txt") },
			kind:  core.ErrStorage,
			msg:   "download failed",
		},
		{
			name:  "delete pages",
			setup: func(f *fixture) { f.db.deleteErr = errors.New("connection reset") },
			kind:  core.ErrStorage,
			msg:   "delete pages failed: connection reset",
		},
		{
			name:  "extraction",
			setup: func(f *fixture) { f.ing.extractor = stubExtractor{err: errors.New("pdftotext failed: exit status 1")} },
			kind:  core.ErrExtractionFailed,
			msg:   "pdftotext failed",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t, stubExtractor{pages: []string{"some text"}})
			tc.setup(f)

			_, err := f.ing.ProcessOne(context.Background(), "doc-1")
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.kind)

			doc := f.db.doc("doc-1")
			assert.Equal(t, models.StatusFailed, doc.Status)
			require.NotNil(t, doc.Error)
			assert.Contains(t, *doc.Error, tc.msg)
		})
	}
}

func TestMissingDocument(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"x"}})

	_, err := f.ing.ProcessOne(context.Background(), "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStorage)
	assert.Contains(t, err.Error(), "not found")
}

func TestSuccessClearsPreviousError(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"recovered text"}})
	msg := "old failure"
	f.db.docs["doc-1"].Status = models.StatusFailed
	f.db.docs["doc-1"].Error = &msg

	_, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.NoError(t, err)
	doc := f.db.doc("doc-1")
	assert.Equal(t, models.StatusReady, doc.Status)
	assert.Nil(t, doc.Error)
}

func TestBusyLeaseLeavesDocumentUntouched(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"x"}})
	release, ok, err := f.locker.Acquire(context.Background(), "doc-1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)
	defer release()

	_, err = f.ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrIngestionInProgress)
	assert.Zero(t, f.db.beginCalls)
	assert.Equal(t, models.StatusPending, f.db.doc("doc-1").Status)
}

func TestSupersededRunAborts(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{strings.Repeat("y", 50)}})
	f.db.onChunkInsert = func(db *memDB, docID string, call int) {
		if call == 1 {
			db.bump(docID)
		}
	}

	_, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStaleIngestion)

	doc := f.db.doc("doc-1")
	assert.Equal(t, models.StatusProcessing, doc.Status, "the newer run owns the status")
	assert.Nil(t, doc.Error)
	assert.Len(t, f.db.chunkRows("doc-1"), 2, "no batch is written after the takeover")
}

func TestTakeoverDuringExtractionWritesNoPages(t *testing.T) {
	f := newFixture(t, nil)
	f.ing.extractor = takeoverExtractor{db: f.db, docID: "doc-1", pages: []string{"late page"}}

	_, err := f.ing.ProcessOne(context.Background(), "doc-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, core.ErrStaleIngestion)

	assert.Empty(t, f.db.pageRows("doc-1"))
	assert.Empty(t, f.db.chunkRows("doc-1"))
	assert.Zero(t, f.emb.calls, "a superseded run stops before embedding")
	assert.Equal(t, models.StatusProcessing, f.db.doc("doc-1").Status)
}

// takeoverExtractor bumps the generation mid-run, as a competing
// BeginIngestion would.
type takeoverExtractor struct {
	db    *memDB
	docID string
	pages []string
}

func (x takeoverExtractor) Extract(context.Context, []byte, string, string) ([]string, error) {
	x.db.mu.Lock()
	x.db.bump(x.docID)
	x.db.mu.Unlock()
	return x.pages, nil
}

func TestCancelledCallerStillRecordsFailure(t *testing.T) {
	f := newFixture(t, stubExtractor{err: errors.New("boom")})
	ctx, cancel := context.WithCancel(context.Background())
	f.ing.extractor = cancelingExtractor{cancel: cancel}

	_, err := f.ing.ProcessOne(ctx, "doc-1")
	require.Error(t, err)
	assert.Equal(t, models.StatusFailed, f.db.doc("doc-1").Status)
}

type cancelingExtractor struct{ cancel context.CancelFunc }

func (c cancelingExtractor) Extract(context.Context, []byte, string, string) ([]string, error) {
	c.cancel()
	return nil, context.Canceled
}

func TestWorkersDrainQueue(t *testing.T) {
	f := newFixture(t, stubExtractor{pages: []string{"queued document text"}})
	ctx, cancel := context.WithCancel(context.Background())

	f.ing.Start(ctx, 2)
	require.NoError(t, f.ing.Enqueue(ctx, "doc-1"))

	require.Eventually(t, func() bool {
		return f.db.doc("doc-1").Status == models.StatusReady
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	f.ing.Wait()
}

func TestEnqueueRespectsContext(t *testing.T) {
	cfg := testCfg
	cfg.QueueSize = 1
	ing := NewDocumentIngestor(newMemDB(), &memObjects{}, &stubEmbedder{}, stubExtractor{}, nil, nil, cfg)

	require.NoError(t, ing.Enqueue(context.Background(), "a"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := ing.Enqueue(ctx, "b")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
