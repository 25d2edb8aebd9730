package ingestion_engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
	objectclient "github.com/markdave123-py/docsift/internal/core/object-client"
	"github.com/markdave123-py/docsift/internal/metrics"
	"github.com/markdave123-py/docsift/internal/models"
)

// NewDocumentIngestor wires the pipeline. A nil locker falls back to an
// in-process lease.
func NewDocumentIngestor(
	db core.DbClient,
	obj core.ObjectClient,
	emb core.EmbeddingProvider,
	extractor core.TextExtractor,
	locker core.IngestLocker,
	m *metrics.Metrics,
	cfg IngestConfig,
) *DocumentIngestor {
	if locker == nil {
		locker = NewLocalLocker()
	}
	if cfg.LeaseTTL <= 0 {
		cfg.LeaseTTL = 15 * time.Minute
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	return &DocumentIngestor{
		db:        db,
		obj:       obj,
		extractor: extractor,
		locker:    locker,
		chunker:   NewChunker(cfg.ChunkSize, cfg.ChunkOverlap),
		batcher:   NewEmbeddingBatcher(emb, cfg.BatchSize, cfg.EmbedDim, m),
		metrics:   m,
		cfg:       cfg,
		jobs:      make(chan string, cfg.QueueSize),
	}
}

// Start runs numWorkers goroutines draining the job queue until ctx is done.
// A job already running finishes even after ctx is cancelled.
func (i *DocumentIngestor) Start(ctx context.Context, numWorkers int) {
	for w := 1; w <= numWorkers; w++ {
		i.wg.Add(1)
		go func(w int) {
			defer i.wg.Done()
			for {
				select {
				case <-ctx.Done():
					applog.Debug("ingest worker shutting down", "worker", w)
					return
				case docID := <-i.jobs:
					applog.Info("ingest job picked up", "document_id", docID, "worker", w)
					res, err := i.ProcessOne(context.WithoutCancel(ctx), docID)
					switch {
					case errors.Is(err, core.ErrIngestionInProgress):
						applog.Info("ingest job skipped, already running", "document_id", docID)
					case err != nil:
						applog.Error("ingest job failed", "document_id", docID, "error", err)
					default:
						applog.Info("ingest job done", "document_id", docID, "pages", res.Pages, "chunks", res.Chunks)
					}
				}
			}
		}(w)
	}
}

// Wait blocks until every worker started by Start has returned.
func (i *DocumentIngestor) Wait() {
	i.wg.Wait()
}

// Enqueue schedules a document for background ingestion. It blocks while
// the queue is full, until ctx is done.
func (i *DocumentIngestor) Enqueue(ctx context.Context, docID string) error {
	select {
	case i.jobs <- docID:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue %s: %w", docID, ctx.Err())
	}
}

// ProcessOne ingests a document end to end under its lease:
// processing → fetch → clear → extract → pages → chunk → embed/insert → ready.
// Any failure after the processing transition marks the document failed with
// the error's message and returns the error.
func (i *DocumentIngestor) ProcessOne(ctx context.Context, docID string) (*IngestResult, error) {
	release, ok, err := i.locker.Acquire(ctx, docID, i.cfg.LeaseTTL)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "acquire ingest lease: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("document %s: %w", docID, core.ErrIngestionInProgress)
	}
	defer release()

	started := time.Now()
	log := applog.With("document_id", docID)

	gen, found, err := i.db.BeginIngestion(ctx, docID)
	if err != nil {
		i.metrics.IngestFinished("failed", time.Since(started))
		return nil, core.Errorf(core.ErrStorage, "set processing failed: %w", err)
	}
	if !found {
		i.metrics.IngestFinished("failed", time.Since(started))
		return nil, core.Errorf(core.ErrStorage, "document %s not found", docID)
	}
	log = log.With("generation", gen)
	log.Info("ingestion started")

	res, err := i.run(ctx, docID, gen)
	if err == nil {
		var current bool
		current, err = i.db.FinishIngestion(ctx, docID, gen, models.StatusReady, nil)
		switch {
		case err != nil:
			err = core.Errorf(core.ErrStorage, "set ready failed: %w", err)
		case !current:
			err = staleErr(docID, gen)
		}
	}

	if err != nil {
		if errors.Is(err, core.ErrStaleIngestion) {
			log.Warn("ingestion superseded", "error", err)
			i.metrics.IngestFinished("stale", time.Since(started))
			return nil, err
		}
		i.markFailed(ctx, docID, gen, err)
		log.Error("ingestion failed", "error", err, "elapsed_ms", time.Since(started).Milliseconds())
		i.metrics.IngestFinished("failed", time.Since(started))
		return nil, err
	}

	log.Info("ingestion finished", "pages", res.Pages, "chunks", res.Chunks, "elapsed_ms", time.Since(started).Milliseconds())
	i.metrics.IngestFinished("ready", time.Since(started))
	return res, nil
}

func (i *DocumentIngestor) run(ctx context.Context, docID string, gen int64) (*IngestResult, error) {
	doc, err := i.db.GetDocumentByID(ctx, docID)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "load document: %w", err)
	}
	if doc == nil {
		return nil, core.Errorf(core.ErrStorage, "document %s not found", docID)
	}
	if doc.IngestGeneration != gen {
		return nil, staleErr(docID, gen)
	}

	bucket, key, err := objectclient.ParseLocation(doc.StoragePath, i.cfg.Bucket)
	if err != nil {
		return nil, core.Wrap(core.ErrStorage, err)
	}
	data, err := i.obj.GetFile(ctx, bucket, key)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "download failed: %w", err)
	}

	if current, err := i.db.DeletePages(ctx, docID, gen); err != nil {
		return nil, core.Errorf(core.ErrStorage, "delete pages failed: %w", err)
	} else if !current {
		return nil, staleErr(docID, gen)
	}
	if current, err := i.db.DeleteChunks(ctx, docID, gen); err != nil {
		return nil, core.Errorf(core.ErrStorage, "delete chunks failed: %w", err)
	} else if !current {
		return nil, staleErr(docID, gen)
	}

	pages, err := i.extractor.Extract(ctx, data, doc.MimeType, doc.Title)
	if err != nil {
		return nil, core.Wrap(core.ErrExtractionFailed, err)
	}

	chunks := i.chunker.SplitPages(pages)
	if len(chunks) == 0 {
		return nil, core.Errorf(core.ErrEmptyExtraction, "no text extracted (empty)")
	}

	pageRows := make([]models.Page, len(pages))
	for n, text := range pages {
		pageRows[n] = models.Page{DocumentID: docID, PageNum: n + 1, Text: strings.ReplaceAll(text, "\x00", "")}
	}
	if current, err := i.db.InsertPages(ctx, docID, gen, pageRows); err != nil {
		return nil, core.Errorf(core.ErrStorage, "insert pages failed: %w", err)
	} else if !current {
		return nil, staleErr(docID, gen)
	}

	texts := make([]string, len(chunks))
	for n := range chunks {
		texts[n] = chunks[n].Content
	}
	err = i.batcher.Run(ctx, texts, func(offset int, vecs [][]float32) error {
		rows := make([]models.DocumentChunk, len(vecs))
		for k, vec := range vecs {
			ch := chunks[offset+k]
			rows[k] = models.DocumentChunk{
				DocumentID: docID,
				ChunkIndex: ch.Index,
				PageStart:  ch.PageStart,
				PageEnd:    ch.PageEnd,
				Content:    ch.Content,
				Embedding:  vec,
			}
		}
		current, err := i.db.InsertDocumentChunks(ctx, docID, gen, rows)
		if err != nil {
			return core.Errorf(core.ErrStorage, "insert chunks failed: %w", err)
		}
		if !current {
			return staleErr(docID, gen)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &IngestResult{DocumentID: docID, Generation: gen, Pages: len(pages), Chunks: len(chunks)}, nil
}

// markFailed records err on the document. It runs on a context detached from
// the caller so a cancelled request still leaves a terminal status.
func (i *DocumentIngestor) markFailed(ctx context.Context, docID string, gen int64, cause error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	msg := cause.Error()
	current, err := i.db.FinishIngestion(ctx, docID, gen, models.StatusFailed, &msg)
	if err != nil {
		applog.Error("mark failed did not persist", "document_id", docID, "generation", gen, "error", err)
		return
	}
	if !current {
		applog.Warn("mark failed skipped, newer run owns the document", "document_id", docID, "generation", gen)
	}
}

func staleErr(docID string, gen int64) error {
	return core.Errorf(core.ErrStaleIngestion, "document %s: generation %d was superseded", docID, gen)
}
