package ingestion_engine

import "context"

// Ingestor runs ingestions inline (ProcessOne) or through a worker pool
// (Start, Enqueue, Wait).
type Ingestor interface {
	Start(ctx context.Context, numWorkers int)
	Wait()
	Enqueue(ctx context.Context, docID string) error
	ProcessOne(ctx context.Context, docID string) (*IngestResult, error)
}

var _ Ingestor = (*DocumentIngestor)(nil)
