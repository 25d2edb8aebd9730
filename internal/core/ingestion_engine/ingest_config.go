package ingestion_engine

import (
	"sync"
	"time"

	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/metrics"
)

// IngestConfig tunes the pipeline.
//
// ChunkSize / ChunkOverlap: window and overlap in characters (5000 / 500).
// BatchSize:  texts per embedding call (64).
// EmbedDim:   expected vector dimension; 0 skips the check.
// Bucket:     bucket for storage paths that are plain keys.
// LeaseTTL:   how long a per-document lease lives if never released.
// QueueSize:  capacity of the background job queue.
type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
	BatchSize    int
	EmbedDim     int
	Bucket       string
	LeaseTTL     time.Duration
	QueueSize    int
}

// IngestResult reports what a successful run stored.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Generation int64  `json:"generation"`
	Pages      int    `json:"pages"`
	Chunks     int    `json:"chunks"`
}

// DocumentIngestor runs the ingestion state machine for one document at a
// time per lease, either inline (ProcessOne) or from the background queue.
type DocumentIngestor struct {
	db        core.DbClient
	obj       core.ObjectClient
	extractor core.TextExtractor
	locker    core.IngestLocker
	chunker   *Chunker
	batcher   *EmbeddingBatcher
	metrics   *metrics.Metrics
	cfg       IngestConfig
	jobs      chan string
	wg        sync.WaitGroup
}
