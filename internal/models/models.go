package models

import (
	"time"
)

// DocumentStatus is the ingestion state of a document.
// pending → processing → {ready, failed}; both terminal states may re-enter processing.
type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusReady      DocumentStatus = "ready"
	StatusFailed     DocumentStatus = "failed"
)

// Project groups documents; search is always scoped to one project.
type Project struct {
	ID        string    `db:"id" json:"id"`
	Name      string    `db:"name" json:"name"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// Document represents an uploaded file awaiting or after ingestion.
type Document struct {
	ID               string         `db:"id" json:"id"`
	ProjectID        string         `db:"project_id" json:"project_id"`
	Title            string         `db:"title" json:"title"`
	StoragePath      string         `db:"storage_path" json:"storage_path"` // key in the bucket or s3:// URL
	MimeType         string         `db:"mime_type" json:"mime_type"`
	Status           DocumentStatus `db:"status" json:"status"`
	Error            *string        `db:"error" json:"error"`
	IngestGeneration int64          `db:"ingest_generation" json:"ingest_generation"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// Page is one unit of extracted text; PageNum is 1-based.
type Page struct {
	DocumentID string `db:"document_id" json:"document_id"`
	PageNum    int    `db:"page_num" json:"page_num"`
	Text       string `db:"text" json:"text"`
}

// DocumentChunk represents one embedded text window of a document.
type DocumentChunk struct {
	ID         string    `db:"id" json:"id"`
	DocumentID string    `db:"document_id" json:"document_id"`
	ChunkIndex int       `db:"chunk_index" json:"chunk_index"`
	PageStart  int       `db:"page_start" json:"page_start"`
	PageEnd    int       `db:"page_end" json:"page_end"`
	Heading    *string   `db:"heading" json:"heading"`
	Content    string    `db:"content" json:"content"`
	Embedding  []float32 `db:"embedding" json:"-"` // pgvector column
}

// QueryLog is an append-only record of a sanitized search query.
type QueryLog struct {
	ID        string    `db:"id" json:"id"`
	ProjectID string    `db:"project_id" json:"project_id"`
	Query     string    `db:"query" json:"query"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// SearchCandidate is a chunk returned by the vector index, ordered by ascending distance.
type SearchCandidate struct {
	ChunkID       string  `json:"chunk_id"`
	Content       string  `json:"content"`
	Heading       *string `json:"heading"`
	Distance      float64 `json:"distance"`
	DocumentTitle string  `json:"document_title"`
	PageStart     int     `json:"page_start"`
	PageEnd       int     `json:"page_end"`
}

// SearchResult is a candidate after hybrid re-ranking.
type SearchResult struct {
	SearchCandidate
	KeywordScore float64 `json:"keyword_score"`
	HybridScore  float64 `json:"hybrid_score"`
}
