package core

import (
	"context"
	"io"

	"github.com/markdave123-py/docsift/internal/models"
)

// DbClient defines all persistence operations the services need.
// It abstracts Postgres/pgvector so higher layers never depend on a specific DB.
type DbClient interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)

	// BeginIngestion moves the document to processing, clears its error and
	// returns the new ingest generation. A missing document yields a nil error
	// and found == false.
	BeginIngestion(ctx context.Context, id string) (generation int64, found bool, err error)
	// FinishIngestion sets a terminal status if generation is still current.
	// It reports false when a newer run has taken over.
	FinishIngestion(ctx context.Context, id string, generation int64, status models.DocumentStatus, errMsg *string) (bool, error)

	// The page and chunk writes below lock the document row and run only
	// while generation is current. They report false, writing nothing, once
	// a newer run has taken over.
	DeletePages(ctx context.Context, documentID string, generation int64) (bool, error)
	DeleteChunks(ctx context.Context, documentID string, generation int64) (bool, error)
	InsertPages(ctx context.Context, documentID string, generation int64, pages []models.Page) (bool, error)
	InsertDocumentChunks(ctx context.Context, documentID string, generation int64, chunks []models.DocumentChunk) (bool, error)
	GetPagesByDocument(ctx context.Context, documentID string) ([]models.Page, error)

	InsertQueryLog(ctx context.Context, entry *models.QueryLog) error

	Close() error
}

// ProjectStore owns the projects documents belong to.
type ProjectStore interface {
	CreateProject(ctx context.Context, p *models.Project) error
	ListProjects(ctx context.Context) ([]models.Project, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
}

// VectorIndex answers nearest-neighbour queries over stored chunk embeddings.
type VectorIndex interface {
	MatchChunks(ctx context.Context, projectID string, query []float32, count int) ([]models.SearchCandidate, error)
}

// ObjectClient defines interactions with S3 or any object storage.
type ObjectClient interface {
	UploadFile(ctx context.Context, bucket, key string, data io.Reader, contentType string) (url string, err error)
	DeleteFile(ctx context.Context, bucket, key string) error
	GetFile(ctx context.Context, bucket, key string) ([]byte, error)
}
