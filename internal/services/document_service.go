package services

import (
	"context"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"code.sajari.com/docconv"
	"github.com/google/uuid"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core"
	"github.com/markdave123-py/docsift/internal/models"
)

const enqueueWait = 2 * time.Second

// DocumentStore is the slice of persistence the document service needs.
type DocumentStore interface {
	CreateDocument(ctx context.Context, doc *models.Document) error
	GetDocumentByID(ctx context.Context, id string) (*models.Document, error)
	GetPagesByDocument(ctx context.Context, documentID string) ([]models.Page, error)
	ProjectExists(ctx context.Context, id string) (bool, error)
}

// IngestQueue accepts document ids for background ingestion.
type IngestQueue interface {
	Enqueue(ctx context.Context, docID string) error
}

// UploadInput describes one uploaded file.
type UploadInput struct {
	ProjectID   string
	Title       string
	Filename    string
	ContentType string
	Body        io.Reader
}

type DocumentService struct {
	db      DocumentStore
	storage core.ObjectClient
	queue   IngestQueue
	bucket  string
}

func NewDocumentService(db DocumentStore, storage core.ObjectClient, queue IngestQueue, bucket string) *DocumentService {
	return &DocumentService{db: db, storage: storage, queue: queue, bucket: bucket}
}

// UploadAndCreate stores the file, registers a pending document and queues
// it for ingestion. A full queue leaves the document pending; it can still be
// ingested through the ingest endpoint.
func (s *DocumentService) UploadAndCreate(ctx context.Context, in UploadInput) (*models.Document, error) {
	if _, err := uuid.Parse(in.ProjectID); err != nil {
		return nil, core.Errorf(core.ErrValidation, "project_id must be a UUID")
	}
	filename := cleanFilename(in.Filename)
	if filename == "" {
		return nil, core.Errorf(core.ErrValidation, "file name is required")
	}
	exists, err := s.db.ProjectExists(ctx, in.ProjectID)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "project lookup failed: %w", err)
	}
	if !exists {
		return nil, core.Errorf(core.ErrValidation, "project %s does not exist", in.ProjectID)
	}

	title := strings.TrimSpace(in.Title)
	if title == "" {
		title = filename
	}
	contentType := in.ContentType
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = docconv.MimeTypeByExtension(filename)
	}

	docID := uuid.NewString()
	key := objectKey(in.ProjectID, docID, filename)

	if _, err := s.storage.UploadFile(ctx, s.bucket, key, in.Body, contentType); err != nil {
		return nil, core.Errorf(core.ErrStorage, "upload failed: %w", err)
	}

	doc := &models.Document{
		ID:          docID,
		ProjectID:   in.ProjectID,
		Title:       title,
		StoragePath: key,
		MimeType:    contentType,
		Status:      models.StatusPending,
	}
	if err := s.db.CreateDocument(ctx, doc); err != nil {
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer cancel()
		if derr := s.storage.DeleteFile(cleanupCtx, s.bucket, key); derr != nil {
			applog.Warn("orphaned upload left in bucket", "key", key, "error", derr)
		}
		return nil, core.Errorf(core.ErrStorage, "create document failed: %w", err)
	}

	enqCtx, cancel := context.WithTimeout(ctx, enqueueWait)
	defer cancel()
	if err := s.queue.Enqueue(enqCtx, doc.ID); err != nil {
		applog.Warn("document not queued for ingestion", "document_id", doc.ID, "error", err)
	}
	applog.Info("document uploaded", "document_id", doc.ID, "project_id", doc.ProjectID, "key", key)
	return doc, nil
}

func (s *DocumentService) Get(ctx context.Context, id string) (*models.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, core.Errorf(core.ErrNotFound, "document %s not found", id)
	}
	doc, err := s.db.GetDocumentByID(ctx, id)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "load document failed: %w", err)
	}
	if doc == nil {
		return nil, core.Errorf(core.ErrNotFound, "document %s not found", id)
	}
	return doc, nil
}

// ListPages returns the document's pages ordered by page number.
func (s *DocumentService) ListPages(ctx context.Context, id string) ([]models.Page, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	pages, err := s.db.GetPagesByDocument(ctx, id)
	if err != nil {
		return nil, core.Errorf(core.ErrStorage, "load pages failed: %w", err)
	}
	return pages, nil
}

// objectKey lays uploads out as <project>/<document>/<file>.
func objectKey(projectID, docID, filename string) string {
	return path.Join(projectID, docID, filename)
}

func cleanFilename(name string) string {
	name = strings.TrimSpace(strings.ReplaceAll(name, "\\", "/"))
	if name == "" {
		return ""
	}
	name = filepath.Base(name)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return strings.ReplaceAll(name, " ", "_")
}
