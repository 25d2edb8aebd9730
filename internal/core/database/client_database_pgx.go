package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/markdave123-py/docsift/internal/config"
	"github.com/markdave123-py/docsift/internal/models"
)

type DatabaseClient struct {
	db *sql.DB
}

func NewDatabaseClient(ctx context.Context, cfg *config.Config) (*DatabaseClient, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database client configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	maxOpen := cfg.DBMaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 20
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxOpen / 2)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db, cfg.EmbedDim); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &DatabaseClient{db: db}, nil
}

// NewWithDB wraps an already opened pool; no ping or bootstrap is done.
func NewWithDB(db *sql.DB) *DatabaseClient {
	return &DatabaseClient{db: db}
}

// Ping reports whether the database is reachable.
func (c *DatabaseClient) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

func (c *DatabaseClient) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Projects

func (c *DatabaseClient) CreateProject(ctx context.Context, p *models.Project) error {
	if p == nil {
		return errors.New("nil project")
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}
	const q = `INSERT INTO projects (id, name) VALUES ($1, $2) RETURNING created_at`
	return c.db.QueryRowContext(ctx, q, p.ID, p.Name).Scan(&p.CreatedAt)
}

func (c *DatabaseClient) ListProjects(ctx context.Context) ([]models.Project, error) {
	rows, err := c.db.QueryContext(ctx, `SELECT id, name, created_at FROM projects ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.Name, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (c *DatabaseClient) ProjectExists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := c.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM projects WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Documents

func (c *DatabaseClient) CreateDocument(ctx context.Context, doc *models.Document) error {
	if doc == nil {
		return errors.New("nil document")
	}
	if doc.Status == "" {
		doc.Status = models.StatusPending
	}
	const q = `
		INSERT INTO documents
			(id, project_id, title, storage_path, mime_type, status, created_at, updated_at)
		VALUES
			($1, $2, $3, $4, $5, $6, now(), now())
		RETURNING created_at, updated_at
	`
	return c.db.QueryRowContext(ctx, q,
		doc.ID, doc.ProjectID, doc.Title, doc.StoragePath, doc.MimeType, doc.Status).
		Scan(&doc.CreatedAt, &doc.UpdatedAt)
}

func (c *DatabaseClient) GetDocumentByID(ctx context.Context, id string) (*models.Document, error) {
	const q = `
		SELECT id, project_id, title, storage_path, mime_type, status, error, ingest_generation, created_at, updated_at
		FROM documents
		WHERE id = $1
	`
	var (
		d      models.Document
		errMsg sql.NullString
	)
	err := c.db.QueryRowContext(ctx, q, id).Scan(
		&d.ID, &d.ProjectID, &d.Title, &d.StoragePath, &d.MimeType, &d.Status, &errMsg, &d.IngestGeneration, &d.CreatedAt, &d.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if errMsg.Valid {
		d.Error = &errMsg.String
	}
	return &d, nil
}

func (c *DatabaseClient) BeginIngestion(ctx context.Context, id string) (int64, bool, error) {
	const q = `
		UPDATE documents
		SET status = 'processing', error = NULL, ingest_generation = ingest_generation + 1, updated_at = now()
		WHERE id = $1
		RETURNING ingest_generation
	`
	var gen int64
	err := c.db.QueryRowContext(ctx, q, id).Scan(&gen)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return gen, true, nil
}

func (c *DatabaseClient) FinishIngestion(ctx context.Context, id string, generation int64, status models.DocumentStatus, errMsg *string) (bool, error) {
	const q = `
		UPDATE documents
		SET status = $3, error = $4, updated_at = now()
		WHERE id = $1 AND ingest_generation = $2
	`
	res, err := c.db.ExecContext(ctx, q, id, generation, status, errMsg)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// withGeneration runs fn in a transaction that holds the document row lock.
// BeginIngestion updates the same row, so a newer run cannot bump the
// generation between the check and the write. It reports false, without
// calling fn, when generation is no longer current or the document is gone.
func (c *DatabaseClient) withGeneration(ctx context.Context, documentID string, generation int64, fn func(tx *sql.Tx) error) (bool, error) {
	tx, err := c.db.BeginTx(ctx, &sql.TxOptions{})
	if err != nil {
		return false, err
	}

	var current int64
	err = tx.QueryRowContext(ctx, `SELECT ingest_generation FROM documents WHERE id = $1 FOR UPDATE`, documentID).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && current != generation) {
		_ = tx.Rollback()
		return false, nil
	}
	if err != nil {
		_ = tx.Rollback()
		return false, err
	}

	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

// Pages

func (c *DatabaseClient) DeletePages(ctx context.Context, documentID string, generation int64) (bool, error) {
	return c.withGeneration(ctx, documentID, generation, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM document_pages WHERE document_id = $1`, documentID)
		return err
	})
}

// InsertPages inserts all pages in the generation-checked transaction.
func (c *DatabaseClient) InsertPages(ctx context.Context, documentID string, generation int64, pages []models.Page) (bool, error) {
	return c.withGeneration(ctx, documentID, generation, func(tx *sql.Tx) error {
		if len(pages) == 0 {
			return nil
		}
		stmt, err := tx.PrepareContext(ctx, `INSERT INTO document_pages (document_id, page_num, text) VALUES ($1, $2, $3)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range pages {
			p := &pages[i]
			if _, err := stmt.ExecContext(ctx, p.DocumentID, p.PageNum, p.Text); err != nil {
				return fmt.Errorf("page %d: %w", p.PageNum, err)
			}
		}
		return nil
	})
}

func (c *DatabaseClient) GetPagesByDocument(ctx context.Context, documentID string) ([]models.Page, error) {
	const q = `
		SELECT document_id, page_num, text
		FROM document_pages
		WHERE document_id = $1
		ORDER BY page_num ASC
	`
	rows, err := c.db.QueryContext(ctx, q, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []models.Page{}
	for rows.Next() {
		var p models.Page
		if err := rows.Scan(&p.DocumentID, &p.PageNum, &p.Text); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Chunks

func (c *DatabaseClient) DeleteChunks(ctx context.Context, documentID string, generation int64) (bool, error) {
	return c.withGeneration(ctx, documentID, generation, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
		return err
	})
}

// InsertDocumentChunks inserts one batch in the generation-checked transaction.
func (c *DatabaseClient) InsertDocumentChunks(ctx context.Context, documentID string, generation int64, chunks []models.DocumentChunk) (bool, error) {
	return c.withGeneration(ctx, documentID, generation, func(tx *sql.Tx) error {
		if len(chunks) == 0 {
			return nil
		}
		const q = `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, page_start, page_end, heading, content, embedding)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		`
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for i := range chunks {
			ch := &chunks[i]
			if ch.ID == "" {
				ch.ID = uuid.NewString()
			}
			vec := pgvector.NewVector(ch.Embedding)
			if _, err := stmt.ExecContext(ctx,
				ch.ID, ch.DocumentID, ch.ChunkIndex, ch.PageStart, ch.PageEnd, ch.Heading, ch.Content, vec,
			); err != nil {
				return fmt.Errorf("chunk %d: %w", ch.ChunkIndex, err)
			}
		}
		return nil
	})
}

// Query logs

func (c *DatabaseClient) InsertQueryLog(ctx context.Context, entry *models.QueryLog) error {
	if entry == nil {
		return errors.New("nil query log")
	}
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	const q = `INSERT INTO query_logs (id, project_id, query) VALUES ($1, $2, $3)`
	_, err := c.db.ExecContext(ctx, q, entry.ID, entry.ProjectID, entry.Query)
	return err
}

// MatchChunks returns the count nearest chunks of ready documents in the
// project, ordered by ascending cosine distance.
func (c *DatabaseClient) MatchChunks(ctx context.Context, projectID string, query []float32, count int) ([]models.SearchCandidate, error) {
	const q = `
		SELECT c.id, c.content, c.heading, c.embedding <=> $2 AS distance, d.title, c.page_start, c.page_end
		FROM document_chunks c
		JOIN documents d ON d.id = c.document_id
		WHERE d.project_id = $1 AND d.status = 'ready'
		ORDER BY c.embedding <=> $2
		LIMIT $3
	`
	vec := pgvector.NewVector(query)
	rows, err := c.db.QueryContext(ctx, q, projectID, vec, count)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]models.SearchCandidate, 0, count)
	for rows.Next() {
		var (
			cand    models.SearchCandidate
			heading sql.NullString
		)
		if err := rows.Scan(&cand.ChunkID, &cand.Content, &heading, &cand.Distance, &cand.DocumentTitle, &cand.PageStart, &cand.PageEnd); err != nil {
			return nil, err
		}
		if heading.Valid {
			h := heading.String
			cand.Heading = &h
		}
		out = append(out, cand)
	}
	return out, rows.Err()
}
