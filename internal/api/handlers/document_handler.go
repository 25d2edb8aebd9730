package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docsift/internal/models"
	"github.com/markdave123-py/docsift/internal/services"
)

type Documents interface {
	UploadAndCreate(ctx context.Context, in services.UploadInput) (*models.Document, error)
	Get(ctx context.Context, id string) (*models.Document, error)
	ListPages(ctx context.Context, id string) ([]models.Page, error)
}

type DocumentHandler struct {
	docs           Documents
	maxUploadBytes int64
}

func NewDocumentHandler(docs Documents, maxUploadBytes int64) *DocumentHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = 50 << 20
	}
	return &DocumentHandler{docs: docs, maxUploadBytes: maxUploadBytes}
}

type documentResponse struct {
	OK       bool             `json:"ok"`
	Document *models.Document `json:"document"`
}

type pagesResponse struct {
	OK    bool          `json:"ok"`
	Pages []models.Page `json:"pages"`
}

// UploadDocument takes a multipart form (project_id, title, file), stores the
// file and queues the new document for ingestion.
func (h *DocumentHandler) UploadDocument(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() {
		if r.MultipartForm != nil {
			_ = r.MultipartForm.RemoveAll()
		}
	}()

	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing file")
		return
	}
	defer file.Close()

	doc, err := h.docs.UploadAndCreate(r.Context(), services.UploadInput{
		ProjectID:   r.FormValue("project_id"),
		Title:       r.FormValue("title"),
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Body:        file,
	})
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentResponse{OK: true, Document: doc})
}

func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := h.docs.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentResponse{OK: true, Document: doc})
}

func (h *DocumentHandler) ListPages(w http.ResponseWriter, r *http.Request) {
	pages, err := h.docs.ListPages(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeKindError(w, err)
		return
	}
	if pages == nil {
		pages = []models.Page{}
	}
	writeJSON(w, http.StatusOK, pagesResponse{OK: true, Pages: pages})
}
