package handlers

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/markdave123-py/docsift/internal/applog"
	"github.com/markdave123-py/docsift/internal/core/ingestion_engine"
)

// Processor runs one ingestion inline.
type Processor interface {
	ProcessOne(ctx context.Context, docID string) (*ingestion_engine.IngestResult, error)
}

type IngestHandler struct {
	ingestor Processor
}

func NewIngestHandler(ing Processor) *IngestHandler {
	return &IngestHandler{ingestor: ing}
}

type ingestResponse struct {
	OK     bool `json:"ok"`
	Pages  int  `json:"pages"`
	Chunks int  `json:"chunks"`
}

// Ingest runs the pipeline for {id} and answers when it reaches a terminal
// state. A client disconnect does not abort the run.
func (h *IngestHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	docID := chi.URLParam(r, "id")
	applog.Info("ingest requested", "document_id", docID)

	res, err := h.ingestor.ProcessOne(context.WithoutCancel(r.Context()), docID)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ingestResponse{OK: true, Pages: res.Pages, Chunks: res.Chunks})
}
