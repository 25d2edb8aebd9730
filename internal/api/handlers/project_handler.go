package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/markdave123-py/docsift/internal/models"
)

type Projects interface {
	Create(ctx context.Context, name string) (*models.Project, error)
	List(ctx context.Context) ([]models.Project, error)
}

type ProjectHandler struct {
	projects Projects
}

func NewProjectHandler(p Projects) *ProjectHandler {
	return &ProjectHandler{projects: p}
}

func (h *ProjectHandler) CreateProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	p, err := h.projects.Create(r.Context(), body.Name)
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"ok": true, "project": p})
}

func (h *ProjectHandler) ListProjects(w http.ResponseWriter, r *http.Request) {
	list, err := h.projects.List(r.Context())
	if err != nil {
		writeKindError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "projects": list})
}
