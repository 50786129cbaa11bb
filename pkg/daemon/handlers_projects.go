package daemon

import (
	"encoding/json"
	"net/http"
	"os"

	"github.com/hack-dance/hackd/pkg/apierrors"
	"github.com/hack-dance/hackd/pkg/registry"
	"github.com/hack-dance/hackd/pkg/status"
)

type upsertProjectRequest struct {
	RepoRoot   string  `json:"repoRoot"`
	ProjectDir string  `json:"projectDir"`
	Name       string  `json:"name,omitempty"`
	DevHost    *string `json:"devHost,omitempty"`
}

type upsertProjectResponse struct {
	Status    registry.UpsertStatus `json:"status"`
	Project   *registry.Project     `json:"project,omitempty"`
	Incumbent *registry.Project     `json:"incumbent,omitempty"`
	Incoming  *registry.Project     `json:"incoming,omitempty"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, s.registry.List())
	case http.MethodPost:
		s.handleUpsertProject(w, r)
	default:
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
	}
}

func (s *Server) handleUpsertProject(w http.ResponseWriter, r *http.Request) {
	var req upsertProjectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, apierrors.New(apierrors.CodeInvalidRequest, "malformed request body"))
		return
	}
	if req.RepoRoot == "" || req.ProjectDir == "" {
		writeError(w, http.StatusBadRequest, apierrors.New(apierrors.CodeInvalidRequest, "repoRoot and projectDir are required"))
		return
	}

	ctx := registry.Context{RepoRoot: req.RepoRoot, ProjectDir: req.ProjectDir, Name: req.Name}
	if req.DevHost != nil {
		ctx.DevHost = *req.DevHost
	}

	result, err := s.registry.Upsert(ctx)
	if err != nil {
		e := asError(err)
		writeError(w, statusForCode(e.Code), e)
		return
	}

	status := http.StatusOK
	if result.Status == registry.StatusInserted {
		status = http.StatusCreated
	} else if result.Status == registry.StatusConflict {
		status = statusForCode(apierrors.CodeProjectConflict)
	}

	writeJSON(w, status, upsertProjectResponse{
		Status:    result.Status,
		Project:   result.Project,
		Incumbent: result.Incumbent,
		Incoming:  result.Incoming,
	})
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		writeError(w, http.StatusMethodNotAllowed, apierrors.New(apierrors.CodeInvalidRequest, "method not allowed"))
		return
	}

	id := pathSuffix(r, "/v1/projects/")
	if id == "" {
		writeError(w, http.StatusBadRequest, apierrors.New(apierrors.CodeInvalidRequest, "project id required"))
		return
	}

	project := s.registry.ResolveByID(id)
	if project == nil {
		writeError(w, http.StatusNotFound, apierrors.New(apierrors.CodeUnknownProject, id))
		return
	}

	// §3: a project is soft-removed only via explicit prune when both its
	// directory and its compose file are gone. Refuse to delete a live,
	// on-disk project out from under a still-running workflow.
	if _, err := os.Stat(project.ProjectDir); err == nil || status.ComposeFileReadable(project.ProjectDir) {
		writeError(w, statusForCode(apierrors.CodeProjectConflict), apierrors.New(apierrors.CodeProjectConflict, "project directory or compose file still present; refusing prune"))
		return
	}

	if err := s.registry.Remove([]string{id}); err != nil {
		e := asError(err)
		writeError(w, statusForCode(e.Code), e)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
