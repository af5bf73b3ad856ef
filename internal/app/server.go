package app

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"go.uber.org/zap"

	"voxtailor/internal/caption"
	"voxtailor/internal/catalog"
	"voxtailor/internal/intake"
	"voxtailor/internal/pipeline"
	"voxtailor/internal/store"
)

// Server exposes the project lifecycle over HTTP. All heavy work happens in
// the background pipeline; every handler here returns quickly.
type Server struct {
	intake  *intake.Intake
	store   *store.Store
	catalog *catalog.Catalog
	logger  *zap.Logger
}

// NewServer creates a new Server instance
func NewServer(in *intake.Intake, st *store.Store, cat *catalog.Catalog, logger *zap.Logger) *Server {
	return &Server{intake: in, store: st, catalog: cat, logger: logger}
}

// Routes builds the HTTP handler for the API surface
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("POST /api/projects", s.handleUpload)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PATCH /api/projects/{id}", s.handleRenameProject)
	mux.HandleFunc("DELETE /api/projects/{id}", s.handleDeleteProject)
	mux.HandleFunc("GET /api/projects/{id}/segments", s.handleListSegments)
	mux.HandleFunc("GET /api/projects/{id}/captions.srt", s.handleCaptions)
	mux.HandleFunc("GET /api/models", s.handleListModels)
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleUpload accepts a multipart media upload and answers with the created
// project while transcription continues in the background
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	req := intake.UploadRequest{
		UserID:   r.FormValue("user_id"),
		Filename: header.Filename,
		MIMEType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Language: r.FormValue("language"),
		Body:     file,
	}

	project, err := s.intake.Accept(r.Context(), req)
	if err != nil {
		var verr *intake.ValidationError
		switch {
		case errors.As(err, &verr):
			s.writeError(w, http.StatusBadRequest, verr.Reason)
		case errors.Is(err, pipeline.ErrQueueFull):
			s.writeError(w, http.StatusServiceUnavailable, "transcription queue is full, retry later")
		default:
			s.logger.Error("upload failed", zap.Error(err))
			s.writeError(w, http.StatusInternalServerError, "failed to accept upload")
		}
		return
	}

	s.writeJSON(w, http.StatusCreated, project)
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

func (s *Server) handleRenameProject(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || strings.TrimSpace(body.Name) == "" {
		s.writeError(w, http.StatusBadRequest, "body must be {\"name\": \"...\"}")
		return
	}

	id := r.PathValue("id")
	if err := s.store.RenameProject(r.Context(), id, strings.TrimSpace(body.Name)); err != nil {
		s.writeStoreError(w, id, err)
		return
	}

	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, id, err)
		return
	}
	s.writeJSON(w, http.StatusOK, project)
}

// handleDeleteProject removes the project row, its segments and the stored
// media file
func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}

	if err := s.store.DeleteProject(r.Context(), project.ID); err != nil {
		s.writeStoreError(w, project.ID, err)
		return
	}
	if project.SourcePath != "" {
		if err := os.Remove(project.SourcePath); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove media file for deleted project",
				zap.String("project_id", project.ID),
				zap.Error(err))
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSegments(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}

	segments, err := s.store.ListSegments(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("failed to list segments", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load segments")
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"project_id":   project.ID,
		"status":       project.Status,
		"duration_sec": project.DurationSec,
		"segments":     segments,
	})
}

// handleCaptions exports the transcript as a SubRip file. Only a completed
// project has a stable transcript to export.
func (s *Server) handleCaptions(w http.ResponseWriter, r *http.Request) {
	project, ok := s.loadProject(w, r)
	if !ok {
		return
	}
	if project.Status != store.StatusCompleted {
		s.writeError(w, http.StatusConflict,
			fmt.Sprintf("project is %s, captions require a completed transcription", project.Status))
		return
	}

	segments, err := s.store.ListSegments(r.Context(), project.ID)
	if err != nil {
		s.logger.Error("failed to list segments for captions", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load segments")
		return
	}

	w.Header().Set("Content-Type", "application/x-subrip")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf("attachment; filename=%q", captionFilename(project.Name)))
	if err := caption.WriteSRT(w, segments); err != nil {
		s.logger.Error("failed to write captions", zap.Error(err))
	}
}

func (s *Server) handleListModels(w http.ResponseWriter, r *http.Request) {
	models, err := s.store.ListModels(r.Context())
	if err != nil {
		s.logger.Error("failed to list models", zap.Error(err))
		s.writeError(w, http.StatusInternalServerError, "failed to load models")
		return
	}

	type modelStatus struct {
		store.LanguageModel
		Installed bool `json:"installed"`
	}
	out := make([]modelStatus, 0, len(models))
	for _, m := range models {
		out = append(out, modelStatus{LanguageModel: m, Installed: s.catalog.IsInstalled(m)})
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"models": out})
}

// loadProject resolves the path id to a project, writing the error response
// itself when that fails
func (s *Server) loadProject(w http.ResponseWriter, r *http.Request) (store.Project, bool) {
	id := r.PathValue("id")
	project, err := s.store.GetProject(r.Context(), id)
	if err != nil {
		s.writeStoreError(w, id, err)
		return store.Project{}, false
	}
	return project, true
}

func (s *Server) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, sql.ErrNoRows) || strings.Contains(err.Error(), "not found") {
		s.writeError(w, http.StatusNotFound, fmt.Sprintf("project %s not found", id))
		return
	}
	s.logger.Error("store operation failed", zap.String("project_id", id), zap.Error(err))
	s.writeError(w, http.StatusInternalServerError, "storage error")
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// captionFilename swaps the media extension for .srt, keeping the project
// name recognizable in the download
func captionFilename(name string) string {
	base := name
	if idx := strings.LastIndex(base, "."); idx > 0 {
		base = base[:idx]
	}
	if base == "" {
		base = "captions"
	}
	return base + ".srt"
}
