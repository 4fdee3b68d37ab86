package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/ruiji/internal/config"
	"github.com/hyperjump/ruiji/internal/embedding"
	"github.com/hyperjump/ruiji/internal/images"
	"github.com/hyperjump/ruiji/internal/models"
	"github.com/hyperjump/ruiji/internal/similarity"
	"github.com/hyperjump/ruiji/internal/storage"
)

const (
	codeImageNotFound    = "image_not_found"
	codeInvalidImageData = "invalid_image_data"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleSimilarity(w http.ResponseWriter, r *http.Request) {
	query := models.SimilarityQuery{
		ImageID: r.URL.Query().Get("image_id"),
		Prompt:  r.URL.Query().Get("prompt"),
	}
	if err := query.Validate(); err != nil {
		s.observeRankingError(similarity.ErrInvalidRequest)
		s.respondError(w, http.StatusBadRequest, err.Error(), similarity.CodeInvalidRequest)
		return
	}
	s.logger.Debug("similarity request", zap.String("image_id", query.ImageID), zap.String("prompt", query.Prompt))
	results, err := s.deps.Ranker.Rank(r.Context(), query.ImageID, query.Prompt)
	if err != nil {
		s.respondRankError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.SimilarityResponse{Results: results})
}

func (s *Server) handleTextSimilarity(w http.ResponseWriter, r *http.Request) {
	text := r.URL.Query().Get("text")
	prompt := r.URL.Query().Get("prompt")
	if text == "" || prompt == "" {
		s.observeRankingError(similarity.ErrInvalidRequest)
		s.respondError(w, http.StatusBadRequest, "text and prompt are required", similarity.CodeInvalidRequest)
		return
	}
	s.logger.Debug("text similarity request", zap.String("text", text), zap.String("prompt", prompt))
	vec, err := s.deps.Embeddings.EmbedText(r.Context(), text)
	if err != nil {
		s.logger.Error("embed query text failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error(), similarity.CodeDependencyFailure)
		return
	}
	results, err := s.deps.Ranker.RankVector(r.Context(), vec, prompt, "")
	if err != nil {
		s.respondRankError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, models.SimilarityResponse{Results: results})
}

func (s *Server) respondRankError(w http.ResponseWriter, err error) {
	s.observeRankingError(err)
	code := similarity.ErrorCode(err)
	status := http.StatusInternalServerError
	switch code {
	case similarity.CodeInvalidRequest:
		status = http.StatusBadRequest
	case similarity.CodeQueryEmbeddingNotFound, similarity.CodeCandidatesNotFound:
		status = http.StatusNotFound
	case similarity.CodeDependencyFailure:
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error("similarity search failed", zap.Error(err))
	}
	s.respondError(w, status, err.Error(), code)
}

func (s *Server) observeRankingError(err error) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveRankingError(err)
	}
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	prompt := r.URL.Query().Get("prompt")
	s.logger.Debug("generate image request", zap.String("prompt", prompt))
	resp, err := s.deps.Images.Generate(r.Context(), prompt)
	if err != nil {
		s.logger.Error("image generation failed", zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error(), similarity.CodeDependencyFailure)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveImage("generated")
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	var req models.UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", similarity.CodeInvalidRequest)
		return
	}
	resp, err := s.deps.Images.Upload(r.Context(), req.ImageData)
	if err != nil {
		if errors.Is(err, images.ErrInvalidImageData) {
			s.respondError(w, http.StatusBadRequest, err.Error(), codeInvalidImageData)
			return
		}
		s.logger.Error("image upload failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveImage("uploaded")
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleGetImage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	img, err := s.deps.Images.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, images.ErrImageNotFound) {
			s.respondError(w, http.StatusNotFound, "image not found", codeImageNotFound)
			return
		}
		s.logger.Error("get image failed", zap.String("image_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	s.respondJSON(w, http.StatusOK, img)
}

func (s *Server) handleGetEmbedding(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	resp, err := s.deps.Embeddings.GetOrGenerate(r.Context(), id)
	if err != nil {
		if errors.Is(err, embedding.ErrImageNotFound) {
			s.respondError(w, http.StatusNotFound, "image not found", codeImageNotFound)
			return
		}
		s.logger.Error("get embedding failed", zap.String("embedding_id", id), zap.Error(err))
		s.respondError(w, http.StatusBadGateway, err.Error(), similarity.CodeDependencyFailure)
		return
	}
	if s.deps.Metrics != nil {
		s.deps.Metrics.ObserveEmbedding(string(resp.Source))
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	imageCount, err := s.deps.Catalog.CountImages(ctx)
	if err != nil {
		s.logger.Error("status: count images failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	embeddingCount, err := s.deps.Store.CountEmbeddings(ctx)
	if err != nil {
		s.logger.Error("status: count embeddings failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	resp := map[string]interface{}{
		"images":     imageCount,
		"embeddings": embeddingCount,
	}

	if s.config != nil {
		resp["config"] = s.config.Summary()
		if n, err := storage.UsageBytes(s.config.Storage.DatabasePath, s.config.LocalDataPaths()...); err == nil {
			resp["disk_usage_bytes"] = n
		}
	}
	if s.deps.Watch != nil {
		resp["watch_directories"] = s.deps.Watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled", "")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": s.deps.Watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled", "")
		return
	}
	var req watchAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body", similarity.CodeInvalidRequest)
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required", similarity.CodeInvalidRequest)
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path", similarity.CodeInvalidRequest)
		return
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			s.respondError(w, http.StatusNotFound, "directory not found", "")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	if !info.IsDir() {
		s.respondError(w, http.StatusBadRequest, "path is not a directory", similarity.CodeInvalidRequest)
		return
	}
	syncExisting := true
	if req.Sync != nil {
		syncExisting = *req.Sync
	}
	s.logger.Debug("watch add directory request", zap.String("path", abs), zap.Bool("sync_existing", syncExisting))
	if err := s.deps.Watch.AddDirectory(abs, syncExisting); err != nil {
		s.logger.Error("watch add directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.deps.Watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled", "")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		var body struct {
			Path string `json:"path"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err == nil && body.Path != "" {
			path = body.Path
		}
	}
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required (query or body)", similarity.CodeInvalidRequest)
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path", similarity.CodeInvalidRequest)
		return
	}
	s.logger.Debug("watch remove directory request", zap.String("path", abs))
	if err := s.deps.Watch.RemoveDirectory(abs); err != nil {
		s.logger.Error("watch remove directory failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error(), similarity.CodeInternal)
		return
	}
	s.persistWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

func (s *Server) persistWatchDirectories() {
	if s.configPath == "" || s.config == nil {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	dirs := s.deps.Watch.Directories()
	s.config.Watch.Directories = dirs
	if err := config.SaveWatchDirectories(s.configPath, dirs); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message, code string) {
	s.respondJSON(w, status, models.ErrorResponse{Error: message, Code: code})
}
