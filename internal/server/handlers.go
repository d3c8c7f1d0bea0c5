package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/storage"
)

const maxListLimit = 500

type searchRequest struct {
	Keyword string `json:"keyword"`
	Top     *int   `json:"top,omitempty"`
}

func (s *Server) decodeSearch(w http.ResponseWriter, r *http.Request) (*models.SearchRequest, bool) {
	var body searchRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}
	req := &models.SearchRequest{Keyword: body.Keyword, Top: s.defaultTop}
	if body.Top != nil {
		req.Top = *body.Top
	}
	return req, true
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	s.logger.Debug("search request", zap.String("keyword", req.Keyword), zap.Int("top", req.Top))
	resp, err := s.searcher.Query(r.Context(), req)
	if err != nil {
		s.logger.Error("search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSearchText(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeSearch(w, r)
	if !ok {
		return
	}
	s.logger.Debug("text search request", zap.String("keyword", req.Keyword), zap.Int("top", req.Top))
	resp, err := s.searcher.QueryText(r.Context(), req)
	if err != nil {
		s.logger.Error("text search failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	count, err := s.records.Count(ctx)
	if err != nil {
		s.logger.Error("status: count records failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	dirs, err := s.dirs.Statuses(ctx)
	if err != nil {
		s.logger.Error("status: list directories failed", zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := map[string]interface{}{
		"records":     count,
		"index":       s.records.Stats(),
		"directories": dirs,
	}
	if len(s.diskPaths) > 0 {
		if diskBytes, err := storage.DiskUsageBytes(s.diskPaths...); err == nil {
			resp["disk_usage_bytes"] = diskBytes
		}
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleDirectoriesList(w http.ResponseWriter, r *http.Request) {
	dirs, err := s.dirs.Statuses(r.Context())
	if err != nil {
		s.logger.Error("list directories failed", zap.Error(err))
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"directories": dirs})
}

type directoryAddRequest struct {
	Name         string `json:"name"`
	Path         string `json:"path"`
	EnableRename bool   `json:"enable_rename"`
}

func (s *Server) handleDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	var req directoryAddRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("add directory request", zap.String("path", req.Path), zap.Bool("enable_rename", req.EnableRename))
	// ctx only covers persistence; the crawl runs on the registry's own context.
	task, err := s.dirs.Add(r.Context(), models.RegisteredDirectory{
		Name:         req.Name,
		RootPath:     req.Path,
		EnableRename: req.EnableRename,
	}, nil)
	if err != nil {
		s.logger.Warn("add directory failed", zap.String("path", req.Path), zap.Error(err))
		s.respondErr(w, err)
		return
	}
	resp := map[string]interface{}{"path": req.Path, "status": "added"}
	if task != nil {
		resp["path"] = task.Root()
		resp["task"] = task.Status()
	}
	s.respondJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
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
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	s.logger.Debug("remove directory request", zap.String("path", path))
	if err := s.dirs.Remove(r.Context(), path); err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"path": path, "status": "removed"})
}

func (s *Server) handleDirectoryTask(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	task, err := s.dirs.Task(path)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	if task == nil {
		s.respondError(w, http.StatusNotFound, "no task for directory")
		return
	}
	s.respondJSON(w, http.StatusOK, task.Status())
}

func (s *Server) handleRecordExists(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	ok, err := s.searcher.Exists(r.Context(), path)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"path": path, "indexed": ok})
}

func (s *Server) handleRecordsList(w http.ResponseWriter, r *http.Request) {
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		s.respondError(w, http.StatusBadRequest, "invalid offset")
		return
	}
	limit, err := queryInt(r, "limit", 50)
	if err != nil || limit <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid limit")
		return
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	recs, err := s.records.List(r.Context(), offset, limit)
	if err != nil {
		s.respondErr(w, err)
		return
	}
	results := make([]*models.SearchResult, 0, len(recs))
	for _, rec := range recs {
		results = append(results, models.NewSearchResult(rec, 0))
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"records": results,
		"offset":  offset,
		"limit":   limit,
	})
}

func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrOverlap):
		return http.StatusConflict
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrAuth):
		return http.StatusUnauthorized
	case errors.Is(err, models.ErrNetwork), errors.Is(err, models.ErrRemoteService):
		return http.StatusBadGateway
	case errors.Is(err, models.ErrInvalidInput), errors.Is(err, models.ErrFileSystem):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondErr(w http.ResponseWriter, err error) {
	s.respondError(w, statusFor(err), err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("failed to encode response", zap.Error(err))
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
