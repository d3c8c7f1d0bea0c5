package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/internal/registry"
)

// apiClient talks to a running gazou server.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newAPIClient(baseURL string) *apiClient {
	return &apiClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 2 * time.Minute},
	}
}

// apiError is a non-success answer from the server.
type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *apiClient) do(ctx context.Context, method, path string, body, out interface{}, want int) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var e struct {
			Error string `json:"error"`
		}
		msg := strings.TrimSpace(string(b))
		if json.Unmarshal(b, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &apiError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *apiClient) search(ctx context.Context, keyword string, top int, text bool) (*models.SearchResponse, error) {
	path := "/api/v1/search"
	if text {
		path += "/text"
	}
	var resp models.SearchResponse
	err := c.do(ctx, http.MethodPost, path, map[string]interface{}{"keyword": keyword, "top": top}, &resp, http.StatusOK)
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *apiClient) addDirectory(ctx context.Context, dir models.RegisteredDirectory) (string, error) {
	var resp struct {
		Path string `json:"path"`
	}
	body := map[string]interface{}{"name": dir.Name, "path": dir.RootPath, "enable_rename": dir.EnableRename}
	if err := c.do(ctx, http.MethodPost, "/api/v1/directories", body, &resp, http.StatusCreated); err != nil {
		return "", err
	}
	return resp.Path, nil
}

func (c *apiClient) removeDirectory(ctx context.Context, root string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/directories?path="+url.QueryEscape(root), nil, nil, http.StatusOK)
}

func (c *apiClient) directories(ctx context.Context) ([]registry.DirectoryStatus, error) {
	var resp struct {
		Directories []registry.DirectoryStatus `json:"directories"`
	}
	if err := c.do(ctx, http.MethodGet, "/api/v1/directories", nil, &resp, http.StatusOK); err != nil {
		return nil, err
	}
	return resp.Directories, nil
}

func (c *apiClient) task(ctx context.Context, root string) (*registry.TaskStatus, error) {
	var st registry.TaskStatus
	if err := c.do(ctx, http.MethodGet, "/api/v1/directories/task?path="+url.QueryEscape(root), nil, &st, http.StatusOK); err != nil {
		return nil, err
	}
	return &st, nil
}

// waitTask polls the task for root until it reports done.
func (c *apiClient) waitTask(ctx context.Context, root string, every time.Duration, onUpdate func(*registry.TaskStatus)) (*registry.TaskStatus, error) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		st, err := c.task(ctx, root)
		if err != nil {
			return nil, err
		}
		if onUpdate != nil {
			onUpdate(st)
		}
		if st.Done {
			return st, nil
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// statusResponse is the shape of GET /api/v1/status.
type statusResponse struct {
	Records     int64                      `json:"records"`
	Index       map[string]interface{}     `json:"index"`
	Directories []registry.DirectoryStatus `json:"directories"`
	DiskUsage   *int64                     `json:"disk_usage_bytes,omitempty"`
}

func (c *apiClient) status(ctx context.Context) (*statusResponse, error) {
	var st statusResponse
	if err := c.do(ctx, http.MethodGet, "/api/v1/status", nil, &st, http.StatusOK); err != nil {
		return nil, err
	}
	return &st, nil
}
