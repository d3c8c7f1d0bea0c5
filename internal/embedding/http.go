package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/gazou/internal/models"
	"github.com/hyperjump/gazou/pkg/utils"
)

const (
	describePath  = "/api/image_indexes/v1"
	vectorizePath = "/api/text_vectorize/v1"
	maxErrorBody  = 512
)

// HTTPGateway calls the remote image indexing service over HTTP with bearer authentication.
type HTTPGateway struct {
	host        string
	client      *http.Client
	credentials CredentialStore
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// HTTPOption configures an HTTPGateway.
type HTTPOption func(*HTTPGateway)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(g *HTTPGateway) { g.client = c }
}

// WithTimeout sets the client timeout.
func WithTimeout(d time.Duration) HTTPOption {
	return func(g *HTTPGateway) {
		if d > 0 {
			g.client.Timeout = d
		}
	}
}

// WithRateLimit throttles outgoing calls. A non-positive rps disables throttling.
func WithRateLimit(rps float64, burst int) HTTPOption {
	return func(g *HTTPGateway) {
		if rps <= 0 {
			g.limiter = nil
			return
		}
		g.limiter = rate.NewLimiter(rate.Limit(rps), max(burst, 1))
	}
}

// WithLogger sets a logger for request events.
func WithLogger(l *zap.Logger) HTTPOption {
	return func(g *HTTPGateway) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewHTTPGateway creates a gateway for host (scheme and authority, no trailing path).
func NewHTTPGateway(host string, credentials CredentialStore, opts ...HTTPOption) *HTTPGateway {
	g := &HTTPGateway{
		host:        strings.TrimRight(host, "/"),
		client:      &http.Client{Timeout: 60 * time.Second},
		credentials: credentials,
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

type describeResponse struct {
	Vec  []float32 `json:"vec"`
	Desc string    `json:"desc"`
	Name *string   `json:"name"`
}

// DescribeImages uploads the thumbnails as one multipart request.
func (g *HTTPGateway) DescribeImages(ctx context.Context, thumbnails []string, rename bool) ([]models.ImageEmbedding, error) {
	if len(thumbnails) == 0 {
		return nil, nil
	}
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	for i, p := range thumbnails {
		if err := addFile(form, fmt.Sprintf("thumbnail_%d", i), p); err != nil {
			return nil, err
		}
	}
	if err := form.WriteField("rename", strconv.FormatBool(rename)); err != nil {
		return nil, err
	}
	if err := form.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.host+describePath, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	var resp []describeResponse
	if err := g.do(req, &resp); err != nil {
		return nil, err
	}
	if len(resp) != len(thumbnails) {
		return nil, fmt.Errorf("%w: got %d results for %d thumbnails", models.ErrRemoteService, len(resp), len(thumbnails))
	}
	out := make([]models.ImageEmbedding, len(resp))
	for i, r := range resp {
		out[i] = models.ImageEmbedding{Description: r.Desc, Vector: r.Vec}
		if r.Name != nil {
			out[i].SuggestedName = strings.TrimSpace(*r.Name)
		}
	}
	return out, nil
}

func addFile(form *multipart.Writer, field, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: open thumbnail: %w", models.ErrFileSystem, err)
	}
	defer f.Close()
	w, err := form.CreateFormFile(field, filepath.Base(path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("%w: read thumbnail: %w", models.ErrFileSystem, err)
	}
	return nil
}

// EmbedText returns the service's vector for text.
func (g *HTTPGateway) EmbedText(ctx context.Context, text string) ([]float32, error) {
	u := g.host + vectorizePath + "?text=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	var vec []float32
	if err := g.do(req, &vec); err != nil {
		return nil, err
	}
	return vec, nil
}

func (g *HTTPGateway) do(req *http.Request, out any) error {
	key, ok, err := g.credentials.APIKey(req.Context())
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrAuth, err)
	}
	if !ok {
		return fmt.Errorf("%w: no apikey configured", models.ErrAuth)
	}
	if g.limiter != nil {
		if err := g.limiter.Wait(req.Context()); err != nil {
			return fmt.Errorf("%w: %w", models.ErrNetwork, err)
		}
	}
	req.Header.Set("Authorization", "Bearer "+key)

	start := time.Now()
	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", models.ErrNetwork, err)
	}
	defer resp.Body.Close()
	g.logger.Debug("gateway call",
		zap.String("method", req.Method),
		zap.String("path", req.URL.Path),
		zap.Int("status", resp.StatusCode),
		zap.Duration("took", time.Since(start)))

	if err := checkStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", models.ErrRemoteService, err)
	}
	return nil
}

// checkStatus maps non-success answers onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusUnauthorized:
		return fmt.Errorf("%w: apikey has been rejected", models.ErrAuth)
	case resp.StatusCode == http.StatusPreconditionFailed:
		return &models.RemoteServiceError{Status: resp.StatusCode, Body: "image index quota exhausted"}
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody*4))
	if err != nil {
		return fmt.Errorf("%w: status %d: %w", models.ErrNetwork, resp.StatusCode, err)
	}
	return &models.RemoteServiceError{Status: resp.StatusCode, Body: utils.Truncate(strings.TrimSpace(string(data)), maxErrorBody)}
}
