// Package thumbnail renders the downscaled copies of source images that are sent to the gateway.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/image/draw"
	_ "golang.org/x/image/webp"

	"github.com/hyperjump/gazou/internal/models"
)

const (
	// DefaultWidth is the thumbnail width. Narrower sources are copied unchanged.
	DefaultWidth   = 512
	defaultQuality = 85
	maxAllocTries  = 8
)

// Thumbnailer renders a thumbnail for src at a fresh path and returns that path.
type Thumbnailer interface {
	Generate(ctx context.Context, src string) (string, error)
}

// Generator writes thumbnails into a directory under random, collision-free names.
type Generator struct {
	dir     string
	width   int
	quality int
	logger  *zap.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithWidth sets the target width.
func WithWidth(w int) Option {
	return func(g *Generator) {
		if w > 0 {
			g.width = w
		}
	}
}

// WithJPEGQuality sets the quality used when re-encoding JPEG sources.
func WithJPEGQuality(q int) Option {
	return func(g *Generator) {
		if q > 0 && q <= 100 {
			g.quality = q
		}
	}
}

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) Option {
	return func(g *Generator) {
		if l != nil {
			g.logger = l
		}
	}
}

// NewGenerator creates dir if needed and returns a generator writing into it.
func NewGenerator(dir string, opts ...Option) (*Generator, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("%w: create thumbnail dir: %w", models.ErrFileSystem, err)
	}
	g := &Generator{dir: dir, width: DefaultWidth, quality: defaultQuality, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Dir returns the thumbnail directory.
func (g *Generator) Dir() string {
	return g.dir
}

// Generate decodes src, downscales it to the target width keeping the aspect ratio and writes it.
// JPEG sources stay JPEG; PNG and WebP sources are written as PNG.
func (g *Generator) Generate(ctx context.Context, src string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return "", fmt.Errorf("%w: read %s: %w", models.ErrFileSystem, src, err)
	}
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", models.ErrFileSystem, src, err)
	}

	if cfg.Width <= g.width {
		ext := extensionFor(format, false)
		return g.write(ext, func(w io.Writer) error {
			_, err := w.Write(data)
			return err
		})
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("%w: decode %s: %w", models.ErrFileSystem, src, err)
	}
	scaled := g.scale(img)
	ext := extensionFor(format, true)
	path, err := g.write(ext, func(w io.Writer) error {
		if ext == ".jpg" {
			return jpeg.Encode(w, scaled, &jpeg.Options{Quality: g.quality})
		}
		return png.Encode(w, scaled)
	})
	if err != nil {
		return "", err
	}
	g.logger.Debug("thumbnail generated",
		zap.String("src", src),
		zap.String("thumbnail", path),
		zap.Int("width", scaled.Bounds().Dx()),
		zap.Int("height", scaled.Bounds().Dy()))
	return path, nil
}

func (g *Generator) scale(img image.Image) image.Image {
	b := img.Bounds()
	h := max(1, g.width*b.Dy()/b.Dx())
	dst := image.NewRGBA(image.Rect(0, 0, g.width, h))
	draw.CatmullRom.Scale(dst, dst.Bounds(), img, b, draw.Src, nil)
	return dst
}

// extensionFor picks the thumbnail suffix. Copied sources keep their own format.
func extensionFor(format string, reencoded bool) string {
	switch format {
	case "jpeg":
		return ".jpg"
	case "webp":
		if !reencoded {
			return ".webp"
		}
	}
	return ".png"
}

// write creates a new file under a random name that did not exist before and fills it.
func (g *Generator) write(ext string, fill func(io.Writer) error) (string, error) {
	for i := 0; i < maxAllocTries; i++ {
		path := filepath.Join(g.dir, uuid.New().String()+ext)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: create thumbnail: %w", models.ErrFileSystem, err)
		}
		if err := fill(f); err != nil {
			f.Close()
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: write thumbnail: %w", models.ErrFileSystem, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: write thumbnail: %w", models.ErrFileSystem, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: no free thumbnail name after %d tries", models.ErrFileSystem, maxAllocTries)
}

// Remove deletes thumbnails, ignoring ones that are already gone.
func Remove(paths ...string) {
	for _, p := range paths {
		if p != "" {
			_ = os.Remove(p)
		}
	}
}
