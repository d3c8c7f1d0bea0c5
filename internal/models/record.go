// Package models defines core data structures for indexed images, registered directories, and search results.
package models

import "time"

// IndexRecord is one indexed image. Path is the primary key.
type IndexRecord struct {
	Name        string    `json:"name" db:"name"`
	Path        string    `json:"path" db:"path"`
	Root        string    `json:"root" db:"root"`
	Thumbnail   string    `json:"thumbnail" db:"thumbnail"`
	Description string    `json:"description" db:"description"`
	Vector      []float32 `json:"-" db:"vector"`
	IndexedAt   time.Time `json:"indexed_at" db:"indexed_at"`
}

// DiscoveredFile is an eligible image found by the crawler.
type DiscoveredFile struct {
	RootPath string `json:"root_path"`
	Path     string `json:"path"`
	FileName string `json:"file_name"`
}

// ThumbnailRef ties a source image to the thumbnail generated for it in one batch.
type ThumbnailRef struct {
	SourcePath    string
	ThumbnailPath string
}

// ImageEmbedding is the gateway's answer for one thumbnail.
// SuggestedName is empty unless a rename was requested and the service proposed one.
type ImageEmbedding struct {
	Description   string
	Vector        []float32
	SuggestedName string
}
