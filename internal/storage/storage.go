// Package storage defines persistence for index records and registered directories.
package storage

import (
	"context"

	"github.com/hyperjump/gazou/internal/models"
)

// PathMove is one record path rewritten by a rename. Displaced is the thumbnail of a record that
// already sat at To and was replaced by the move.
type PathMove struct {
	From      string
	To        string
	Displaced string
}

// RecordStorage persists IndexRecords keyed by path.
type RecordStorage interface {
	UpsertRecords(ctx context.Context, records []*models.IndexRecord) error
	GetRecord(ctx context.Context, path string) (*models.IndexRecord, error)
	RecordExists(ctx context.Context, path string) (bool, error)
	ListByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error)
	ListRecords(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error)
	ForEachRecord(ctx context.Context, fn func(*models.IndexRecord) error) error
	CountRecords(ctx context.Context) (int64, error)

	// DeleteUnder removes path and every record beneath it, returning what was removed.
	DeleteUnder(ctx context.Context, path string) ([]*models.IndexRecord, error)
	DeleteByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error)

	// RenameRecord returns nil when no record exists at from.
	RenameRecord(ctx context.Context, from, to string) (*PathMove, error)
	RenameUnder(ctx context.Context, fromDir, toDir string) ([]PathMove, error)
}

// DirectoryStorage persists registered directories in insertion order.
type DirectoryStorage interface {
	SaveDirectory(ctx context.Context, dir *models.RegisteredDirectory) error
	DeleteDirectory(ctx context.Context, root string) error
	ListDirectories(ctx context.Context) ([]*models.RegisteredDirectory, error)
}

// Storage is the full persistence surface backed by one database.
type Storage interface {
	RecordStorage
	DirectoryStorage
	Close() error
}
