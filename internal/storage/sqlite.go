// Package storage provides the SQLite implementation of Storage.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/gazou/internal/models"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath and initializes the schema.
// Parent directories are created if they do not exist.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", dbPath+"?_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		path TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		root TEXT NOT NULL,
		thumbnail TEXT NOT NULL DEFAULT '',
		description TEXT NOT NULL DEFAULT '',
		vector BLOB NOT NULL,
		indexed_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_records_root ON records(root);

	CREATE TABLE IF NOT EXISTS directories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		root_path TEXT NOT NULL UNIQUE,
		name TEXT NOT NULL,
		enable_rename INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
	);
	`
	_, err := db.Exec(schema)
	return err
}

const recordColumns = `path, name, root, thumbnail, description, vector, indexed_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*models.IndexRecord, error) {
	var rec models.IndexRecord
	var blob []byte
	if err := row.Scan(&rec.Path, &rec.Name, &rec.Root, &rec.Thumbnail, &rec.Description, &blob, &rec.IndexedAt); err != nil {
		return nil, err
	}
	vec, err := decodeVector(blob)
	if err != nil {
		return nil, fmt.Errorf("record %s: %w", rec.Path, err)
	}
	rec.Vector = vec
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*models.IndexRecord, error) {
	defer rows.Close()
	var out []*models.IndexRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpsertRecords writes records in one transaction. An existing path is overwritten.
func (s *SQLiteStorage) UpsertRecords(ctx context.Context, records []*models.IndexRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(path) DO UPDATE SET
			name = excluded.name,
			root = excluded.root,
			thumbnail = excluded.thumbnail,
			description = excluded.description,
			vector = excluded.vector,
			indexed_at = excluded.indexed_at`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now()
	for _, rec := range records {
		if len(rec.Vector) == 0 {
			return fmt.Errorf("record %s has no vector", rec.Path)
		}
		rec.IndexedAt = now
		if _, err := stmt.ExecContext(ctx, rec.Path, rec.Name, rec.Root, rec.Thumbnail, rec.Description, encodeVector(rec.Vector), rec.IndexedAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetRecord returns the record at path, or an error wrapping models.ErrNotFound.
func (s *SQLiteStorage) GetRecord(ctx context.Context, path string) (*models.IndexRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM records WHERE path = ?`, path)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("record %s: %w", path, models.ErrNotFound)
	}
	return rec, err
}

// RecordExists reports whether a record is stored at path.
func (s *SQLiteStorage) RecordExists(ctx context.Context, path string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE path = ?`, path).Scan(&n)
	return n > 0, err
}

// ListByRoot returns every record of a registered root ordered by path.
func (s *SQLiteStorage) ListByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records WHERE root = ? ORDER BY path`, root)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ListRecords returns records ordered by path with offset and limit.
func (s *SQLiteStorage) ListRecords(ctx context.Context, offset, limit int) ([]*models.IndexRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM records ORDER BY path LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	return collectRecords(rows)
}

// ForEachRecord streams every record to fn. Iteration stops at the first error.
func (s *SQLiteStorage) ForEachRecord(ctx context.Context, fn func(*models.IndexRecord) error) error {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordColumns+` FROM records`)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return err
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}

// CountRecords returns the total number of records.
func (s *SQLiteStorage) CountRecords(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&count)
	return count, err
}

// DeleteUnder removes the record at path and any record beneath path.
func (s *SQLiteStorage) DeleteUnder(ctx context.Context, path string) ([]*models.IndexRecord, error) {
	return s.deleteWhere(ctx, `path = ? OR path LIKE ? ESCAPE '\'`, path, likeUnder(path))
}

// DeleteByRoot removes every record belonging to root.
func (s *SQLiteStorage) DeleteByRoot(ctx context.Context, root string) ([]*models.IndexRecord, error) {
	return s.deleteWhere(ctx, `root = ?`, root)
}

func (s *SQLiteStorage) deleteWhere(ctx context.Context, where string, args ...any) ([]*models.IndexRecord, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT `+recordColumns+` FROM records WHERE `+where, args...)
	if err != nil {
		return nil, err
	}
	removed, err := collectRecords(rows)
	if err != nil {
		return nil, err
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM records WHERE `+where, args...); err != nil {
		return nil, err
	}
	return removed, tx.Commit()
}

// RenameRecord moves the record at from to to, replacing any record already at to.
func (s *SQLiteStorage) RenameRecord(ctx context.Context, from, to string) (*PathMove, error) {
	if from == to {
		ok, err := s.RecordExists(ctx, from)
		if err != nil || !ok {
			return nil, err
		}
		return &PathMove{From: from, To: to}, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	var n int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(1) FROM records WHERE path = ?`, from).Scan(&n); err != nil {
		return nil, err
	}
	if n == 0 {
		return nil, nil
	}
	move := &PathMove{From: from, To: to}
	if move.Displaced, err = displaceTx(ctx, tx, to); err != nil {
		return nil, err
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE records SET path = ?, name = ? WHERE path = ?`, to, filepath.Base(to), from); err != nil {
		return nil, err
	}
	return move, tx.Commit()
}

// displaceTx deletes the record at path, returning its thumbnail. An absent record yields "".
func displaceTx(ctx context.Context, tx *sql.Tx, path string) (string, error) {
	var thumb string
	err := tx.QueryRowContext(ctx, `DELETE FROM records WHERE path = ? RETURNING thumbnail`, path).Scan(&thumb)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return thumb, err
}

// RenameUnder rewrites every record beneath fromDir to the same relative place beneath toDir.
func (s *SQLiteStorage) RenameUnder(ctx context.Context, fromDir, toDir string) ([]PathMove, error) {
	if filepath.Clean(fromDir) == filepath.Clean(toDir) {
		return nil, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `SELECT path FROM records WHERE path LIKE ? ESCAPE '\'`, likeUnder(fromDir))
	if err != nil {
		return nil, err
	}
	var moves []PathMove
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			rows.Close()
			return nil, err
		}
		if to, ok := models.Rebase(p, fromDir, toDir); ok {
			moves = append(moves, PathMove{From: p, To: to})
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(moves) == 0 {
		return nil, nil
	}

	upd, err := tx.PrepareContext(ctx, `UPDATE records SET path = ? WHERE path = ?`)
	if err != nil {
		return nil, err
	}
	defer upd.Close()

	for i, m := range moves {
		if moves[i].Displaced, err = displaceTx(ctx, tx, m.To); err != nil {
			return nil, err
		}
		if _, err := upd.ExecContext(ctx, m.To, m.From); err != nil {
			return nil, err
		}
	}
	return moves, tx.Commit()
}

// SaveDirectory inserts a registered directory. Re-saving an existing root updates it in place.
func (s *SQLiteStorage) SaveDirectory(ctx context.Context, dir *models.RegisteredDirectory) error {
	if dir.CreatedAt.IsZero() {
		dir.CreatedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO directories (root_path, name, enable_rename, created_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(root_path) DO UPDATE SET name = excluded.name, enable_rename = excluded.enable_rename`,
		dir.RootPath, dir.Name, dir.EnableRename, dir.CreatedAt,
	)
	return err
}

// DeleteDirectory removes a registration, or returns an error wrapping models.ErrNotFound.
func (s *SQLiteStorage) DeleteDirectory(ctx context.Context, root string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM directories WHERE root_path = ?`, root)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("directory %s: %w", root, models.ErrNotFound)
	}
	return nil
}

// ListDirectories returns registrations in insertion order.
func (s *SQLiteStorage) ListDirectories(ctx context.Context) ([]*models.RegisteredDirectory, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT root_path, name, enable_rename, created_at FROM directories ORDER BY id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dirs []*models.RegisteredDirectory
	for rows.Next() {
		var d models.RegisteredDirectory
		if err := rows.Scan(&d.RootPath, &d.Name, &d.EnableRename, &d.CreatedAt); err != nil {
			return nil, err
		}
		dirs = append(dirs, &d)
	}
	return dirs, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
