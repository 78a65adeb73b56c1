package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/hyperjump/grain/internal/models"
)

const schemaVersion = 1

// Meta describes how the vectors paired with a chunk artifact were produced.
// An empty Embedder means the artifact predates embedder tracking.
type Meta struct {
	Embedder   string
	Dimensions int
}

func initSchema(ctx context.Context, db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS chunks (
		position INTEGER PRIMARY KEY,
		text TEXT NOT NULL,
		source TEXT NOT NULL,
		chunk_id INTEGER NOT NULL,
		type TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`
	_, err := db.ExecContext(ctx, schema)
	return err
}

// WriteChunks writes chunks and meta to path as one unit, replacing any existing artifact.
// Parent directories are created if they do not exist.
func WriteChunks(ctx context.Context, path string, chunks []models.Chunk, meta Meta) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create chunk directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	if err := writeDB(ctx, tmpPath, chunks, meta); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to replace chunk artifact: %w", err)
	}
	return nil
}

func writeDB(ctx context.Context, path string, chunks []models.Chunk, m Meta) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := initSchema(ctx, db); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (position, text, source, chunk_id, type)
		 VALUES (?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i, c := range chunks {
		if !c.Metadata.Type.Valid() {
			return fmt.Errorf("chunk %d: invalid source type %q", i, c.Metadata.Type)
		}
		if _, err := stmt.ExecContext(ctx, i, c.Text, c.Metadata.Source, c.Metadata.ChunkID, string(c.Metadata.Type)); err != nil {
			return fmt.Errorf("failed to insert chunk %d: %w", i, err)
		}
	}

	meta := map[string]string{
		"schema_version": fmt.Sprint(schemaVersion),
		"count":          fmt.Sprint(len(chunks)),
		"created_at":     time.Now().UTC().Format(time.RFC3339),
		"embedder":       m.Embedder,
		"dimensions":     strconv.Itoa(m.Dimensions),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `INSERT INTO meta (key, value) VALUES (?, ?)`, k, v); err != nil {
			return fmt.Errorf("failed to write meta: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return db.Close()
}

func openExisting(path string) (*sql.DB, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNotFound)
		}
		return nil, err
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return db, nil
}

// ReadChunks returns the chunk sequence stored at path, in stored order.
// A missing artifact yields an error matching ErrNotFound.
func ReadChunks(ctx context.Context, path string) ([]models.Chunk, error) {
	db, err := openExisting(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx,
		`SELECT text, source, chunk_id, type FROM chunks ORDER BY position`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to read chunks from %s: %w", path, err)
	}
	defer rows.Close()

	chunks := []models.Chunk{}
	for rows.Next() {
		var c models.Chunk
		var typ string
		if err := rows.Scan(&c.Text, &c.Metadata.Source, &c.Metadata.ChunkID, &typ); err != nil {
			return nil, err
		}
		st, err := models.ParseSourceType(typ)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", len(chunks), err)
		}
		c.Metadata.Type = st
		chunks = append(chunks, c)
	}
	return chunks, rows.Err()
}

// CountChunks returns the number of chunks stored at path.
func CountChunks(ctx context.Context, path string) (int64, error) {
	db, err := openExisting(path)
	if err != nil {
		return 0, err
	}
	defer db.Close()

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count chunks in %s: %w", path, err)
	}
	return count, nil
}

// ReadMeta returns the embedder recorded with the chunk artifact at path.
// Keys absent from older artifacts are left zero.
func ReadMeta(ctx context.Context, path string) (Meta, error) {
	db, err := openExisting(path)
	if err != nil {
		return Meta{}, err
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, `SELECT key, value FROM meta WHERE key IN ('embedder', 'dimensions')`)
	if err != nil {
		return Meta{}, fmt.Errorf("failed to read meta from %s: %w", path, err)
	}
	defer rows.Close()

	var meta Meta
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return Meta{}, err
		}
		switch k {
		case "embedder":
			meta.Embedder = v
		case "dimensions":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Meta{}, fmt.Errorf("meta dimensions %q: %w", v, err)
			}
			meta.Dimensions = n
		}
	}
	return meta, rows.Err()
}
