package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"storybook/lib/sl"

	_ "modernc.org/sqlite"
)

type SQLiteStorage struct {
	db  *sql.DB
	log *slog.Logger
}

func NewSQLiteStorage(path string, log *slog.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLiteStorage{db: db, log: log.With(sl.Module("storage.sqlite"))}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

func (s *SQLiteStorage) createTables() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS images (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			image_url TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE TABLE IF NOT EXISTS generations (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			source_url TEXT NOT NULL,
			background_url TEXT NOT NULL DEFAULT '',
			status TEXT NOT NULL,
			method TEXT NOT NULL DEFAULT '',
			prompt TEXT NOT NULL DEFAULT '',
			output_url TEXT NOT NULL DEFAULT '',
			archive_url TEXT NOT NULL DEFAULT '',
			error_message TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL,
			updated_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created_at ON generations (created_at);`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStorage) GetImageByID(ctx context.Context, id int64) (*Image, error) {
	query := `
	SELECT id, name, description, image_url, created_at
	FROM images
	WHERE id = ?
	`

	var img Image
	err := s.db.QueryRowContext(ctx, query, id).Scan(&img.ID, &img.Name, &img.Description, &img.ImageURL, &img.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying image: %w", err)
	}
	return &img, nil
}

func (s *SQLiteStorage) GetImagesByIDs(ctx context.Context, ids []int64) ([]Image, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	query := fmt.Sprintf(`
	SELECT id, name, description, image_url, created_at
	FROM images
	WHERE id IN (%s)
	ORDER BY id
	`, placeholders)

	return s.queryImages(ctx, query, args...)
}

func (s *SQLiteStorage) ListImages(ctx context.Context, limit int) ([]Image, error) {
	query := `
	SELECT id, name, description, image_url, created_at
	FROM images
	ORDER BY created_at DESC, id DESC
	LIMIT ?
	`
	return s.queryImages(ctx, query, listLimit(limit))
}

func (s *SQLiteStorage) queryImages(ctx context.Context, query string, args ...any) ([]Image, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying images: %w", err)
	}
	defer rows.Close()

	var images []Image
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.Name, &img.Description, &img.ImageURL, &img.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning image: %w", err)
		}
		images = append(images, img)
	}
	return images, rows.Err()
}

func (s *SQLiteStorage) AddImage(ctx context.Context, img *Image) error {
	if img.CreatedAt.IsZero() {
		img.CreatedAt = time.Now().UTC()
	}

	var (
		res sql.Result
		err error
	)
	if img.ID == 0 {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO images (name, description, image_url, created_at) VALUES (?, ?, ?, ?)`,
			img.Name, img.Description, img.ImageURL, img.CreatedAt)
	} else {
		res, err = s.db.ExecContext(ctx,
			`INSERT INTO images (id, name, description, image_url, created_at) VALUES (?, ?, ?, ?, ?)`,
			img.ID, img.Name, img.Description, img.ImageURL, img.CreatedAt)
	}
	if err != nil {
		return fmt.Errorf("inserting image: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading image id: %w", err)
	}
	img.ID = id
	return nil
}

func (s *SQLiteStorage) DeleteImage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM images WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting image: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("reading deleted rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) CreateGeneration(ctx context.Context, g *Generation) error {
	query := `
	INSERT INTO generations (id, kind, source_url, background_url, status, method, prompt, output_url, archive_url, error_message, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		g.ID, g.Kind, g.SourceURL, g.BackgroundURL, string(g.Status), g.Method, g.Prompt,
		g.OutputURL, g.ArchiveURL, g.Error, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting generation: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpdateGeneration(ctx context.Context, g *Generation) error {
	g.UpdatedAt = time.Now().UTC()
	query := `
	UPDATE generations
	SET status = ?, method = ?, prompt = ?, output_url = ?, archive_url = ?, error_message = ?, updated_at = ?
	WHERE id = ?
	`
	res, err := s.db.ExecContext(ctx, query,
		string(g.Status), g.Method, g.Prompt, g.OutputURL, g.ArchiveURL, g.Error, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("updating generation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) ListGenerations(ctx context.Context, limit int) ([]Generation, error) {
	query := `
	SELECT id, kind, source_url, background_url, status, method, prompt, output_url, archive_url, error_message, created_at, updated_at
	FROM generations
	ORDER BY created_at DESC
	LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, listLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying generations: %w", err)
	}
	defer rows.Close()

	var list []Generation
	for rows.Next() {
		var (
			g      Generation
			status string
		)
		err := rows.Scan(&g.ID, &g.Kind, &g.SourceURL, &g.BackgroundURL, &status, &g.Method, &g.Prompt,
			&g.OutputURL, &g.ArchiveURL, &g.Error, &g.CreatedAt, &g.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scanning generation: %w", err)
		}
		g.Status = GenerationStatus(status)
		list = append(list, g)
	}
	return list, rows.Err()
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
