package storage

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"mlsub/internal/article"
	logx "mlsub/pkg/logx"

	_ "modernc.org/sqlite"
)

//go:embed migrations.sql
var migrationsFS embed.FS

type sqliteStore struct {
	db  *sql.DB
	log logx.Logger
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// SQLite prefers a small number of concurrent writers.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if cfg.BusyTimeout > 0 {
		_, _ = db.Exec(fmt.Sprintf("PRAGMA busy_timeout = %d", cfg.BusyTimeout.Milliseconds()))
	}
	_, _ = db.Exec("PRAGMA journal_mode = WAL")
	_, _ = db.Exec("PRAGMA synchronous = NORMAL")

	st := &sqliteStore{db: db, log: log}
	if err := st.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return st, nil
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	b, err := migrationsFS.ReadFile("migrations.sql")
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, string(b))
	return err
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *sqliteStore) Load(ctx context.Context) ([]article.Article, error) {
	if s == nil || s.db == nil {
		return nil, ErrDisabled
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT title, authors, summary, link, published_date, pdf_link, metadata
		 FROM articles ORDER BY position`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []article.Article{}
	for rows.Next() {
		var (
			a        article.Article
			authors  string
			metadata sql.NullString
		)
		if err := rows.Scan(&a.Title, &authors, &a.Summary, &a.Link, &a.PublishedDate, &a.PDFLink, &metadata); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(authors), &a.Authors); err != nil {
			return nil, fmt.Errorf("article %q: authors: %w", a.Title, err)
		}
		if metadata.Valid && metadata.String != "" {
			if err := json.Unmarshal([]byte(metadata.String), &a.Metadata); err != nil {
				return nil, fmt.Errorf("article %q: metadata: %w", a.Title, err)
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Save(ctx context.Context, articles []article.Article) error {
	if s == nil || s.db == nil {
		return ErrDisabled
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM articles`); err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO articles(position, title, authors, summary, link, published_date, pdf_link, metadata, saved_at)
		 VALUES(?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for i, a := range articles {
		authors := a.Authors
		if authors == nil {
			authors = []string{}
		}
		ab, err := json.Marshal(authors)
		if err != nil {
			return err
		}
		var meta any
		if a.Metadata != nil {
			mb, err := json.Marshal(a.Metadata)
			if err != nil {
				return fmt.Errorf("article %q: metadata: %w", a.Title, err)
			}
			meta = string(mb)
		}
		if _, err := stmt.ExecContext(ctx, i, a.Title, string(ab), a.Summary, a.Link, a.PublishedDate, a.PDFLink, meta, now); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	s.log.Debug("articles saved", logx.Int("count", len(articles)))
	return nil
}
