package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"mlsub/internal/article"
	logx "mlsub/pkg/logx"
)

// jsonStore keeps articles as a JSON array in a single file.
type jsonStore struct {
	path string
	log  logx.Logger
	mu   sync.Mutex
}

func openJSON(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("storage.path is required for json driver")
	}
	return &jsonStore{path: path, log: log}, nil
}

// Load treats a missing, empty or corrupt file as an empty store.
func (s *jsonStore) Load(ctx context.Context) ([]article.Article, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	b, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []article.Article{}, nil
	}
	if err != nil {
		return nil, err
	}
	var out []article.Article
	if err := json.Unmarshal(b, &out); err != nil {
		s.log.Warn("stored articles unreadable; treating as empty", logx.String("path", s.path), logx.Err(err))
		return []article.Article{}, nil
	}
	if out == nil {
		out = []article.Article{}
	}
	return out, nil
}

// Save writes to a temporary file and renames it over the target so readers
// never observe a partial file.
func (s *jsonStore) Save(ctx context.Context, articles []article.Article) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if articles == nil {
		articles = []article.Article{}
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "    ")
	if err := enc.Encode(articles); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, buf.Bytes(), 0o644); err != nil {
		return err
	}
	if err := os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	s.log.Debug("articles saved", logx.String("path", s.path), logx.Int("count", len(articles)))
	return nil
}

func (s *jsonStore) Close() error { return nil }
