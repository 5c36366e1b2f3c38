package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/bilgisen/blog-editor/internal/cache"
	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/bilgisen/blog-editor/internal/models"
	"github.com/bilgisen/blog-editor/internal/oops"
)

const indexLockName = "articles-index"

// Index is the single owner of articles-index.json. Every read-modify-write
// runs under the locker, so concurrent submissions queue instead of
// overwriting each other's records.
type Index struct {
	path    string
	locker  cache.Locker
	now     func() time.Time
	onWrite func(ctx context.Context, data []byte)
}

func NewIndex(dir string, locker cache.Locker) *Index {
	return &Index{
		path:   filepath.Join(dir, models.IndexFilename),
		locker: locker,
		now:    time.Now,
	}
}

// WithClock replaces the clock used for lastUpdated
func (i *Index) WithClock(now func() time.Time) *Index {
	i.now = now
	return i
}

// WithWriteHook registers fn to receive each written index. fn runs while the
// lock is still held, so successive calls see successive versions.
func (i *Index) WithWriteHook(fn func(ctx context.Context, data []byte)) *Index {
	i.onWrite = fn
	return i
}

func (i *Index) Path() string {
	return i.path
}

// Load reads the index. A missing file is an empty index.
func (i *Index) Load(ctx context.Context) (*models.ArticleIndex, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(i.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return models.NewArticleIndex(), nil
		}
		return nil, oops.New(err, "failed to read article index")
	}

	var idx models.ArticleIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return nil, oops.New(err, "malformed article index %s", i.path)
	}
	if idx.Articles == nil {
		idx.Articles = []models.ArticleRecord{}
	}
	return &idx, nil
}

// Upsert merges rec into the index by filename, re-sorts it newest first,
// stamps lastUpdated and writes it back. It returns the index as written.
func (i *Index) Upsert(ctx context.Context, rec models.ArticleRecord) (*models.ArticleIndex, error) {
	release, err := i.locker.Lock(ctx, indexLockName)
	if err != nil {
		return nil, fmt.Errorf("failed to lock article index: %w", err)
	}
	defer release()

	idx, err := i.Load(ctx)
	if err != nil {
		return nil, err
	}

	replaced := idx.Upsert(rec)
	idx.Sort()
	idx.Touch(i.now())

	data, err := i.write(idx)
	if err != nil {
		return nil, err
	}
	if i.onWrite != nil {
		i.onWrite(ctx, data)
	}

	logger.Info().
		Str("filename", rec.Filename).
		Str("title", rec.Title).
		Bool("replaced", replaced).
		Int("articles", len(idx.Articles)).
		Msg("Updated articles index")

	return idx, nil
}

// write replaces the index file atomically via a temp file in the same
// directory and returns the bytes written
func (i *Index) write(idx *models.ArticleIndex) ([]byte, error) {
	data, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		return nil, oops.New(err, "failed to marshal article index")
	}

	dir := filepath.Dir(i.path)
	tmp, err := os.CreateTemp(dir, ".articles-index-*.json")
	if err != nil {
		return nil, oops.New(err, "failed to create temp index file")
	}
	tmpPath := tmp.Name()

	_, err = tmp.Write(data)
	if err == nil {
		err = tmp.Sync()
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Chmod(tmpPath, 0644)
	}
	if err == nil {
		err = os.Rename(tmpPath, i.path)
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, oops.New(err, "failed to write article index")
	}
	return data, nil
}
