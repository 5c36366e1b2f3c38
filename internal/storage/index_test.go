package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/bilgisen/blog-editor/internal/cache"
	"github.com/bilgisen/blog-editor/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stepClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Second)
	return c.t
}

func newTestIndex(t *testing.T) (*Index, *stepClock) {
	t.Helper()
	clock := &stepClock{t: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)}
	return NewIndex(t.TempDir(), cache.NewLocalLocker()).WithClock(clock.Now), clock
}

func readIndexFile(t *testing.T, idx *Index) models.ArticleIndex {
	t.Helper()
	data, err := os.ReadFile(idx.Path())
	require.NoError(t, err)
	var out models.ArticleIndex
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestIndexLoadMissing(t *testing.T) {
	idx, _ := newTestIndex(t)

	got, err := idx.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got.Articles)
	assert.NotNil(t, got.Articles)
}

func TestIndexUpsertRoundTrip(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, models.ArticleRecord{Filename: "202401010000.html", Title: "Old", DateSort: "2024-01-01"})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, models.ArticleRecord{Filename: "202406010000.html", Title: "Mid", DateSort: "2024-06-01"})
	require.NoError(t, err)

	before := readIndexFile(t, idx)

	_, err = idx.Upsert(ctx, models.ArticleRecord{Filename: "202503010000.html", Title: "New", DateSort: "2023-03-01"})
	require.NoError(t, err)

	after := readIndexFile(t, idx)
	require.Len(t, after.Articles, 3)
	assert.Equal(t, []string{"2024-06-01", "2024-01-01", "2023-03-01"}, dateSorts(after))
	for _, rec := range before.Articles {
		assert.Contains(t, after.Articles, rec)
	}
	assert.Greater(t, after.LastUpdated, before.LastUpdated)
}

func TestIndexUpsertReplacesSameFilename(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	_, err := idx.Upsert(ctx, models.ArticleRecord{Filename: "202501020304.html", Title: "First", DateSort: "2025-01-02"})
	require.NoError(t, err)
	_, err = idx.Upsert(ctx, models.ArticleRecord{Filename: "202501020304.html", Title: "Second", DateSort: "2025-01-02"})
	require.NoError(t, err)

	got := readIndexFile(t, idx)
	require.Len(t, got.Articles, 1)
	assert.Equal(t, "Second", got.Articles[0].Title)
}

func TestIndexFileFormat(t *testing.T) {
	idx, _ := newTestIndex(t)

	_, err := idx.Upsert(context.Background(), models.ArticleRecord{Filename: "a.html", Title: "A", Date: "Jan 1, 2025", DateSort: "2025-01-01"})
	require.NoError(t, err)

	data, err := os.ReadFile(idx.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  \"articles\": [\n")
	assert.JSONEq(t, `{
		"articles": [{"filename": "a.html", "title": "A", "date": "Jan 1, 2025", "dateSort": "2025-01-01"}],
		"lastUpdated": "2025-01-01T00:00:01.000Z"
	}`, string(data))

	info, err := os.Stat(idx.Path())
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0644), info.Mode().Perm())
}

func TestIndexNullArticles(t *testing.T) {
	idx, _ := newTestIndex(t)
	require.NoError(t, os.WriteFile(idx.Path(), []byte(`{"articles": null, "lastUpdated": "x"}`), 0644))

	got, err := idx.Upsert(context.Background(), models.ArticleRecord{Filename: "a.html", DateSort: "2025-01-01"})
	require.NoError(t, err)
	assert.Len(t, got.Articles, 1)
}

func TestIndexMalformed(t *testing.T) {
	idx, _ := newTestIndex(t)
	require.NoError(t, os.WriteFile(idx.Path(), []byte(`{"articles": [`), 0644))

	_, err := idx.Upsert(context.Background(), models.ArticleRecord{Filename: "a.html", DateSort: "2025-01-01"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed article index")

	// the broken file is left for the author to inspect
	data, err := os.ReadFile(idx.Path())
	require.NoError(t, err)
	assert.Equal(t, `{"articles": [`, string(data))
}

func TestIndexConcurrentUpsertsKeepEveryRecord(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	const n = 25
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := idx.Upsert(ctx, models.ArticleRecord{
				Filename: fmt.Sprintf("2025010100%02d.html", i),
				DateSort: fmt.Sprintf("2025-01-%02d", i%28+1),
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got := readIndexFile(t, idx)
	assert.Len(t, got.Articles, n)
	sorts := dateSorts(got)
	for i := 1; i < len(sorts); i++ {
		assert.GreaterOrEqual(t, sorts[i-1], sorts[i])
	}
}

func TestIndexUpsertCanceled(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Upsert(ctx, models.ArticleRecord{Filename: "a.html"})
	assert.ErrorIs(t, err, context.Canceled)
	_, statErr := os.Stat(idx.Path())
	assert.True(t, os.IsNotExist(statErr))
}

func dateSorts(idx models.ArticleIndex) []string {
	out := make([]string, len(idx.Articles))
	for i, rec := range idx.Articles {
		out[i] = rec.DateSort
	}
	return out
}

func TestIndexWriteHookSeesVersionsInOrder(t *testing.T) {
	idx, _ := newTestIndex(t)
	ctx := context.Background()

	var (
		mu       sync.Mutex
		versions []models.ArticleIndex
		last     []byte
	)
	idx.WithWriteHook(func(ctx context.Context, data []byte) {
		var v models.ArticleIndex
		require.NoError(t, json.Unmarshal(data, &v))
		mu.Lock()
		versions = append(versions, v)
		last = data
		mu.Unlock()
	})

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := idx.Upsert(ctx, models.ArticleRecord{
				Filename: fmt.Sprintf("2025020100%02d.html", i),
				DateSort: "2025-02-01",
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	require.Len(t, versions, n)
	for i, v := range versions {
		assert.Len(t, v.Articles, i+1, "hook call %d saw a stale index", i)
	}

	onDisk, err := os.ReadFile(idx.Path())
	require.NoError(t, err)
	assert.Equal(t, string(onDisk), string(last))
}

func TestIndexWriteHookSkippedOnFailure(t *testing.T) {
	idx, _ := newTestIndex(t)
	require.NoError(t, os.WriteFile(idx.Path(), []byte("{broken"), 0644))

	called := false
	idx.WithWriteHook(func(context.Context, []byte) { called = true })

	_, err := idx.Upsert(context.Background(), models.ArticleRecord{Filename: "a.html"})
	require.Error(t, err)
	assert.False(t, called)
}
