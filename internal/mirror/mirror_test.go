package mirror

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePutter struct {
	mu      sync.Mutex
	objects map[string]string
	types   map[string]string
	err     error
}

func newFakePutter() *fakePutter {
	return &fakePutter{objects: map[string]string{}, types: map[string]string{}}
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	f.objects[key] = string(body)
	f.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func TestR2Put(t *testing.T) {
	p := newFakePutter()
	m := NewR2(p, "site")

	require.NoError(t, m.Put(context.Background(), Key(ArticlesPrefix, "a.html"), []byte("<p>x</p>"), "text/html"))
	assert.Equal(t, "<p>x</p>", p.objects["site/articles/a.html"])
	assert.Equal(t, "text/html", p.types["site/articles/a.html"])

	p.err = errors.New("denied")
	err := m.Put(context.Background(), "k", nil, "text/plain")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "denied")
}

func TestPutFile(t *testing.T) {
	dir := t.TempDir()
	local := filepath.Join(dir, "img.png")
	require.NoError(t, os.WriteFile(local, []byte("png"), 0644))

	p := newFakePutter()
	PutFile(context.Background(), NewR2(p, "site"), time.Second, Key(UploadsPrefix, "img.png"), local, "image/png")
	assert.Equal(t, "png", p.objects["site/uploads/img.png"])

	// failures are swallowed
	p.err = errors.New("offline")
	PutFile(context.Background(), NewR2(p, "site"), time.Second, "uploads/x.png", local, "image/png")
	PutFile(context.Background(), NewR2(newFakePutter(), "site"), time.Second, "uploads/missing.png", filepath.Join(dir, "missing"), "image/png")
}

func TestNewWithoutBucketIsNop(t *testing.T) {
	m, err := New(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.IsType(t, Nop{}, m)
	assert.NoError(t, m.Put(context.Background(), "k", []byte("v"), "text/plain"))
}

func TestPutBytes(t *testing.T) {
	p := newFakePutter()
	PutBytes(context.Background(), NewR2(p, "site"), time.Second, Key(ArticlesPrefix, "articles-index.json"), []byte(`{"articles":[]}`), "application/json")
	assert.Equal(t, `{"articles":[]}`, p.objects["site/articles/articles-index.json"])
	assert.Equal(t, "application/json", p.types["site/articles/articles-index.json"])

	PutBytes(context.Background(), Nop{}, time.Second, "k", []byte("v"), "text/plain")
}
