package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"github.com/bilgisen/blog-editor/internal/models"
	"github.com/google/uuid"
)

var (
	ErrNotFound = errors.New("file not found")
	ErrNotImage = errors.New("only image files are allowed")
	ErrTooLarge = errors.New("file exceeds the upload size limit")
)

// UploadsRoute is the URL prefix uploaded images are served under
const UploadsRoute = "/uploads"

// Storage owns the articles and uploads directories. Both are append-only:
// nothing here deletes or renames a file after it has been written.
type Storage struct {
	articlesDir string
	uploadsDir  string
	maxFileSize int64
}

func NewStorage(articlesDir, uploadsDir string, maxFileSize int64) (*Storage, error) {
	for _, dir := range []string{articlesDir, uploadsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory %s: %w", dir, err)
		}
	}

	return &Storage{
		articlesDir: articlesDir,
		uploadsDir:  uploadsDir,
		maxFileSize: maxFileSize,
	}, nil
}

func (s *Storage) ArticlesDir() string {
	return s.articlesDir
}

func (s *Storage) UploadsDir() string {
	return s.uploadsDir
}

// WriteArticle writes the rendered document under filename, replacing any
// file of the same name, and returns its path.
func (s *Storage) WriteArticle(ctx context.Context, filename, html string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if !isBareName(filename) {
		return "", fmt.Errorf("invalid article filename %q", filename)
	}

	path := filepath.Join(s.articlesDir, filename)
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return "", fmt.Errorf("failed to write article file: %w", err)
	}
	return path, nil
}

// ArticlePath resolves a download name to an existing article file
func (s *Storage) ArticlePath(filename string) (string, error) {
	if !isBareName(filename) {
		return "", ErrNotFound
	}

	path := filepath.Join(s.articlesDir, filename)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("failed to stat %s: %w", filename, err)
	}
	if info.IsDir() {
		return "", ErrNotFound
	}
	return path, nil
}

// SaveImage stores an uploaded image as <uuid><original extension>
func (s *Storage) SaveImage(ctx context.Context, fh *multipart.FileHeader) (*models.UploadedImage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	contentType := fh.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return nil, ErrNotImage
	}
	if fh.Size > s.maxFileSize {
		return nil, ErrTooLarge
	}

	name := uuid.NewString() + filepath.Ext(fh.Filename)
	path := filepath.Join(s.uploadsDir, name)

	src, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}
	defer src.Close()

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create image file: %w", err)
	}

	// the header size comes from the client, so cap the copy as well
	n, err := io.Copy(dst, io.LimitReader(src, s.maxFileSize+1))
	if closeErr := dst.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n > s.maxFileSize {
		err = ErrTooLarge
	}
	if err != nil {
		os.Remove(path)
		if errors.Is(err, ErrTooLarge) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to write image file: %w", err)
	}

	return &models.UploadedImage{
		Filename:    name,
		Path:        path,
		URL:         UploadsRoute + "/" + name,
		ContentType: contentType,
		Size:        n,
	}, nil
}

func isBareName(name string) bool {
	return name != "" && name != "." && name != ".." &&
		filepath.Base(name) == name && !strings.ContainsAny(name, `/\`)
}
