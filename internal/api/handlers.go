package api

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/bilgisen/blog-editor/internal/cache"
	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/bilgisen/blog-editor/internal/middleware"
	"github.com/bilgisen/blog-editor/internal/mirror"
	"github.com/bilgisen/blog-editor/internal/models"
	"github.com/bilgisen/blog-editor/internal/render"
	"github.com/bilgisen/blog-editor/internal/storage"
	"github.com/gofiber/fiber/v2"
)

// Version is reported by the health endpoint
const Version = "1.0.0"

type Handlers struct {
	config   *config.Config
	storage  *storage.Storage
	index    *storage.Index
	renderer *render.Renderer
	mirror   mirror.Mirror
	validate *middleware.Validator
	now      func() time.Time
}

func NewHandlers(cfg *config.Config, locker cache.Locker, m mirror.Mirror) (*Handlers, error) {
	store, err := storage.NewStorage(cfg.ArticlesDir, cfg.UploadsDir, cfg.MaxFileSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	renderer, err := render.New(render.Options{SiteOwner: cfg.SiteOwner})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize renderer: %w", err)
	}

	if m == nil {
		m = mirror.Nop{}
	}

	// the index is mirrored from inside its lock so the bucket never
	// receives an older version after a newer one
	index := storage.NewIndex(cfg.ArticlesDir, locker).
		WithWriteHook(func(ctx context.Context, data []byte) {
			mirror.PutBytes(ctx, m, cfg.MirrorTimeout,
				mirror.Key(mirror.ArticlesPrefix, models.IndexFilename), data, "application/json")
		})

	return &Handlers{
		config:   cfg,
		storage:  store,
		index:    index,
		renderer: renderer,
		mirror:   m,
		validate: middleware.NewValidator(),
		now:      time.Now,
	}, nil
}

// WithClock replaces the clock used for filenames, dateSort fallback and lastUpdated
func (h *Handlers) WithClock(now func() time.Time) *Handlers {
	h.now = now
	h.index.WithClock(now)
	return h
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "ok",
		"version": Version,
		"pid":     os.Getpid(),
		"time":    h.now().Format(time.RFC3339),
	})
}

// UploadImage handles POST /upload-image
func (h *Handlers) UploadImage(c *fiber.Ctx) error {
	fh, err := c.FormFile("image")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "No image file uploaded",
		})
	}

	img, err := h.storage.SaveImage(c.Context(), fh)
	switch {
	case errors.Is(err, storage.ErrNotImage):
		logger.Warn().
			Str("filename", fh.Filename).
			Str("content_type", fh.Header.Get(fiber.HeaderContentType)).
			Msg("Rejected non-image upload")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Only image files are allowed!",
		})
	case errors.Is(err, storage.ErrTooLarge):
		logger.Warn().
			Str("filename", fh.Filename).
			Int64("size", fh.Size).
			Int64("limit", h.config.MaxFileSize).
			Msg("Rejected oversized upload")
		return c.Status(fiber.StatusRequestEntityTooLarge).JSON(fiber.Map{
			"error": "Image is too large",
		})
	case err != nil:
		logger.WithError(err).Str("filename", fh.Filename).Msg("Error saving uploaded image")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to upload image",
		})
	}

	logger.Info().
		Str("filename", img.Filename).
		Str("original", fh.Filename).
		Int64("size", img.Size).
		Msg("Stored uploaded image")

	mirror.PutFile(c.Context(), h.mirror, h.config.MirrorTimeout,
		mirror.Key(mirror.UploadsPrefix, img.Filename), img.Path, img.ContentType)

	return c.JSON(fiber.Map{
		"success":  true,
		"imageUrl": img.URL,
		"filename": img.Filename,
	})
}

// GenerateHTML handles POST /generate-html
func (h *Handlers) GenerateHTML(c *fiber.Ctx) error {
	var sub models.ArticleSubmission
	if err := c.BodyParser(&sub); err != nil {
		logger.Warn().Err(err).Msg("Invalid generate request body")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := h.validate.Validate(sub); err != nil {
		logger.Warn().
			Interface("fields", middleware.FieldErrors(err)).
			Msg("Rejected article submission")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Title and content are required",
		})
	}

	now := h.now()
	filename := models.ArticleFilename(now)

	html, err := h.renderer.TrustedRender(sub)
	if err != nil {
		return h.generateFailed(c, err, filename)
	}

	// the article file is complete before the index is touched
	path, err := h.storage.WriteArticle(c.Context(), filename, html)
	if err != nil {
		return h.generateFailed(c, err, filename)
	}

	rec := models.NewArticleRecord(filename, sub, now)
	if _, err := h.index.Upsert(c.Context(), rec); err != nil {
		return h.generateFailed(c, err, filename)
	}

	logger.Info().
		Str("filename", filename).
		Str("title", sub.Title).
		Str("date_sort", rec.DateSort).
		Int("references", len(sub.FilteredReferences())).
		Msg("Generated article")

	mirror.PutFile(c.Context(), h.mirror, h.config.MirrorTimeout,
		mirror.Key(mirror.ArticlesPrefix, filename), path, "text/html; charset=utf-8")

	return c.JSON(fiber.Map{
		"success":     true,
		"filename":    filename,
		"downloadUrl": "/download/" + filename,
		"message":     "HTML file generated successfully!",
	})
}

func (h *Handlers) generateFailed(c *fiber.Ctx, err error, filename string) error {
	logger.WithError(err).
		Str("filename", filename).
		Msg("Error generating HTML")
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to generate HTML file",
	})
}

// DownloadArticle handles GET /download/:filename
func (h *Handlers) DownloadArticle(c *fiber.Ctx) error {
	name := c.Params("filename")

	path, err := h.storage.ArticlePath(name)
	if errors.Is(err, storage.ErrNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "File not found",
		})
	}
	if err != nil {
		return err
	}

	// stream straight from disk; fiber's SendFile cache would serve a stale
	// copy after a same-minute resubmission
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return err
	}

	c.Attachment(name)
	return c.SendStream(f, int(info.Size()))
}

// ListArticles handles GET /api/articles
func (h *Handlers) ListArticles(c *fiber.Ctx) error {
	idx, err := h.index.Load(c.Context())
	if err != nil {
		logger.WithError(err).Msg("Error loading articles index")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load articles index",
		})
	}
	return c.JSON(idx)
}
