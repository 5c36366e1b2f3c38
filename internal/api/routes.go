package api

import (
	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/middleware"
	"github.com/bilgisen/blog-editor/internal/storage"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

// NewApp creates the Fiber app with the editor's middleware and routes
func NewApp(cfg *config.Config, h *Handlers) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               "blog-editor",
		ReadTimeout:           cfg.HTTPTimeout,
		WriteTimeout:          cfg.HTTPTimeout,
		BodyLimit:             cfg.BodyLimit,
		ErrorHandler:          middleware.ErrorHandler,
		DisableStartupMessage: true,
	})

	// a panicking request fails alone; the process keeps serving
	app.Use(recover.New(recover.Config{
		EnableStackTrace:  true,
		StackTraceHandler: middleware.PanicLogger,
	}))
	app.Use(cors.New())
	app.Use(middleware.RequestLogger())

	SetupRoutes(app, h)

	return app
}

// SetupRoutes configures all the routes for the application
func SetupRoutes(app *fiber.App, h *Handlers) {
	app.Get("/health", h.HealthCheck)

	app.Post("/upload-image", h.UploadImage)
	app.Post("/generate-html", h.GenerateHTML)
	app.Get("/download/:filename", h.DownloadArticle)

	app.Get("/api/articles", h.ListArticles)

	app.Static(storage.UploadsRoute, h.storage.UploadsDir())
	if h.config.StaticDir != "" {
		app.Static("/", h.config.StaticDir)
	}

	// 404 Handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Endpoint not found",
		})
	})
}
