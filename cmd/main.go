package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/bilgisen/blog-editor/internal/api"
	"github.com/bilgisen/blog-editor/internal/cache"
	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/bilgisen/blog-editor/internal/mirror"
)

func main() {
	// Load and validate configuration
	cfg := config.Load()

	// Initialize logger
	output := cfg.LogFile
	if output == "" {
		output = "stdout"
	}
	if err := logger.Init(logger.Config{
		Level:     cfg.LogLevel,
		Output:    output,
		Pretty:    cfg.Env != "production",
		Component: "server",
	}); err != nil {
		panic(err)
	}

	log := logger.Get()
	log.Info().Str("env", cfg.Env).Msg("Starting blog editor...")

	// Index lock, local unless REDIS_URL is set
	locker, err := cache.NewLocker(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize index lock")
	}
	defer func() {
		if err := locker.Close(); err != nil {
			log.Error().Err(err).Msg("Error closing index lock")
		}
	}()

	m, err := mirror.New(context.Background(), cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize R2 mirror")
	}
	if cfg.MirrorEnabled() {
		log.Info().Str("bucket", cfg.R2Bucket).Msg("Mirroring articles to R2")
	}

	handlers, err := api.NewHandlers(cfg, locker, m)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize handlers")
	}

	app := api.NewApp(cfg, handlers)

	// Bind before announcing, so a busy port fails loudly and the shell never sees the ready line
	ln, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.Port).Msg("Failed to bind port")
	}

	// The shell watches stdout for this line, even when logs go to a file
	fmt.Printf("%s at http://localhost:%s\n", config.ReadyMessage, cfg.Port)
	log.Info().
		Str("port", cfg.Port).
		Str("articles_dir", cfg.ArticlesDir).
		Str("uploads_dir", cfg.UploadsDir).
		Msg(config.ReadyMessage)

	go func() {
		if err := app.Listener(ln); err != nil {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited properly")
}
