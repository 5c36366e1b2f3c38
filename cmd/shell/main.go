package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/bilgisen/blog-editor/internal/config"
	"github.com/bilgisen/blog-editor/internal/logger"
	"github.com/bilgisen/blog-editor/internal/shell"
	"github.com/spf13/cobra"
)

type options struct {
	serverBin    string
	dir          string
	url          string
	readyTimeout time.Duration
	restartDelay time.Duration
	noBrowser    bool
	logLevel     string
}

func main() {
	var opts options

	cmd := &cobra.Command{
		Use:   "blog-editor-shell",
		Short: "Run the blog editor server and open it in the browser",
		Long: "Starts the editor server as a child process, opens the editor once it is " +
			"ready and restarts the server if it exits unexpectedly.",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.serverBin, "server-bin", "blog-editor", "path to the editor server binary")
	flags.StringVar(&opts.dir, "dir", "", "working directory for the server")
	flags.StringVar(&opts.url, "url", "http://localhost:3000", "address the editor is served on")
	flags.DurationVar(&opts.readyTimeout, "ready-timeout", shell.DefaultConfig.ReadyTimeout, "assume the server is up after this long")
	flags.DurationVar(&opts.restartDelay, "restart-delay", shell.DefaultConfig.RestartDelay, "pause before restarting a crashed server")
	flags.BoolVar(&opts.noBrowser, "no-browser", false, "do not open the editor in a browser")
	flags.StringVar(&opts.logLevel, "log-level", "info", "log level")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func run(ctx context.Context, opts options) error {
	if err := logger.Init(logger.Config{
		Level:     opts.logLevel,
		Output:    "stderr",
		Pretty:    true,
		Component: "shell",
	}); err != nil {
		return err
	}
	log := logger.Get()

	base := strings.TrimRight(opts.url, "/")
	probe := shell.NewHealthProbe(base + "/health")

	sup := shell.NewSupervisor(
		shell.CommandLauncher(opts.serverBin, nil, opts.dir, "APP_ENV=production"),
		shell.Config{
			ReadyMarker:  config.ReadyMessage,
			ReadyTimeout: opts.readyTimeout,
			RestartDelay: opts.restartDelay,
			Probe:        probe.Check,
			OnReady: func() {
				log.Info().Str("url", base).Msg("Editor is ready")
				if opts.noBrowser {
					return
				}
				if err := shell.OpenBrowser(base); err != nil {
					log.Warn().Err(err).Msg("Failed to open browser")
				}
			},
			OnState: func(s shell.State) {
				log.Debug().Stringer("state", s).Msg("server state")
			},
		},
	)

	err := sup.Run(ctx)
	if errors.Is(err, shell.ErrStartFailed) {
		log.Error().Err(err).Str("server", opts.serverBin).Msg("Editor server could not be started")
		return err
	}
	log.Info().Msg("Shell exited")
	return err
}
