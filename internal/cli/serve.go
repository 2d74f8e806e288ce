package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-rollcall/classroom"
	"github.com/jrsteele09/go-rollcall/internal/clock"
	"github.com/jrsteele09/go-rollcall/internal/config"
	"github.com/jrsteele09/go-rollcall/remote"
	"github.com/jrsteele09/go-rollcall/remote/dropbox"
	"github.com/jrsteele09/go-rollcall/remote/localfs"
	"github.com/jrsteele09/go-rollcall/server"
	"github.com/jrsteele09/go-rollcall/syncer"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

const (
	shutdownTimeout = 5 * time.Second
	noticeLimit     = 20
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	NoBanner bool
}

// NewServeCommand creates the serve command.
func NewServeCommand(_ *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the attendance web server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.NoBanner, "no-banner", false, "skip the startup banner")
	return cmd
}

func runServe(ctx context.Context, opts *ServeOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	a, err := newApp(ctx, true)
	if err != nil {
		return err
	}
	if !opts.NoBanner {
		displayAppname(a.cfg.GetAppName())
	}

	courses, err := config.LoadCourses(a.cfg.GetCoursesFile())
	if err != nil {
		return err
	}
	a.logger.Info().Int("courses", len(courses)).Str("file", a.cfg.GetCoursesFile()).Msg("Courses loaded")

	store, err := newRemoteStore(a.cfg, a.logger)
	if err != nil {
		return err
	}

	notices := syncer.NewBoard(noticeLimit, clock.Real{})
	pipeline, err := syncer.NewPipeline(a.cfg, a.tokens, store,
		syncer.WithLogger(a.logger),
		syncer.WithNotifier(notices),
		syncer.WithBaseContext(ctx),
	)
	if err != nil {
		return err
	}

	controller, err := classroom.NewController(a.cfg, courses, a.tokens, store, pipeline, classroom.WithLogger(a.logger))
	if err != nil {
		return err
	}

	handler, err := server.New(a.cfg, a.tokens, controller, notices)
	if err != nil {
		return err
	}

	go cleanupVerifiers(ctx, a)

	srv := &http.Server{Addr: a.cfg.GetPort(), Handler: handler}
	serveErr := make(chan error, 1)
	go func() {
		serveErr <- listenAndServe(srv, a.logger)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-waitForStopSignal(ctx):
	}

	return shutdown(srv, pipeline, a.logger)
}

func newRemoteStore(cfg config.Config, logger zerolog.Logger) (remote.Store, error) {
	switch cfg.GetStorageBackend() {
	case config.StorageDropbox:
		return dropbox.NewClient(dropbox.WithLogger(logger), dropbox.WithRateLimit(cfg.GetRemoteRateLimit())), nil
	case config.StorageFile:
		store, err := localfs.New(filepath.Join(cfg.GetDataFolder(), "remote"), logger)
		if err != nil {
			return nil, err
		}
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.GetStorageBackend())
	}
}

// cleanupVerifiers drops abandoned authorization attempts.
func cleanupVerifiers(ctx context.Context, a *app) {
	ticker := time.NewTicker(a.cfg.GetVerifierTTL())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.ephemeral.Cleanup()
		}
	}
}

func listenAndServe(srv *http.Server, logger zerolog.Logger) error {
	logger.Info().Str("addr", srv.Addr).Msg("Server listening")
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server.ListenAndServe %w", err)
	}
	return nil
}

func waitForStopSignal(ctx context.Context) <-chan struct{} {
	stop := make(chan struct{})
	go func() {
		defer close(stop)
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
		defer signal.Stop(sig)
		select {
		case <-sig:
		case <-ctx.Done():
		}
	}()
	return stop
}

// shutdown stops accepting requests, then pushes any pending saves so edits
// made just before the stop are not lost.
func shutdown(srv *http.Server, pipeline *syncer.Pipeline, logger zerolog.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	if err := pipeline.Flush(ctx); err != nil {
		logger.Error().Err(err).Msg("Pending saves were not written")
		return err
	}
	logger.Info().Msg("Server stopped")
	return nil
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
