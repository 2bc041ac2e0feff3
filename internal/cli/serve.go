package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/roach88/subsku/internal/httpapi"
	"github.com/roach88/subsku/internal/worker"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	StoreFlags
	Addr string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Accept webhooks and process them in the background",
		Long: `Start the webhook intake server and the event worker.

Deliveries to POST /webhooks/{topic} are validated, queued and answered
with 202. A single worker processes the queue in order, retrying failed
events with exponential backoff. On SIGINT or SIGTERM the server stops
accepting and the worker drains what is already queued.

Example:
  subsku serve --db ./subsku.db --addr :8080
  subsku serve --config subsku.cue --platform-state platform.yaml`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	opts.StoreFlags.register(cmd)
	cmd.Flags().StringVar(&opts.Addr, "addr", "", "HTTP listen address (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	cfg, err := loadConfig(opts.RootOptions, &opts.StoreFlags)
	if err != nil {
		return err
	}
	if opts.Addr != "" {
		cfg.HTTPAddr = opts.Addr
	}
	logger := setupLogging(opts.RootOptions, cfg)

	a, err := openApp(cfg, opts.PlatformState, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	w := worker.New(a.dispatcher, worker.Options{
		MaxAttempts:     cfg.MaxAttempts,
		InitialInterval: cfg.InitialInterval,
		MaxInterval:     cfg.MaxInterval,
		JobTimeout:      cfg.JobTimeout,
		QueueLimit:      cfg.QueueLimit,
		Logger:          logger,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.New(w, a.engine, a.store, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, stop := signal.NotifyContext(parentCtx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	// The worker ignores cancellation; Stop ends it once the queue drains.
	g.Go(func() error {
		return w.Run(context.WithoutCancel(gctx))
	})
	g.Go(func() error {
		logger.Info("http server listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", "pending", w.Pending())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := srv.Shutdown(shutdownCtx)
		w.Stop()
		return err
	})

	fmt.Fprintf(cmd.OutOrStdout(), "Listening on %s. Press Ctrl-C to stop.\n", cfg.HTTPAddr)

	if err := g.Wait(); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}

	stats := w.Stats()
	logger.Info("stopped gracefully", "succeeded", stats.Succeeded, "failed", stats.Failed)
	return nil
}
