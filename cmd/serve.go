// -- cmd/serve.go --
package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/chatrelay/internal/actuator"
	"github.com/xkilldash9x/chatrelay/internal/browser"
	"github.com/xkilldash9x/chatrelay/internal/observability"
	"github.com/xkilldash9x/chatrelay/internal/orchestrator"
	"github.com/xkilldash9x/chatrelay/internal/server"
	"github.com/xkilldash9x/chatrelay/internal/session"
	"github.com/xkilldash9x/chatrelay/internal/solver"
	"github.com/xkilldash9x/chatrelay/internal/upstream"
)

// shutdownGrace bounds draining on SIGINT/SIGTERM.
const shutdownGrace = 15 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP relay server.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	logger := observability.GetLogger()
	defer observability.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vision, err := solver.New(ctx, cfg.Solver, logger)
	if err != nil {
		return fmt.Errorf("initializing challenge solver: %w", err)
	}

	pool := browser.NewPool(cfg.Browser, logger)
	acquirer := session.NewAcquirer(cfg.Target, cfg.Browser, logger)
	client := upstream.NewClient(cfg.Upstream, cfg.Target, logger)
	clicker := actuator.New(cfg.Challenge, logger)

	orch := orchestrator.New(
		cfg.Challenge,
		orchestrator.NewPoolOpener(pool, acquirer),
		client,
		vision,
		clicker,
		logger,
	)

	srv := server.New(cfg.Server, cfg.Upstream, orch, logger)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Run()
	}()

	select {
	case err := <-errCh:
		pool.Shutdown(context.Background())
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down")
	graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()

	if err := srv.Shutdown(graceCtx); err != nil {
		logger.Warn("HTTP server shutdown incomplete", zap.Error(err))
	}
	if err := pool.Shutdown(graceCtx); err != nil {
		logger.Warn("Browser pool shutdown incomplete", zap.Error(err))
	}
	return nil
}
