package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/rpattn/tradeboard/internal/dashboard"
	"github.com/rpattn/tradeboard/internal/db"
	"github.com/rpattn/tradeboard/internal/export"
	"github.com/rpattn/tradeboard/internal/ingestion"
	"github.com/rpattn/tradeboard/internal/repository"
	"github.com/rpattn/tradeboard/internal/server"
	"github.com/rpattn/tradeboard/internal/session"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if addr != "" {
				opts.cfg.Server.Addr = addr
			}
			return serve(cmd.Context(), opts)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address, overrides server.addr")
	return cmd
}

func serve(parent context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	var logRepo repository.UploadLogRepository
	if cfg.Database.Enabled {
		conn, err := db.NewConnection(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		defer conn.Close()

		if err := db.RunMigrations(cfg.Database); err != nil {
			return err
		}
		logRepo = repository.NewUploadLogRepository(conn.Pool)
	} else {
		log.Info().Str("component", "server").Msg("database disabled, upload log not persisted")
	}

	store := session.NewStore(session.WithTTL(cfg.Session.TTL))
	go store.RunJanitor(ctx, cfg.Session.SweepInterval)

	ingest := ingestion.NewService(logRepo, ingestion.WithSheetName(cfg.Upload.SheetName))
	exporter := export.NewService(export.WithExportDirectory(cfg.Export.Directory))
	board := dashboard.NewService(store, exporter)

	handler := server.NewRouter(server.Dependencies{
		Uploads:        ingestion.NewHTTPHandler(ingest, store, cfg.Upload.MaxBytes),
		Dashboard:      dashboard.NewHTTPHandler(board, store),
		AllowedOrigins: cfg.Server.AllowedOrigins,
	})

	httpServer := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().Str("component", "server").Str("addr", cfg.Server.Addr).Msg("starting HTTP API")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-serverErr:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	log.Info().Str("component", "server").Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Info().Str("component", "server").Msg("server exited")
	return nil
}
