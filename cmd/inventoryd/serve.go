package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	inventoryserver "github.com/technikum29/t29-inventory-server"
	"github.com/technikum29/t29-inventory-server/internal/httpd"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the inventory coordination server",
	Long: `Start the HTTP and websocket server. The repository is initialized on
first start, staged patches from a previous run are recovered, and the
repository is watched for commits made outside the server.`,
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		logger := slog.Default()

		ctx, cancel := context.WithCancel(cmd.Context())
		defer cancel()

		sys := inventoryserver.New(cfg.Paths.Repository, cfg.Paths.Patches,
			inventoryserver.WithInventoryFile(cfg.Paths.InventoryFile),
			inventoryserver.WithLogger(logger),
		)
		if err := sys.Initialize(ctx); err != nil {
			fatal("Failed to initialize", err)
		}

		if cfg.Watch.Enabled {
			if err := sys.StartWatcher(ctx, cfg.Watch.Pattern); err != nil {
				fatal("Failed to watch repository", err)
			}
		}

		server := httpd.NewServer(cfg, sys.Service, sys.Hub, sys.Repository, logger)

		errCh := make(chan error, 1)
		go func() {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		exit := make(chan os.Signal, 1)
		signal.Notify(exit, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-exit:
			logger.Info("signal caught, shutting down", "sig", sig.String())
		case err := <-errCh:
			fatal("Server failed", err)
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
		cancel()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
