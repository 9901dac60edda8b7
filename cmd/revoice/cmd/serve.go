package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jmylchreest/revoice/internal/config"
	internalhttp "github.com/jmylchreest/revoice/internal/http"
	"github.com/jmylchreest/revoice/internal/storage"
	"github.com/jmylchreest/revoice/internal/version"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the revoice server",
	Long: `Start the revoice HTTP server and task scheduler.

The server provides:
- REST API for uploads, tasks, and segment editing
- WebSocket progress stream per task
- OpenAPI documentation at /docs`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("host", "0.0.0.0", "Host to bind to")
	serveCmd.Flags().Int("port", 8080, "Port to listen on")
	serveCmd.Flags().String("data-dir", "data", "Base directory for tasks and uploads")

	viper.BindPFlag("server.host", serveCmd.Flags().Lookup("host"))
	viper.BindPFlag("server.port", serveCmd.Flags().Lookup("port"))
	viper.BindPFlag("storage.base_dir", serveCmd.Flags().Lookup("data-dir"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := slog.Default()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}

	server := internalhttp.NewServer(internalhttp.ServerConfig{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     cfg.Server.ReadTimeout,
		WriteTimeout:    cfg.Server.WriteTimeout,
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
		CORSOrigins:     cfg.Server.CORSOrigins,
		MaxUploadSize:   int64(cfg.Server.MaxUploadSize),
	}, internalhttp.Deps{
		Store:   a.store,
		Uploads: a.uploads,
		Manager: a.manager,
		Bus:     a.bus,
		Version: version.Version,
	}, logger)

	var sweeper *storage.RetentionSweeper
	if cfg.Retention.Enabled {
		sweeper = storage.NewRetentionSweeper(a.store, a.uploads,
			cfg.Retention.MaxAge.Duration(), logger)
		if err := sweeper.Start(cfg.Retention.Cron); err != nil {
			return fmt.Errorf("starting retention sweeper: %w", err)
		}
		defer sweeper.Stop()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		logger.Info("received shutdown signal", slog.String("signal", sig.String()))
		cancel()
	}()

	logger.Info("starting revoice server",
		slog.String("host", cfg.Server.Host),
		slog.Int("port", cfg.Server.Port),
		slog.String("version", version.Version),
	)

	serveErr := server.ListenAndServe(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := a.manager.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown incomplete", slog.String("error", err.Error()))
	}

	return serveErr
}
