package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/IvanBrykalov/warmcache"
	"github.com/IvanBrykalov/warmcache/internal/debugapi"
)

const shutdownTimeout = 10 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the cache layer and its debug HTTP API",
	RunE:  runServe,
}

func init() {
	flags := serveCmd.Flags()
	flags.String("listen", "127.0.0.1:8089", "Debug API listen address")
	flags.String("origin", "", "Origin used to resolve hovered links")
	flags.String("effective-type", "4g", "Initial connection type: slow-2g, 2g, 3g, 4g")
	_ = settings.BindPFlag("listen", flags.Lookup("listen"))
	_ = settings.BindPFlag("origin", flags.Lookup("origin"))
	_ = settings.BindPFlag("prefetch.effective_type", flags.Lookup("effective-type"))
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(settings)
	if err != nil {
		return err
	}
	layer, err := warmcache.New(cfg, warmcache.Options{})
	if err != nil {
		return err
	}
	defer func() { _ = layer.Close() }()
	layer.Start()

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := debugapi.NewRouter(debugapi.Deps{
		Coordinator: layer.Coordinator,
		Scheduler:   layer.Scheduler,
		Network:     layer.Network,
		Gatherer:    layer.Registry,
		Logger:      layer.Log,
	})
	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		layer.Log.Info("debug api listening", zap.String("addr", cfg.Listen))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	layer.Log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
