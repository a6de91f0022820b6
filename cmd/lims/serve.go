package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/labtrack/lims/pkg/common/logger"
	"github.com/labtrack/lims/pkg/lims"
	"github.com/spf13/cobra"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", true, "create or update tables before serving")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := openApp(true)
	if err != nil {
		return err
	}
	defer a.close()

	if migrateOnStart {
		if err := a.service.Migrate(ctx); err != nil {
			return err
		}
	}

	var handlerOpts []lims.HandlerOption
	if cfg.TrustProxy {
		handlerOpts = append(handlerOpts, lims.WithTrustedProxy())
	}
	handler := lims.NewHandler(a.service, cfg.PublicBaseURL, handlerOpts...)
	router := lims.NewRouter(handler, lims.RouterOptions{
		MaxRequestBody: cfg.MaxRequestBody,
		CORS:           cfg.CORSEnabled,
		Metrics:        a.metrics,
	})

	address := fmt.Sprintf("%s:%s", cfg.ServerHost, cfg.ServerPort)
	server := &http.Server{
		Addr:         address,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Log.WithField("addr", address).Info("LIMS API listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Log.Info("Shutting down LIMS API...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Log.WithError(err).Error("LIMS API forced to shutdown")
	}
	logger.Log.Info("LIMS API stopped")
	return nil
}
