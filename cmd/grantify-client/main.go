package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
)

func main() {
	// Initialize composition root with all dependencies
	root, err := NewCompositionRoot()
	if err != nil {
		fmt.Printf("Failed to initialize application: %v\n", err)
		os.Exit(1)
	}

	// Ensure cleanup on exit
	defer func() {
		if err := root.Cleanup(); err != nil {
			root.Logger.Error("Failed to cleanup resources", zap.Error(err))
		}
	}()

	go func() {
		if err := root.HTTPServer.Start(root.Config.Server.ListenAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			root.Logger.Error("Control API server failed", zap.Error(err))
		}
	}()

	go seedInteractions(root)

	// Wait for interrupt signal to gracefully shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	root.Logger.Info("Shutting down client...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := root.HTTPServer.Stop(ctx); err != nil {
		root.Logger.Error("HTTP server forced to shutdown", zap.Error(err))
	}
	root.Shutdown()

	root.Logger.Info("Client exited")
}

// seedInteractions loads the signed-in user's recorded interactions so
// counters are correct before the first action
func seedInteractions(root *CompositionRoot) {
	ctx, cancel := context.WithTimeout(context.Background(), root.Config.Service.RequestTimeout)
	defer cancel()

	if !root.Credentials.Authenticated(ctx) {
		return
	}
	interactions, err := root.API.Interactions(ctx)
	if err != nil {
		root.Logger.Warn("Failed to load interactions", zap.Error(err))
		return
	}
	root.Coordinator.Seed(interactions)
	root.Logger.Info("Loaded interactions", zap.Int("count", len(interactions)))
}
