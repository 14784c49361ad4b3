package server

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// Start runs the HTTP server until an interrupt or terminate signal arrives,
// then shuts everything down in reverse dependency order.
func (s *Server) Start() {
	if err := s.Boot(); err != nil {
		slog.Error("Failed to boot modules", "error", err)
		os.Exit(1)
	}

	go func() {
		if err := s.E.Start(s.Cfg.GetAddr()); err != nil && err != http.ErrServerClosed {
			slog.Error("Server stopped", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Stop accepting new presence joins before the transport goes away so no
	// Online record is published without its offline compensation.
	s.Tracker.Shutdown()

	for _, mod := range s.modules {
		if err := mod.Shutdown(ctx); err != nil {
			slog.Error("Module shutdown failed", "module", mod.Name(), "error", err)
		}
	}

	if err := s.E.Shutdown(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}

	s.cancel()

	if err := s.Bus.Close(); err != nil {
		slog.Error("Bus shutdown failed", "error", err)
	}
	if err := s.Conn.Close(ctx); err != nil {
		slog.Error("Database close failed", "error", err)
	}
}
